package people

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/jonathan/outreach-agent/internal/roles"
)

// honorifics are stripped from the front of a name.
var honorifics = []string{"dr.", "dr", "mr.", "mr", "ms.", "ms", "mrs.", "mrs", "prof.", "prof"}

// nonNameWords appear in headings and labels that are capitalised like names.
var nonNameWords = map[string]bool{
	"team": true, "our": true, "about": true, "meet": true, "contact": true, "company": true,
	"leadership": true, "inc": true, "inc.": true, "llc": true, "ltd": true, "ltd.": true,
	"blog": true, "news": true, "careers": true, "us": true, "the": true, "home": true,
	"services": true, "products": true, "product": true, "welcome": true, "board": true,
	"advisors": true, "founders": true, "management": true, "staff": true, "people": true,
	"read": true, "more": true, "view": true, "profile": true, "learn": true, "get": true,
	"in": true, "touch": true, "join": true, "why": true, "how": true, "what": true,
	"latest": true, "posts": true, "privacy": true, "policy": true, "terms": true,
	"engineering": true, "marketing": true, "sales": true, "design": true, "support": true,
}

// particles may appear lowercase inside a surname ("Ludwig van Dijk").
var particles = map[string]bool{"van": true, "von": true, "de": true, "da": true, "del": true, "der": true, "la": true, "le": true, "bin": true}

// separatorRe splits "Jane Doe, CTO", "Jane Doe | CTO" and dash-separated forms.
var separatorRe = regexp.MustCompile(`\s*(?:,|\s[-\x{2013}\x{2014}|]\s|\s*[\x{2013}\x{2014}|]\s*)\s*`)

// byPrefixRe strips a leading "By" or "Written by" from bylines.
var byPrefixRe = regexp.MustCompile(`(?i)^\s*(?:written\s+|posted\s+)?by\s*:?\s+`)

// NormalizeName lowercases a name and collapses whitespace.
func NormalizeName(name string) string {
	return strings.Join(strings.Fields(strings.ToLower(name)), " ")
}

// CleanName trims whitespace, collapses runs of spaces and strips a leading honorific.
func CleanName(name string) string {
	fields := strings.Fields(name)
	if len(fields) > 2 {
		first := strings.ToLower(fields[0])
		for _, h := range honorifics {
			if first == h {
				fields = fields[1:]
				break
			}
		}
	}
	return strings.Join(fields, " ")
}

// LooksLikeName reports whether s reads like a person's full name: two to four
// capitalised tokens of letters, hyphens, apostrophes or periods, and not a role
// phrase or a generic page label.
func LooksLikeName(s string) bool {
	s = CleanName(s)
	if s == "" || len(s) > 60 {
		return false
	}
	tokens := strings.Fields(s)
	if len(tokens) < 2 || len(tokens) > 4 {
		return false
	}
	for i, tok := range tokens {
		if nonNameWords[strings.ToLower(tok)] {
			return false
		}
		if i > 0 && i < len(tokens)-1 && particles[tok] {
			continue
		}
		if !isNameToken(tok) {
			return false
		}
	}
	if _, ok := roles.Normalize(s); ok {
		return false
	}
	return true
}

func isNameToken(tok string) bool {
	letters := 0
	for i, r := range tok {
		switch {
		case unicode.IsLetter(r):
			if i == 0 && !unicode.IsUpper(r) {
				return false
			}
			letters++
		case r == '-' || r == '\'' || r == '.' || r == '’':
			if i == 0 {
				return false
			}
		default:
			return false
		}
	}
	return letters > 0
}

// splitNameAndTitle splits "Jane Doe, Co-Founder" into its name and title parts. ok is
// false when no separator is present.
func splitNameAndTitle(s string) (name, title string, ok bool) {
	loc := separatorRe.FindStringIndex(s)
	if loc == nil {
		return "", "", false
	}
	name = strings.TrimSpace(s[:loc[0]])
	title = strings.TrimSpace(s[loc[1]:])
	if name == "" || title == "" {
		return "", "", false
	}
	return name, title, true
}

// stripByPrefix removes a leading "By" from a byline.
func stripByPrefix(s string) string {
	return strings.TrimSpace(byPrefixRe.ReplaceAllString(s, ""))
}

// collapse trims s and collapses internal whitespace.
func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
