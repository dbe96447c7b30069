// Package roles maps free-text job titles onto the closed set of decision-maker roles
// the outreach pipeline targets.
package roles

import (
	"sort"
	"strings"
	"unicode"
)

// Role is a canonical decision-maker role.
type Role string

// Canonical roles.
const (
	Founder           Role = "Founder"
	CoFounder         Role = "Co-Founder"
	CEO               Role = "CEO"
	CTO               Role = "CTO"
	CFO               Role = "CFO"
	COO               Role = "COO"
	HeadOfEngineering Role = "Head of Engineering"
	VPEngineering     Role = "VP of Engineering"
	StaffEngineer     Role = "Staff Engineer"
	PrincipalEngineer Role = "Principal Engineer"
	FoundingEngineer  Role = "Founding Engineer"
	HeadOfProduct     Role = "Head of Product"
	VPProduct         Role = "VP of Product"
	HeadOfGrowth      Role = "Head of Growth"
	HeadOfSales       Role = "Head of Sales"
	VPSales           Role = "VP of Sales"
	AgencyOwner       Role = "Agency Owner"
	Partner           Role = "Partner"
	HeadOfPeople      Role = "Head of People"
	HRDirector        Role = "HR Director"
)

// all lists the canonical roles in declaration order.
var all = []Role{
	Founder, CoFounder, CEO, CTO, CFO, COO,
	HeadOfEngineering, VPEngineering, StaffEngineer, PrincipalEngineer, FoundingEngineer,
	HeadOfProduct, VPProduct, HeadOfGrowth, HeadOfSales, VPSales,
	AgencyOwner, Partner, HeadOfPeople, HRDirector,
}

// aliases maps normalized phrases to their canonical role. Canonical names are added
// by init.
var aliases = map[string]Role{
	"cofounder":                     CoFounder,
	"co founder":                    CoFounder,
	"founder and ceo":               CEO,
	"founder ceo":                   CEO,
	"chief executive officer":       CEO,
	"chief executive":               CEO,
	"managing director":             CEO,
	"chief technology officer":      CTO,
	"chief technical officer":       CTO,
	"chief financial officer":       CFO,
	"chief operating officer":       COO,
	"chief operations officer":      COO,
	"head of engineering":           HeadOfEngineering,
	"engineering lead":              HeadOfEngineering,
	"director of engineering":       HeadOfEngineering,
	"engineering director":          HeadOfEngineering,
	"vp engineering":                VPEngineering,
	"vp of engineering":             VPEngineering,
	"vice president of engineering": VPEngineering,
	"vice president engineering":    VPEngineering,
	"staff software engineer":       StaffEngineer,
	"principal software engineer":   PrincipalEngineer,
	"founding software engineer":    FoundingEngineer,
	"vp product":                    VPProduct,
	"vice president of product":     VPProduct,
	"director of product":           HeadOfProduct,
	"product lead":                  HeadOfProduct,
	"growth lead":                   HeadOfGrowth,
	"vp growth":                     HeadOfGrowth,
	"vp of growth":                  HeadOfGrowth,
	"director of growth":            HeadOfGrowth,
	"vp sales":                      VPSales,
	"vice president of sales":       VPSales,
	"sales director":                HeadOfSales,
	"director of sales":             HeadOfSales,
	"chief revenue officer":         VPSales,
	"cro":                           VPSales,
	"agency founder":                AgencyOwner,
	"managing partner":              Partner,
	"founding partner":              Partner,
	"head of hr":                    HRDirector,
	"hr director":                   HRDirector,
	"director of hr":                HRDirector,
	"head of human resources":       HRDirector,
	"director of human resources":   HRDirector,
	"head of talent":                HeadOfPeople,
	"vp people":                     HeadOfPeople,
	"vp of people":                  HeadOfPeople,
	"chief people officer":          HeadOfPeople,
	"people operations lead":        HeadOfPeople,
}

// disqualifiers mark a title as not belonging to the decision-maker themselves.
var disqualifiers = map[string]bool{
	"intern":     true,
	"internship": true,
	"assistant":  true,
	"former":     true,
	"ex":         true,
	"trainee":    true,
	"advisor":    true,
}

// phrases is the alias table ordered longest-first so the most specific match wins.
var phrases []string

func init() {
	for _, r := range all {
		aliases[normalize(string(r))] = r
	}
	for phrase := range aliases {
		phrases = append(phrases, phrase)
	}
	sort.Slice(phrases, func(i, j int) bool {
		if len(phrases[i]) != len(phrases[j]) {
			return len(phrases[i]) > len(phrases[j])
		}
		return phrases[i] < phrases[j]
	})
}

// All returns the canonical roles.
func All() []Role {
	out := make([]Role, len(all))
	copy(out, all)
	return out
}

// Valid reports whether r is one of the canonical roles.
func Valid(r Role) bool {
	for _, c := range all {
		if c == r {
			return true
		}
	}
	return false
}

// Match is the result of classifying a title.
type Match struct {
	Role  Role
	Exact bool
}

// Classify maps free text to a canonical role. An exact match of the whole title is
// tried first, then a whole-word search for the longest known phrase.
func Classify(freeText string) (Match, bool) {
	text := normalize(freeText)
	if text == "" {
		return Match{}, false
	}

	words := strings.Fields(text)
	for _, w := range words {
		if disqualifiers[w] {
			return Match{}, false
		}
	}

	if r, ok := aliases[text]; ok {
		return Match{Role: r, Exact: true}, true
	}

	padded := " " + text + " "
	for _, phrase := range phrases {
		if strings.Contains(padded, " "+phrase+" ") {
			return Match{Role: aliases[phrase]}, true
		}
	}
	return Match{}, false
}

// Normalize maps free text to a canonical role. ok is false when the text names no
// decision-maker role.
func Normalize(freeText string) (Role, bool) {
	m, ok := Classify(freeText)
	return m.Role, ok
}

// normalize lowercases text, turns punctuation into spaces and collapses whitespace.
// "&" becomes "and" so "Founder & CEO" reads like "founder and ceo".
func normalize(s string) string {
	s = strings.ToLower(s)
	s = strings.ReplaceAll(s, "&", " and ")
	s = strings.ReplaceAll(s, "-", " ")
	s = strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) {
			return r
		}
		return ' '
	}, s)
	return strings.Join(strings.Fields(s), " ")
}
