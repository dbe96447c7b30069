// Package people finds named decision-makers on company web pages. Three HTML strategies
// propose (name, title) pairs, the role normalizer gates them, and duplicates collapse to
// the most confident sighting.
package people

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/jonathan/outreach-agent/internal/emailaddr"
	"github.com/jonathan/outreach-agent/internal/roles"
	"go.uber.org/zap"
)

// Strategy names the HTML pattern a candidate was found with.
type Strategy string

// Strategy constants
const (
	StrategyTeamCard Strategy = "team_card"
	StrategyAuthor   Strategy = "author_byline"
	StrategyHeading  Strategy = "heading_role"
)

// Fixed confidence per strategy.
const (
	TeamCardConfidence = 0.90
	AuthorConfidence   = 0.75
	HeadingConfidence  = 0.85
)

// Confidence returns the fixed confidence of a strategy.
func (s Strategy) Confidence() float64 {
	switch s {
	case StrategyTeamCard:
		return TeamCardConfidence
	case StrategyHeading:
		return HeadingConfidence
	case StrategyAuthor:
		return AuthorConfidence
	default:
		return 0
	}
}

var (
	cardSelector = strings.Join([]string{
		".team-member", ".team-card", ".member-card", ".person", ".person-card",
		".profile-card", ".staff-member", ".leadership-card", ".bio-card",
		`[class*="team-member"]`, `[class*="teamMember"]`, `[itemtype*="schema.org/Person"]`,
	}, ", ")
	cardNameSelectors  = []string{`[itemprop="name"]`, ".name", ".member-name", ".person-name", "h2", "h3", "h4", "h5", "strong", "b"}
	cardTitleSelectors = []string{`[itemprop="jobTitle"]`, ".title", ".role", ".position", ".job-title", ".designation", "p", "span", "h4", "h5", "small", "em"}

	authorSelector        = `[rel="author"], .author, .byline, .post-author, .author-name, [itemprop="author"]`
	authorTitleSelector   = `.author-title, .author-role, .author-position, .author-bio, [itemprop="jobTitle"]`
	headingSelector       = "h1, h2, h3, h4, h5, h6"
	maxHeadingSiblingHops = 2
)

// Candidate is a person found on a page whose role passed the gate.
type Candidate struct {
	Name           string     `json:"name"`
	NormalizedName string     `json:"normalized_name"`
	RawTitle       string     `json:"raw_title"`
	Role           roles.Role `json:"role"`
	Confidence     float64    `json:"confidence"`
	Strategy       Strategy   `json:"strategy"`
	SourceURL      string     `json:"source_url"`
}

// Extraction is the full outcome for one page.
type Extraction struct {
	People []Candidate
	// RolesRejected counts distinct names dropped because their title is not a
	// decision-maker role.
	RolesRejected int
}

// Extractor runs the extraction strategies over page HTML.
type Extractor struct {
	logger *zap.Logger
}

// NewExtractor creates an Extractor.
func NewExtractor(logger *zap.Logger) *Extractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{logger: logger}
}

// Extract returns the role-gated, deduplicated people on a page.
func (e *Extractor) Extract(html, pageURL, companyDomain string) ([]Candidate, error) {
	res, err := e.ExtractAll(html, pageURL, companyDomain)
	if err != nil {
		return nil, err
	}
	return res.People, nil
}

// sighting is an unvalidated (name, title) pair.
type sighting struct {
	name     string
	title    string
	strategy Strategy
}

// ExtractAll runs every strategy and reports both accepted people and role rejections.
func (e *Extractor) ExtractAll(html, pageURL, companyDomain string) (*Extraction, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}
	doc.Find("script, style, noscript, template").Remove()

	var sightings []sighting
	sightings = append(sightings, teamCards(doc)...)
	sightings = append(sightings, authorBylines(doc)...)
	sightings = append(sightings, headingRoles(doc)...)

	brand := brandLabel(companyDomain)
	byName := make(map[string]int)
	rejected := make(map[string]bool)
	out := &Extraction{}

	for _, s := range sightings {
		name := CleanName(s.name)
		norm := NormalizeName(name)
		if norm == "" || hasToken(norm, brand) {
			continue
		}

		match, ok := roles.Classify(s.title)
		if !ok {
			rejected[norm] = true
			continue
		}

		conf := s.strategy.Confidence()
		cand := Candidate{
			Name:           name,
			NormalizedName: norm,
			RawTitle:       collapse(s.title),
			Role:           match.Role,
			Confidence:     conf,
			Strategy:       s.strategy,
			SourceURL:      pageURL,
		}

		if idx, seen := byName[norm]; seen {
			if conf > out.People[idx].Confidence {
				out.People[idx] = cand
			}
			continue
		}
		byName[norm] = len(out.People)
		out.People = append(out.People, cand)
	}

	for norm := range rejected {
		if _, accepted := byName[norm]; !accepted {
			out.RolesRejected++
		}
	}

	e.logger.Debug("extracted people",
		zap.String("url", pageURL),
		zap.Int("sightings", len(sightings)),
		zap.Int("accepted", len(out.People)),
		zap.Int("roles_rejected", out.RolesRejected),
	)
	return out, nil
}

// teamCards reads name/title pairs from profile card containers.
func teamCards(doc *goquery.Document) []sighting {
	var out []sighting
	doc.Find(cardSelector).Each(func(_ int, card *goquery.Selection) {
		name := firstText(card, cardNameSelectors, LooksLikeName)
		if name == "" {
			return
		}
		isTitle := func(t string) bool {
			_, ok := roles.Normalize(t)
			return ok && NormalizeName(t) != NormalizeName(name)
		}
		title := firstText(card, cardTitleSelectors, isTitle)
		if title == "" {
			// Keep the first non-name line so the rejection is counted.
			title = firstText(card, cardTitleSelectors, func(t string) bool {
				return NormalizeName(t) != NormalizeName(name)
			})
		}
		out = append(out, sighting{name: name, title: title, strategy: StrategyTeamCard})
	})
	return out
}

// authorBylines reads blog and article author attributions.
func authorBylines(doc *goquery.Document) []sighting {
	var out []sighting
	doc.Find(authorSelector).Each(func(_ int, s *goquery.Selection) {
		var name, title string

		if n := s.Find(`[itemprop="name"]`).First(); n.Length() > 0 {
			name = collapse(n.Text())
		} else {
			text := stripByPrefix(collapse(s.Text()))
			if n, t, ok := splitNameAndTitle(text); ok {
				name, title = n, t
			} else {
				name = text
			}
		}
		if !LooksLikeName(name) {
			return
		}

		if title == "" {
			scope := s.Parent()
			if t := scope.Find(authorTitleSelector).First(); t.Length() > 0 {
				title = collapse(t.Text())
			}
		}
		out = append(out, sighting{name: name, title: title, strategy: StrategyAuthor})
	})

	doc.Find(`meta[name="author"]`).Each(func(_ int, s *goquery.Selection) {
		content, _ := s.Attr("content")
		if n, t, ok := splitNameAndTitle(collapse(content)); ok && LooksLikeName(n) {
			out = append(out, sighting{name: n, title: t, strategy: StrategyAuthor})
		}
	})
	return out
}

// headingRoles reads headings that are either "Name, Title" or a bare name followed by
// a title in one of the next sibling elements.
func headingRoles(doc *goquery.Document) []sighting {
	var out []sighting
	doc.Find(headingSelector).Each(func(_ int, h *goquery.Selection) {
		text := collapse(h.Text())
		if text == "" {
			return
		}

		if n, t, ok := splitNameAndTitle(text); ok && LooksLikeName(n) {
			out = append(out, sighting{name: n, title: t, strategy: StrategyHeading})
			return
		}
		if !LooksLikeName(text) {
			return
		}

		title := ""
		sib := h.Next()
		for hop := 0; hop < maxHeadingSiblingHops && sib.Length() > 0; hop++ {
			if sib.Is(headingSelector) {
				break
			}
			candidate := collapse(sib.Text())
			if candidate != "" {
				if title == "" {
					title = candidate
				}
				if _, ok := roles.Normalize(candidate); ok {
					title = candidate
					break
				}
			}
			sib = sib.Next()
		}
		out = append(out, sighting{name: text, title: title, strategy: StrategyHeading})
	})
	return out
}

// firstText returns the first non-empty text under sel matching one of selectors in
// order and accepted by keep.
func firstText(sel *goquery.Selection, selectors []string, keep func(string) bool) string {
	for _, q := range selectors {
		found := ""
		sel.Find(q).EachWithBreak(func(_ int, s *goquery.Selection) bool {
			t := collapse(s.Text())
			if t != "" && len(t) <= 120 && keep(t) {
				found = t
				return false
			}
			return true
		})
		if found != "" {
			return found
		}
	}
	return ""
}

// hasToken reports whether the space-separated text contains tok as a whole word.
func hasToken(text, tok string) bool {
	if tok == "" {
		return false
	}
	for _, f := range strings.Fields(text) {
		if f == tok {
			return true
		}
	}
	return false
}

// brandLabel returns the registrable label of a domain ("acme" for "www.acme.co.uk"),
// used to skip headings that are really the company's own name.
func brandLabel(domain string) string {
	d := emailaddr.NormalizeDomain(domain)
	if d == "" {
		return ""
	}
	parts := strings.Split(d, ".")
	if len(parts) >= 3 && len(parts[len(parts)-2]) <= 3 {
		return parts[len(parts)-3]
	}
	if len(parts) >= 2 {
		return parts[len(parts)-2]
	}
	return parts[0]
}
