// Package discovery finds or infers the email address of a named person at a company.
//
// Strategies run in order and the first one that yields an address wins:
// direct (address text near the person's name), structured (mailto links inside the
// person's block), and inferred (common corporate address conventions).
package discovery

import (
	"fmt"
	"net/url"
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"
	"github.com/jonathan/outreach-agent/internal/emailaddr"
	"github.com/jonathan/outreach-agent/internal/people"
	"github.com/jonathan/outreach-agent/internal/types"
	"go.uber.org/zap"
)

// ContextWindow is how many characters on each side of a name occurrence are searched
// for an address.
const ContextWindow = 500

// maxBlockDepth bounds how far up the tree a mailto anchor looks for the person's name.
const maxBlockDepth = 5

// Candidate is a discovered or inferred address.
type Candidate struct {
	Address   string                `json:"address"`
	Method    types.DiscoveryMethod `json:"method"`
	Pattern   emailaddr.Pattern     `json:"pattern"`
	SourceURL string                `json:"source_url"`
}

// Page is a parsed page shared by every person discovered on it.
type Page struct {
	URL  string
	Doc  *goquery.Document
	text []rune
	low  []rune
}

// ParsePage parses html once for repeated discovery calls.
func ParsePage(html, pageURL string) (*Page, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	// A second parse is mutated for text extraction; doc keeps the original markup.
	textDoc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}
	textDoc.Find("script, style, noscript, template").Remove()
	textDoc.Find("p, div, li, h1, h2, h3, h4, h5, h6, td, th, br, section, article, span, a").Each(func(_ int, s *goquery.Selection) {
		s.AppendHtml(" ")
	})
	text := []rune(strings.Join(strings.Fields(textDoc.Text()), " "))
	low := make([]rune, len(text))
	for i, r := range text {
		low[i] = unicode.ToLower(r)
	}
	return &Page{URL: pageURL, Doc: doc, text: text, low: low}, nil
}

// Discoverer runs the discovery strategies.
type Discoverer struct {
	logger *zap.Logger
}

// NewDiscoverer creates a Discoverer.
func NewDiscoverer(logger *zap.Logger) *Discoverer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Discoverer{logger: logger}
}

// Discover parses html and returns the addresses found for person.
func (d *Discoverer) Discover(person people.Candidate, companyDomain, html, pageURL string) ([]Candidate, error) {
	page, err := ParsePage(html, pageURL)
	if err != nil {
		return nil, err
	}
	return d.DiscoverOnPage(person, companyDomain, page), nil
}

// DiscoverOnPage returns the addresses of the first strategy that produces any. Every
// result has an allowed local-part shape and no blocked prefix.
func (d *Discoverer) DiscoverOnPage(person people.Candidate, companyDomain string, page *Page) []Candidate {
	first, last := SplitName(person.Name)
	if first == "" {
		return nil
	}

	if found := d.direct(person.Name, first, last, companyDomain, page); len(found) > 0 {
		d.logger.Debug("direct address match", zap.String("person", person.NormalizedName), zap.Int("count", len(found)))
		return found
	}
	if found := d.structured(person.Name, first, last, page); len(found) > 0 {
		d.logger.Debug("mailto address match", zap.String("person", person.NormalizedName), zap.Int("count", len(found)))
		return found
	}

	inferred := Infer(person.Name, companyDomain)
	for i := range inferred {
		inferred[i].SourceURL = page.URL
	}
	return inferred
}

// direct scans the text around each occurrence of the person's name for an address at
// the company domain whose local part fits the person's name.
func (d *Discoverer) direct(name, first, last, companyDomain string, page *Page) []Candidate {
	needle := []rune(strings.ToLower(strings.Join(strings.Fields(name), " ")))
	if len(needle) == 0 || len(page.low) == 0 {
		return nil
	}

	seen := make(map[string]bool)
	var out []Candidate
	for _, at := range indexAll(page.low, needle) {
		lo := max(0, at-ContextWindow)
		hi := min(len(page.text), at+len(needle)+ContextWindow)
		window := string(page.text[lo:hi])

		for _, raw := range emailaddr.FindRe.FindAllString(window, -1) {
			addr := emailaddr.Normalize(raw)
			local, domain, ok := emailaddr.Split(addr)
			if !ok || seen[addr] || !emailaddr.DomainMatches(domain, companyDomain) {
				continue
			}
			pattern := emailaddr.ClassifyLocalPart(local, first, last)
			if pattern == emailaddr.PatternOther || !keep(local, domain) {
				continue
			}
			seen[addr] = true
			out = append(out, Candidate{Address: addr, Method: types.MethodDirect, Pattern: pattern, SourceURL: page.URL})
		}
	}
	return out
}

// structured reads mailto anchors whose enclosing block names the person. The local part
// must fit the person's name, and the search stops at the first ancestor holding more
// than one distinct mailto address.
func (d *Discoverer) structured(name, first, last string, page *Page) []Candidate {
	needle := strings.ToLower(strings.Join(strings.Fields(name), " "))
	seen := make(map[string]bool)
	var out []Candidate

	page.Doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		addr, ok := parseMailto(href)
		if !ok || seen[addr] {
			return
		}
		local, domain, ok := emailaddr.Split(addr)
		if !ok || !keep(local, domain) {
			return
		}
		pattern := emailaddr.ClassifyLocalPart(local, first, last)
		if pattern == emailaddr.PatternOther {
			return
		}

		block := a
		for depth := 0; depth < maxBlockDepth; depth++ {
			block = block.Parent()
			if block.Length() == 0 || block.Is("body, html") {
				return
			}
			if distinctMailtos(block) > 1 {
				return
			}
			if strings.Contains(strings.ToLower(strings.Join(strings.Fields(block.Text()), " ")), needle) {
				seen[addr] = true
				out = append(out, Candidate{
					Address:   addr,
					Method:    types.MethodStructured,
					Pattern:   pattern,
					SourceURL: page.URL,
				})
				return
			}
		}
	})
	return out
}

// Infer builds the conventional addresses for name at domain: first, first.last,
// f.last and flast. Single-token names yield only first.
func Infer(name, domain string) []Candidate {
	first, last := SplitName(name)
	domain = emailaddr.NormalizeDomain(domain)
	if first == "" || domain == "" {
		return nil
	}

	type shape struct {
		local   string
		pattern emailaddr.Pattern
	}
	shapes := []shape{{first, emailaddr.PatternFirst}}
	if last != "" {
		shapes = append(shapes,
			shape{first + "." + last, emailaddr.PatternFirstDotLast},
			shape{first[:1] + "." + last, emailaddr.PatternInitialDotLast},
			shape{first[:1] + last, emailaddr.PatternInitialLast},
		)
	}

	out := make([]Candidate, 0, len(shapes))
	for _, s := range shapes {
		if !keep(s.local, domain) {
			continue
		}
		out = append(out, Candidate{
			Address: s.local + "@" + domain,
			Method:  types.MethodInferred,
			Pattern: s.pattern,
		})
	}
	return out
}

// keep applies the output filters shared by every strategy.
func keep(local, domain string) bool {
	return emailaddr.IsAllowedLocalPart(local) &&
		!emailaddr.IsBlockedPrefix(local) &&
		!emailaddr.IsVendor(domain)
}

// parseMailto extracts a normalized address from a mailto: href.
func parseMailto(href string) (string, bool) {
	href = strings.TrimSpace(href)
	if len(href) < 7 || !strings.EqualFold(href[:7], "mailto:") {
		return "", false
	}
	addr := href[7:]
	if i := strings.IndexByte(addr, '?'); i >= 0 {
		addr = addr[:i]
	}
	if unescaped, err := url.PathUnescape(addr); err == nil {
		addr = unescaped
	}
	// Only the first recipient of a multi-address link is considered.
	if i := strings.IndexByte(addr, ','); i >= 0 {
		addr = addr[:i]
	}
	addr = emailaddr.Normalize(addr)
	if !emailaddr.IsValidFormat(addr) {
		return "", false
	}
	return addr, true
}

func distinctMailtos(block *goquery.Selection) int {
	set := make(map[string]bool)
	block.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		if addr, ok := parseMailto(href); ok {
			set[addr] = true
		}
	})
	return len(set)
}

// indexAll returns every start offset of needle in hay.
func indexAll(hay, needle []rune) []int {
	var out []int
	for i := 0; i+len(needle) <= len(hay); i++ {
		match := true
		for j, r := range needle {
			if hay[i+j] != r {
				match = false
				break
			}
		}
		if match {
			out = append(out, i)
		}
	}
	return out
}
