package crawling

import (
	"net/url"
	"sort"
	"strings"
)

// Category is the kind of page a URL most likely points to, judged from its path.
type Category string

// Category constants
const (
	CategoryTeam    Category = "team"
	CategoryAbout   Category = "about"
	CategoryContact Category = "contact"
	CategoryHome    Category = "home"
	CategoryBlog    Category = "blog"
	CategoryCareers Category = "careers"
	CategoryOther   Category = "other"
)

// ClassifiedLink represents a link with its classification category
type ClassifiedLink struct {
	URL      string   `json:"url"`
	Category Category `json:"category"`
}

// PriorityPaths are probed right after the homepage because they usually list people.
var PriorityPaths = []string{
	"/team", "/our-team", "/about", "/about-us", "/leadership", "/people",
	"/company", "/who-we-are", "/founders", "/management", "/staff",
	"/contact", "/contact-us",
}

// BlockedPaths never list decision-makers and are skipped.
var BlockedPaths = []string{
	"/legal", "/privacy", "/terms", "/security", "/download", "/pricing",
	"/login", "/signin", "/sign-in", "/signup", "/sign-up", "/register",
	"/cart", "/checkout", "/account", "/cookie",
}

// categoryKeywords maps path fragments to categories, checked in order.
var categoryKeywords = []struct {
	category Category
	keywords []string
}{
	{CategoryTeam, []string{"team", "leadership", "people", "founders", "management", "staff", "partners", "our-story"}},
	{CategoryAbout, []string{"about", "company", "who-we-are"}},
	{CategoryContact, []string{"contact"}},
	{CategoryCareers, []string{"careers", "jobs", "join-us", "hiring"}},
	{CategoryBlog, []string{"blog", "news", "insights", "articles", "press", "posts"}},
}

// ClassifyURL assigns a category from the URL path.
func ClassifyURL(raw string) Category {
	u, err := url.Parse(raw)
	if err != nil {
		return CategoryOther
	}
	path := strings.ToLower(strings.Trim(u.Path, "/"))
	if path == "" || path == "index.html" || path == "home" {
		return CategoryHome
	}
	for _, ck := range categoryKeywords {
		for _, kw := range ck.keywords {
			if strings.Contains(path, kw) {
				return ck.category
			}
		}
	}
	return CategoryOther
}

// ClassifyLinks classifies each link and orders the result by crawl priority. The sort
// is stable so links of equal priority keep document order.
func ClassifyLinks(links []string) []ClassifiedLink {
	out := make([]ClassifiedLink, 0, len(links))
	for _, l := range links {
		out = append(out, ClassifiedLink{URL: l, Category: ClassifyURL(l)})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Category.Priority() < out[j].Category.Priority()
	})
	return out
}

// Priority orders categories for crawling; lower is fetched sooner.
func (c Category) Priority() int {
	switch c {
	case CategoryTeam:
		return 0
	case CategoryAbout:
		return 1
	case CategoryContact:
		return 2
	case CategoryHome:
		return 3
	case CategoryBlog:
		return 4
	case CategoryOther:
		return 5
	default:
		return 6
	}
}

// Credibility is how much an address found on this kind of page can be trusted to
// belong to the named person.
func (c Category) Credibility() float64 {
	switch c {
	case CategoryTeam, CategoryAbout:
		return 0.90
	case CategoryContact:
		return 0.80
	case CategoryHome:
		return 0.70
	case CategoryBlog:
		return 0.60
	default:
		return 0.50
	}
}

// PageCredibility classifies pageURL and returns its credibility.
func PageCredibility(pageURL string) float64 {
	return ClassifyURL(pageURL).Credibility()
}

// IsBlockedPath reports whether a URL path starts with one of the blocked segments.
func IsBlockedPath(path string) bool {
	p := strings.ToLower(path)
	for _, b := range BlockedPaths {
		if p == b || strings.HasPrefix(p, b+"/") || strings.HasPrefix(p, b+"-") || strings.HasPrefix(p, b+".") {
			return true
		}
	}
	return false
}
