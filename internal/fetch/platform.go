// Package fetch - platform.go detects the site builder behind a company website.
package fetch

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Platform represents a known website builder.
type Platform string

const (
	// PlatformWix is the Wix site builder
	PlatformWix Platform = "wix"
	// PlatformSquarespace is the Squarespace site builder
	PlatformSquarespace Platform = "squarespace"
	// PlatformWebflow is the Webflow site builder
	PlatformWebflow Platform = "webflow"
	// PlatformWordPress is a WordPress site
	PlatformWordPress Platform = "wordpress"
	// PlatformUnknown is an unrecognized platform
	PlatformUnknown Platform = "unknown"
)

// DetectPlatform identifies the site builder from the page URL and its markup.
func DetectPlatform(urlStr, html string) Platform {
	if parsed, err := url.Parse(urlStr); err == nil {
		host := strings.ToLower(parsed.Hostname())
		switch {
		case strings.HasSuffix(host, ".wixsite.com"):
			return PlatformWix
		case strings.HasSuffix(host, ".squarespace.com"):
			return PlatformSquarespace
		case strings.HasSuffix(host, ".webflow.io"):
			return PlatformWebflow
		}
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return PlatformUnknown
	}
	generator := strings.ToLower(doc.Find(`meta[name="generator"]`).AttrOr("content", ""))
	switch {
	case strings.Contains(generator, "wix"):
		return PlatformWix
	case strings.Contains(generator, "squarespace"):
		return PlatformSquarespace
	case strings.Contains(generator, "webflow"):
		return PlatformWebflow
	case strings.Contains(generator, "wordpress"):
		return PlatformWordPress
	}

	if doc.Find(`script[src*="static.parastorage.com"]`).Length() > 0 {
		return PlatformWix
	}
	if doc.Find(`link[href*="/wp-content/"], script[src*="/wp-content/"]`).Length() > 0 {
		return PlatformWordPress
	}
	return PlatformUnknown
}

// NeedsRendering reports whether pages from the platform are assembled client-side.
func (p Platform) NeedsRendering() bool {
	return p == PlatformWix
}

// PlatformContentSelectors returns content selectors optimized for a specific platform.
func PlatformContentSelectors(platform Platform) []string {
	switch platform {
	case PlatformWix:
		return []string{"#PAGES_CONTAINER", "main", "#SITE_CONTAINER"}
	case PlatformSquarespace:
		return []string{"#page", ".sqs-layout", "main"}
	case PlatformWebflow:
		return []string{".w-container", "main"}
	case PlatformWordPress:
		return []string{".entry-content", "article", "main"}
	default:
		return DefaultTextSelectors()
	}
}
