package crawling

import (
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// skippedExtensions are linked assets that are never HTML pages.
var skippedExtensions = map[string]bool{
	".pdf": true, ".jpg": true, ".jpeg": true, ".png": true, ".gif": true, ".svg": true,
	".webp": true, ".ico": true, ".css": true, ".js": true, ".json": true, ".xml": true,
	".zip": true, ".gz": true, ".mp4": true, ".mp3": true, ".mov": true, ".doc": true,
	".docx": true, ".xls": true, ".xlsx": true, ".ppt": true, ".pptx": true, ".woff": true,
	".woff2": true, ".ttf": true,
}

// ExtractLinks extracts all same-site page links from HTML content. Hosts are compared
// without a leading "www.", fragments and trailing slashes are dropped, and asset
// links are skipped.
func ExtractLinks(htmlContent string, baseURL string) ([]string, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, &LinkExtractionError{
			Message: "failed to parse base URL",
			Cause:   err,
		}
	}

	if base.Scheme == "" || base.Host == "" {
		return nil, &LinkExtractionError{
			Message: fmt.Sprintf("invalid base URL: %s (must have scheme and host)", baseURL),
			Cause:   nil,
		}
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlContent))
	if err != nil {
		return nil, &LinkExtractionError{
			Message: "failed to parse HTML",
			Cause:   err,
		}
	}

	linkSet := make(map[string]bool)
	links := make([]string, 0)

	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, exists := s.Attr("href")
		href = strings.TrimSpace(href)
		if !exists || href == "" || strings.HasPrefix(href, "#") {
			return
		}

		linkURL, err := url.Parse(href)
		if err != nil {
			return
		}

		absoluteURL := base.ResolveReference(linkURL)
		if absoluteURL.Scheme != "http" && absoluteURL.Scheme != "https" {
			return
		}
		if !SameSite(absoluteURL.Host, base.Host) {
			return
		}
		if skippedExtensions[strings.ToLower(path.Ext(absoluteURL.Path))] {
			return
		}

		urlString := NormalizeURL(absoluteURL)
		if !linkSet[urlString] {
			linkSet[urlString] = true
			links = append(links, urlString)
		}
	})

	return links, nil
}

// NormalizeURL renders u without its fragment, with a lowercase host and without a
// trailing slash, so equivalent links share one key in the visited set.
func NormalizeURL(u *url.URL) string {
	c := *u
	c.Fragment = ""
	c.RawFragment = ""
	c.Host = strings.ToLower(c.Host)
	return strings.TrimSuffix(c.String(), "/")
}

// NormalizeRawURL parses raw and normalizes it. Unparseable input is returned unchanged.
func NormalizeRawURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	return NormalizeURL(u)
}

// SameSite reports whether two hosts name the same site, ignoring case, ports and a
// leading "www.".
func SameSite(a, b string) bool {
	return siteKey(a) == siteKey(b)
}

func siteKey(host string) string {
	h := strings.ToLower(host)
	if i := strings.LastIndex(h, ":"); i > 0 && !strings.Contains(h[i:], "]") {
		h = h[:i]
	}
	return strings.TrimPrefix(h, "www.")
}
