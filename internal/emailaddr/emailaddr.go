// Package emailaddr holds address-level helpers shared by discovery and validation:
// parsing, domain matching, local-part shapes and the static block lists.
package emailaddr

import (
	"regexp"
	"strings"
)

// formatRe accepts the conservative address shape used for business mail.
var formatRe = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

// FindRe locates addresses inside free text.
var FindRe = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)

// allowedLocalRe is the set of local-part shapes we keep: a single token, or two tokens
// joined by a dot. Covers first, flast, firstlast, first.last and f.last.
var allowedLocalRe = regexp.MustCompile(`^[a-z]+(\.[a-z]+)?$`)

// IsValidFormat reports whether addr looks like a syntactically valid address.
func IsValidFormat(addr string) bool {
	if len(addr) > 254 || strings.Contains(addr, "..") {
		return false
	}
	return formatRe.MatchString(addr)
}

// Normalize lowercases and trims an address.
func Normalize(addr string) string {
	return strings.ToLower(strings.TrimSpace(addr))
}

// Split returns the local part and domain of addr. ok is false if addr has no single '@'.
func Split(addr string) (local, domain string, ok bool) {
	at := strings.LastIndex(addr, "@")
	if at <= 0 || at == len(addr)-1 || strings.Count(addr, "@") != 1 {
		return "", "", false
	}
	return addr[:at], addr[at+1:], true
}

// Domain returns the lowercased domain of addr, or "" if addr is malformed.
func Domain(addr string) string {
	_, domain, ok := Split(Normalize(addr))
	if !ok {
		return ""
	}
	return domain
}

// NormalizeDomain lowercases a host and strips a leading "www." and any trailing dot.
func NormalizeDomain(host string) string {
	host = strings.ToLower(strings.TrimSpace(host))
	host = strings.TrimSuffix(host, ".")
	return strings.TrimPrefix(host, "www.")
}

// DomainMatches reports whether emailDomain equals companyDomain or is a subdomain of it.
func DomainMatches(emailDomain, companyDomain string) bool {
	e := NormalizeDomain(emailDomain)
	c := NormalizeDomain(companyDomain)
	if e == "" || c == "" {
		return false
	}
	return e == c || strings.HasSuffix(e, "."+c)
}

// IsAllowedLocalPart reports whether local has one of the accepted personal shapes.
func IsAllowedLocalPart(local string) bool {
	return allowedLocalRe.MatchString(strings.ToLower(local))
}

// HasSeparator reports whether a local part is made of more than one token.
func HasSeparator(local string) bool {
	return strings.ContainsAny(local, "._-")
}
