package emailaddr

import (
	"strings"
)

// BlockedPrefixes are role or system mailboxes that never reach a decision-maker.
var BlockedPrefixes = []string{
	"info", "support", "help", "hello", "contact", "enquiries", "inquiries",
	"noreply", "no-reply", "donotreply", "mailer-daemon", "postmaster", "webmaster",
	"admin", "privacy", "security", "abuse", "legal", "compliance",
	"careers", "jobs", "recruiting", "talent", "hr",
	"sales", "billing", "finance", "accounts", "invoices",
	"marketing", "press", "media", "pr", "news", "newsletter",
	"partnerships", "partners", "office", "team", "feedback",
}

// FreeMailDomains are consumer mailbox providers.
var FreeMailDomains = map[string]bool{
	"gmail.com":      true,
	"googlemail.com": true,
	"yahoo.com":      true,
	"hotmail.com":    true,
	"outlook.com":    true,
	"live.com":       true,
	"msn.com":        true,
	"aol.com":        true,
	"icloud.com":     true,
	"me.com":         true,
	"proton.me":      true,
	"protonmail.com": true,
	"gmx.com":        true,
	"mail.com":       true,
	"yandex.com":     true,
	"zoho.com":       true,
}

// DisposableDomains are throwaway mailbox providers.
var DisposableDomains = map[string]bool{
	"tempmail.com":      true,
	"guerrillamail.com": true,
	"10minutemail.com":  true,
	"throwaway.email":   true,
	"mailinator.com":    true,
	"maildrop.cc":       true,
	"trashmail.com":     true,
	"getnada.com":       true,
	"temp-mail.org":     true,
	"yopmail.com":       true,
	"sharklasers.com":   true,
	"dispostable.com":   true,
}

// VendorDomains show up in page markup (analytics, site builders, placeholders) but
// never belong to a company's staff.
var VendorDomains = map[string]bool{
	"example.com":              true,
	"example.org":              true,
	"domain.com":               true,
	"email.com":                true,
	"sentry.io":                true,
	"wixpress.com":             true,
	"sentry-next.wixpress.com": true,
	"godaddy.com":              true,
	"squarespace.com":          true,
}

// BlockedTLDs are institutional suffixes outside the outreach audience.
var BlockedTLDs = []string{".gov", ".edu", ".mil"}

// IsBlockedPrefix reports whether a local part is a blocked role mailbox. A prefix
// matches the whole local part or a leading token followed by a separator or digit,
// so "hr@" and "hr.team@" are blocked while "hristo@" is not.
func IsBlockedPrefix(local string) bool {
	local = strings.ToLower(local)
	for _, p := range BlockedPrefixes {
		if local == p {
			return true
		}
		if strings.HasPrefix(local, p) && len(local) > len(p) {
			next := local[len(p)]
			if next == '.' || next == '-' || next == '_' || next == '+' || (next >= '0' && next <= '9') {
				return true
			}
		}
	}
	return false
}

// IsFreeMail reports whether domain is a consumer mailbox provider.
func IsFreeMail(domain string) bool {
	return FreeMailDomains[NormalizeDomain(domain)]
}

// IsDisposable reports whether domain is a throwaway mailbox provider.
func IsDisposable(domain string) bool {
	return DisposableDomains[NormalizeDomain(domain)]
}

// IsVendor reports whether domain belongs to a placeholder or third-party vendor.
func IsVendor(domain string) bool {
	return VendorDomains[NormalizeDomain(domain)]
}

// HasBlockedTLD reports whether domain ends in a .gov, .edu or .mil suffix,
// including country forms such as "gov.uk".
func HasBlockedTLD(domain string) bool {
	d := NormalizeDomain(domain)
	for _, tld := range BlockedTLDs {
		if strings.HasSuffix(d, tld) || strings.Contains(d, tld+".") {
			return true
		}
	}
	return false
}
