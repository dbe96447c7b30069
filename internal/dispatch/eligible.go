package dispatch

import (
	"time"

	"github.com/jonathan/outreach-agent/internal/db"
	"github.com/jonathan/outreach-agent/internal/emailaddr"
)

// Selection is the outcome of eligibility filtering.
type Selection struct {
	Recipients     []db.Recipient
	SkippedCooling int
	SkippedDomain  int
}

// recipientDomain is the domain a recipient's cooldown is tracked under.
func recipientDomain(r db.Recipient) string {
	if r.CompanyDomain != "" {
		return emailaddr.NormalizeDomain(r.CompanyDomain)
	}
	return emailaddr.Domain(r.Address)
}

// SelectEligible filters queued recipients down to those that may be contacted now.
// Recipients are expected best-first; the first recipient of each domain wins. Domains
// still inside their cooldown at now are skipped, and at most limit recipients are
// returned. A limit of zero or less selects nothing.
func SelectEligible(recipients []db.Recipient, cooldowns map[string]db.DomainCooldown, now time.Time, limit int) Selection {
	var sel Selection
	if limit <= 0 {
		return sel
	}

	taken := make(map[string]bool)
	for _, r := range recipients {
		domain := recipientDomain(r)
		if cd, ok := cooldowns[domain]; ok && cd.InCooldown(now) {
			sel.SkippedCooling++
			continue
		}
		if taken[domain] {
			sel.SkippedDomain++
			continue
		}
		if len(sel.Recipients) >= limit {
			break
		}
		taken[domain] = true
		sel.Recipients = append(sel.Recipients, r)
	}
	return sel
}

func recipientDomains(recipients []db.Recipient) []string {
	seen := make(map[string]bool, len(recipients))
	out := make([]string, 0, len(recipients))
	for _, r := range recipients {
		d := recipientDomain(r)
		if !seen[d] {
			seen[d] = true
			out = append(out, d)
		}
	}
	return out
}
