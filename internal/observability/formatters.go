// Package observability provides formatted output for the CLI.
package observability

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jonathan/outreach-agent/internal/db"
	"github.com/jonathan/outreach-agent/internal/types"
)

const (
	// boxWidth is the default width for formatted output boxes
	boxWidth = 64
	// maxItemsToShow is the default number of items to display in lists
	maxItemsToShow = 10
)

// Printer handles formatted output
type Printer struct {
	out io.Writer
}

// NewPrinter creates a new Printer that writes to the given writer
func NewPrinter(out io.Writer) *Printer {
	return &Printer{out: out}
}

// truncate shortens s to n runes, marking the cut with "...".
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}

// printBox prints a formatted box with a title and content
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) printBox(title string, content string) {
	border := strings.Repeat("─", boxWidth-2)
	fmt.Fprintf(p.out, "┌%s┐\n", border)
	fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, title)
	fmt.Fprintf(p.out, "├%s┤\n", border)

	for _, line := range strings.Split(content, "\n") {
		fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, truncate(line, boxWidth-4))
	}

	fmt.Fprintf(p.out, "└%s┘\n", border)
}

// PrintScanStatus outputs the state, progress and counters of a scan job.
func (p *Printer) PrintScanStatus(view *types.ScanStatusView) {
	if view == nil {
		return
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Job:       %s\n", view.ID)
	fmt.Fprintf(&sb, "Company:   %s\n", view.CompanyID)
	fmt.Fprintf(&sb, "Status:    %s (%d%%)\n", view.Status, view.ProgressPercentage)
	if view.CurrentStep != "" {
		fmt.Fprintf(&sb, "Step:      %s\n", view.CurrentStep)
	}
	if view.StartedAt != nil && view.CompletedAt != nil {
		fmt.Fprintf(&sb, "Duration:  %s\n", view.CompletedAt.Sub(*view.StartedAt).Round(time.Millisecond))
	}
	if view.ErrorMessage != "" {
		fmt.Fprintf(&sb, "Error:     %s\n", view.ErrorMessage)
	}
	sb.WriteString("\n")

	c := view.Counters
	fmt.Fprintf(&sb, "Pages:     %d scanned, %d failed\n", c.PagesScanned, c.PagesFailed)
	fmt.Fprintf(&sb, "People:    %d found, %d off-target roles\n", c.PeopleFound, c.RolesRejected)
	fmt.Fprintf(&sb, "Emails:    %d discovered, %d duplicate\n", c.EmailsDiscovered, c.EmailsDuplicate)
	fmt.Fprintf(&sb, "Validated: %d\n", c.EmailsValidated)
	fmt.Fprintf(&sb, "Rejected:  %d role, %d domain, %d quality", c.EmailsRejectedRole, c.EmailsRejectedDomain, c.EmailsRejectedQuality)

	p.printBox("SCAN "+string(view.Status), sb.String())
}

// PrintBatchStats outputs the result of one dispatch run.
func (p *Printer) PrintBatchStats(stats *types.BatchStats) {
	if stats == nil {
		return
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Campaign:  %s\n", stats.CampaignID)
	if stats.Attempted == 0 && stats.Eligible == 0 {
		sb.WriteString("Nothing to send (daily limit reached or no eligible recipients)\n")
	} else {
		fmt.Fprintf(&sb, "Batch:     %s\n", stats.BatchID)
	}
	fmt.Fprintf(&sb, "Status:    %s\n", stats.Status)
	fmt.Fprintf(&sb, "Eligible:  %d\n", stats.Eligible)
	fmt.Fprintf(&sb, "Sent:      %d\n", stats.Sent)
	fmt.Fprintf(&sb, "Failed:    %d\n", stats.Failed)
	fmt.Fprintf(&sb, "Bounced:   %d\n", stats.Bounced)
	fmt.Fprintf(&sb, "Skipped:   %d cooling down, %d same domain", stats.SkippedCooling, stats.SkippedDomain)
	if !stats.CompletedAt.IsZero() && !stats.StartedAt.IsZero() {
		fmt.Fprintf(&sb, "\nDuration:  %s", stats.CompletedAt.Sub(stats.StartedAt).Round(time.Millisecond))
	}

	p.printBox("SEND BATCH", sb.String())
}

// PrintSendBatch outputs the stored progress of a send batch.
func (p *Printer) PrintSendBatch(batch *db.SendBatch) {
	if batch == nil {
		return
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Batch:     %s\n", batch.ID)
	fmt.Fprintf(&sb, "Campaign:  %s\n", batch.CampaignID)
	fmt.Fprintf(&sb, "Status:    %s (%d%%, %d/%d)\n", batch.Status, batch.Progress, batch.CurrentIndex, batch.Total)
	fmt.Fprintf(&sb, "Outcome:   %d sent, %d failed, %d bounced", batch.Sent, batch.Failed, batch.Bounced)

	p.printBox("SEND BATCH", sb.String())
}

// PrintCampaign outputs a campaign and its lifetime totals.
func (p *Printer) PrintCampaign(c *db.Campaign) {
	if c == nil {
		return
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "ID:        %s\n", c.ID)
	fmt.Fprintf(&sb, "Status:    %s\n", c.Status)
	from := c.FromEmail
	if c.FromName != "" {
		from = fmt.Sprintf("%s <%s>", c.FromName, c.FromEmail)
	}
	fmt.Fprintf(&sb, "From:      %s\n", from)
	fmt.Fprintf(&sb, "Subject:   %s\n", c.SubjectTemplate)
	fmt.Fprintf(&sb, "Limits:    %d/day, %d day domain cooldown\n", c.DailyLimit, c.CooldownDays)
	fmt.Fprintf(&sb, "Totals:    %d sent, %d failed, %d bounced", c.TotalSent, c.TotalFailed, c.TotalBounced)
	if c.LastRunAt != nil {
		fmt.Fprintf(&sb, "\nLast run:  %s", c.LastRunAt.UTC().Format(time.RFC3339))
	}

	p.printBox("CAMPAIGN "+strings.ToUpper(c.Name), sb.String())
}

// PrintEmails outputs email candidates with their status and confidence.
func (p *Printer) PrintEmails(title string, emails []db.EmailCandidate) {
	if len(emails) == 0 {
		p.printBox(title, "No email candidates")
		return
	}

	var sb strings.Builder
	count := min(len(emails), maxItemsToShow)
	for i := 0; i < count; i++ {
		e := emails[i]
		fmt.Fprintf(&sb, "%-34s %-10s %3.0f%%\n", truncate(e.Address, 34), e.Status, e.ConfidenceScore*100)
		fmt.Fprintf(&sb, "  %s", e.ID)
		if e.RejectionReason != nil {
			fmt.Fprintf(&sb, "  [%s]", *e.RejectionReason)
		} else if e.QueueStatus == types.QueueQueued {
			sb.WriteString("  [queued]")
		}
		if i < count-1 {
			sb.WriteString("\n")
		}
	}
	if len(emails) > maxItemsToShow {
		fmt.Fprintf(&sb, "\n... and %d more", len(emails)-maxItemsToShow)
	}

	p.printBox(title, sb.String())
}

// PrintPeople outputs the decision makers found for a company.
func (p *Printer) PrintPeople(people []db.Person) {
	if len(people) == 0 {
		p.printBox("PEOPLE", "No decision makers found")
		return
	}

	var sb strings.Builder
	count := min(len(people), maxItemsToShow)
	for i := 0; i < count; i++ {
		person := people[i]
		fmt.Fprintf(&sb, "• %s, %s (%.2f)", person.FullName, person.Role, person.RoleConfidence)
		if i < count-1 {
			sb.WriteString("\n")
		}
	}
	if len(people) > maxItemsToShow {
		fmt.Fprintf(&sb, "\n... and %d more", len(people)-maxItemsToShow)
	}

	p.printBox("PEOPLE", sb.String())
}

// PrintOverview outputs system-wide counts.
func (p *Printer) PrintOverview(o *types.Overview) {
	if o == nil {
		return
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Companies: %d\n", o.Companies)
	fmt.Fprintf(&sb, "Emails:    %d total, %d discovered, %d validated, %d rejected\n",
		o.Emails.Total, o.Emails.Discovered, o.Emails.Validated, o.Emails.Rejected)
	fmt.Fprintf(&sb, "Queued:    %d\n", o.Emails.Queued)
	fmt.Fprintf(&sb, "Campaigns: %d (%d active)\n", o.Campaigns.Total, o.Campaigns.Active)
	fmt.Fprintf(&sb, "Sent:      %d", o.TotalSent)

	p.printBox("OVERVIEW", sb.String())
}

// PrintVerifySummary outputs the per-address outcome of a verification run.
func (p *Printer) PrintVerifySummary(s *types.VerifySummary) {
	if s == nil {
		return
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Verified:  %d of %d (%d passed, %d failed)", s.Verified, s.Requested, s.Passed, s.Failed)
	count := min(len(s.Results), maxItemsToShow)
	for i := 0; i < count; i++ {
		r := s.Results[i]
		mark := "ok"
		if !r.Passed {
			mark = "fail"
		}
		fmt.Fprintf(&sb, "\n%-4s %-34s %s", mark, truncate(r.Email, 34), r.Status)
		if r.Reason != "" {
			fmt.Fprintf(&sb, "\n     %s", r.Reason)
		}
		if r.Unqueued {
			sb.WriteString(" [unqueued]")
		}
	}
	if len(s.Results) > maxItemsToShow {
		fmt.Fprintf(&sb, "\n... and %d more", len(s.Results)-maxItemsToShow)
	}
	for _, id := range s.Missing {
		fmt.Fprintf(&sb, "\nmissing %s", id)
	}

	p.printBox("VERIFICATION", sb.String())
}
