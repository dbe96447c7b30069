package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jonathan/outreach-agent/internal/db"
	"github.com/jonathan/outreach-agent/internal/observability"
	"github.com/jonathan/outreach-agent/internal/types"
	"github.com/spf13/cobra"
)

var emailsCmd = &cobra.Command{
	Use:   "emails",
	Short: "Inspect and queue discovered email addresses",
}

var emailsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List email candidates, best first",
	Args:  cobra.NoArgs,
	RunE:  runEmailsList,
}

var emailsQueueCmd = &cobra.Command{
	Use:   "queue <email-id>...",
	Short: "Queue VALIDATED addresses for campaign dispatch",
	Long:  "Marks VALIDATED candidates as queued. IDs that are not VALIDATED or are already queued are ignored.",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runEmailsQueue,
}

var emailsShowCmd = &cobra.Command{
	Use:   "show <address>",
	Short: "Show an email candidate and the person it belongs to",
	Args:  cobra.ExactArgs(1),
	RunE:  runEmailsShow,
}

var emailsAddCmd = &cobra.Command{
	Use:   "add <address>",
	Short: "Add an address by hand",
	Long:  "Validates the address like a discovered one and stores it only if it passes. The role must map to a decision-maker role.",
	Args:  cobra.ExactArgs(1),
	RunE:  runEmailsAdd,
}

var emailsVerifyCmd = &cobra.Command{
	Use:   "verify <email-id>...",
	Short: "Run validation again for stored addresses",
	Long: "DISCOVERED addresses take the outcome as their status. Settled addresses keep their status; " +
		"a queued address that now fails is taken out of the queue.",
	Args: cobra.RangeArgs(1, 100),
	RunE: runEmailsVerify,
}

var emailsResetQueueCmd = &cobra.Command{
	Use:   "reset-queue",
	Short: "Move every queued address back to NONE",
	Args:  cobra.NoArgs,
	RunE:  runEmailsResetQueue,
}

var (
	addCompany  string
	addName     string
	addRole     string
	verifySMTP  bool
	addWithSMTP bool
)

var (
	emailsCompany     string
	emailsScanJob     string
	emailsStatus      string
	emailsQueueStatus string
	emailsLimit       int
	emailsOffset      int
)

func init() {
	emailsListCmd.Flags().StringVar(&emailsCompany, "company", "", "Only candidates of this company ID")
	emailsListCmd.Flags().StringVar(&emailsScanJob, "scan", "", "Only candidates found by this scan job ID")
	emailsListCmd.Flags().StringVar(&emailsStatus, "status", "", "Discovery status (DISCOVERED, VALIDATED, REJECTED_ROLE, REJECTED_DOMAIN, REJECTED_QUALITY)")
	emailsListCmd.Flags().StringVar(&emailsQueueStatus, "queue-status", "", "Queue status (NONE, QUEUED)")
	emailsListCmd.Flags().IntVar(&emailsLimit, "limit", 50, "Maximum candidates to list")
	emailsListCmd.Flags().IntVar(&emailsOffset, "offset", 0, "Candidates to skip")

	emailsAddCmd.Flags().StringVar(&addCompany, "company", "", "Company ID the address belongs to")
	emailsAddCmd.Flags().StringVar(&addName, "name", "", "Full name of the person")
	emailsAddCmd.Flags().StringVar(&addRole, "role", "", "Job title, e.g. CEO or Founder")
	emailsAddCmd.Flags().BoolVar(&addWithSMTP, "smtp", false, "Also check the mailbox over SMTP")
	for _, name := range []string{"company", "name", "role"} {
		_ = emailsAddCmd.MarkFlagRequired(name)
	}
	emailsVerifyCmd.Flags().BoolVar(&verifySMTP, "smtp", false, "Also check the mailbox over SMTP")

	emailsCmd.AddCommand(emailsListCmd, emailsQueueCmd, emailsShowCmd, emailsAddCmd, emailsVerifyCmd, emailsResetQueueCmd)
	rootCmd.AddCommand(emailsCmd)
}

// emailFilters builds list filters from the emails list flags.
func emailFilters() (db.EmailFilters, error) {
	filters := db.EmailFilters{
		Status:      types.DiscoveryStatus(strings.ToUpper(emailsStatus)),
		QueueStatus: types.QueueStatus(strings.ToUpper(emailsQueueStatus)),
		Limit:       emailsLimit,
		Offset:      emailsOffset,
	}
	if emailsCompany != "" {
		id, err := parseID(emailsCompany, "company")
		if err != nil {
			return filters, err
		}
		filters.CompanyID = &id
	}
	if emailsScanJob != "" {
		id, err := parseID(emailsScanJob, "scan job")
		if err != nil {
			return filters, err
		}
		filters.ScanJobID = &id
	}
	return filters, nil
}

func runEmailsList(cmd *cobra.Command, _ []string) error {
	filters, err := emailFilters()
	if err != nil {
		return err
	}
	return withApp(cmd, func(ctx context.Context, a *app) error {
		emails, err := a.service.ListEmails(ctx, filters)
		if err != nil {
			return err
		}
		return render(cmd, emails, func(p *observability.Printer) { p.PrintEmails("EMAIL CANDIDATES", emails) })
	})
}

func runEmailsQueue(cmd *cobra.Command, args []string) error {
	ids := make([]uuid.UUID, 0, len(args))
	for _, arg := range args {
		id, err := parseID(arg, "email")
		if err != nil {
			return err
		}
		ids = append(ids, id)
	}
	return withApp(cmd, func(ctx context.Context, a *app) error {
		res, err := a.service.QueueEmails(ctx, ids)
		if err != nil {
			return err
		}
		if jsonOutput {
			return writeJSON(cmd.OutOrStdout(), res)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Queued %d of %d\n", res.Queued, res.Requested)
		return nil
	})
}

func runEmailsShow(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(ctx context.Context, a *app) error {
		email, err := a.db.GetEmailByAddress(ctx, args[0])
		if err != nil {
			return err
		}
		if email == nil {
			return fmt.Errorf("no candidate for %s", args[0])
		}
		person, err := a.db.GetPersonByID(ctx, email.PersonID)
		if err != nil {
			return err
		}
		if jsonOutput {
			return writeJSON(cmd.OutOrStdout(), map[string]any{"email": email, "person": person})
		}
		p := observability.NewPrinter(cmd.OutOrStdout())
		p.PrintEmails("EMAIL CANDIDATE", []db.EmailCandidate{*email})
		if person != nil {
			p.PrintPeople([]db.Person{*person})
		}
		return nil
	})
}

func runEmailsAdd(cmd *cobra.Command, args []string) error {
	companyID, err := parseID(addCompany, "company")
	if err != nil {
		return err
	}
	req := &types.AddEmailRequest{
		CompanyID: companyID,
		Email:     args[0],
		FullName:  addName,
		Role:      addRole,
		CheckSMTP: addWithSMTP,
	}
	return withApp(cmd, func(ctx context.Context, a *app) error {
		email, err := a.service.AddEmail(ctx, req)
		if err != nil {
			return err
		}
		return render(cmd, email, func(p *observability.Printer) {
			p.PrintEmails("EMAIL ADDED", []db.EmailCandidate{*email})
		})
	})
}

func runEmailsVerify(cmd *cobra.Command, args []string) error {
	ids := make([]uuid.UUID, 0, len(args))
	for _, arg := range args {
		id, err := parseID(arg, "email")
		if err != nil {
			return err
		}
		ids = append(ids, id)
	}
	return withApp(cmd, func(ctx context.Context, a *app) error {
		summary, err := a.service.VerifyEmails(ctx, &types.VerifyEmailsRequest{EmailIDs: ids, CheckSMTP: verifySMTP})
		if err != nil {
			return err
		}
		return render(cmd, summary, func(p *observability.Printer) { p.PrintVerifySummary(summary) })
	})
}

func runEmailsResetQueue(cmd *cobra.Command, _ []string) error {
	return withApp(cmd, func(ctx context.Context, a *app) error {
		res, err := a.service.ResetQueue(ctx)
		if err != nil {
			return err
		}
		if jsonOutput {
			return writeJSON(cmd.OutOrStdout(), res)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Reset %d queued emails\n", res.EmailsReset)
		return nil
	})
}
