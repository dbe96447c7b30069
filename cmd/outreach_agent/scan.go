package main

import (
	"context"
	"fmt"

	"github.com/jonathan/outreach-agent/internal/observability"
	"github.com/jonathan/outreach-agent/internal/types"
	"github.com/spf13/cobra"
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Discover decision makers and their email addresses",
}

var scanRunCmd = &cobra.Command{
	Use:   "run <company-id>",
	Short: "Scan a company website and validate the discovered addresses",
	Long: "Crawls the company website, extracts decision makers, derives candidate addresses and validates them. " +
		"The scan runs in the foreground; use the HTTP API for background scans.",
	Args: cobra.ExactArgs(1),
	RunE: runScanRun,
}

var scanStatusCmd = &cobra.Command{
	Use:   "status <scan-job-id>",
	Short: "Show the state and counters of a scan job",
	Args:  cobra.ExactArgs(1),
	RunE:  runScanStatus,
}

var scanListCmd = &cobra.Command{
	Use:   "list <company-id>",
	Short: "List recent scan jobs of a company",
	Args:  cobra.ExactArgs(1),
	RunE:  runScanList,
}

var revalidateCmd = &cobra.Command{
	Use:   "revalidate <company-id>",
	Short: "Re-run validation over a company's DISCOVERED addresses",
	Args:  cobra.ExactArgs(1),
	RunE:  runRevalidate,
}

// scanFlags holds the per-job options shared by scan run and revalidate.
type scanFlags struct {
	maxPages  int
	linkedIn  bool
	noWebsite bool
	noMX      bool
	smtp      bool
	browser   bool
}

var (
	scanOpts      scanFlags
	revalidateOpt scanFlags
	scanListLimit int
)

func (f *scanFlags) register(cmd *cobra.Command, crawl bool) {
	if crawl {
		cmd.Flags().IntVar(&f.maxPages, "max-pages", 0, "Maximum pages to crawl (default from config, max 50)")
		cmd.Flags().BoolVar(&f.linkedIn, "linkedin", false, "Also look for LinkedIn profiles linked from the site")
		cmd.Flags().BoolVar(&f.noWebsite, "no-website", false, "Skip the website crawl")
		cmd.Flags().BoolVar(&f.browser, "browser", false, "Render script-driven pages in headless Chrome")
	}
	cmd.Flags().BoolVar(&f.noMX, "no-mx", false, "Skip MX record checks")
	cmd.Flags().BoolVar(&f.smtp, "smtp", false, "Probe mail servers with RCPT TO")
}

// scanConfig turns flags into a job config; defaultPages applies when --max-pages is unset.
func (f *scanFlags) scanConfig(defaultPages int, defaultBrowser bool) *types.ScanConfig {
	cfg := types.DefaultScanConfig()
	if defaultPages > 0 {
		cfg.MaxPages = defaultPages
	}
	if f.maxPages > 0 {
		cfg.MaxPages = f.maxPages
	}
	cfg.ScanWebsite = !f.noWebsite
	cfg.ScanLinkedIn = f.linkedIn
	cfg.CheckMX = !f.noMX
	cfg.CheckSMTP = f.smtp
	cfg.UseBrowser = f.browser || defaultBrowser
	return &cfg
}

func init() {
	scanOpts.register(scanRunCmd, true)
	revalidateOpt.register(revalidateCmd, false)
	scanListCmd.Flags().IntVar(&scanListLimit, "limit", 20, "Maximum jobs to list")

	scanCmd.AddCommand(scanRunCmd, scanStatusCmd, scanListCmd)
	rootCmd.AddCommand(scanCmd, revalidateCmd)
}

func runScanRun(cmd *cobra.Command, args []string) error {
	companyID, err := parseID(args[0], "company")
	if err != nil {
		return err
	}
	return withApp(cmd, func(ctx context.Context, a *app) error {
		cfg := scanOpts.scanConfig(a.cfg.Crawl.MaxPages, a.cfg.Crawl.UseBrowser)
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid scan options: %w", err)
		}
		view, err := a.service.RunScan(ctx, companyID, cfg)
		if view != nil {
			if renderErr := render(cmd, view, func(p *observability.Printer) { p.PrintScanStatus(view) }); renderErr != nil {
				return renderErr
			}
		}
		return err
	})
}

func runScanStatus(cmd *cobra.Command, args []string) error {
	jobID, err := parseID(args[0], "scan job")
	if err != nil {
		return err
	}
	return withApp(cmd, func(ctx context.Context, a *app) error {
		view, err := a.service.GetScanStatus(ctx, jobID)
		if err != nil {
			return err
		}
		return render(cmd, view, func(p *observability.Printer) { p.PrintScanStatus(view) })
	})
}

func runScanList(cmd *cobra.Command, args []string) error {
	companyID, err := parseID(args[0], "company")
	if err != nil {
		return err
	}
	return withApp(cmd, func(ctx context.Context, a *app) error {
		jobs, err := a.service.ListScanJobs(ctx, companyID, scanListLimit)
		if err != nil {
			return err
		}
		if jsonOutput {
			return writeJSON(cmd.OutOrStdout(), jobs)
		}
		out := cmd.OutOrStdout()
		if len(jobs) == 0 {
			fmt.Fprintln(out, "No scans for this company")
			return nil
		}
		for _, j := range jobs {
			fmt.Fprintf(out, "%s  %-9s %3d%%  %d validated of %d discovered\n",
				j.ID, j.Status, j.ProgressPercentage, j.Counters.EmailsValidated, j.Counters.EmailsDiscovered)
		}
		return nil
	})
}

func runRevalidate(cmd *cobra.Command, args []string) error {
	companyID, err := parseID(args[0], "company")
	if err != nil {
		return err
	}
	return withApp(cmd, func(ctx context.Context, a *app) error {
		counters, err := a.service.Revalidate(ctx, companyID, revalidateOpt.scanConfig(0, false))
		if err != nil {
			return err
		}
		if jsonOutput {
			return writeJSON(cmd.OutOrStdout(), counters)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Validated %d, rejected %d role, %d domain, %d quality\n",
			counters.EmailsValidated, counters.EmailsRejectedRole, counters.EmailsRejectedDomain, counters.EmailsRejectedQuality)
		return nil
	})
}
