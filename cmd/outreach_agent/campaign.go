package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jonathan/outreach-agent/internal/db"
	"github.com/jonathan/outreach-agent/internal/observability"
	"github.com/jonathan/outreach-agent/internal/schemas"
	"github.com/jonathan/outreach-agent/internal/types"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var campaignCmd = &cobra.Command{
	Use:   "campaign",
	Short: "Create, control and send campaigns",
}

var campaignCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a DRAFT campaign",
	Long: "Creates a campaign from flags, a JSON or YAML file (--file), or both; flags override file values. " +
		"Templates use Liquid syntax; available variables are name, first_name, full_name, role, company, domain and email.",
	Args: cobra.NoArgs,
	RunE: runCampaignCreate,
}

var campaignListCmd = &cobra.Command{
	Use:   "list",
	Short: "List campaigns",
	Args:  cobra.NoArgs,
	RunE:  runCampaignList,
}

var campaignShowCmd = &cobra.Command{
	Use:   "show <campaign-id>",
	Short: "Show a campaign and its totals",
	Args:  cobra.ExactArgs(1),
	RunE:  runCampaignShow,
}

var campaignSendCmd = &cobra.Command{
	Use:   "send <campaign-id>",
	Short: "Send one batch of an ACTIVE campaign",
	Long: "Sends to queued recipients, at most one per domain, skipping domains in cooldown and stopping at the daily limit. " +
		"Interrupting the command stops the batch between sends and records what was sent.",
	Args: cobra.ExactArgs(1),
	RunE: runCampaignSend,
}

var campaignLogsCmd = &cobra.Command{
	Use:   "logs <campaign-id>",
	Short: "List recent delivery attempts of a campaign",
	Args:  cobra.ExactArgs(1),
	RunE:  runCampaignLogs,
}

var campaignBatchesCmd = &cobra.Command{
	Use:   "batches <campaign-id>",
	Short: "List the send batches of a campaign, newest first",
	Args:  cobra.ExactArgs(1),
	RunE:  runCampaignBatches,
}

var batchCmd = &cobra.Command{
	Use:   "batch <batch-id>",
	Short: "Show the progress of a send batch",
	Args:  cobra.ExactArgs(1),
	RunE:  runBatchStatus,
}

var (
	campaignFile         string
	campaignName         string
	campaignSubject      string
	campaignBody         string
	campaignBodyFile     string
	campaignFromEmail    string
	campaignFromName     string
	campaignDailyLimit   int
	campaignCooldownDays int

	campaignListLimit int
	sendLimit         int
	sendDelay         time.Duration
	logsLimit         int
	batchesLimit      int
)

func init() {
	f := campaignCreateCmd.Flags()
	f.StringVarP(&campaignFile, "file", "f", "", "JSON or YAML campaign definition")
	f.StringVar(&campaignName, "name", "", "Campaign name")
	f.StringVar(&campaignSubject, "subject", "", "Subject template")
	f.StringVar(&campaignBody, "body", "", "Body template")
	f.StringVar(&campaignBodyFile, "body-file", "", "Read the body template from a file")
	f.StringVar(&campaignFromEmail, "from-email", "", "Sender address")
	f.StringVar(&campaignFromName, "from-name", "", "Sender display name")
	f.IntVar(&campaignDailyLimit, "daily-limit", 0, "Sends per UTC day (default 100)")
	f.IntVar(&campaignCooldownDays, "cooldown-days", 0, "Days before a domain is contacted again (default 7)")

	campaignListCmd.Flags().IntVar(&campaignListLimit, "limit", 50, "Maximum campaigns to list")
	campaignSendCmd.Flags().IntVar(&sendLimit, "limit", 0, "Override the campaign's daily limit for this run")
	campaignSendCmd.Flags().DurationVar(&sendDelay, "delay", -1, "Pause between sends (default from config)")
	campaignLogsCmd.Flags().IntVar(&logsLimit, "limit", 50, "Maximum attempts to list")
	campaignBatchesCmd.Flags().IntVar(&batchesLimit, "limit", 10, "Maximum batches to list")

	campaignCmd.AddCommand(campaignCreateCmd, campaignListCmd, campaignShowCmd, campaignSendCmd, campaignLogsCmd, campaignBatchesCmd)
	for _, action := range []types.CampaignAction{types.ActionActivate, types.ActionPause, types.ActionResume, types.ActionComplete} {
		campaignCmd.AddCommand(newCampaignActionCmd(action))
	}
	rootCmd.AddCommand(campaignCmd, batchCmd)
}

func newCampaignActionCmd(action types.CampaignAction) *cobra.Command {
	target, _ := action.Target()
	return &cobra.Command{
		Use:   string(action) + " <campaign-id>",
		Short: fmt.Sprintf("Move a campaign to %s", target),
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "campaign")
			if err != nil {
				return err
			}
			return withApp(cmd, func(ctx context.Context, a *app) error {
				campaign, err := a.service.ApplyCampaignAction(ctx, id, action)
				if err != nil {
					return err
				}
				return render(cmd, campaign, func(p *observability.Printer) { p.PrintCampaign(campaign) })
			})
		},
	}
}

// loadCampaignDocument reads a campaign definition. The format follows the extension;
// anything other than .yaml or .yml is parsed as JSON.
func loadCampaignDocument(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read campaign file %s: %w", path, err)
	}
	doc := map[string]any{}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("failed to parse campaign YAML: %w", err)
		}
	default:
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("failed to parse campaign JSON: %w", err)
		}
	}
	return doc, nil
}

// campaignInput merges overrides over doc and checks the result against the campaign
// schema.
func campaignInput(doc, overrides map[string]any) (*db.CampaignInput, error) {
	merged := make(map[string]any, len(doc)+len(overrides))
	for k, v := range doc {
		merged[k] = v
	}
	for k, v := range overrides {
		merged[k] = v
	}
	if err := schemas.ValidateValue(schemas.Campaign, merged); err != nil {
		return nil, err
	}

	raw, err := json.Marshal(merged)
	if err != nil {
		return nil, fmt.Errorf("failed to encode campaign: %w", err)
	}
	var input db.CampaignInput
	if err := json.Unmarshal(raw, &input); err != nil {
		return nil, fmt.Errorf("failed to decode campaign: %w", err)
	}
	return &input, nil
}

// campaignOverrides collects the create flags the user set explicitly.
func campaignOverrides(cmd *cobra.Command) (map[string]any, error) {
	flags := cmd.Flags()
	out := map[string]any{}
	strFlags := map[string]struct {
		key string
		val *string
	}{
		"name":       {"name", &campaignName},
		"subject":    {"subject_template", &campaignSubject},
		"body":       {"body_template", &campaignBody},
		"from-email": {"from_email", &campaignFromEmail},
		"from-name":  {"from_name", &campaignFromName},
	}
	for flag, f := range strFlags {
		if flags.Changed(flag) {
			out[f.key] = *f.val
		}
	}
	if flags.Changed("body-file") {
		if flags.Changed("body") {
			return nil, errors.New("--body and --body-file are mutually exclusive")
		}
		body, err := os.ReadFile(campaignBodyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read body file: %w", err)
		}
		out["body_template"] = string(body)
	}
	if flags.Changed("daily-limit") {
		out["daily_limit"] = campaignDailyLimit
	}
	if flags.Changed("cooldown-days") {
		out["cooldown_days"] = campaignCooldownDays
	}
	return out, nil
}

func runCampaignCreate(cmd *cobra.Command, _ []string) error {
	doc := map[string]any{}
	if campaignFile != "" {
		var err error
		if doc, err = loadCampaignDocument(campaignFile); err != nil {
			return err
		}
	}
	overrides, err := campaignOverrides(cmd)
	if err != nil {
		return err
	}
	input, err := campaignInput(doc, overrides)
	if err != nil {
		return err
	}

	return withApp(cmd, func(ctx context.Context, a *app) error {
		campaign, err := a.service.CreateCampaign(ctx, input)
		if err != nil {
			return err
		}
		return render(cmd, campaign, func(p *observability.Printer) { p.PrintCampaign(campaign) })
	})
}

func runCampaignList(cmd *cobra.Command, _ []string) error {
	return withApp(cmd, func(ctx context.Context, a *app) error {
		campaigns, err := a.service.ListCampaigns(ctx, campaignListLimit)
		if err != nil {
			return err
		}
		if jsonOutput {
			return writeJSON(cmd.OutOrStdout(), campaigns)
		}
		out := cmd.OutOrStdout()
		if len(campaigns) == 0 {
			fmt.Fprintln(out, "No campaigns")
			return nil
		}
		for _, c := range campaigns {
			fmt.Fprintf(out, "%s  %-9s %-30s %d sent\n", c.ID, c.Status, c.Name, c.TotalSent)
		}
		return nil
	})
}

func runCampaignShow(cmd *cobra.Command, args []string) error {
	id, err := parseID(args[0], "campaign")
	if err != nil {
		return err
	}
	return withApp(cmd, func(ctx context.Context, a *app) error {
		campaign, err := a.service.GetCampaign(ctx, id)
		if err != nil {
			return err
		}
		return render(cmd, campaign, func(p *observability.Printer) { p.PrintCampaign(campaign) })
	})
}

func runCampaignSend(cmd *cobra.Command, args []string) error {
	id, err := parseID(args[0], "campaign")
	if err != nil {
		return err
	}
	if sendLimit < 0 {
		return errors.New("--limit must not be negative")
	}
	return withApp(cmd, func(ctx context.Context, a *app) error {
		var stats *types.BatchStats
		var err error
		if sendDelay >= 0 {
			stats, err = a.service.SendCampaignBatchWithDelay(ctx, id, sendLimit, sendDelay)
		} else {
			stats, err = a.service.SendCampaignBatch(ctx, id, sendLimit)
		}
		if stats != nil {
			if renderErr := render(cmd, stats, func(p *observability.Printer) { p.PrintBatchStats(stats) }); renderErr != nil {
				return renderErr
			}
		}
		return err
	})
}

func runCampaignLogs(cmd *cobra.Command, args []string) error {
	id, err := parseID(args[0], "campaign")
	if err != nil {
		return err
	}
	return withApp(cmd, func(ctx context.Context, a *app) error {
		logs, err := a.service.ListSendLogs(ctx, id, logsLimit)
		if err != nil {
			return err
		}
		if jsonOutput {
			return writeJSON(cmd.OutOrStdout(), logs)
		}
		out := cmd.OutOrStdout()
		if len(logs) == 0 {
			fmt.Fprintln(out, "No delivery attempts")
			return nil
		}
		for _, l := range logs {
			line := fmt.Sprintf("%s  %-7s %s", l.SentAt.UTC().Format(time.RFC3339), l.Status, l.SubjectSent)
			if l.Error != nil {
				line += "  (" + *l.Error + ")"
			}
			fmt.Fprintln(out, line)
		}
		return nil
	})
}

func runCampaignBatches(cmd *cobra.Command, args []string) error {
	id, err := parseID(args[0], "campaign")
	if err != nil {
		return err
	}
	return withApp(cmd, func(ctx context.Context, a *app) error {
		batches, err := a.service.ListSendBatches(ctx, id, batchesLimit)
		if err != nil {
			return err
		}
		if jsonOutput {
			return writeJSON(cmd.OutOrStdout(), batches)
		}
		out := cmd.OutOrStdout()
		if len(batches) == 0 {
			fmt.Fprintln(out, "No send batches")
			return nil
		}
		for _, b := range batches {
			fmt.Fprintf(out, "%s  %s  %-9s %d sent, %d failed, %d bounced\n",
				b.CreatedAt.UTC().Format(time.RFC3339), b.ID, b.Status, b.Sent, b.Failed, b.Bounced)
		}
		return nil
	})
}

func runBatchStatus(cmd *cobra.Command, args []string) error {
	id, err := parseID(args[0], "batch")
	if err != nil {
		return err
	}
	return withApp(cmd, func(ctx context.Context, a *app) error {
		batch, err := a.service.GetSendBatch(ctx, id)
		if err != nil {
			return err
		}
		return render(cmd, batch, func(p *observability.Printer) { p.PrintSendBatch(batch) })
	})
}
