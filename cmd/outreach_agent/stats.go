package main

import (
	"context"

	"github.com/jonathan/outreach-agent/internal/observability"
	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show system-wide counts of companies, emails, campaigns and sends",
	Args:  cobra.NoArgs,
	RunE:  runStats,
}

func init() {
	rootCmd.AddCommand(statsCmd)
}

func runStats(cmd *cobra.Command, _ []string) error {
	return withApp(cmd, func(ctx context.Context, a *app) error {
		overview, err := a.service.Overview(ctx)
		if err != nil {
			return err
		}
		return render(cmd, overview, func(p *observability.Printer) { p.PrintOverview(overview) })
	})
}
