package main

import (
	"context"
	"fmt"

	"github.com/jonathan/outreach-agent/internal/observability"
	"github.com/spf13/cobra"
)

var companyCmd = &cobra.Command{
	Use:   "company",
	Short: "Register and inspect companies",
}

var companyAddCmd = &cobra.Command{
	Use:   "add <website>",
	Short: "Register a company by its website",
	Long:  "Registers a company by website. Adding a website whose domain is already known returns the existing company.",
	Args:  cobra.ExactArgs(1),
	RunE:  runCompanyAdd,
}

var companyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered companies",
	Args:  cobra.NoArgs,
	RunE:  runCompanyList,
}

var companyPeopleCmd = &cobra.Command{
	Use:   "people <company-id>",
	Short: "List the decision makers found for a company",
	Args:  cobra.ExactArgs(1),
	RunE:  runCompanyPeople,
}

var (
	companyName   string
	companyLimit  int
	companyOffset int
)

func init() {
	companyAddCmd.Flags().StringVarP(&companyName, "name", "n", "", "Company name (defaults to the domain)")
	companyListCmd.Flags().IntVar(&companyLimit, "limit", 50, "Maximum companies to list")
	companyListCmd.Flags().IntVar(&companyOffset, "offset", 0, "Companies to skip")

	companyCmd.AddCommand(companyAddCmd, companyListCmd, companyPeopleCmd)
	rootCmd.AddCommand(companyCmd)
}

func runCompanyAdd(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(ctx context.Context, a *app) error {
		company, err := a.service.AddCompany(ctx, companyName, args[0])
		if err != nil {
			return err
		}
		if jsonOutput {
			return writeJSON(cmd.OutOrStdout(), company)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s  %s (%s)\n", company.ID, company.Name, company.Domain)
		return nil
	})
}

func runCompanyList(cmd *cobra.Command, _ []string) error {
	return withApp(cmd, func(ctx context.Context, a *app) error {
		companies, err := a.service.ListCompanies(ctx, companyLimit, companyOffset)
		if err != nil {
			return err
		}
		if jsonOutput {
			return writeJSON(cmd.OutOrStdout(), companies)
		}
		out := cmd.OutOrStdout()
		if len(companies) == 0 {
			fmt.Fprintln(out, "No companies registered")
			return nil
		}
		for _, c := range companies {
			scanned := "never scanned"
			if c.LastScanned != nil {
				scanned = "scanned " + c.LastScanned.Format("2006-01-02")
			}
			fmt.Fprintf(out, "%s  %-30s %-30s %s\n", c.ID, c.Name, c.Domain, scanned)
		}
		return nil
	})
}

func runCompanyPeople(cmd *cobra.Command, args []string) error {
	companyID, err := parseID(args[0], "company")
	if err != nil {
		return err
	}
	return withApp(cmd, func(ctx context.Context, a *app) error {
		people, err := a.service.ListPeople(ctx, companyID)
		if err != nil {
			return err
		}
		return render(cmd, people, func(p *observability.Printer) { p.PrintPeople(people) })
	})
}
