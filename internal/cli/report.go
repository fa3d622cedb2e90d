package cli

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/emiliopalmerini/splango/internal/domain"
	"github.com/emiliopalmerini/splango/internal/util"
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Generate and save funnel reports",
}

var reportFunnelCmd = &cobra.Command{
	Use:   "funnel <experiment>",
	Short: "Print a funnel report",
	Long: `Print per-variant counts and conversion rates for an ordered list of goals.

Examples:
  splango report funnel checkout --goal viewed_cart --goal purchased`,
	Args: cobra.ExactArgs(1),
	RunE: runReportFunnel,
}

var reportCreateCmd = &cobra.Command{
	Use:   "create <experiment>",
	Short: "Save a funnel definition",
	Args:  cobra.ExactArgs(1),
	RunE:  runReportCreate,
}

var reportListCmd = &cobra.Command{
	Use:   "list <experiment>",
	Short: "List saved reports for an experiment",
	Args:  cobra.ExactArgs(1),
	RunE:  runReportList,
}

var reportShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Regenerate a saved report",
	Args:  cobra.ExactArgs(1),
	RunE:  runReportShow,
}

// Flags
var (
	reportGoals []string
	reportTitle string
)

func init() {
	rootCmd.AddCommand(reportCmd)

	reportCmd.AddCommand(reportFunnelCmd)
	reportCmd.AddCommand(reportCreateCmd)
	reportCmd.AddCommand(reportListCmd)
	reportCmd.AddCommand(reportShowCmd)

	for _, c := range []*cobra.Command{reportFunnelCmd, reportCreateCmd} {
		c.Flags().StringArrayVarP(&reportGoals, "goal", "g", nil, "Funnel goal, repeat in order")
	}
	reportCreateCmd.Flags().StringVarP(&reportTitle, "title", "t", "", "Report title")
	_ = reportCreateCmd.MarkFlagRequired("title")
}

func runReportFunnel(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	app, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer app.Close()

	report, err := app.Funnel.Generate(ctx, args[0], reportGoals)
	if err != nil {
		return err
	}
	return printFunnel(cmd.OutOrStdout(), report)
}

func runReportCreate(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	app, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer app.Close()

	saved, err := app.Funnel.Save(ctx, args[0], reportTitle, reportGoals)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Saved report %s: %s (%s)\n", saved.ID, saved.Title, strings.Join(saved.Funnel, " > "))
	return nil
}

func runReportList(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	app, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer app.Close()

	reports, err := app.Repos.Reports.ListByExperiment(ctx, args[0])
	if err != nil {
		return fmt.Errorf("failed to list reports: %w", err)
	}

	out := cmd.OutOrStdout()
	if len(reports) == 0 {
		fmt.Fprintln(out, "No reports found")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTITLE\tFUNNEL\tCREATED")
	fmt.Fprintln(w, "--\t-----\t------\t-------")
	for _, r := range reports {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", r.ID, r.Title, strings.Join(r.Funnel, " > "), util.FormatDateTime(r.CreatedAt))
	}
	return w.Flush()
}

func runReportShow(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	app, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer app.Close()

	saved, report, err := app.Funnel.GenerateSaved(ctx, args[0])
	if err != nil {
		return err
	}
	if saved == nil {
		return fmt.Errorf("report %s not found", args[0])
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%s\n\n", saved.Title)
	return printFunnel(cmd.OutOrStdout(), report)
}

// printFunnel writes one row per step with count, step rate and total rate per variant.
func printFunnel(out io.Writer, report *domain.FunnelReport) error {
	fmt.Fprintf(out, "Experiment: %s\n\n", report.Experiment)

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', tabwriter.AlignRight)
	header := []string{"STEP"}
	for _, v := range report.Variants {
		header = append(header, v, v+" STEP", v+" TOTAL")
	}
	fmt.Fprintln(w, strings.Join(header, "\t")+"\t")

	for _, step := range report.Steps {
		label := step.Goal
		if step.IsBaseline() {
			label = "(enrolled)"
		} else if !step.Known {
			label += " (unknown)"
		}
		row := []string{label}
		for _, c := range step.Cells {
			row = append(row, fmt.Sprintf("%d", c.Count), util.FormatPercent(c.Pct), util.FormatPercent(c.PctCumulative))
		}
		fmt.Fprintln(w, strings.Join(row, "\t")+"\t")
	}
	return w.Flush()
}
