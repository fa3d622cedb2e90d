package cli

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/emiliopalmerini/splango/internal/domain"
	"github.com/emiliopalmerini/splango/internal/identity"
	"github.com/emiliopalmerini/splango/internal/util"
)

var goalCmd = &cobra.Command{
	Use:   "goal",
	Short: "Record and list conversion goals",
}

var goalRecordCmd = &cobra.Command{
	Use:   "record <name>",
	Short: "Record a goal for a subject",
	Long: `Record that a subject reached a goal. Recording the same goal again is a no-op,
except that --extra fills the extra field once if it was empty.

Examples:
  splango goal record signup --subject 5f0c... --extra plan=pro`,
	Args: cobra.ExactArgs(1),
	RunE: runGoalRecord,
}

var goalListCmd = &cobra.Command{
	Use:   "list",
	Short: "List known goals",
	RunE:  runGoalList,
}

// Flags
var (
	goalSubject  string
	goalIdentity string
	goalExtra    string
	goalReferrer string
	goalPath     string
)

func init() {
	rootCmd.AddCommand(goalCmd)

	goalCmd.AddCommand(goalRecordCmd)
	goalCmd.AddCommand(goalListCmd)

	addSubjectFlags(goalRecordCmd, &goalSubject, &goalIdentity)
	goalRecordCmd.Flags().StringVar(&goalExtra, "extra", "", "Free-form payload stored with the record")
	goalRecordCmd.Flags().StringVar(&goalReferrer, "referrer", "", "Referrer to store on first record")
	goalRecordCmd.Flags().StringVar(&goalPath, "path", "", "Path to store on first record")
}

func runGoalRecord(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	app, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer app.Close()

	sess := &identity.MapSession{ID: goalSubject}
	subject, err := app.Services.Resolver.Resolve(ctx, sess, goalIdentity)
	if err != nil {
		return err
	}

	info := domain.RequestInfo{Referrer: goalReferrer, Path: goalPath}
	rec, err := app.Services.Ledger.Record(ctx, subject.ID, args[0], info, goalExtra)
	if err != nil {
		return err
	}

	if _, err := app.Services.Resolver.Reconcile(ctx, sess, goalIdentity, goalIdentity); err != nil {
		return err
	}

	extra := "-"
	if rec.HasExtra() {
		extra = *rec.Extra
	}
	fmt.Fprintf(cmd.OutOrStdout(), "record %s: subject %s reached %s (extra: %s)\n", rec.ID, sess.ID, rec.Goal, extra)
	return nil
}

func runGoalList(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	app, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer app.Close()

	list, err := app.Repos.Goals.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to list goals: %w", err)
	}

	out := cmd.OutOrStdout()
	if len(list) == 0 {
		fmt.Fprintln(out, "No goals recorded")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tFIRST SEEN")
	fmt.Fprintln(w, "----\t----------")
	for _, g := range list {
		fmt.Fprintf(w, "%s\t%s\n", g.Name, util.FormatDateTime(g.CreatedAt))
	}
	return w.Flush()
}
