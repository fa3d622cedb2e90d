package cli

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/emiliopalmerini/splango/internal/domain"
	"github.com/emiliopalmerini/splango/internal/identity"
	"github.com/emiliopalmerini/splango/internal/util"
)

var experimentCmd = &cobra.Command{
	Use:   "experiment",
	Short: "Manage experiments",
	Long:  `Declare, list, open and close experiments, and enroll subjects by hand.`,
}

var experimentDeclareCmd = &cobra.Command{
	Use:   "declare <name>",
	Short: "Declare an experiment",
	Long: `Declare an experiment with an ordered list of variants. Declaring an existing
experiment leaves it unchanged.

Examples:
  splango experiment declare checkout --variants A,B --enrollable`,
	Args: cobra.ExactArgs(1),
	RunE: runExperimentDeclare,
}

var experimentListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all experiments",
	RunE:  runExperimentList,
}

var experimentEnrollableCmd = &cobra.Command{
	Use:   "enrollable <name> <true|false>",
	Short: "Open or close an experiment for new enrollments",
	Args:  cobra.ExactArgs(2),
	RunE:  runExperimentEnrollable,
}

var experimentApplyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Declare experiments from a YAML file",
	Long: `Declare every experiment listed in a YAML file and sync its enrollable flag.

File format:
  experiments:
    - name: checkout
      variants: [A, B]
      enrollable: true`,
	Args: cobra.NoArgs,
	RunE: runExperimentApply,
}

var experimentEnrollCmd = &cobra.Command{
	Use:   "enroll <name>",
	Short: "Enroll a subject",
	Long: `Enroll a subject in an experiment, at random or in the given variant. An
existing enrollment is never changed.

Examples:
  splango experiment enroll checkout --subject 5f0c...
  splango experiment enroll checkout --identity user-42 --variant B`,
	Args: cobra.ExactArgs(1),
	RunE: runExperimentEnroll,
}

// Flags
var (
	expVariants    string
	expEnrollable  bool
	expApplyFile   string
	enrollSubject  string
	enrollIdentity string
	enrollVariant  string
)

func init() {
	rootCmd.AddCommand(experimentCmd)

	experimentCmd.AddCommand(experimentDeclareCmd)
	experimentCmd.AddCommand(experimentListCmd)
	experimentCmd.AddCommand(experimentEnrollableCmd)
	experimentCmd.AddCommand(experimentApplyCmd)
	experimentCmd.AddCommand(experimentEnrollCmd)

	experimentDeclareCmd.Flags().StringVarP(&expVariants, "variants", "v", "", "Comma-separated variant labels, in order")
	experimentDeclareCmd.Flags().BoolVar(&expEnrollable, "enrollable", false, "Accept new enrollments")
	_ = experimentDeclareCmd.MarkFlagRequired("variants")

	experimentApplyCmd.Flags().StringVarP(&expApplyFile, "file", "f", "", "YAML file with experiment declarations")
	_ = experimentApplyCmd.MarkFlagRequired("file")

	addSubjectFlags(experimentEnrollCmd, &enrollSubject, &enrollIdentity)
	experimentEnrollCmd.Flags().StringVar(&enrollVariant, "variant", "", "Variant to enroll in (random when empty)")
}

// addSubjectFlags registers the flags that pick the subject a command acts on.
func addSubjectFlags(cmd *cobra.Command, subject, ident *string) {
	cmd.Flags().StringVar(subject, "subject", "", "Subject id (created when unknown or empty)")
	cmd.Flags().StringVar(ident, "identity", "", "Registered identity of the subject")
}

func runExperimentDeclare(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	app, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer app.Close()

	exp := &domain.Experiment{
		Name:       args[0],
		Variants:   domain.SplitVariants(expVariants),
		Enrollable: expEnrollable,
		CreatedAt:  time.Now().UTC(),
	}
	stored, created, err := app.Repos.Experiments.Declare(ctx, exp)
	if err != nil {
		return fmt.Errorf("failed to declare experiment: %w", err)
	}

	out := cmd.OutOrStdout()
	if !created {
		fmt.Fprintf(out, "Experiment %s already exists (variants: %s)\n", stored.Name, domain.JoinVariants(stored.Variants))
		return nil
	}
	fmt.Fprintf(out, "Declared experiment %s (variants: %s, enrollable: %t)\n",
		stored.Name, domain.JoinVariants(stored.Variants), stored.Enrollable)
	return nil
}

func runExperimentList(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	app, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer app.Close()

	experiments, err := app.Repos.Experiments.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to list experiments: %w", err)
	}

	out := cmd.OutOrStdout()
	if len(experiments) == 0 {
		fmt.Fprintln(out, "No experiments found")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tVARIANTS\tSTATUS\tCREATED")
	fmt.Fprintln(w, "----\t--------\t------\t-------")
	for _, exp := range experiments {
		status := "closed"
		if exp.Enrollable {
			status = "OPEN"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", exp.Name, domain.JoinVariants(exp.Variants), status, util.FormatDateTime(exp.CreatedAt))
	}
	return w.Flush()
}

func runExperimentEnrollable(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	enrollable, err := strconv.ParseBool(args[1])
	if err != nil {
		return fmt.Errorf("invalid value %q: expected true or false", args[1])
	}

	app, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer app.Close()

	if err := app.Repos.Experiments.SetEnrollable(ctx, args[0], enrollable); err != nil {
		return fmt.Errorf("failed to update experiment: %w", err)
	}

	state := "closed"
	if enrollable {
		state = "open"
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Experiment %s is now %s for enrollment\n", args[0], state)
	return nil
}

// experimentFile is the YAML layout read by "experiment apply".
type experimentFile struct {
	Experiments []struct {
		Name       string   `yaml:"name"`
		Variants   []string `yaml:"variants"`
		Enrollable bool     `yaml:"enrollable"`
	} `yaml:"experiments"`
}

func parseExperimentFile(data []byte) ([]*domain.Experiment, error) {
	var file experimentFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse experiments file: %w", err)
	}

	experiments := make([]*domain.Experiment, 0, len(file.Experiments))
	now := time.Now().UTC()
	for _, e := range file.Experiments {
		exp := &domain.Experiment{
			Name:       strings.TrimSpace(e.Name),
			Variants:   e.Variants,
			Enrollable: e.Enrollable,
			CreatedAt:  now,
		}
		if err := exp.Validate(); err != nil {
			return nil, err
		}
		experiments = append(experiments, exp)
	}
	return experiments, nil
}

func runExperimentApply(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	data, err := os.ReadFile(expApplyFile)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", expApplyFile, err)
	}
	experiments, err := parseExperimentFile(data)
	if err != nil {
		return err
	}

	app, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer app.Close()

	out := cmd.OutOrStdout()
	for _, exp := range experiments {
		stored, created, err := app.Repos.Experiments.Declare(ctx, exp)
		if err != nil {
			return fmt.Errorf("failed to declare %s: %w", exp.Name, err)
		}
		if created {
			fmt.Fprintf(out, "created    %s\n", exp.Name)
			continue
		}

		if domain.JoinVariants(stored.Variants) != domain.JoinVariants(exp.Variants) {
			app.Logger.Warn("variants differ from stored experiment; keeping stored variants",
				"experiment", exp.Name,
				"stored", domain.JoinVariants(stored.Variants),
				"file", domain.JoinVariants(exp.Variants))
		}
		if stored.Enrollable == exp.Enrollable {
			fmt.Fprintf(out, "unchanged  %s\n", exp.Name)
			continue
		}
		if err := app.Repos.Experiments.SetEnrollable(ctx, exp.Name, exp.Enrollable); err != nil {
			return fmt.Errorf("failed to update %s: %w", exp.Name, err)
		}
		fmt.Fprintf(out, "updated    %s (enrollable: %t)\n", exp.Name, exp.Enrollable)
	}
	return nil
}

func runExperimentEnroll(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	app, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer app.Close()

	sess := &identity.MapSession{ID: enrollSubject}
	subject, err := app.Services.Resolver.Resolve(ctx, sess, enrollIdentity)
	if err != nil {
		return err
	}

	var variant string
	if enrollVariant != "" {
		e, err := app.Services.Enroller.EnrollExplicit(ctx, args[0], subject.ID, enrollVariant)
		if err != nil {
			return err
		}
		variant = e.Variant
	} else {
		v, ok, err := app.Services.Enroller.GetVariant(ctx, args[0], subject.ID, true)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: %s", domain.ErrUnknownExperiment, args[0])
		}
		variant = v
	}

	if _, err := app.Services.Resolver.Reconcile(ctx, sess, enrollIdentity, enrollIdentity); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "subject %s: %s = %s\n", sess.ID, args[0], variant)
	return nil
}
