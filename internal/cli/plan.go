package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/lingdb/treesync/internal/lff"
	"github.com/lingdb/treesync/internal/policy"
	"github.com/lingdb/treesync/internal/reconcile"
	"github.com/lingdb/treesync/internal/snapshot"
)

// PlanOptions holds flags for the plan command.
type PlanOptions struct {
	*RootOptions
	Job         string
	DB          string
	LFF         string
	LOF         string
	Coordinates string
	Policy      string
	Output      string
	All         bool
}

// PlanReport is the success payload of the plan command.
type PlanReport struct {
	RunID      string                 `json:"run_id"`
	Stats      reconcile.Stats        `json:"stats"`
	Unresolved []reconcile.Unresolved `json:"unresolved,omitempty"`
	Output     string                 `json:"output"`
}

// NewPlanCommand creates the plan command.
func NewPlanCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PlanOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Compute the migration plan for a classification release",
		Long: `Compute the migration plan reconciling the stored classification with a
new release.

The old tree is loaded from the database snapshot, the release's lff/lof
files are parsed and collapsed, and the matcher pairs old nodes with new
branches by leaf-set. The resulting instruction stream (node upserts,
retirements, leaf reparenting) is written as a JSON array for the apply
step; nothing is written to the database.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true, // Don't print usage on errors - we handle our own error output
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPlan(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Job, "job", "", "YAML job file bundling the run's inputs")
	cmd.Flags().StringVar(&opts.DB, "db", "", "snapshot source: SQLite file or postgres:// DSN")
	cmd.Flags().StringVar(&opts.LFF, "lff", "", "main classification file")
	cmd.Flags().StringVar(&opts.LOF, "lof", "", "overflow classification file")
	cmd.Flags().StringVar(&opts.Coordinates, "coords", "", "tab-separated coordinates file")
	cmd.Flags().StringVar(&opts.Policy, "policy", "", "CUE policy override")
	cmd.Flags().StringVarP(&opts.Output, "output", "o", "languoids.json", "instruction file to write")
	cmd.Flags().BoolVar(&opts.All, "all", false, "consider all old nodes, not only active ones")

	return cmd
}

func runPlan(opts *PlanOptions, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(), // Verbose logs go to stderr to avoid corrupting JSON
		Verbose:   opts.Verbose,
	}

	if opts.Job != "" {
		job, err := LoadJob(opts.Job)
		if err != nil {
			return outputPlanError(formatter, ExitCommandError, ErrCodeNotFound, err.Error())
		}
		applyJob(opts, job, cmd)
	}
	if opts.DB == "" || opts.LFF == "" || opts.LOF == "" {
		return outputPlanError(formatter, ExitCommandError, ErrCodeGeneric,
			"--db, --lff and --lof are required (directly or via --job)")
	}

	pol, err := loadPolicy(opts.Policy)
	if err != nil {
		return outputPlanError(formatter, ExitCommandError, ErrCodePolicy, err.Error())
	}

	// Parse the main file, collapse singleton families, index the
	// surviving family names, then merge in the overflow file. The name
	// index deliberately predates the overflow parse.
	cls := lff.New(pol)
	if err := cls.ParseFile(opts.LFF); err != nil {
		return outputParseError(formatter, err)
	}
	aliases := cls.Collapse()
	names := cls.NamesIndex()
	if err := cls.ParseFile(opts.LOF); err != nil {
		return outputParseError(formatter, err)
	}
	formatter.VerboseLog("Parsed %d language(s) in %d familie(s)", len(cls.Codes()), len(cls.Families()))

	coords := map[string]lff.Coordinates{}
	if opts.Coordinates != "" {
		coords, err = lff.ParseCoordinatesFile(opts.Coordinates)
		if err != nil {
			return outputParseError(formatter, err)
		}
	}

	store, err := snapshot.Open(opts.DB)
	if err != nil {
		return outputPlanError(formatter, ExitCommandError, ErrCodeSnapshot, err.Error())
	}
	defer store.Close()

	snap, err := snapshot.Load(cmd.Context(), store, !opts.All)
	if err != nil {
		return outputPlanError(formatter, ExitCommandError, ErrCodeSnapshot, err.Error())
	}
	formatter.VerboseLog("Loaded snapshot: %d internal node(s), %d coded language(s)", len(snap.Nodes), len(snap.Codes))

	plan, err := reconcile.Compute(reconcile.Inputs{
		Classification: cls,
		Aliases:        aliases,
		Names:          names,
		Snapshot:       snap,
		Coordinates:    coords,
		Policy:         pol,
	}, formatter.VerboseLog)
	if err != nil {
		if reconcile.IsInconsistency(err) {
			return outputPlanError(formatter, ExitFailure, ErrCodeInconsistency, err.Error())
		}
		return outputPlanError(formatter, ExitCommandError, ErrCodeGeneric, err.Error())
	}

	data, err := plan.MarshalInstructions()
	if err != nil {
		return outputPlanError(formatter, ExitCommandError, ErrCodeWriteFailed, err.Error())
	}
	if err := os.WriteFile(opts.Output, data, 0644); err != nil {
		return outputPlanError(formatter, ExitCommandError, ErrCodeWriteFailed, err.Error())
	}

	return outputPlanSuccess(formatter, plan, opts.Output)
}

// applyJob fills options from the job file for every flag the user did
// not set explicitly.
func applyJob(opts *PlanOptions, job *Job, cmd *cobra.Command) {
	changed := cmd.Flags().Changed
	if !changed("db") && job.DB != "" {
		opts.DB = job.DB
	}
	if !changed("lff") && job.LFF != "" {
		opts.LFF = job.LFF
	}
	if !changed("lof") && job.LOF != "" {
		opts.LOF = job.LOF
	}
	if !changed("coords") && job.Coordinates != "" {
		opts.Coordinates = job.Coordinates
	}
	if !changed("policy") && job.Policy != "" {
		opts.Policy = job.Policy
	}
	if !changed("output") && job.Output != "" {
		opts.Output = job.Output
	}
	if !changed("all") {
		opts.All = job.All
	}
}

func loadPolicy(path string) (*policy.Policy, error) {
	if path == "" {
		return policy.Default()
	}
	return policy.Load(path)
}

func outputPlanSuccess(formatter *OutputFormatter, plan *reconcile.Plan, output string) error {
	report := PlanReport{
		RunID:      plan.RunID,
		Stats:      plan.Stats,
		Unresolved: plan.Unresolved,
		Output:     output,
	}
	if formatter.Format == "json" {
		return formatter.Success(report)
	}

	fmt.Fprintf(formatter.Writer, "✓ Reconciled classification (run %s)\n\n", plan.RunID)
	fmt.Fprintf(formatter.Writer, "  %d matches\n", plan.Stats.Matches)
	fmt.Fprintf(formatter.Writer, "  %d migrations\n", plan.Stats.Migrations)
	fmt.Fprintf(formatter.Writer, "  %d nomatches\n", plan.Stats.NoMatches)
	fmt.Fprintf(formatter.Writer, "  %d new families\n", plan.Stats.NewFamilies)
	fmt.Fprintf(formatter.Writer, "  %d new languages\n", plan.Stats.NewLanguages)
	fmt.Fprintln(formatter.Writer)

	if len(plan.Unresolved) > 0 {
		fmt.Fprintln(formatter.Writer, "Unresolved retirements (manual review):")
		for _, u := range plan.Unresolved {
			fmt.Fprintf(formatter.Writer, "  %d: %s\n", u.PK, u.Name)
		}
		fmt.Fprintln(formatter.Writer)
	}

	fmt.Fprintf(formatter.Writer, "Wrote %d instruction(s) to %s\n", plan.Stats.Instructions, output)
	return nil
}

// outputParseError distinguishes format violations (data failures) from
// missing files (command errors).
func outputParseError(formatter *OutputFormatter, err error) error {
	if lff.IsParseError(err) {
		return outputPlanError(formatter, ExitFailure, ErrCodeParse, err.Error())
	}
	return outputPlanError(formatter, ExitCommandError, ErrCodeNotFound, err.Error())
}

func outputPlanError(formatter *OutputFormatter, exitCode int, code, message string) error {
	_ = formatter.Error(code, message, nil)
	return WrapExitError(exitCode, fmt.Sprintf("%s: %s", code, message), nil)
}
