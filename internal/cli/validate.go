package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lingdb/treesync/internal/lff"
)

// ValidateOptions holds flags for the validate command.
type ValidateOptions struct {
	*RootOptions
	LFF    string
	LOF    string
	Policy string
}

// ValidationReport is the success payload of the validate command.
type ValidationReport struct {
	Valid     bool `json:"valid"`
	Families  int  `json:"families"`
	Languages int  `json:"languages"`
	Isolates  int  `json:"isolates"`
	Collapsed int  `json:"collapsed"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ValidateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Parse a classification release without computing a plan",
		Long: `Parse and collapse a classification release without touching the database.

Surfaces format violations (malformed codes, stray leaf lines) with file
and line positions, before an operator commits to a full plan run.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.LFF, "lff", "", "main classification file")
	cmd.Flags().StringVar(&opts.LOF, "lof", "", "overflow classification file")
	cmd.Flags().StringVar(&opts.Policy, "policy", "", "CUE policy override")

	return cmd
}

func runValidate(opts *ValidateOptions, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	if opts.LFF == "" {
		return outputPlanError(formatter, ExitCommandError, ErrCodeGeneric, "--lff is required")
	}

	pol, err := loadPolicy(opts.Policy)
	if err != nil {
		return outputPlanError(formatter, ExitCommandError, ErrCodePolicy, err.Error())
	}

	cls := lff.New(pol)
	if err := cls.ParseFile(opts.LFF); err != nil {
		return outputParseError(formatter, err)
	}
	aliases := cls.Collapse()
	if opts.LOF != "" {
		if err := cls.ParseFile(opts.LOF); err != nil {
			return outputParseError(formatter, err)
		}
	}

	report := ValidationReport{
		Valid:     true,
		Families:  len(cls.Families()),
		Languages: len(cls.Codes()),
		Isolates:  len(aliases.IsolateNames),
		Collapsed: len(aliases.CollapsedNames),
	}
	if formatter.Format == "json" {
		return formatter.Success(report)
	}

	fmt.Fprintf(formatter.Writer, "✓ Parsed %d familie(s), %d language(s)\n", report.Families, report.Languages)
	fmt.Fprintf(formatter.Writer, "  %d isolate(s), %d collapsed familie(s)\n", report.Isolates, report.Collapsed)
	return nil
}
