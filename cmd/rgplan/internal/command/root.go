// Package command implements the rgplan subcommands.
package command

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/gogpu/rendergraph"
	"github.com/gogpu/rendergraph/cmd/rgplan/internal/view"
)

// Options are the global flags shared by every subcommand.
type Options struct {
	Output string
	Debug  bool

	format view.OutputFormat
}

func (o *Options) printer(cmd *cobra.Command) *view.Printer {
	return view.NewPrinter(cmd.OutOrStdout(), o.format)
}

// NewRootCommand returns the rgplan command tree.
func NewRootCommand() *cobra.Command {
	opts := &Options{}
	cmd := &cobra.Command{
		Use:   "rgplan",
		Short: "Plan and simulate render graphs described in YAML",
		Long: color.RGB(50, 108, 229).Sprintf("Usage: rgplan [global options] <subcommand> [args]\n\n") +
			"rgplan compiles frame graph descriptions into ordered passes, shows the\n" +
			"barriers and physical resources the planner chose, and can run the graph\n" +
			"for several frames on a no-op device to show how caches settle.\n",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			format, err := view.ParseOutputFormat(opts.Output)
			if err != nil {
				return err
			}
			opts.format = format
			if opts.Debug {
				rendergraph.SetLogger(slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{
					Level: slog.LevelDebug,
				})))
			}
			return nil
		},
		Run: func(cmd *cobra.Command, args []string) {
			if len(args) == 0 {
				_ = cmd.Help()
			}
		},
	}
	cmd.CompletionOptions.DisableDefaultCmd = true
	cmd.PersistentFlags().StringVarP(&opts.Output, "output", "o", "table", "Output format. One of: (table | json | yaml)")
	cmd.PersistentFlags().BoolVar(&opts.Debug, "debug", false, "Log planner and cache activity to stderr")

	setUsageTemplate(cmd)
	cmd.AddCommand(
		newPlanCommand(opts),
		newSimulateCommand(opts),
	)
	return cmd
}

func setUsageTemplate(cmd *cobra.Command) {
	cobra.AddTemplateFunc("StyleHeading", color.RGB(50, 108, 229).SprintFunc())
	cmd.SetUsageTemplate(strings.NewReplacer(
		`Usage:`, `{{StyleHeading "Usage:"}}`,
		`Examples:`, `{{StyleHeading "Examples:"}}`,
		`Available Commands:`, `{{StyleHeading "Available Commands:"}}`,
		`Flags:`, `{{StyleHeading "Options:"}}`,
		`Global Flags:`, `{{StyleHeading "Global Options:"}}`,
	).Replace(cmd.UsageTemplate()))
}

// Execute runs rgplan with the process arguments and exits.
func Execute() {
	if _, exists := os.LookupEnv("NO_COLOR"); exists {
		color.NoColor = true
	}
	if err := NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, color.RGB(229, 50, 50).Sprint("Error:"), err)
		os.Exit(1)
	}
}
