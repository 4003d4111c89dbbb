package cli

import (
	"fmt"
	"io"
	"log/slog"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/navguard/internal/config"
)

// RootOptions holds global flags for all commands, and the configuration
// and logger they resolve to.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"
	Config  string // path to navguard.yaml, optional

	Settings config.Config
	Logger   *slog.Logger
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the navguard CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{
		Settings: config.Default(),
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	cmd := &cobra.Command{
		Use:   "navguard",
		Short: "navguard - unsaved-changes navigation guard",
		Long: `Tools for the navigation guard: run scenario suites, validate scenarios
and form profiles, and inspect the guard event journal.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			cfg, err := config.Load(opts.Config)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to load config", err)
			}
			opts.Settings = cfg
			opts.Logger = cfg.NewLogger(cmd.ErrOrStderr(), opts.Verbose)
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVarP(&opts.Config, "config", "c", "", "path to config file (navguard.yaml)")

	cmd.AddCommand(NewTestCommand(opts))
	cmd.AddCommand(NewValidateCommand(opts))
	cmd.AddCommand(NewTraceCommand(opts))
	cmd.AddCommand(NewProfilesCommand(opts))

	return cmd
}

func isValidFormat(format string) bool {
	return slices.Contains(ValidFormats, format)
}
