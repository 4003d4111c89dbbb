package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/navguard/internal/profile"
)

// ProfileInfo describes one compiled profile.
type ProfileInfo struct {
	Name      string   `json:"name"`
	Tracked   []string `json:"tracked"`
	Required  []string `json:"required"`
	LineItems string   `json:"line_items,omitempty"` // "field(ref, ...)"
}

// ProfilesResult holds the profiles compiled from a directory.
type ProfilesResult struct {
	Dir      string        `json:"dir"`
	Files    int           `json:"files"`
	Profiles []ProfileInfo `json:"profiles"`
}

// NewProfilesCommand creates the profiles command.
func NewProfilesCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profiles <profiles-dir>",
		Short: "Compile and list form tracking profiles",
		Long: `Compile every CUE profile under a directory and list them.

A profile names the tracked fields of a form kind, the fields that must be
non-empty before a loaded form looks complete, and the line-item
references that must be resolved on existing records.

Examples:
  navguard profiles ./profiles
  navguard profiles ./profiles --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProfiles(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runProfiles(opts *RootOptions, dir string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd.OutOrStdout(), cmd.ErrOrStderr())

	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		msg := fmt.Sprintf("profiles directory not found: %s", dir)
		_ = formatter.Error(ErrCodeNotFound, msg, nil)
		return NewExitError(ExitCommandError, msg)
	}

	files, err := profile.FindCUEFiles(dir)
	if err != nil {
		msg := fmt.Sprintf("error scanning directory: %v", err)
		_ = formatter.Error(ErrCodeScanError, msg, nil)
		return NewExitError(ExitCommandError, msg)
	}
	if len(files) == 0 {
		msg := fmt.Sprintf("no CUE files found in %s", dir)
		_ = formatter.Error(ErrCodeNoFiles, msg, nil)
		return NewExitError(ExitCommandError, msg)
	}
	formatter.VerboseLog("Found %d CUE file(s) in %s", len(files), dir)

	set, err := profile.LoadFiles(files...)
	if err != nil {
		var details any
		var cErr *profile.CompileError
		if errors.As(err, &cErr) && cErr.Pos.IsValid() {
			details = map[string]any{"file": cErr.Pos.Filename(), "line": cErr.Pos.Line()}
		}
		_ = formatter.Error(ErrCodeProfile, err.Error(), details)
		return WrapExitError(ExitFailure, "profile compilation failed", err)
	}

	result := ProfilesResult{Dir: dir, Files: len(files), Profiles: make([]ProfileInfo, 0, len(set))}
	for _, name := range set.Names() {
		result.Profiles = append(result.Profiles, describeProfile(set[name]))
	}

	if opts.Format == "json" {
		return formatter.Success(result)
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "✓ %d profile(s) from %d file(s)\n", len(result.Profiles), result.Files)
	for _, p := range result.Profiles {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "%s\n", p.Name)
		fmt.Fprintf(w, "  tracked:    %s\n", listOrAll(p.Tracked))
		fmt.Fprintf(w, "  required:   %s\n", listOrNone(p.Required))
		if p.LineItems != "" {
			fmt.Fprintf(w, "  line items: %s\n", p.LineItems)
		}
	}
	return nil
}

func describeProfile(p *profile.Profile) ProfileInfo {
	info := ProfileInfo{
		Name:     p.Name,
		Tracked:  nonNil(p.Tracked),
		Required: nonNil(p.Required),
	}
	if p.LineItems != nil {
		info.LineItems = fmt.Sprintf("%s(%s)", p.LineItems.Field, strings.Join(p.LineItems.Refs, ", "))
	}
	return info
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func listOrAll(s []string) string {
	if len(s) == 0 {
		return "(all fields)"
	}
	return strings.Join(s, ", ")
}

func listOrNone(s []string) string {
	if len(s) == 0 {
		return "(none)"
	}
	return strings.Join(s, ", ")
}
