package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/navguard/internal/profile"
)

// ValidationError is one problem found in a scenario or profile file.
type ValidationError struct {
	File    string `json:"file,omitempty"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Line    int    `json:"line,omitempty"`
}

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid     bool              `json:"valid"`
	Scenarios int               `json:"scenarios"`
	Errors    []ValidationError `json:"errors,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <scenarios-dir>",
		Short: "Validate scenarios and their profiles without running them",
		Long: `Validate scenario files and the CUE profiles they reference.

Checks YAML structure, step and assertion shape, timing bounds, profile
compilation and that every form names a defined profile. Nothing is
executed.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, scenariosDir string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd.OutOrStdout(), cmd.ErrOrStderr())

	loaded, loadErrs := LoadScenarios(scenariosDir, "", LoadModeCollectAll)
	if loaded == nil {
		if loadErr, ok := firstLoadError(loadErrs); ok {
			return outputValidateError(formatter, loadErr.Code, loadErr.Message)
		}
		return outputValidateError(formatter, ErrCodeGeneric, fmt.Sprintf("cannot read %s", scenariosDir))
	}
	if loaded.FileCount == 0 {
		return outputValidateError(formatter, ErrCodeNoFiles, fmt.Sprintf("no scenario files found in %s", scenariosDir))
	}

	formatter.VerboseLog("Found %d scenario file(s) in %s", loaded.FileCount, scenariosDir)

	verrs := collectValidationErrors(loaded, loadErrs, formatter)
	if len(verrs) > 0 {
		return outputValidationErrors(formatter, verrs)
	}
	return outputValidateSuccess(formatter, len(loaded.Scenarios))
}

func collectValidationErrors(loaded *LoadResult, loadErrs []error, formatter *OutputFormatter) []ValidationError {
	var verrs []ValidationError
	for _, err := range loadErrs {
		var loadErr *LoadError
		if errors.As(err, &loadErr) {
			verrs = append(verrs, ValidationError{File: loadErr.File, Code: loadErr.Code, Message: loadErr.Message})
		}
	}
	for _, ls := range loaded.Scenarios {
		formatter.VerboseLog("Validating scenario: %s", ls.Scenario.Name)
		verrs = append(verrs, validateProfiles(ls)...)
	}
	return verrs
}

// validateProfiles compiles the profiles a scenario references and checks
// every form against them.
func validateProfiles(ls LoadedScenario) []ValidationError {
	set := profile.Set{}
	if len(ls.Scenario.Profiles) > 0 {
		var err error
		set, err = profile.LoadFiles(ls.Scenario.Profiles...)
		if err != nil {
			return []ValidationError{profileError(ls.File, err)}
		}
	}

	var errs []ValidationError
	for _, f := range ls.Scenario.Forms {
		if f.Profile == "" {
			continue
		}
		if _, err := set.Get(f.Profile); err != nil {
			errs = append(errs, ValidationError{
				File:    ls.File,
				Code:    ErrCodeUnknownProfile,
				Message: fmt.Sprintf("form %s: %v", f.ID, err),
			})
		}
	}
	return errs
}

func profileError(file string, err error) ValidationError {
	verr := ValidationError{File: file, Code: ErrCodeProfile, Message: err.Error()}
	var cErr *profile.CompileError
	if errors.As(err, &cErr) {
		verr.File = cErr.Pos.Filename()
		verr.Line = getLineFromCuePos(cErr)
	}
	return verr
}

func getLineFromCuePos(err *profile.CompileError) int {
	if err.Pos.IsValid() {
		return err.Pos.Line()
	}
	return 0
}

// outputValidateSuccess outputs successful validation results.
func outputValidateSuccess(formatter *OutputFormatter, scenarios int) error {
	if formatter.Format == "json" {
		return formatter.Success(ValidationResult{Valid: true, Scenarios: scenarios})
	}

	fmt.Fprintf(formatter.Writer, "✓ All scenarios valid (%d)\n", scenarios)
	return nil
}

// outputValidateError outputs a single command-level error.
func outputValidateError(formatter *OutputFormatter, code, message string) error {
	_ = formatter.Error(code, message, nil)
	return NewExitError(ExitCommandError, fmt.Sprintf("%s: %s", code, message))
}

// outputValidationErrors outputs every validation error.
func outputValidationErrors(formatter *OutputFormatter, errs []ValidationError) error {
	failure := NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))

	if formatter.Format == "json" {
		response := CLIResponse{
			Status: "error",
			Data:   ValidationResult{Valid: false, Errors: errs},
			Error: &CLIError{
				Code:    errs[0].Code,
				Message: errs[0].Message,
			},
		}
		if err := formatter.JSON(response); err != nil {
			return err
		}
		return failure
	}

	fmt.Fprintln(formatter.Writer, "✗ Validation failed")
	fmt.Fprintln(formatter.Writer)
	for _, err := range errs {
		switch {
		case err.File != "" && err.Line > 0:
			fmt.Fprintf(formatter.Writer, "%s:%d\n", err.File, err.Line)
		case err.File != "":
			fmt.Fprintln(formatter.Writer, err.File)
		}
		fmt.Fprintf(formatter.Writer, "  %s: %s\n\n", err.Code, err.Message)
	}
	return failure
}

// ValidateScenariosDir validates every scenario in a directory and returns
// the problems found. A non-nil error means the directory was unusable.
func ValidateScenariosDir(dir string) ([]ValidationError, error) {
	loaded, loadErrs := LoadScenarios(dir, "", LoadModeCollectAll)
	if loaded == nil {
		return nil, loadErrs[0]
	}
	silent := &OutputFormatter{Format: "text", Writer: io.Discard}
	return collectValidationErrors(loaded, loadErrs, silent), nil
}
