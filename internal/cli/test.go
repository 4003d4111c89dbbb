package cli

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/roach88/navguard/internal/harness"
	"github.com/roach88/navguard/internal/store"
)

// TestOptions holds flags for the test command.
type TestOptions struct {
	*RootOptions
	Update    bool   // regenerate golden files
	Filter    string // scenario filter (glob pattern)
	GoldenDir string // defaults to <scenarios-dir>/../golden
	Database  string // journal all runs into this database instead of memory
}

// ScenarioResult holds the result of a single scenario execution.
type ScenarioResult struct {
	Name   string   `json:"name"`
	File   string   `json:"file"`
	Pass   bool     `json:"pass"`
	Events int      `json:"events"`
	Golden string   `json:"golden,omitempty"` // "match", "updated" or "missing"
	Errors []string `json:"errors,omitempty"`
}

// TestResult holds the overall test result.
type TestResult struct {
	Scenarios []ScenarioResult `json:"scenarios"`
	Passed    int              `json:"passed"`
	Failed    int              `json:"failed"`
	Total     int              `json:"total"`
}

// NewTestCommand creates the test command.
func NewTestCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TestOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "test <scenarios-dir>",
		Short: "Run scenario suite",
		Long: `Run navigation-guard scenarios.

Each scenario runs against fresh guards with deterministic ids and
simulated detector waits. Expect clauses and assertions are checked and
the journal trace is compared with the scenario's golden file when one
exists.

Exit codes:
  0 - All scenarios passed
  1 - One or more scenarios failed
  2 - Command error (invalid paths, etc.)

Examples:
  navguard test ./scenarios
  navguard test ./scenarios --filter "discount*"
  navguard test ./scenarios --update
  navguard test ./scenarios --db ./journal.db --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTests(opts, args[0], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Update, "update", false, "regenerate golden files")
	cmd.Flags().StringVar(&opts.Filter, "filter", "", "filter scenarios by glob pattern")
	cmd.Flags().StringVar(&opts.GoldenDir, "golden", "", "golden file directory (default <scenarios-dir>/../golden)")
	cmd.Flags().StringVar(&opts.Database, "db", "", "journal runs into this SQLite database")

	return cmd
}

func runTests(opts *TestOptions, scenariosDir string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	loaded, loadErrs := LoadScenarios(scenariosDir, opts.Filter, LoadModeCollectAll)
	if loaded == nil {
		loadErr, _ := firstLoadError(loadErrs)
		return NewExitError(ExitCommandError, loadErr.Message)
	}

	if loaded.FileCount == 0 {
		if opts.Format == "json" {
			return formatter.JSON(CLIResponse{Status: "ok", Data: TestResult{Scenarios: []ScenarioResult{}}})
		}
		fmt.Fprintln(cmd.OutOrStdout(), "No scenarios found.")
		return nil
	}

	goldenDir := opts.GoldenDir
	if goldenDir == "" {
		goldenDir = filepath.Join(filepath.Dir(filepath.Clean(scenariosDir)), "golden")
	}

	runOpts := []harness.Option{
		harness.WithTiming(opts.Settings.Timing),
		harness.WithGuardOptions(opts.Settings.GuardOptions()...),
	}
	if opts.Verbose {
		runOpts = append(runOpts, harness.WithLogger(opts.Logger))
	}
	if opts.Database != "" {
		st, err := store.Open(opts.Database)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open database", err)
		}
		defer st.Close()
		runOpts = append(runOpts, harness.WithStore(st))
	}

	result := TestResult{
		Scenarios: make([]ScenarioResult, 0, loaded.FileCount),
		Total:     loaded.FileCount,
	}

	for _, err := range loadErrs {
		loadErr, ok := err.(*LoadError)
		if !ok {
			continue
		}
		result.Scenarios = append(result.Scenarios, ScenarioResult{
			Name:   filepath.Base(loadErr.File),
			File:   loadErr.File,
			Errors: []string{fmt.Sprintf("failed to load scenario: %s", loadErr.Message)},
		})
	}

	for _, ls := range loaded.Scenarios {
		formatter.VerboseLog("Running %s", ls.File)
		result.Scenarios = append(result.Scenarios, runScenario(ls, goldenDir, opts, runOpts))
	}

	for _, sr := range result.Scenarios {
		if sr.Pass {
			result.Passed++
		} else {
			result.Failed++
		}
	}

	if opts.Format == "json" {
		return outputTestJSON(formatter, result)
	}
	return outputTestText(cmd, result)
}

// runScenario executes a single scenario and returns the result.
func runScenario(ls LoadedScenario, goldenDir string, opts *TestOptions, runOpts []harness.Option) ScenarioResult {
	scenario := ls.Scenario
	sr := ScenarioResult{Name: scenario.Name, File: ls.File}

	result, err := harness.Run(scenario, runOpts...)
	if err != nil {
		sr.Errors = []string{fmt.Sprintf("execution failed: %v", err)}
		return sr
	}
	sr.Events = len(result.Trace)
	sr.Errors = append(sr.Errors, result.Errors...)

	trace, err := harness.MarshalTrace(scenario.Name, result.Trace)
	if err != nil {
		sr.Errors = append(sr.Errors, fmt.Sprintf("marshal trace: %v", err))
		return sr
	}

	goldenPath := filepath.Join(goldenDir, scenario.Name+".golden")
	switch {
	case opts.Update:
		if err := writeGoldenFile(goldenPath, trace); err != nil {
			sr.Errors = append(sr.Errors, fmt.Sprintf("failed to update golden file: %v", err))
			return sr
		}
		sr.Golden = "updated"
	default:
		golden, err := os.ReadFile(goldenPath)
		switch {
		case os.IsNotExist(err):
			sr.Golden = "missing"
		case err != nil:
			sr.Errors = append(sr.Errors, fmt.Sprintf("failed to read golden file: %v", err))
		case !bytes.Equal(golden, trace):
			sr.Errors = append(sr.Errors, "trace does not match golden file (run with --update to regenerate)")
		default:
			sr.Golden = "match"
		}
	}

	sr.Pass = len(sr.Errors) == 0
	return sr
}

func writeGoldenFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create golden directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write golden file: %w", err)
	}
	return nil
}

// outputTestJSON outputs the test result as JSON.
func outputTestJSON(formatter *OutputFormatter, result TestResult) error {
	response := CLIResponse{Status: "ok", Data: result}
	if result.Failed > 0 {
		response.Status = "error"
		response.Error = &CLIError{
			Code:    "E_TEST_FAILED",
			Message: fmt.Sprintf("%d scenario(s) failed", result.Failed),
		}
	}

	if err := formatter.JSON(response); err != nil {
		return err
	}
	if result.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d scenario(s) failed", result.Failed))
	}
	return nil
}

// outputTestText outputs the test result as text.
func outputTestText(cmd *cobra.Command, result TestResult) error {
	w := cmd.OutOrStdout()

	for _, sr := range result.Scenarios {
		if sr.Pass {
			note := ""
			if sr.Golden == "updated" {
				note = " (golden updated)"
			}
			fmt.Fprintf(w, "✓ %s%s\n", sr.Name, note)
			continue
		}
		fmt.Fprintf(w, "✗ %s\n", sr.Name)
		for _, e := range sr.Errors {
			fmt.Fprintf(w, "  %s\n", e)
		}
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "Test Summary: %d passed, %d failed, %d total\n", result.Passed, result.Failed, result.Total)

	if result.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d scenario(s) failed", result.Failed))
	}

	fmt.Fprintln(w, "✓ All scenarios passed")
	return nil
}
