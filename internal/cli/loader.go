package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/roach88/navguard/internal/harness"
)

// LoadMode controls how errors are handled during scenario loading.
type LoadMode int

const (
	// LoadModeFailFast stops on the first error encountered.
	LoadModeFailFast LoadMode = iota
	// LoadModeCollectAll collects all errors before returning.
	LoadModeCollectAll
)

// LoadedScenario is a parsed scenario with the file it came from.
type LoadedScenario struct {
	File     string
	Scenario *harness.Scenario
}

// LoadResult contains the scenarios loaded from a directory.
type LoadResult struct {
	Scenarios []LoadedScenario
	FileCount int // Number of scenario files found
}

// LoadError represents an error that occurred while loading scenarios.
type LoadError struct {
	Code    string
	File    string // empty for directory-level errors
	Message string
}

func (e *LoadError) Error() string {
	if e.File != "" {
		return fmt.Sprintf("%s: %s: %s", e.File, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// LoadScenarios parses every scenario file under dir whose base name
// matches filter (a glob; empty matches all). A nil result means the
// directory itself could not be used.
func LoadScenarios(dir, filter string, mode LoadMode) (*LoadResult, []error) {
	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("scenarios directory not found: %s", dir)}}
	}
	if err != nil {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("error accessing scenarios directory: %v", err)}}
	}
	if !info.IsDir() {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("not a directory: %s", dir)}}
	}

	files, err := FindScenarioFiles(dir, filter)
	if err != nil {
		return nil, []error{&LoadError{Code: ErrCodeScanError, Message: fmt.Sprintf("error scanning directory: %v", err)}}
	}

	result := &LoadResult{FileCount: len(files)}
	var errs []error
	for _, file := range files {
		scenario, err := harness.LoadScenario(file)
		if err != nil {
			errs = append(errs, &LoadError{Code: loadErrorCode(err), File: file, Message: err.Error()})
			if mode == LoadModeFailFast {
				return result, errs
			}
			continue
		}
		result.Scenarios = append(result.Scenarios, LoadedScenario{File: file, Scenario: scenario})
	}
	return result, errs
}

func loadErrorCode(err error) string {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "invalid scenario"):
		return ErrCodeInvalidScenario
	case strings.Contains(msg, "failed to parse YAML"):
		return ErrCodeLoadFailed
	}
	return ErrCodeGeneric
}

// FindScenarioFiles walks dir and returns the .yaml and .yml files in
// lexical order.
func FindScenarioFiles(dir, filter string) ([]string, error) {
	var files []string

	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}

		ext := filepath.Ext(path)
		if ext != ".yaml" && ext != ".yml" {
			return nil
		}

		if filter != "" {
			name := strings.TrimSuffix(filepath.Base(path), ext)
			matched, err := filepath.Match(filter, name)
			if err != nil {
				return fmt.Errorf("invalid filter pattern: %w", err)
			}
			if !matched {
				return nil
			}
		}

		files = append(files, path)
		return nil
	})
	return files, err
}

// firstLoadError returns the LoadError in errs, if any.
func firstLoadError(errs []error) (*LoadError, bool) {
	for _, err := range errs {
		var loadErr *LoadError
		if errors.As(err, &loadErr) {
			return loadErr, true
		}
	}
	return nil, false
}
