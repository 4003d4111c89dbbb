package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// harnessScenarios is the scenario suite shared with the harness package.
var harnessScenarios = filepath.Join("..", "harness", "testdata", "scenarios")

const cleanScenario = `
name: clean_nav
description: "One clean navigation"
steps:
  - navigate: /home
assertions:
  - type: route
    route: /home
`

const cleanGolden = `{"scenario_name":"clean_nav","trace":[{"kind":"proceeded","navigation_id":"nav-1","seq":1,"source_tag":"scenario"}]}`

// execute runs the root command with args and returns stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	out := &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func writeFile(t *testing.T, path, body string) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}
