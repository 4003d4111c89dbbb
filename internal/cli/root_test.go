package cli

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "navguard", cmd.Use)
	assert.Contains(t, cmd.Long, "journal")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	for _, name := range []string{"test", "validate", "trace", "profiles"} {
		t.Run(name, func(t *testing.T) {
			sub, _, err := cmd.Find([]string{name})
			require.NoError(t, err, "command %s should exist", name)
			assert.Equal(t, name, sub.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	verbose := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verbose)
	assert.Equal(t, "v", verbose.Shorthand)
	assert.Equal(t, "false", verbose.DefValue)

	format := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, format)
	assert.Equal(t, "text", format.DefValue)

	config := cmd.PersistentFlags().Lookup("config")
	require.NotNil(t, config)
	assert.Equal(t, "c", config.Shorthand)
}

func TestSubcommandFlags(t *testing.T) {
	tests := []struct {
		command string
		flags   []string
	}{
		{"test", []string{"update", "filter", "golden", "db"}},
		{"trace", []string{"db", "guard", "navigation", "kind"}},
	}

	cmd := NewRootCommand()
	for _, tt := range tests {
		sub, _, err := cmd.Find([]string{tt.command})
		require.NoError(t, err)
		for _, flag := range tt.flags {
			assert.NotNil(t, sub.Flags().Lookup(flag), "%s --%s", tt.command, flag)
		}
	}
}

func TestInvalidFormat(t *testing.T) {
	_, err := execute(t, "--format", "xml", "validate", harnessScenarios)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `invalid format "xml"`)
}

func TestConfigFile(t *testing.T) {
	dir := t.TempDir()

	t.Run("missing file", func(t *testing.T) {
		_, err := execute(t, "--config", filepath.Join(dir, "absent.yaml"), "validate", harnessScenarios)
		require.Error(t, err)
		assert.Equal(t, ExitCommandError, GetExitCode(err))
		assert.Contains(t, err.Error(), "failed to load config")
	})

	t.Run("invalid setting", func(t *testing.T) {
		path := writeFile(t, filepath.Join(dir, "bad.yaml"), "log:\n  format: xml\n")
		_, err := execute(t, "-c", path, "validate", harnessScenarios)
		require.Error(t, err)
		assert.Equal(t, ExitCommandError, GetExitCode(err))
		assert.Contains(t, err.Error(), "log.format must be text or json")
	})

	t.Run("fail closed guards still pass the suite", func(t *testing.T) {
		path := writeFile(t, filepath.Join(dir, "strict.yaml"), "guard:\n  fail_closed: true\n")
		out, err := execute(t, "-c", path, "test", harnessScenarios)
		require.NoError(t, err, out)
	})
}
