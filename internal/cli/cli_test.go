package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	configFile, debug = "", false

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	defer rootCmd.SetArgs(nil)

	err := rootCmd.Execute()
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "xrplsyncd version "+version)
	assert.Contains(t, out, "Go version")
}

func TestConfigCheckDefaults(t *testing.T) {
	out, err := execute(t, "config", "check")
	require.NoError(t, err)
	assert.Contains(t, out, "Configuration OK: (defaults)")
	assert.Contains(t, out, "node_db.type = pebble")
}

func TestConfigCheckFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "xrplsyncd.toml")
	require.NoError(t, os.WriteFile(path, []byte("[node_db]\ntype = \"bbolt\"\npath = \"nodes.db\"\n"), 0o644))

	out, err := execute(t, "--conf", path, "config", "check")
	require.NoError(t, err)
	assert.Contains(t, out, "node_db.type = bbolt")
	assert.Contains(t, out, filepath.Join(filepath.Dir(path), "nodes.db"))
}

func TestConfigCheckInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "xrplsyncd.toml")
	require.NoError(t, os.WriteFile(path, []byte("[node_db]\ntype = \"nudb\"\n"), 0o644))

	_, err := execute(t, "--conf", path, "config", "check")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "node_db")
}

func TestDebugFlag(t *testing.T) {
	_, err := execute(t, "--debug", "config", "check")
	require.NoError(t, err)
	cfg, err := loadConfig()
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Logging.Level)
}
