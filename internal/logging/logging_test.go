package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestNewLevels(t *testing.T) {
	logger, closer, err := New(Config{Level: "debug"})
	require.NoError(t, err)
	defer closer.Close()
	require.Equal(t, zerolog.DebugLevel, logger.GetLevel())

	_, _, err = New(Config{Level: "loud"})
	require.Error(t, err)

	_, _, err = New(Config{Format: "xml"})
	require.Error(t, err)
}

func TestNewWritesJSONFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "node.log")

	logger, closer, err := New(Config{Level: "info", Format: "json", File: path, MaxSizeMB: 1})
	require.NoError(t, err)

	jobLog := Component(logger, "jobqueue")
	jobLog.Info().Int("workers", 4).Msg("started")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), `"component":"jobqueue"`)
	require.Contains(t, string(data), `"workers":4`)
}
