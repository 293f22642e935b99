package logging_test

import (
	"bufio"
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bamsammich/beamsync/internal/logging"
)

var timeZero time.Time

func TestOptionsLevel(t *testing.T) {
	t.Parallel()

	assert.Equal(t, slog.LevelInfo, logging.Options{}.Level())
	assert.Equal(t, slog.LevelDebug, logging.Options{Verbose: true}.Level())
	assert.Equal(t, slog.LevelWarn, logging.Options{Quiet: true}.Level())
}

func TestNewConsoleOnly(t *testing.T) {
	t.Parallel()

	var console bytes.Buffer
	logger, closeFn, err := logging.New(logging.Options{Console: &console, Quiet: true})
	require.NoError(t, err)
	defer closeFn()

	logger.Info("hidden")
	logger.Warn("shown", "peer", "nas:9000")

	out := console.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "shown")
	assert.Contains(t, out, "peer=nas:9000")
	assert.NotContains(t, out, "\x1b[", "non-terminal output must not be colored")
}

func TestNewWithFile(t *testing.T) {
	t.Parallel()

	var console bytes.Buffer
	path := filepath.Join(t.TempDir(), "beamsync.log")
	logger, closeFn, err := logging.New(logging.Options{Console: &console, File: path})
	require.NoError(t, err)

	logger.Debug("debug only in file", "path", "a.txt")
	logger.Info("everywhere")
	require.NoError(t, closeFn())

	assert.NotContains(t, console.String(), "debug only in file")
	assert.Contains(t, console.String(), "everywhere")

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var msgs []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var rec map[string]any
		require.NoError(t, json.Unmarshal(sc.Bytes(), &rec))
		msgs = append(msgs, rec["msg"].(string))
	}
	assert.Equal(t, []string{"debug only in file", "everywhere"}, msgs)
}

func TestNewBadFile(t *testing.T) {
	t.Parallel()

	_, _, err := logging.New(logging.Options{File: filepath.Join(t.TempDir(), "missing", "x.log")})
	require.Error(t, err)
}
