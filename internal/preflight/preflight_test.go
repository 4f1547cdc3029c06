package preflight_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"beetbot/internal/beets"
	"beetbot/internal/config"
	"beetbot/internal/preflight"
)

type stubRunner struct {
	result beets.Result
	err    error
}

func (s stubRunner) Command(_ context.Context, _ ...string) (beets.Result, error) {
	return s.result, s.err
}

func TestCheckDirectoryAccess(t *testing.T) {
	dir := t.TempDir()

	result := preflight.CheckDirectoryAccess("Import directory", dir)
	assert.True(t, result.Passed)
	assert.Contains(t, result.Detail, dir)

	result = preflight.CheckDirectoryAccess("Import directory", filepath.Join(dir, "missing"))
	assert.False(t, result.Passed)
	assert.Contains(t, result.Detail, "does not exist")

	result = preflight.CheckDirectoryAccess("Import directory", "")
	assert.False(t, result.Passed)
	assert.Equal(t, "not configured", result.Detail)
}

func TestCheckBinary(t *testing.T) {
	result := preflight.CheckBinary("Shell", "sh", "test fixture")
	assert.True(t, result.Passed)

	result = preflight.CheckBinary("Ghost", "beetbot-no-such-binary", "test fixture")
	assert.False(t, result.Passed)
	assert.Contains(t, result.Detail, "not found")

	result = preflight.CheckBinary("Empty", "  ", "test fixture")
	assert.False(t, result.Passed)
	assert.Equal(t, "command not configured", result.Detail)
}

func TestCheckBeets(t *testing.T) {
	runner := stubRunner{result: beets.Result{Stdout: "beets version 2.0.0\n"}}
	result := preflight.CheckBeets(context.Background(), runner)
	assert.True(t, result.Passed)
	assert.Equal(t, "beets version 2.0.0", result.Detail)

	runner = stubRunner{err: errors.New("container not running")}
	result = preflight.CheckBeets(context.Background(), runner)
	assert.False(t, result.Passed)
	assert.Contains(t, result.Detail, "container not running")

	runner = stubRunner{result: beets.Result{Stderr: "no such command", ExitCode: 1}}
	result = preflight.CheckBeets(context.Background(), runner)
	assert.False(t, result.Passed)
	assert.Contains(t, result.Detail, "exit 1")
}

func TestRunAll(t *testing.T) {
	assert.Nil(t, preflight.RunAll(context.Background(), nil, nil))

	dir := t.TempDir()
	cfg := config.Default()
	cfg.Beets.ImportDir = dir
	cfg.Paths.StateDir = dir
	cfg.Beets.Container = "beets"
	cfg.Telegram.Token = "123:abc"
	cfg.Telegram.ChatID = 42

	runner := stubRunner{result: beets.Result{Stdout: "beets version 2.0.0"}}
	results := preflight.RunAll(context.Background(), &cfg, runner)
	require.Len(t, results, 5)

	byName := make(map[string]preflight.Result, len(results))
	for _, result := range results {
		byName[result.Name] = result
	}
	assert.True(t, byName["Import directory"].Passed)
	assert.True(t, byName["State directory"].Passed)
	assert.True(t, byName["Beets CLI"].Passed)
	assert.True(t, byName["Telegram"].Passed)

	cfg.Telegram.ChatID = 0
	results = preflight.RunAll(context.Background(), &cfg, nil)
	last := results[len(results)-1]
	assert.False(t, last.Passed)
	assert.Equal(t, "chat_id missing", last.Detail)
}
