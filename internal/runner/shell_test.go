package runner

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/kazz187/taskdir/internal/task"
)

func writeShellTask(t *testing.T, payload string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "priority_50_t1.yaml")
	data, err := yaml.Marshal(&task.Document{ID: "t1", Type: ShellType, Payload: payload})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestShellRunnerSuccess(t *testing.T) {
	r := NewShellRunner()
	result, err := r.Run(context.Background(), writeShellTask(t, "echo ok"))
	require.NoError(t, err)
	assert.Equal(t, 0, result.ExitCode)
	assert.Equal(t, "ok\n", result.Stdout)
	assert.False(t, result.Failed())
}

func TestShellRunnerExitCode(t *testing.T) {
	r := NewShellRunner()
	result, err := r.Run(context.Background(), writeShellTask(t, "echo boom >&2\nexit 3"))
	require.NoError(t, err)
	assert.Equal(t, 3, result.ExitCode)
	assert.Equal(t, "boom\n", result.Stderr)
	assert.True(t, result.Failed())
}

func TestShellRunnerTimeout(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	r := NewShellRunner()
	result, err := r.Run(ctx, writeShellTask(t, "sleep 10"))
	require.NoError(t, err)
	assert.True(t, result.TimedOut)
	assert.True(t, result.Failed())
}

func TestShellRunnerParseErrorIsFailure(t *testing.T) {
	r := NewShellRunner()
	result, err := r.Run(context.Background(), writeShellTask(t, "if then fi oops"))
	require.NoError(t, err)
	assert.NotEqual(t, 0, result.ExitCode)
	assert.NotEmpty(t, result.Stderr)
}

func TestShellRunnerCorruptDocumentIsFailure(t *testing.T) {
	path := filepath.Join(t.TempDir(), "priority_50_t1.yaml")
	require.NoError(t, os.WriteFile(path, []byte(":\tnot yaml\n\t- ["), 0o644))

	r := NewShellRunner()
	result, err := r.Run(context.Background(), path)
	require.NoError(t, err)
	assert.NotEqual(t, 0, result.ExitCode)
}

func TestShellRunnerRawPayload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "priority_50_t1.sh")
	require.NoError(t, os.WriteFile(path, []byte("echo raw"), 0o644))

	r := NewShellRunner()
	result, err := r.Run(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, 0, result.ExitCode)
	assert.Equal(t, "raw\n", result.Stdout)
}
