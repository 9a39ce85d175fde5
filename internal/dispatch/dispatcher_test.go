package dispatch

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/kazz187/taskdir/internal/runner"
	"github.com/kazz187/taskdir/internal/store"
	"github.com/kazz187/taskdir/internal/task"
	"github.com/kazz187/taskdir/pkg/cerr"
	"github.com/kazz187/taskdir/pkg/clog"
)

func newTestDispatcher(t *testing.T, timeout time.Duration) (*Dispatcher, *store.Store) {
	t.Helper()
	s, err := store.New(t.TempDir())
	require.NoError(t, err)
	reg := runner.NewRegistry()
	require.NoError(t, reg.SeedBuiltins())
	return New(s, reg, timeout), s
}

func readDoc(t *testing.T, path string) task.Document {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var doc task.Document
	require.NoError(t, yaml.Unmarshal(data, &doc))
	return doc
}

func TestDispatchCompletesSuccessfulTask(t *testing.T) {
	d, s := newTestDispatcher(t, time.Minute)

	id, n, err := s.CreateDocument("scripts", "echo ok", store.CreateOptions{})
	require.NoError(t, err)

	require.NoError(t, d.Dispatch(context.Background(), []string{"scripts_task"}))

	final := n.Released()
	completedPath := s.Path("scripts", task.StateCompleted, final)
	assert.FileExists(t, completedPath)

	logData, err := os.ReadFile(completedPath + ".log")
	require.NoError(t, err)
	assert.Contains(t, string(logData), "exit_code: 0")
	assert.Contains(t, string(logData), "ok\n")

	ready, err := s.ListReady("scripts")
	require.NoError(t, err)
	assert.Empty(t, ready, "task %s should have left ready", id)
}

func TestDispatchFailedTaskGoesToError(t *testing.T) {
	d, s := newTestDispatcher(t, time.Minute)

	_, n, err := s.CreateDocument("scripts", "echo boom >&2\nexit 1", store.CreateOptions{})
	require.NoError(t, err)

	err = d.Dispatch(context.Background(), []string{"scripts_task"})
	require.Error(t, err)

	final := n.Released()
	errorPath := s.Path("scripts", task.StateError, final)
	require.FileExists(t, errorPath)

	doc := readDoc(t, errorPath)
	assert.Contains(t, doc.Error, "exit code 1")
	require.NotNil(t, doc.FailedAt)

	logData, err := os.ReadFile(errorPath + ".log")
	require.NoError(t, err)
	assert.Contains(t, string(logData), "boom")
}

func TestDispatchTimeoutGoesToError(t *testing.T) {
	d, s := newTestDispatcher(t, 100*time.Millisecond)

	_, n, err := s.CreateDocument("scripts", "sleep 10", store.CreateOptions{})
	require.NoError(t, err)

	err = d.Dispatch(context.Background(), []string{"scripts_task"})
	require.Error(t, err)
	assert.True(t, cerr.IsCode(err, cerr.DeadlineExceeded))

	doc := readDoc(t, s.Path("scripts", task.StateError, n.Released()))
	assert.Equal(t, "execution timed out", doc.Error)
}

func TestDispatchEmptyQueueIsSuccess(t *testing.T) {
	d, _ := newTestDispatcher(t, time.Minute)
	require.NoError(t, d.Dispatch(context.Background(), []string{"scripts_task"}))
}

func TestDispatchOneTaskPerDirectory(t *testing.T) {
	d, s := newTestDispatcher(t, time.Minute)

	for i := 0; i < 3; i++ {
		_, _, err := s.CreateDocument("scripts", "echo ok", store.CreateOptions{})
		require.NoError(t, err)
	}

	require.NoError(t, d.Dispatch(context.Background(), []string{"scripts_task"}))

	ready, err := s.ListReady("scripts")
	require.NoError(t, err)
	assert.Len(t, ready, 2, "one dispatch invocation processes exactly one task")
}

func TestDispatchClaimsHighestPriorityFirst(t *testing.T) {
	d, s := newTestDispatcher(t, time.Minute)

	var urgent task.Name
	for _, p := range []int{5, 1, 3} {
		p := p
		_, n, err := s.CreateDocument("scripts", "echo ok", store.CreateOptions{Priority: &p})
		require.NoError(t, err)
		if p == 1 {
			urgent = n
		}
	}

	require.NoError(t, d.Dispatch(context.Background(), []string{"scripts_task"}))

	assert.FileExists(t, s.Path("scripts", task.StateCompleted, urgent.Released()))
	ready, err := s.ListReady("scripts")
	require.NoError(t, err)
	require.Len(t, ready, 2)
	for _, n := range ready {
		assert.NotEqual(t, 1, n.Priority)
	}
}

func TestDispatchMissingRunnerSkipsDirectoryOnly(t *testing.T) {
	d, s := newTestDispatcher(t, time.Minute)

	_, scriptName, err := s.CreateDocument("scripts", "echo ok", store.CreateOptions{})
	require.NoError(t, err)
	_, _, err = s.CreateDocument("applescript", "tell app", store.CreateOptions{})
	require.NoError(t, err)

	err = d.Dispatch(context.Background(), []string{"applescript_task", "scripts_task"})
	require.Error(t, err, "missing runner is a configuration error")

	// The directory with a registered runner was still processed.
	assert.FileExists(t, s.Path("scripts", task.StateCompleted, scriptName.Released()))

	// The unresolvable directory was left untouched.
	ready, err := s.ListReady("applescript")
	require.NoError(t, err)
	assert.Len(t, ready, 1)
}

func TestDispatchInvalidDirectoryName(t *testing.T) {
	d, _ := newTestDispatcher(t, time.Minute)
	err := d.Dispatch(context.Background(), []string{"scripts"})
	require.Error(t, err)
	assert.True(t, cerr.IsCode(err, cerr.InvalidArgument))
}

func TestDispatchLogRecordsCarryTaskAttributes(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(clog.NewAttributesHandler(slog.NewTextHandler(&buf, nil))))
	t.Cleanup(func() { slog.SetDefault(prev) })

	d, s := newTestDispatcher(t, time.Minute)
	id, _, err := s.CreateDocument("scripts", "exit 1", store.CreateOptions{})
	require.NoError(t, err)

	err = d.Dispatch(context.Background(), []string{"scripts_task"})
	require.Error(t, err)

	out := buf.String()
	assert.Contains(t, out, "task failed")
	assert.Contains(t, out, "type=scripts")
	assert.Contains(t, out, "task="+id)
}
