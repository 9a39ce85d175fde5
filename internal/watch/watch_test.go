package watch

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kazz187/taskdir/internal/dispatch"
	"github.com/kazz187/taskdir/internal/recovery"
	"github.com/kazz187/taskdir/internal/runner"
	"github.com/kazz187/taskdir/internal/store"
	"github.com/kazz187/taskdir/internal/task"
)

func TestWatchDispatchesNewTask(t *testing.T) {
	s, err := store.New(t.TempDir())
	require.NoError(t, err)
	reg := runner.NewRegistry()
	require.NoError(t, reg.SeedBuiltins())
	d := dispatch.New(s, reg, time.Minute)
	r := recovery.New(s, 30*time.Minute, 3)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Short poll so the test does not depend on fsnotify delivery timing.
	w := New(s, d, r, []string{"scripts_task"}, 100*time.Millisecond, 0)
	done := make(chan error, 1)
	go func() {
		done <- w.Run(ctx)
	}()

	// Give the watcher a moment to set up, then enqueue.
	time.Sleep(200 * time.Millisecond)
	_, n, err := s.CreateDocument("scripts", "echo ok", store.CreateOptions{})
	require.NoError(t, err)

	completed := s.Path("scripts", task.StateCompleted, n.Released())
	require.Eventually(t, func() bool {
		names, err := s.List("scripts", task.StateCompleted)
		return err == nil && len(names) == 1
	}, 5*time.Second, 50*time.Millisecond, "task was not dispatched: %s", completed)

	cancel()
	require.NoError(t, <-done)
}

func TestWatchRejectsInvalidDirectory(t *testing.T) {
	s, err := store.New(t.TempDir())
	require.NoError(t, err)
	reg := runner.NewRegistry()
	require.NoError(t, reg.SeedBuiltins())
	d := dispatch.New(s, reg, time.Minute)
	r := recovery.New(s, 30*time.Minute, 3)

	w := New(s, d, r, []string{"not-a-queue"}, time.Second, 0)
	require.Error(t, w.Run(context.Background()))
}
