// Package watch runs a long-lived dispatch loop for deployments without an
// external scheduler: fsnotify events on the ready/ directories trigger a
// dispatch pass, a poll ticker catches anything events miss, and an
// optional ticker runs stale recovery.
package watch

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/kazz187/taskdir/internal/dispatch"
	"github.com/kazz187/taskdir/internal/recovery"
	"github.com/kazz187/taskdir/internal/store"
	"github.com/kazz187/taskdir/internal/task"
	"github.com/kazz187/taskdir/pkg/cerr"
)

// DebounceInterval is the settle time after an fsnotify event before a
// dispatch pass fires. Atomic creation produces a write followed by a
// rename; one pass is enough for both.
const DebounceInterval = 100 * time.Millisecond

type Watcher struct {
	store        *store.Store
	dispatcher   *dispatch.Dispatcher
	recoverer    *recovery.Recoverer
	dirs         []string
	poll         time.Duration
	recoverEvery time.Duration
}

// New builds a watcher over the given queue directories. poll is the
// fallback dispatch interval; recoverEvery of zero disables the inline
// recovery pass.
func New(s *store.Store, d *dispatch.Dispatcher, r *recovery.Recoverer, dirs []string, poll, recoverEvery time.Duration) *Watcher {
	return &Watcher{
		store:        s,
		dispatcher:   d,
		recoverer:    r,
		dirs:         dirs,
		poll:         poll,
		recoverEvery: recoverEvery,
	}
}

// Run blocks until ctx is cancelled. Task-level failures are logged and do
// not stop the loop; only setup problems (bad directory names, watcher
// creation) are fatal.
func (w *Watcher) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return cerr.NewError(cerr.Internal, "failed to create fsnotify watcher", err)
	}
	defer watcher.Close()

	// Map each watched ready/ directory back to its queue directory name.
	readyToDir := make(map[string]string, len(w.dirs))
	for _, dir := range w.dirs {
		typeName, err := task.TypeFromDir(filepath.Base(dir))
		if err != nil {
			return err
		}
		// Listing creates the layout, so the watch target exists.
		if _, err := w.store.ListReady(typeName); err != nil {
			return err
		}
		readyDir := w.store.Dir(typeName, task.StateReady)
		if err := watcher.Add(readyDir); err != nil {
			return cerr.NewError(cerr.Internal, "failed to watch ready directory", err)
		}
		readyToDir[readyDir] = dir
		slog.Info("watching queue", "dir", dir, "ready", readyDir)
	}

	kickCh := make(chan string, len(w.dirs))
	debounce := make(map[string]*time.Timer, len(w.dirs))

	poll := w.poll
	if poll <= 0 {
		poll = 30 * time.Second
	}
	pollTicker := time.NewTicker(poll)
	defer pollTicker.Stop()

	var recoverCh <-chan time.Time
	if w.recoverEvery > 0 {
		recoverTicker := time.NewTicker(w.recoverEvery)
		defer recoverTicker.Stop()
		recoverCh = recoverTicker.C
	}

	// One pass up front so tasks created before startup are not stuck
	// waiting for the first tick.
	w.dispatchPass(ctx, w.dirs)

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			// A new ready task lands as Create (atomic rename) and the
			// recovery pass moves files back in the same way.
			if event.Op&(fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			readyDir := filepath.Dir(event.Name)
			dir, ok := readyToDir[readyDir]
			if !ok {
				continue
			}
			if timer, ok := debounce[dir]; ok {
				timer.Stop()
			}
			debounce[dir] = time.AfterFunc(DebounceInterval, func() {
				select {
				case kickCh <- dir:
				default:
				}
			})

		case dir := <-kickCh:
			w.dispatchPass(ctx, []string{dir})

		case <-pollTicker.C:
			w.dispatchPass(ctx, w.dirs)

		case <-recoverCh:
			if err := w.recoverer.Recover(ctx, w.dirs); err != nil {
				slog.Error("recovery pass failed", "error", err)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Error("fsnotify error", "error", err)

		case <-ctx.Done():
			return nil
		}
	}
}

func (w *Watcher) dispatchPass(ctx context.Context, dirs []string) {
	if err := w.dispatcher.Dispatch(ctx, dirs); err != nil {
		slog.Error("dispatch pass failed", "error", err)
	}
}
