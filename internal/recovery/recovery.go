// Package recovery rehabilitates tasks stranded in running/ by crashed or
// killed workers. It runs as its own scheduled pass, never inline with
// dispatch: its correctness rests on the stale threshold exceeding the
// execution timeout, so that no live runner can still be touching a file
// it reclaims.
package recovery

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/kazz187/taskdir/internal/store"
	"github.com/kazz187/taskdir/internal/task"
	"github.com/kazz187/taskdir/pkg/cerr"
)

type Recoverer struct {
	store         *store.Store
	staleAfter    time.Duration
	maxRecoveries int
}

func New(s *store.Store, staleAfter time.Duration, maxRecoveries int) *Recoverer {
	return &Recoverer{
		store:         s,
		staleAfter:    staleAfter,
		maxRecoveries: maxRecoveries,
	}
}

// Recover scans each queue directory for stale running tasks and moves them
// back to ready/ with the runner id stripped and retry_count incremented.
// A task whose retry count exceeds the limit goes to error/ instead of
// looping forever. Running the pass twice is a no-op: already-recovered
// tasks are simply absent from running/.
func (r *Recoverer) Recover(ctx context.Context, dirs []string) error {
	var firstErr error
	for _, dir := range dirs {
		if err := r.recoverDir(ctx, dir); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (r *Recoverer) recoverDir(ctx context.Context, dir string) error {
	typeName, err := task.TypeFromDir(filepath.Base(dir))
	if err != nil {
		slog.ErrorContext(ctx, "invalid queue directory", "dir", dir, "error", err)
		return err
	}

	names, err := r.store.List(typeName, task.StateRunning)
	if err != nil {
		return err
	}

	cutoff := time.Now().Add(-r.staleAfter)
	for _, n := range names {
		path := r.store.Path(typeName, task.StateRunning, n)
		info, err := os.Stat(path)
		if err != nil {
			// Finalized or recovered since the listing. Nothing to do.
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		staleAt := info.ModTime()

		count, err := task.IncrementRetry(path)
		if err != nil {
			slog.WarnContext(ctx, "failed to bump retry count", "type", typeName, "task", n.ID, "error", err)
		}

		if count > r.maxRecoveries {
			if err := task.AnnotateFailure(path, "retry limit exceeded", time.Now().UTC()); err != nil {
				slog.WarnContext(ctx, "failed to annotate task payload", "type", typeName, "task", n.ID, "error", err)
			}
			final, err := r.store.Finalize(typeName, n, task.StateError)
			if err != nil {
				slog.ErrorContext(ctx, "failed to fail stale task", "type", typeName, "task", n.ID, "error", err)
				restoreMtime(path, staleAt)
				continue
			}
			slog.WarnContext(ctx, "stale task exceeded retry limit", "type", typeName, "task", final.ID, "retry_count", count)
			continue
		}

		released, err := r.store.Release(typeName, n)
		if err != nil {
			if cerr.IsCode(err, cerr.Conflict) {
				continue
			}
			slog.ErrorContext(ctx, "failed to recover stale task", "type", typeName, "task", n.ID, "error", err)
			restoreMtime(path, staleAt)
			continue
		}
		slog.InfoContext(ctx, "stale task recovered", "type", typeName, "task", released.ID, "retry_count", count)
	}
	return nil
}

// restoreMtime puts the pre-recovery mtime back on a task whose move out of
// running/ failed. Rewriting the payload refreshed the mtime, and without
// the restore the next pass would not see the task as stale for another
// full stale window.
func restoreMtime(path string, mtime time.Time) {
	if err := os.Chtimes(path, time.Time{}, mtime); err != nil {
		slog.Warn("failed to restore task mtime", "path", path, "error", err)
	}
}
