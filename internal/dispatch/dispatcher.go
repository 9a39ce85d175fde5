// Package dispatch implements the type-agnostic task checker: claim one
// ready task per queue directory, hand it to the matching runner, finalize
// by location. One invocation does at most one task per directory; cadence
// and concurrency are the scheduler's business.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/sourcegraph/conc/pool"

	"github.com/kazz187/taskdir/internal/runner"
	"github.com/kazz187/taskdir/internal/store"
	"github.com/kazz187/taskdir/internal/task"
	"github.com/kazz187/taskdir/pkg/cerr"
	"github.com/kazz187/taskdir/pkg/clog"
	"github.com/kazz187/taskdir/pkg/fsop"
	"github.com/kazz187/taskdir/pkg/panicerr"
)

type Dispatcher struct {
	store    *store.Store
	registry *runner.Registry
	timeout  time.Duration
}

func New(s *store.Store, reg *runner.Registry, timeout time.Duration) *Dispatcher {
	return &Dispatcher{
		store:    s,
		registry: reg,
		timeout:  timeout,
	}
}

// Dispatch processes each named queue directory once. Directories touch
// disjoint subtrees, so they run concurrently. The returned error joins
// per-directory failures; a failure in one directory never stops the
// others.
func (d *Dispatcher) Dispatch(ctx context.Context, dirs []string) error {
	p := pool.New().WithErrors()
	for _, dir := range dirs {
		p.Go(panicerr.Safe(func() error {
			return d.dispatchDir(ctx, dir)
		}))
	}
	return p.Wait()
}

// dispatchDir claims and runs at most one task from one queue directory.
// Zero ready tasks is the common case and returns nil.
func (d *Dispatcher) dispatchDir(ctx context.Context, dir string) error {
	// Each directory gets its own attribute bag so records from this point
	// on carry the type (and later the task id) without repeating them at
	// every call site.
	ctx = clog.ContextWithSlog(ctx)

	typeName, err := task.TypeFromDir(filepath.Base(dir))
	if err != nil {
		clog.AddError(ctx, err)
		slog.ErrorContext(ctx, "invalid queue directory", "dir", dir)
		return err
	}
	clog.AddAttribute(ctx, "type", typeName)

	rn, err := d.registry.Resolve(typeName)
	if err != nil {
		// Configuration error for this directory only.
		clog.AddError(ctx, err)
		slog.ErrorContext(ctx, "no runner for task type")
		return err
	}

	runnerID := ulid.Make().String()
	claimed, claimedPath, err := d.claimNext(ctx, typeName, runnerID)
	if err != nil {
		return err
	}
	if claimedPath == "" {
		slog.DebugContext(ctx, "no ready tasks")
		return nil
	}
	clog.AddAttribute(ctx, "task", claimed.ID)
	slog.InfoContext(ctx, "task claimed", "runner_id", runnerID)

	runCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	result, runErr := rn.Run(runCtx, claimedPath)
	if runErr != nil {
		// The runner could not be executed at all. The task still has to
		// leave running/, and the invocation reports the failure.
		result = runner.Result{ExitCode: -1, Stderr: runErr.Error()}
	}

	final, state, finErr := d.finalize(ctx, typeName, claimed, claimedPath, result)
	if finErr != nil {
		clog.AddError(ctx, finErr)
		slog.ErrorContext(ctx, "failed to finalize task")
		return finErr
	}

	switch {
	case runErr != nil:
		clog.AddError(ctx, runErr)
		slog.ErrorContext(ctx, "runner failed to execute")
		return runErr
	case result.TimedOut:
		slog.WarnContext(ctx, "task timed out", "timeout", d.timeout)
		return cerr.NewError(cerr.DeadlineExceeded, "task execution timed out", fmt.Errorf("task %s", final.ID))
	case result.Failed():
		slog.WarnContext(ctx, "task failed", "exit_code", result.ExitCode)
		return cerr.NewError(cerr.ExecFailed, "task execution failed", fmt.Errorf("task %s exit code %d", final.ID, result.ExitCode))
	default:
		slog.InfoContext(ctx, "task completed", "state", string(state))
		return nil
	}
}

// claimNext walks the ready tasks in priority order until one rename wins.
// Losing a claim race is expected under concurrent invocations and is
// never surfaced as an error; an empty path means nothing was claimable.
func (d *Dispatcher) claimNext(ctx context.Context, typeName, runnerID string) (task.Name, string, error) {
	names, err := d.store.ListReady(typeName)
	if err != nil {
		return task.Name{}, "", err
	}
	for _, n := range names {
		claimed, path, err := d.store.Claim(typeName, n, runnerID)
		if err != nil {
			if cerr.IsCode(err, cerr.Conflict) {
				slog.DebugContext(ctx, "claim lost, trying next", "task", n.ID)
				continue
			}
			return task.Name{}, "", err
		}
		return claimed, path, nil
	}
	return task.Name{}, "", nil
}

// finalize annotates a failed structured payload while the task is still
// exclusively owned, moves the file into its terminal directory, and drops
// the log artifact beside it.
func (d *Dispatcher) finalize(ctx context.Context, typeName string, claimed task.Name, claimedPath string, result runner.Result) (task.Name, task.State, error) {
	state := task.StateCompleted
	if result.Failed() {
		state = task.StateError
		summary := failureSummary(result)
		if err := task.AnnotateFailure(claimedPath, summary, time.Now().UTC()); err != nil {
			slog.WarnContext(ctx, "failed to annotate task payload", "error", err)
		}
	}

	final, err := d.store.Finalize(typeName, claimed, state)
	if err != nil {
		return task.Name{}, "", err
	}

	logPath := d.store.Path(typeName, state, final) + ".log"
	if err := fsop.WriteFileAtomic(logPath, logArtifact(result), 0o644); err != nil {
		slog.WarnContext(ctx, "failed to write log artifact", "error", err)
	}
	return final, state, nil
}

func failureSummary(result runner.Result) string {
	if result.TimedOut {
		return "execution timed out"
	}
	return fmt.Sprintf("exit code %d: %s", result.ExitCode, firstLine(result.Stderr))
}

func firstLine(s string) string {
	for i, r := range s {
		if r == '\n' {
			return s[:i]
		}
	}
	return s
}

func logArtifact(result runner.Result) []byte {
	return fmt.Appendf(nil,
		"exit_code: %d\ntimed_out: %t\n--- stdout ---\n%s--- stderr ---\n%s",
		result.ExitCode, result.TimedOut, result.Stdout, result.Stderr)
}
