// Package store owns the on-disk queue layout and every state transition.
// A task's state is encoded purely by location under
// <base>/<type>_task/{ready,running,completed,error,cancelled}/ and all
// transitions are single renames, so the directory tree is the only source
// of truth and no separate index can drift from it. The atomicity guarantee
// requires the whole tree to live on one filesystem.
package store

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/kazz187/taskdir/internal/task"
	"github.com/kazz187/taskdir/pkg/cerr"
	"github.com/kazz187/taskdir/pkg/fsop"
)

type Store struct {
	base string
}

// New creates a Store rooted at base. The base directory is created if
// missing; per-type subtrees are created lazily on first access.
func New(base string) (*Store, error) {
	abs, err := filepath.Abs(base)
	if err != nil {
		return nil, cerr.NewError(cerr.InvalidArgument, "failed to resolve base path", err)
	}
	if err := fsop.EnsureDir(abs); err != nil {
		return nil, cerr.NewError(cerr.Internal, "failed to create base directory", err)
	}
	return &Store{base: abs}, nil
}

// Base returns the absolute queue root.
func (s *Store) Base() string {
	return s.base
}

// Dir returns the directory holding tasks of the given type and state.
func (s *Store) Dir(typeName string, state task.State) string {
	return filepath.Join(s.base, task.DirForType(typeName), string(state))
}

// Path returns the absolute path of a task file.
func (s *Store) Path(typeName string, state task.State, n task.Name) string {
	return filepath.Join(s.Dir(typeName, state), n.String())
}

// ensureLayout creates the five state directories for a type. Idempotent.
func (s *Store) ensureLayout(typeName string) error {
	for _, state := range task.States {
		if err := fsop.EnsureDir(s.Dir(typeName, state)); err != nil {
			return cerr.NewError(cerr.Internal, "failed to create queue layout", err)
		}
	}
	return nil
}

// List returns parsed task names in the given state, in lexicographic
// (priority-first) filename order. Files that do not match the task
// filename grammar are ignored; sibling artifacts such as logs live in the
// same directories.
func (s *Store) List(typeName string, state task.State) ([]task.Name, error) {
	if err := s.ensureLayout(typeName); err != nil {
		return nil, err
	}
	files, err := fsop.ListFiles(s.Dir(typeName, state))
	if err != nil {
		return nil, cerr.NewError(cerr.Internal, "failed to list queue directory", err)
	}
	var names []task.Name
	for _, f := range files {
		n, err := task.ParseName(f)
		if err != nil {
			continue
		}
		names = append(names, n)
	}
	return names, nil
}

// ListReady returns the claimable tasks of a type in claim order.
func (s *Store) ListReady(typeName string) ([]task.Name, error) {
	return s.List(typeName, task.StateReady)
}

// Claim atomically moves one ready task into running/ with the runner id
// spliced into the filename. Exactly one concurrent claimer can win: the
// rename fails with Conflict for everyone else because the source is gone.
// The returned path is the absolute running-state location the winner now
// exclusively owns.
func (s *Store) Claim(typeName string, n task.Name, runnerID string) (task.Name, string, error) {
	if err := s.ensureLayout(typeName); err != nil {
		return task.Name{}, "", err
	}
	claimed := n.Claimed(runnerID)
	src := s.Path(typeName, task.StateReady, n)
	dst := s.Path(typeName, task.StateRunning, claimed)
	if err := fsop.Rename(src, dst); err != nil {
		if errors.Is(err, fsop.ErrNotFound) {
			return task.Name{}, "", cerr.NewError(cerr.Conflict, "task claimed by another worker", err)
		}
		return task.Name{}, "", cerr.NewError(cerr.Internal, "failed to claim task", err)
	}
	return claimed, dst, nil
}

// Finalize moves a claimed task from running/ into a terminal state,
// stripping the runner id from the filename. Only the claim holder may call
// it.
func (s *Store) Finalize(typeName string, claimed task.Name, to task.State) (task.Name, error) {
	if !to.Terminal() {
		return task.Name{}, cerr.NewError(cerr.InvalidArgument, "finalize target must be terminal", fmt.Errorf("state %q", to))
	}
	final := claimed.Released()
	src := s.Path(typeName, task.StateRunning, claimed)
	dst := s.Path(typeName, to, final)
	if err := fsop.Rename(src, dst); err != nil {
		return task.Name{}, cerr.NewError(cerr.Internal, "failed to finalize task", err)
	}
	return final, nil
}

// Release moves a task from running/ back to ready/, stripping the runner
// id. Used by stale recovery; never called while the claiming worker is
// known to be alive.
func (s *Store) Release(typeName string, claimed task.Name) (task.Name, error) {
	released := claimed.Released()
	src := s.Path(typeName, task.StateRunning, claimed)
	dst := s.Path(typeName, task.StateReady, released)
	if err := fsop.Rename(src, dst); err != nil {
		if errors.Is(err, fsop.ErrNotFound) {
			return task.Name{}, cerr.NewError(cerr.Conflict, "task no longer in running", err)
		}
		return task.Name{}, cerr.NewError(cerr.Internal, "failed to release task", err)
	}
	return released, nil
}

// Cancel moves a still-ready task into cancelled/. A task that has already
// been claimed cannot be cancelled; the rename loses the race and reports
// Conflict.
func (s *Store) Cancel(typeName string, n task.Name) error {
	if err := s.ensureLayout(typeName); err != nil {
		return err
	}
	src := s.Path(typeName, task.StateReady, n)
	dst := s.Path(typeName, task.StateCancelled, n)
	if err := fsop.Rename(src, dst); err != nil {
		if errors.Is(err, fsop.ErrNotFound) {
			return cerr.NewError(cerr.Conflict, "task is not ready (already claimed or finished)", err)
		}
		return cerr.NewError(cerr.Internal, "failed to cancel task", err)
	}
	return nil
}
