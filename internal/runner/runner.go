// Package runner defines the script runner contract and the registry the
// dispatcher resolves runners from. A runner receives the absolute path of
// a claimed task file, does the work, and reports an exit status; moving
// the file is the dispatcher's job so that every finalize goes through one
// place.
package runner

import (
	"context"
	"fmt"
	"sync"

	"github.com/kazz187/taskdir/pkg/cerr"
)

// Result is the outcome of one runner invocation. A non-zero exit code is
// a normal result, not a Go error; errors are reserved for failures to run
// at all.
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
	TimedOut bool
}

// Failed reports whether the invocation should finalize the task into
// error/.
func (r Result) Failed() bool {
	return r.ExitCode != 0 || r.TimedOut
}

// Runner executes one claimed task. Implementations may rewrite the task
// file's contents but must never move, rename or delete it.
type Runner interface {
	Run(ctx context.Context, taskPath string) (Result, error)
}

// Registry maps task types to runners. It is populated once at startup;
// dispatch only reads it.
type Registry struct {
	mu      sync.RWMutex
	runners map[string]Runner
}

func NewRegistry() *Registry {
	return &Registry{runners: map[string]Runner{}}
}

// Register binds a runner to a task type. Registering the same type twice
// is a configuration mistake and fails.
func (r *Registry) Register(typeName string, rn Runner) error {
	if typeName == "" || rn == nil {
		return cerr.NewError(cerr.InvalidArgument, "invalid runner registration", fmt.Errorf("type %q", typeName))
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.runners[typeName]; ok {
		return cerr.NewError(cerr.InvalidArgument, "runner already registered", fmt.Errorf("type %q", typeName))
	}
	r.runners[typeName] = rn
	return nil
}

// Resolve returns the runner for a task type.
func (r *Registry) Resolve(typeName string) (Runner, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rn, ok := r.runners[typeName]
	if !ok {
		return nil, cerr.NewError(cerr.NotFound, "no runner registered for task type", fmt.Errorf("type %q", typeName))
	}
	return rn, nil
}

// Types returns the registered task types.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]string, 0, len(r.runners))
	for t := range r.runners {
		types = append(types, t)
	}
	return types
}
