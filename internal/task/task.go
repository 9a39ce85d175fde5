package task

import "time"

// State is where a task currently lives. A task's state is not a field in
// its payload; it is the queue subdirectory that holds the file.
type State string

const (
	StateReady     State = "ready"
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateError     State = "error"
	StateCancelled State = "cancelled"
)

// States lists every queue subdirectory in lifecycle order.
var States = []State{StateReady, StateRunning, StateCompleted, StateError, StateCancelled}

// Terminal reports whether a task in this state is immutable.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateError || s == StateCancelled
}

const (
	// DirSuffix is appended to a task type to form its queue directory name,
	// e.g. type "scripts" lives under "scripts_task".
	DirSuffix = "_task"

	// DefaultPriority is used when a producer does not care about ordering.
	DefaultPriority = 50
)

// Document is the structured task envelope, stored as YAML. Producers may
// enqueue opaque payload files instead; the bookkeeping fields are then
// unavailable, but nothing in the queue machinery depends on them.
type Document struct {
	ID         string     `yaml:"id"`
	Type       string     `yaml:"type"`
	Payload    string     `yaml:"payload"`
	CreatedAt  time.Time  `yaml:"created_at"`
	RetryCount int        `yaml:"retry_count"`
	Error      string     `yaml:"error,omitempty"`
	FailedAt   *time.Time `yaml:"failed_at,omitempty"`
}
