package task

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/kazz187/taskdir/pkg/cerr"
)

// Filename grammar:
//
//	ready/terminal: priority_<NN>_<id>.<ext>
//	running:        priority_<NN>_<id>.<runner_id>.<ext>
//
// The priority is zero-padded to two digits so that lexicographic directory
// order equals numeric priority order (lower value sorts, and runs, first).

const (
	priorityPrefix = "priority_"
	minPriority    = 0
	maxPriority    = 99
)

// Name is a parsed task filename.
type Name struct {
	Priority int
	ID       string
	RunnerID string // empty unless the task is claimed
	Ext      string
}

// String renders the name back into its filename form.
func (n Name) String() string {
	if n.RunnerID != "" {
		return fmt.Sprintf("%s%02d_%s.%s.%s", priorityPrefix, n.Priority, n.ID, n.RunnerID, n.Ext)
	}
	return fmt.Sprintf("%s%02d_%s.%s", priorityPrefix, n.Priority, n.ID, n.Ext)
}

// Claimed returns the running-state variant of the name with the runner id
// inserted before the extension.
func (n Name) Claimed(runnerID string) Name {
	n.RunnerID = runnerID
	return n
}

// Released returns the name with the runner id stripped, as it appears in
// ready and terminal directories.
func (n Name) Released() Name {
	n.RunnerID = ""
	return n
}

// ClampPriority forces p into [0, 99].
func ClampPriority(p int) int {
	if p < minPriority {
		return minPriority
	}
	if p > maxPriority {
		return maxPriority
	}
	return p
}

// ParseName parses a task filename in either ready or running form.
func ParseName(s string) (Name, error) {
	rest, ok := strings.CutPrefix(s, priorityPrefix)
	if !ok {
		return Name{}, cerr.NewError(cerr.InvalidArgument, "task filename missing priority prefix", fmt.Errorf("parse %q", s))
	}
	digits, rest, ok := strings.Cut(rest, "_")
	if !ok || len(digits) != 2 {
		return Name{}, cerr.NewError(cerr.InvalidArgument, "task filename has malformed priority", fmt.Errorf("parse %q", s))
	}
	priority, err := strconv.Atoi(digits)
	if err != nil {
		return Name{}, cerr.NewError(cerr.InvalidArgument, "task filename has non-numeric priority", fmt.Errorf("parse %q: %w", s, err))
	}

	parts := strings.Split(rest, ".")
	switch len(parts) {
	case 2:
		return Name{Priority: priority, ID: parts[0], Ext: parts[1]}, nil
	case 3:
		return Name{Priority: priority, ID: parts[0], RunnerID: parts[1], Ext: parts[2]}, nil
	default:
		return Name{}, cerr.NewError(cerr.InvalidArgument, "task filename has malformed id/extension", fmt.Errorf("parse %q", s))
	}
}

// TypeFromDir derives the task type from a queue directory name by
// stripping the fixed suffix, e.g. "scripts_task" -> "scripts".
func TypeFromDir(dir string) (string, error) {
	typeName, ok := strings.CutSuffix(dir, DirSuffix)
	if !ok || typeName == "" {
		return "", cerr.NewError(cerr.InvalidArgument, "not a task directory", fmt.Errorf("directory %q must end with %q", dir, DirSuffix))
	}
	return typeName, nil
}

// DirForType is the inverse of TypeFromDir.
func DirForType(typeName string) string {
	return typeName + DirSuffix
}
