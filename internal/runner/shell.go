package runner

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"

	"mvdan.cc/sh/v3/expand"
	"mvdan.cc/sh/v3/interp"
	"mvdan.cc/sh/v3/syntax"

	"github.com/kazz187/taskdir/internal/task"
	"github.com/kazz187/taskdir/pkg/cerr"
)

// ShellType is the task type handled by the built-in shell runner.
const ShellType = "scripts"

// ShellRunner executes shell payloads in-process with the mvdan.cc/sh
// interpreter, so a `scripts` task needs no external runner binary. For
// structured task documents the embedded payload field is executed; opaque
// files run as-is.
type ShellRunner struct{}

func NewShellRunner() *ShellRunner {
	return &ShellRunner{}
}

func (r *ShellRunner) Run(ctx context.Context, taskPath string) (Result, error) {
	payload, err := task.ReadPayload(taskPath)
	if err != nil {
		// A payload the runner cannot parse is an execution failure, not a
		// dispatcher-level error.
		return Result{ExitCode: 1, Stderr: err.Error()}, nil
	}

	file, err := syntax.NewParser().Parse(strings.NewReader(payload), filepath.Base(taskPath))
	if err != nil {
		return Result{ExitCode: 1, Stderr: err.Error()}, nil
	}

	var stdout, stderr bytes.Buffer
	sh, err := interp.New(
		interp.StdIO(strings.NewReader(""), &stdout, &stderr),
		interp.Env(expand.ListEnviron(append(os.Environ(), "TASKDIR_TASK_PATH="+taskPath)...)),
	)
	if err != nil {
		return Result{}, cerr.NewError(cerr.Internal, "failed to create shell interpreter", err)
	}

	runErr := sh.Run(ctx, file)
	result := Result{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		TimedOut: errors.Is(ctx.Err(), context.DeadlineExceeded),
	}
	if runErr != nil {
		if status, ok := interp.IsExitStatus(runErr); ok {
			result.ExitCode = int(status)
			return result, nil
		}
		if result.TimedOut {
			result.ExitCode = -1
			return result, nil
		}
		result.ExitCode = 1
		result.Stderr = result.Stderr + runErr.Error() + "\n"
		return result, nil
	}
	return result, nil
}
