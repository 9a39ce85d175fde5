package runner

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/kazz187/taskdir/pkg/cerr"
)

// killDelay is how long Wait may block on lingering pipe readers after the
// process group has been killed.
const killDelay = 5 * time.Second

// ExecRunner invokes an external executable as
// <command> [args...] <absolute task path>. The child gets its own process
// group so that a timeout kills the whole subtree, not just the immediate
// process.
type ExecRunner struct {
	Command string
	Args    []string
}

func NewExecRunner(command string, args ...string) *ExecRunner {
	return &ExecRunner{Command: command, Args: args}
}

func (r *ExecRunner) Run(ctx context.Context, taskPath string) (Result, error) {
	args := append(append([]string{}, r.Args...), taskPath)
	cmd := exec.CommandContext(ctx, r.Command, args...)
	cmd.Env = append(os.Environ(), "TASKDIR_TASK_PATH="+taskPath)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.WaitDelay = killDelay
	cmd.Cancel = func() error {
		// Negative pid signals the whole process group.
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}

	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return Result{}, cerr.NewError(cerr.Internal, "failed to create stdout pipe", err)
	}
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return Result{}, cerr.NewError(cerr.Internal, "failed to create stderr pipe", err)
	}

	if err := cmd.Start(); err != nil {
		return Result{}, cerr.NewError(cerr.ExecFailed, "failed to start runner", err)
	}

	var stdout, stderr bytes.Buffer
	var wg sync.WaitGroup
	wg.Add(2)
	go drainLines(&wg, stdoutPipe, &stdout)
	go drainLines(&wg, stderrPipe, &stderr)
	wg.Wait()

	cmdErr := cmd.Wait()
	result := Result{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		TimedOut: errors.Is(ctx.Err(), context.DeadlineExceeded),
	}
	if cmdErr != nil {
		var exitErr *exec.ExitError
		if errors.As(cmdErr, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
			return result, nil
		}
		if result.TimedOut {
			result.ExitCode = -1
			return result, nil
		}
		return result, cerr.NewError(cerr.ExecFailed, "runner failed", cmdErr)
	}
	return result, nil
}

// drainLines copies a pipe line by line into buf until the child closes it.
// A scan failure (a line beyond the buffer limit) stops the capture for
// that stream, so the remainder is marked as truncated rather than silently
// dropped.
func drainLines(wg *sync.WaitGroup, pipe io.ReadCloser, buf *bytes.Buffer) {
	defer wg.Done()
	scanner := bufio.NewScanner(pipe)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		buf.WriteString(scanner.Text())
		buf.WriteByte('\n')
	}
	if err := scanner.Err(); err != nil {
		fmt.Fprintf(buf, "[output truncated: %v]\n", err)
		// Keep consuming so the child never blocks on a full pipe.
		_, _ = io.Copy(io.Discard, pipe)
	}
}
