package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kingpin/v2"
	"github.com/fatih/color"

	"github.com/kazz187/taskdir/internal/config"
	"github.com/kazz187/taskdir/internal/dispatch"
	"github.com/kazz187/taskdir/internal/recovery"
	"github.com/kazz187/taskdir/internal/runner"
	"github.com/kazz187/taskdir/internal/store"
	"github.com/kazz187/taskdir/internal/task"
	"github.com/kazz187/taskdir/internal/watch"
	"github.com/kazz187/taskdir/pkg/clog"
)

var (
	app = kingpin.New("taskdir", "Filesystem-coordinated task queue and dispatcher")

	// Producer commands
	createCmd      = app.Command("create", "Create a new task in ready state")
	createType     = createCmd.Arg("type", "Task type").Required().String()
	createPriority = createCmd.Flag("priority", "Priority 0-99, lower runs first").Default("50").Int()
	createFile     = createCmd.Flag("file", "Read the payload from a file instead of stdin").Short('f').String()
	createRaw      = createCmd.Flag("raw", "Store the payload as-is instead of wrapping it in a task document").Bool()
	createExt      = createCmd.Flag("ext", "File extension for raw payloads").Default("txt").String()

	listCmd   = app.Command("list", "List tasks of a type")
	listType  = listCmd.Arg("type", "Task type").Required().String()
	listState = listCmd.Flag("state", "Task state to list").Default("ready").
			Enum("ready", "running", "completed", "error", "cancelled")

	cancelCmd  = app.Command("cancel", "Cancel a still-ready task")
	cancelType = cancelCmd.Arg("type", "Task type").Required().String()
	cancelID   = cancelCmd.Arg("id", "Task id").Required().String()

	// Worker commands
	dispatchCmd  = app.Command("dispatch", "Claim and run one ready task per queue directory")
	dispatchDirs = dispatchCmd.Flag("dir", "Queue directory, e.g. scripts_task (repeatable)").Short('d').Required().Strings()

	recoverCmd  = app.Command("recover", "Return stale running tasks to ready")
	recoverDirs = recoverCmd.Flag("dir", "Queue directory (repeatable)").Short('d').Required().Strings()

	watchCmd          = app.Command("watch", "Watch queue directories and dispatch as tasks arrive")
	watchDirs         = watchCmd.Flag("dir", "Queue directory (repeatable)").Short('d').Required().Strings()
	watchPoll         = watchCmd.Flag("poll", "Fallback dispatch interval").Default("30s").Duration()
	watchRecoverEvery = watchCmd.Flag("recover-every", "Stale recovery interval, 0 disables").Default("0").Duration()
)

func main() {
	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	env, err := config.LoadEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "taskdir: %v\n", err)
		os.Exit(1)
	}

	slog.SetDefault(slog.New(clog.NewAttributesHandler(clog.NewTextHandler(
		os.Stderr,
		clog.WithLevel(env.SlogLevel()),
		clog.WithColor(env.LogColor),
	))))

	color.NoColor = !env.LogColor

	st, err := store.New(env.BaseDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "taskdir: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx = clog.ContextWithSlog(ctx)

	switch command {
	case createCmd.FullCommand():
		err = handleCreate(st)
	case listCmd.FullCommand():
		err = handleList(st)
	case cancelCmd.FullCommand():
		err = handleCancel(st)
	case dispatchCmd.FullCommand():
		err = handleDispatch(ctx, st, env, *dispatchDirs)
	case recoverCmd.FullCommand():
		err = handleRecover(ctx, st, env, *recoverDirs)
	case watchCmd.FullCommand():
		err = handleWatch(ctx, st, env, *watchDirs)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "taskdir: %v\n", err)
		os.Exit(1)
	}
}

func handleCreate(st *store.Store) error {
	payload, err := readPayload(*createFile)
	if err != nil {
		return err
	}
	opts := store.CreateOptions{Priority: createPriority}
	var id string
	var n task.Name
	if *createRaw {
		opts.Ext = *createExt
		id, n, err = st.CreateTask(*createType, payload, opts)
	} else {
		id, n, err = st.CreateDocument(*createType, string(payload), opts)
	}
	if err != nil {
		return err
	}
	slog.Info("task created", "type", *createType, "task", id, "file", n.String())
	fmt.Println(id)
	return nil
}

func readPayload(file string) ([]byte, error) {
	if file == "" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(file)
}

func handleList(st *store.Store) error {
	state := task.State(*listState)
	names, err := st.List(*listType, state)
	if err != nil {
		return err
	}
	for _, n := range names {
		fmt.Printf("%-10s  %2d  %-26s  %s\n", colorState(state), n.Priority, n.ID, n.String())
	}
	return nil
}

func handleCancel(st *store.Store) error {
	names, err := st.ListReady(*cancelType)
	if err != nil {
		return err
	}
	for _, n := range names {
		if n.ID != *cancelID {
			continue
		}
		if err := st.Cancel(*cancelType, n); err != nil {
			return err
		}
		slog.Info("task cancelled", "type", *cancelType, "task", n.ID)
		return nil
	}
	return fmt.Errorf("task %s is not ready (already claimed, finished, or unknown)", *cancelID)
}

func handleDispatch(ctx context.Context, st *store.Store, env *config.Env, dirs []string) error {
	reg, err := buildRegistry(env)
	if err != nil {
		return err
	}
	return dispatch.New(st, reg, env.ExecTimeout).Dispatch(ctx, dirs)
}

func handleRecover(ctx context.Context, st *store.Store, env *config.Env, dirs []string) error {
	return recovery.New(st, env.StaleAfter, env.MaxRecoveries).Recover(ctx, dirs)
}

func handleWatch(ctx context.Context, st *store.Store, env *config.Env, dirs []string) error {
	reg, err := buildRegistry(env)
	if err != nil {
		return err
	}
	d := dispatch.New(st, reg, env.ExecTimeout)
	r := recovery.New(st, env.StaleAfter, env.MaxRecoveries)
	return watch.New(st, d, r, dirs, *watchPoll, *watchRecoverEvery).Run(ctx)
}

func colorState(s task.State) string {
	switch s {
	case task.StateReady:
		return color.New(color.FgBlue).Sprint(string(s))
	case task.StateRunning:
		return color.New(color.FgYellow).Sprint(string(s))
	case task.StateCompleted:
		return color.New(color.FgGreen).Sprint(string(s))
	case task.StateError:
		return color.New(color.FgRed).Sprint(string(s))
	default:
		return string(s)
	}
}

// buildRegistry seeds the runner registry from built-ins, the runners
// config file, and the convention scan of the runners directory, in that
// order.
func buildRegistry(env *config.Env) (*runner.Registry, error) {
	reg := runner.NewRegistry()
	if err := reg.SeedBuiltins(); err != nil {
		return nil, err
	}
	cfg, err := config.LoadRunners(env.RunnersConfig)
	if err != nil {
		return nil, err
	}
	if err := reg.SeedFromEntries(cfg.Runners); err != nil {
		return nil, err
	}
	if err := reg.SeedFromDir(env.RunnersDir); err != nil {
		return nil, err
	}
	return reg, nil
}
