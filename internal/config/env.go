package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/kazz187/taskdir/pkg/cerr"
)

type Env struct {
	BaseDir       string        `envconfig:"BASE_DIR" default:".taskdir/queue"`
	RunnersConfig string        `envconfig:"RUNNERS_CONFIG" default:".taskdir/runners.yaml"`
	RunnersDir    string        `envconfig:"RUNNERS_DIR" default:".taskdir/runners"`
	ExecTimeout   time.Duration `envconfig:"EXEC_TIMEOUT" default:"5m"`
	StaleAfter    time.Duration `envconfig:"STALE_AFTER" default:"30m"`
	MaxRecoveries int           `envconfig:"MAX_RECOVERIES" default:"3"`
	LogLevel      string        `envconfig:"LOG_LEVEL" default:"info"`
	LogColor      bool          `envconfig:"LOG_COLOR" default:"true"`
}

const namespace = "TASKDIR"

func LoadEnv() (*Env, error) {
	var env Env
	if err := envconfig.Process(namespace, &env); err != nil {
		return nil, fmt.Errorf("failed to load env: %w", err)
	}
	if err := env.Validate(); err != nil {
		return nil, err
	}
	return &env, nil
}

// Validate enforces the relation between the execution timeout and the
// stale threshold: recovery must never reclaim a task whose runner may
// still be alive, so the threshold has to exceed the timeout with margin.
func (e *Env) Validate() error {
	if e.ExecTimeout <= 0 {
		return cerr.NewError(cerr.FailedPrecondition, "exec timeout must be positive", nil)
	}
	if e.StaleAfter <= e.ExecTimeout {
		return cerr.NewError(cerr.FailedPrecondition, "stale threshold must exceed exec timeout",
			fmt.Errorf("stale_after=%s exec_timeout=%s", e.StaleAfter, e.ExecTimeout))
	}
	if e.MaxRecoveries < 1 {
		return cerr.NewError(cerr.FailedPrecondition, "max recoveries must be at least 1", nil)
	}
	return nil
}

func (e *Env) SlogLevel() slog.Level {
	if e == nil {
		return slog.LevelDebug
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(e.LogLevel)); err != nil {
		return slog.LevelDebug
	}
	return level
}
