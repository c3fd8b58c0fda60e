package script

import (
	"context"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"go.starlark.net/starlark"

	"github.com/tabulark/tabulark/pkg/table"
)

const (
	// DefaultBudget is the wall-clock budget applied when the caller
	// passes none.
	DefaultBudget = 10 * time.Second

	// DefaultMaxSteps bounds interpreter work independently of wall
	// time, so a tight loop on a loaded host still stops.
	DefaultMaxSteps = 10_000_000
)

// Executor runs accepted snippets in a restricted namespace. Each call
// builds a fresh thread and a fresh predeclared environment; nothing
// carries over between executions.
type Executor struct {
	maxSteps uint64
	logger   zerolog.Logger
}

// NewExecutor creates an executor. maxSteps of zero selects the default.
func NewExecutor(maxSteps uint64, logger zerolog.Logger) *Executor {
	if maxSteps == 0 {
		maxSteps = DefaultMaxSteps
	}
	return &Executor{
		maxSteps: maxSteps,
		logger:   logger.With().Str("component", "sandbox").Logger(),
	}
}

// Execute runs code against the named tables within budget and returns
// the value bound to the result name. Failures come back as
// *TimeoutError or *RuntimeError.
func (e *Executor) Execute(ctx context.Context, code string, tables map[string]*table.Table, budget time.Duration) (interface{}, error) {
	if budget <= 0 {
		budget = DefaultBudget
	}
	start := time.Now()

	thread := &starlark.Thread{
		Name: "sandbox",
		Print: func(_ *starlark.Thread, _ string) {
			// Output channels do not exist inside the sandbox.
		},
	}
	thread.SetMaxExecutionSteps(e.maxSteps)

	predeclared := buildPredeclared(tables)

	var canceled atomic.Bool
	timer := time.AfterFunc(budget, func() {
		canceled.Store(true)
		thread.Cancel("time budget exceeded")
	})
	defer timer.Stop()

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			canceled.Store(true)
			thread.Cancel("canceled")
		case <-stop:
		}
	}()

	globals, execErr := starlark.ExecFile(thread, "snippet.star", code, predeclared)
	elapsed := time.Since(start)

	if execErr != nil {
		if canceled.Load() || isStepLimit(execErr) {
			e.logger.Warn().
				Dur("elapsed", elapsed).
				Dur("budget", budget).
				Msg("Execution aborted on budget")
			return nil, &TimeoutError{Budget: budget}
		}
		msg := execErr.Error()
		if evalErr, ok := execErr.(*starlark.EvalError); ok {
			msg = evalErr.Msg
		}
		e.logger.Debug().
			Dur("elapsed", elapsed).
			Str("error", msg).
			Msg("Execution failed")
		return nil, &RuntimeError{Message: msg}
	}

	bound, ok := globals[resultName]
	if !ok {
		return nil, &RuntimeError{Message: "no result was bound"}
	}

	value, err := fromStarlark(bound)
	if err != nil {
		return nil, &RuntimeError{Message: err.Error()}
	}

	e.logger.Debug().
		Dur("elapsed", elapsed).
		Msg("Execution completed")
	return value, nil
}

// buildPredeclared assembles the execution namespace: the bound tables
// and explicit denials shadowing the reflective universe builtins. The
// validator already rejects calls to these, the shadowing is a second
// fence.
func buildPredeclared(tables map[string]*table.Table) starlark.StringDict {
	predeclared := make(starlark.StringDict, len(tables)+4)
	for name, tbl := range tables {
		predeclared[name] = wrapTable(tbl)
	}
	for _, name := range []string{"getattr", "setattr", "hasattr", "dir"} {
		predeclared[name] = blockedBuiltin(name)
	}
	return predeclared
}

func blockedBuiltin(name string) *starlark.Builtin {
	return starlark.NewBuiltin(name, func(_ *starlark.Thread, b *starlark.Builtin, _ starlark.Tuple, _ []starlark.Tuple) (starlark.Value, error) {
		return nil, &RuntimeError{Message: b.Name() + " is not available in the sandbox"}
	})
}

func isStepLimit(err error) bool {
	return strings.Contains(err.Error(), "too many steps")
}
