// Package commandtest provides a scripted command.Runner for tests.
package commandtest

import (
	"context"
	"sync"

	"transcript-studio/internal/command"
)

// Call records one invocation.
type Call struct {
	Name string
	Args []string
}

// Runner delegates to Fn and records every call.
type Runner struct {
	Fn func(ctx context.Context, name string, args ...string) (command.Result, error)

	mu    sync.Mutex
	calls []Call
}

// Run records the call and delegates to Fn.
func (r *Runner) Run(ctx context.Context, name string, args ...string) (command.Result, error) {
	r.mu.Lock()
	r.calls = append(r.calls, Call{Name: name, Args: append([]string(nil), args...)})
	r.mu.Unlock()

	if r.Fn == nil {
		return command.Result{}, nil
	}
	return r.Fn(ctx, name, args...)
}

// Calls returns a copy of the recorded invocations.
func (r *Runner) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Call(nil), r.calls...)
}

// ArgValue returns the value following key in args.
func ArgValue(args []string, key string) string {
	for i := 0; i < len(args)-1; i++ {
		if args[i] == key {
			return args[i+1]
		}
	}
	return ""
}

// HasArg reports whether args include the flag.
func HasArg(args []string, key string) bool {
	for _, arg := range args {
		if arg == key {
			return true
		}
	}
	return false
}
