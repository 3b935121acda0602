// Package runnertest provides a scripted runner.Runner for tests.
package runnertest

import (
	"context"
	"strings"
	"sync"

	"ApkDisguise/pkg/runner"
)

// Call records one invocation
type Call struct {
	Name string
	Args []string
}

// Key returns the name and args joined by spaces
func (c Call) Key() string {
	return strings.TrimSpace(c.Name + " " + strings.Join(c.Args, " "))
}

// Handler produces the outcome of a matched call
type Handler func(c Call) (runner.Result, error)

type rule struct {
	match   func(Call) bool
	handler Handler
}

// Fake matches calls against rules in registration order.
// Unmatched calls succeed with empty output.
type Fake struct {
	mu    sync.Mutex
	rules []rule
	calls []Call
}

// New creates an empty Fake
func New() *Fake {
	return &Fake{}
}

// On registers a handler for calls whose key contains substr
func (f *Fake) On(substr string, h Handler) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rules = append(f.rules, rule{
		match:   func(c Call) bool { return strings.Contains(c.Key(), substr) },
		handler: h,
	})
	return f
}

// Stdout registers a successful call printing out
func (f *Fake) Stdout(substr, out string) *Fake {
	return f.On(substr, func(Call) (runner.Result, error) {
		return runner.Result{ExitSuccess: true, Stdout: []byte(out)}, nil
	})
}

// Fail registers a call that exits non-zero with the given stderr
func (f *Fake) Fail(substr, stderr string) *Fake {
	return f.On(substr, func(Call) (runner.Result, error) {
		return runner.Result{Stderr: []byte(stderr)}, nil
	})
}

// LaunchFail registers a call whose executable cannot be started
func (f *Fake) LaunchFail(substr string, err error) *Fake {
	return f.On(substr, func(c Call) (runner.Result, error) {
		return runner.Result{}, &runner.LaunchError{Name: c.Name, Err: err}
	})
}

// Run implements runner.Runner
func (f *Fake) Run(ctx context.Context, name string, args ...string) (runner.Result, error) {
	c := Call{Name: name, Args: append([]string(nil), args...)}

	f.mu.Lock()
	f.calls = append(f.calls, c)
	rules := append([]rule(nil), f.rules...)
	f.mu.Unlock()

	for _, r := range rules {
		if r.match(c) {
			return r.handler(c)
		}
	}
	return runner.Result{ExitSuccess: true}, nil
}

// Calls returns every recorded call
func (f *Fake) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}

// Called reports whether any call key contains substr
func (f *Fake) Called(substr string) bool {
	for _, c := range f.Calls() {
		if strings.Contains(c.Key(), substr) {
			return true
		}
	}
	return false
}

// ArgAfter returns the argument following flag in c, or ""
func ArgAfter(c Call, flag string) string {
	for i, a := range c.Args {
		if a == flag && i+1 < len(c.Args) {
			return c.Args[i+1]
		}
	}
	return ""
}

var _ runner.Runner = (*Fake)(nil)
