// Package commandtest provides a scripted command.Executor for tests.
package commandtest

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/fulmenhq/convoy/internal/deployerr"
	"github.com/fulmenhq/convoy/pkg/command"
)

// Call is one recorded invocation together with its options
type Call struct {
	Argv    []string
	Options command.Options
}

// String renders the call's argv joined by spaces
func (c Call) String() string {
	return strings.Join(c.Argv, " ")
}

type rule struct {
	prefix []string
	output string
	err    error
	exit   int
}

// Fake answers commands from rules matched on argv prefixes. The longest
// matching prefix wins; among equal prefixes the most recent rule wins.
// Unmatched commands succeed with empty output.
type Fake struct {
	mu    sync.Mutex
	rules []rule
	calls []Call
}

// New returns an empty Fake
func New() *Fake {
	return &Fake{}
}

// Name returns the executor name
func (f *Fake) Name() string {
	return "fake"
}

// Respond makes commands starting with prefix return output
func (f *Fake) Respond(output string, prefix ...string) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rules = append(f.rules, rule{prefix: prefix, output: output})
	return f
}

// Fail makes commands starting with prefix exit with code and output
func (f *Fake) Fail(exitCode int, output string, prefix ...string) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rules = append(f.rules, rule{
		prefix: prefix,
		output: output,
		exit:   exitCode,
		err:    fmt.Errorf("exit status %d", exitCode),
	})
	return f
}

// Run records the call and answers it from the matching rule
func (f *Fake) Run(_ context.Context, argv []string, opts command.Options) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls = append(f.calls, Call{Argv: append([]string(nil), argv...), Options: opts})

	best := -1
	bestLen := -1
	for i, r := range f.rules {
		if hasPrefix(argv, r.prefix) && len(r.prefix) >= bestLen {
			best, bestLen = i, len(r.prefix)
		}
	}
	if best < 0 {
		return "", nil
	}
	r := f.rules[best]
	if r.err != nil {
		return "", &deployerr.ExternalCommandError{Argv: argv, ExitCode: r.exit, Output: r.output, Err: r.err}
	}
	if !opts.Buffer {
		return "", nil
	}
	if opts.Trim {
		return strings.TrimSpace(r.output), nil
	}
	return r.output, nil
}

// Calls returns every recorded call
func (f *Fake) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}

// Commands returns every recorded argv joined by spaces
func (f *Fake) Commands() []string {
	calls := f.Calls()
	out := make([]string, len(calls))
	for i, c := range calls {
		out[i] = c.String()
	}
	return out
}

// Ran reports whether any recorded command starts with prefix
func (f *Fake) Ran(prefix ...string) bool {
	for _, c := range f.Calls() {
		if hasPrefix(c.Argv, prefix) {
			return true
		}
	}
	return false
}

func hasPrefix(argv, prefix []string) bool {
	if len(prefix) > len(argv) {
		return false
	}
	for i := range prefix {
		if argv[i] != prefix[i] {
			return false
		}
	}
	return true
}
