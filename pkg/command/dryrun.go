/*
Copyright © 2025 3 Leaps <info@3leaps.com>
*/
package command

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/fulmenhq/convoy/pkg/logger"
)

// DryRunExecutor records mutating commands instead of running them. Read-only
// queries go to Inner so branch and tag resolution still see the real tree.
type DryRunExecutor struct {
	Inner Executor
	Out   io.Writer

	mu          sync.Mutex
	invocations []Invocation
}

// NewDryRunExecutor wraps inner; out receives one "would exec" line per command
func NewDryRunExecutor(inner Executor, out io.Writer) *DryRunExecutor {
	return &DryRunExecutor{Inner: inner, Out: out}
}

// Name returns the executor name
func (e *DryRunExecutor) Name() string {
	return "dry-run"
}

// Run records argv, or delegates it when opts.ReadOnly is set
func (e *DryRunExecutor) Run(ctx context.Context, argv []string, opts Options) (string, error) {
	if opts.ReadOnly && e.Inner != nil {
		return e.Inner.Run(ctx, argv, opts)
	}

	inv := newInvocation(argv, opts)
	e.mu.Lock()
	e.invocations = append(e.invocations, inv)
	e.mu.Unlock()

	logger.Debug("dry-run: skipped exec", logger.Strings("argv", argv), logger.String("dir", opts.Dir))
	if e.Out != nil {
		fmt.Fprintf(e.Out, "- dry-run, would exec `%s`\n", inv.String())
	}
	return "", nil
}

// Invocations returns the commands recorded so far
func (e *DryRunExecutor) Invocations() []Invocation {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Invocation(nil), e.invocations...)
}
