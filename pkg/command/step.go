/*
Copyright © 2025 3 Leaps <info@3leaps.com>
*/
package command

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/fulmenhq/convoy/internal/deployerr"
)

// ErrDeclined is returned when the operator refuses a command in step mode
var ErrDeclined = errors.New("declined by operator")

var affirmative = regexp.MustCompile(`(?i)^\s*y`)

// StepExecutor asks for confirmation before each mutating command and only
// then defers to Inner. A refusal aborts the run.
type StepExecutor struct {
	Inner Executor
	In    *bufio.Reader
	Out   io.Writer
}

// NewStepExecutor wraps inner, reading answers from in and prompting on out
func NewStepExecutor(inner Executor, in io.Reader, out io.Writer) *StepExecutor {
	return &StepExecutor{Inner: inner, In: bufio.NewReader(in), Out: out}
}

// Name returns the executor name
func (e *StepExecutor) Name() string {
	return "step"
}

// Run prompts for argv and runs it on confirmation
func (e *StepExecutor) Run(ctx context.Context, argv []string, opts Options) (string, error) {
	if opts.ReadOnly {
		return e.Inner.Run(ctx, argv, opts)
	}

	fmt.Fprintf(e.Out, "Run `%s` [y/N]? ", strings.Join(argv, " "))
	answer, err := e.In.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", &deployerr.ExternalCommandError{Argv: argv, Err: fmt.Errorf("read confirmation: %w", err)}
	}
	if !affirmative.MatchString(answer) {
		return "", &deployerr.ExternalCommandError{Argv: argv, Err: ErrDeclined}
	}
	return e.Inner.Run(ctx, argv, opts)
}
