/*
Copyright © 2025 3 Leaps <info@3leaps.com>
*/
package command

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"

	"github.com/fulmenhq/convoy/internal/deployerr"
	"github.com/fulmenhq/convoy/pkg/logger"
)

const (
	stdoutPrefix = "-> "
	stderrPrefix = "!> "

	// maxErrorOutput bounds how much captured output an error carries
	maxErrorOutput = 4096
)

// LocalExecutor runs commands on the local system via os/exec
type LocalExecutor struct {
	// Stream receives prefixed output when Options.Log is set
	Stream io.Writer

	// Environ supplies the inherited environment; defaults to os.Environ
	Environ func() []string
}

// NewLocalExecutor creates a LocalExecutor streaming to stderr
func NewLocalExecutor() *LocalExecutor {
	return &LocalExecutor{Stream: os.Stderr, Environ: environ}
}

// Name returns the executor name
func (e *LocalExecutor) Name() string {
	return "local"
}

// Run executes argv and waits for it to complete
func (e *LocalExecutor) Run(ctx context.Context, argv []string, opts Options) (string, error) {
	if len(argv) == 0 {
		return "", &deployerr.ExternalCommandError{Err: errors.New("empty command")}
	}

	path, err := exec.LookPath(argv[0])
	if err != nil {
		return "", &deployerr.ExternalCommandError{Argv: argv, Err: err}
	}

	// #nosec G204 -- argv comes from the checked-in deploy configuration
	cmd := exec.CommandContext(ctx, path, argv[1:]...)
	cmd.Dir = opts.Dir

	base := environ
	if e.Environ != nil {
		base = e.Environ
	}
	cmd.Env = BuildEnv(base(), opts.Env, opts.StripEnvPrefixes)

	var stdout, stderr bytes.Buffer
	var stdoutW, stderrW io.Writer = &stdout, &stderr
	var streams []*prefixWriter
	if opts.Log && e.Stream != nil {
		var mu sync.Mutex
		out := &prefixWriter{dst: e.Stream, prefix: stdoutPrefix, mu: &mu}
		errW := &prefixWriter{dst: e.Stream, prefix: stderrPrefix, mu: &mu}
		streams = append(streams, out, errW)
		stdoutW = io.MultiWriter(&stdout, out)
		stderrW = io.MultiWriter(&stderr, errW)
	}
	cmd.Stdout = stdoutW
	cmd.Stderr = stderrW

	logger.Debug("exec", logger.Strings("argv", argv), logger.String("dir", opts.Dir))
	runErr := cmd.Run()
	for _, s := range streams {
		s.Flush()
	}

	if runErr != nil {
		ext := &deployerr.ExternalCommandError{
			Argv:   argv,
			Output: tail(stdout.String()+stderr.String(), maxErrorOutput),
			Err:    runErr,
		}
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			ext.ExitCode = exitErr.ExitCode()
		}
		return "", ext
	}

	if !opts.Buffer {
		return "", nil
	}
	out := stdout.String()
	if opts.Trim {
		out = strings.TrimSpace(out)
	}
	return out, nil
}

// prefixWriter prefixes each complete line written through it
type prefixWriter struct {
	dst    io.Writer
	prefix string
	mu     *sync.Mutex
	buf    []byte
}

func (w *prefixWriter) Write(p []byte) (int, error) {
	w.buf = append(w.buf, p...)
	for {
		idx := bytes.IndexByte(w.buf, '\n')
		if idx < 0 {
			break
		}
		w.emit(w.buf[:idx])
		w.buf = w.buf[idx+1:]
	}
	return len(p), nil
}

// Flush writes any trailing partial line
func (w *prefixWriter) Flush() {
	if len(w.buf) > 0 {
		w.emit(w.buf)
		w.buf = nil
	}
}

func (w *prefixWriter) emit(line []byte) {
	w.mu.Lock()
	defer w.mu.Unlock()
	fmt.Fprintf(w.dst, "%s%s\n", w.prefix, line)
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
