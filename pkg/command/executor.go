/*
Copyright © 2025 3 Leaps <info@3leaps.com>
*/
package command

import (
	"context"
	"os"
	"sort"
	"strings"
)

// Options configures a single command invocation
type Options struct {
	// Dir is the working directory; empty means the orchestrator's own cwd
	Dir string

	// Env overlays environment variables for this invocation only
	Env map[string]string

	// StripEnvPrefixes removes inherited variables whose names start with any
	// of these prefixes before the overlay is applied
	StripEnvPrefixes []string

	// Log streams stdout/stderr to the operator as the command runs
	Log bool

	// Buffer captures stdout and returns it from Run
	Buffer bool

	// Trim strips surrounding whitespace from the captured output
	Trim bool

	// ReadOnly marks queries that do not change any external state. Dry-run
	// and step executors pass these straight through.
	ReadOnly bool
}

// Executor runs external commands on behalf of the deploy pipeline
type Executor interface {
	// Run executes argv and returns captured stdout when opts.Buffer is set.
	// Non-zero exits and spawn failures are returned as
	// *deployerr.ExternalCommandError.
	Run(ctx context.Context, argv []string, opts Options) (string, error)

	// Name returns the executor name for logging
	Name() string
}

// Invocation records one command an executor was asked to run
type Invocation struct {
	Argv []string
	Dir  string
	Env  map[string]string
}

// String renders the invocation the way an operator would type it
func (i Invocation) String() string {
	return strings.Join(i.Argv, " ")
}

func newInvocation(argv []string, opts Options) Invocation {
	inv := Invocation{Argv: append([]string(nil), argv...), Dir: opts.Dir}
	if len(opts.Env) > 0 {
		inv.Env = make(map[string]string, len(opts.Env))
		for k, v := range opts.Env {
			inv.Env[k] = v
		}
	}
	return inv
}

// BuildEnv merges the inherited environment with an overlay. Inherited
// variables matching strip prefixes are dropped; overlay keys win over
// inherited ones and are appended in sorted order.
func BuildEnv(base []string, overlay map[string]string, stripPrefixes []string) []string {
	env := make([]string, 0, len(base)+len(overlay))
	for _, kv := range base {
		key := kv
		if idx := strings.IndexByte(kv, '='); idx >= 0 {
			key = kv[:idx]
		}
		if _, overridden := overlay[key]; overridden {
			continue
		}
		if hasAnyPrefix(key, stripPrefixes) {
			continue
		}
		env = append(env, kv)
	}

	keys := make([]string, 0, len(overlay))
	for k := range overlay {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		env = append(env, k+"="+overlay[k])
	}
	return env
}

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if p != "" && strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}

func environ() []string {
	return os.Environ()
}

// Mode determines how commands reach the system
type Mode string

const (
	// ModeLocal runs every command
	ModeLocal Mode = "local"
	// ModeDryRun records mutating commands without running them
	ModeDryRun Mode = "dry-run"
	// ModeStep asks the operator before each mutating command
	ModeStep Mode = "step"
)

// ParseMode maps the deploy flags onto an execution mode. Dry-run wins over
// step when both are requested.
func ParseMode(dryRun, step bool) Mode {
	switch {
	case dryRun:
		return ModeDryRun
	case step:
		return ModeStep
	default:
		return ModeLocal
	}
}
