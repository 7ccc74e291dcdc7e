// Package hooks runs the lifecycle scripts a profile declares in its package
// manifest around a deploy.
package hooks

import (
	"context"

	"github.com/fulmenhq/convoy/internal/deployerr"
	"github.com/fulmenhq/convoy/internal/manifest"
	"github.com/fulmenhq/convoy/pkg/command"
	"github.com/fulmenhq/convoy/pkg/logger"
)

// Hook names a lifecycle script
type Hook string

const (
	PreDeploy  Hook = "pre-deploy"
	PostDeploy Hook = "post-deploy"
)

// Status records what happened to a hook
type Status string

const (
	StatusRan        Status = "ran"
	StatusDisabled   Status = "disabled"
	StatusUndeclared Status = "undeclared"
)

// Executor runs hooks for one profile. Command is the script runner prefix
// ("npm run"); the hook name is appended to it.
type Executor struct {
	Exec    command.Executor
	Command []string
	Dir     string
	Env     map[string]string
	// Enabled is false when broadcasts are turned off for the run
	Enabled bool
}

// Run invokes hook when broadcasts are enabled and the manifest declares it.
// A nil manifest declares nothing.
func (e *Executor) Run(ctx context.Context, m *manifest.Manifest, hook Hook) (Status, error) {
	if !e.Enabled {
		logger.Debug("hook-executor: broadcasts disabled", logger.String("hook", string(hook)))
		return StatusDisabled, nil
	}
	if !m.HasScript(string(hook)) {
		logger.Debug("hook-executor: hook not declared", logger.String("hook", string(hook)))
		return StatusUndeclared, nil
	}

	prefix := e.Command
	if len(prefix) == 0 {
		prefix = []string{"npm", "run"}
	}
	argv := append(append([]string(nil), prefix...), string(hook))
	logger.Info("hook-executor: running", logger.String("hook", string(hook)), logger.String("dir", e.Dir))
	if _, err := e.Exec.Run(ctx, argv, command.Options{Dir: e.Dir, Env: e.Env, Log: true}); err != nil {
		return "", deployerr.WithStep(err, string(hook)+" hook")
	}
	return StatusRan, nil
}
