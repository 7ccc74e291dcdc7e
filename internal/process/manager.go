package process

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/fulmenhq/convoy/internal/deployerr"
	"github.com/fulmenhq/convoy/pkg/command"
	"github.com/fulmenhq/convoy/pkg/logger"
)

// Action is the lifecycle decision for a profile's instances
type Action string

const (
	ActionStart   Action = "start"
	ActionRestart Action = "restart"
)

// Decide maps the existence probe result to an action
func Decide(exists bool) Action {
	if exists {
		return ActionRestart
	}
	return ActionStart
}

// notFoundMarker is what pm2 prints for an unknown process name
const notFoundMarker = "doesn't exist"

// restartGrace is added to the readiness timeout before the restart command
// itself is abandoned
const restartGrace = 5 * time.Second

// Manager drives pm2 for one profile's working directory and environment
type Manager struct {
	Exec         command.Executor
	Binary       string
	Dir          string
	Env          map[string]string
	StripPrefix  string
	ReadyTimeout time.Duration
}

func (m *Manager) binary() string {
	if m.Binary == "" {
		return "pm2"
	}
	return m.Binary
}

func (m *Manager) launchOpts() command.Options {
	opts := command.Options{Dir: m.Dir, Env: m.Env, Log: true}
	if m.StripPrefix != "" {
		opts.StripEnvPrefixes = []string{m.StripPrefix}
	}
	return opts
}

// Exists probes the process manager for name. A "not found" answer is
// reported as false; any other failure is an error.
func (m *Manager) Exists(ctx context.Context, name string) (bool, error) {
	argv := []string{m.binary(), "describe", name}
	out, err := m.Exec.Run(ctx, argv, command.Options{Dir: m.Dir, Env: m.Env, Buffer: true, ReadOnly: true})
	if err != nil {
		var ext *deployerr.ExternalCommandError
		if errors.As(err, &ext) && strings.Contains(ext.Output, notFoundMarker) {
			return false, nil
		}
		return false, deployerr.WithStep(err, "process probe")
	}
	return !strings.Contains(out, notFoundMarker), nil
}

// Restart restarts every named instance in a single command and waits for
// readiness. Either all instances restart or the command fails.
func (m *Manager) Restart(ctx context.Context, names []string) error {
	timeout := m.ReadyTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout+restartGrace)
	defer cancel()

	argv := append([]string{m.binary(), "restart"}, names...)
	argv = append(argv, "--update-env", "--wait-ready", "--listen-timeout", strconv.FormatInt(timeout.Milliseconds(), 10))
	_, err := m.Exec.Run(ctx, argv, m.launchOpts())
	return deployerr.WithStep(err, "process restart")
}

// Start launches one instance of script under name
func (m *Manager) Start(ctx context.Context, script string, inst Instance) error {
	argv := []string{m.binary(), "start", script, "--name", inst.Name}
	if len(inst.Args) > 0 {
		argv = append(argv, "--")
		argv = append(argv, inst.Args...)
	}
	_, err := m.Exec.Run(ctx, argv, m.launchOpts())
	return deployerr.WithStep(err, "process start "+inst.Name)
}

// Apply probes the first instance and then restarts all of them together or
// starts each one in order.
func (m *Manager) Apply(ctx context.Context, profileID, script string, instances []Instance) (Action, error) {
	if len(instances) == 0 {
		return "", deployerr.Configf(profileID, "no process instances to manage")
	}
	exists, err := m.Exists(ctx, instances[0].Name)
	if err != nil {
		return "", err
	}

	action := Decide(exists)
	names := InstanceNames(instances)
	logger.Info("process lifecycle", logger.String("profile", profileID), logger.String("action", string(action)), logger.Strings("instances", names), logger.Duration("ready_timeout", m.ReadyTimeout))

	if action == ActionRestart {
		return action, m.Restart(ctx, names)
	}
	if strings.TrimSpace(script) == "" {
		return action, deployerr.Configf(profileID, "instances %s are not running and no script is configured to start them", strings.Join(names, ", "))
	}
	for _, inst := range instances {
		if err := m.Start(ctx, script, inst); err != nil {
			return action, err
		}
	}
	return action, nil
}
