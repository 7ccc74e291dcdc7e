// Package pipeline runs the deploy of a selected profile set: one profile at
// a time, in sort order, stopping the whole run at the first failure.
package pipeline

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"

	"github.com/fulmenhq/convoy/internal/console"
	"github.com/fulmenhq/convoy/internal/delta"
	"github.com/fulmenhq/convoy/internal/gitctx"
	"github.com/fulmenhq/convoy/internal/profile"
	"github.com/fulmenhq/convoy/pkg/command"
	"github.com/fulmenhq/convoy/pkg/config"
	"github.com/fulmenhq/convoy/pkg/logger"
)

// Options are the operator's run-wide switches
type Options struct {
	// Force runs every stage regardless of deltas and skips snapshotting
	Force bool
	// ForceDomains runs individual domain stages regardless of deltas
	ForceDomains map[delta.Domain]bool
	// Broadcast enables the pre-deploy and post-deploy hooks
	Broadcast bool
	// Tag enables the release tag stage
	Tag bool
	// DryRun is set when Exec only records mutating commands
	DryRun bool
}

func (o Options) forced(d delta.Domain) bool {
	return o.Force || o.ForceDomains[d]
}

// Config wires the runner's collaborators
type Config struct {
	Exec     command.Executor
	Console  *console.Console
	Commands config.CommandsConfig
	Patterns map[delta.Domain][]string
	Process  config.ProcessConfig
	Options  Options

	// StripEnvPrefix is removed from the environment of started processes
	StripEnvPrefix string
}

// Runner executes pipelines
type Runner struct {
	cfg     Config
	inspect func(dir string) (*gitctx.State, error)
}

// New returns a runner for cfg
func New(cfg Config) *Runner {
	if cfg.Console == nil {
		cfg.Console = console.New(nil)
	}
	if cfg.StripEnvPrefix == "" {
		cfg.StripEnvPrefix = config.EnvPrefix + "_"
	}
	return &Runner{cfg: cfg, inspect: gitctx.Inspect}
}

// Run deploys every profile of set in order. The returned report covers the
// profiles attempted so far; a failure is returned as *Error and no later
// profile is started.
func (r *Runner) Run(ctx context.Context, set *profile.SelectedSet) (*Report, error) {
	report := &Report{RunID: uuid.NewString(), DryRun: r.cfg.Options.DryRun}
	logger.Info("deploy run starting", logger.String("run_id", report.RunID), logger.Strings("profiles", set.IDs()), logger.String("executor", r.cfg.Exec.Name()))

	if len(set.Peers) > 0 {
		r.cfg.Console.Note("Peer profiles that will also deploy: %s", strings.Join(set.Peers, ", "))
	}

	for _, p := range set.Profiles {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		pr, err := r.runProfile(ctx, p)
		report.Profiles = append(report.Profiles, pr)
		if err != nil {
			var pe *Error
			if !errors.As(err, &pe) {
				pe = &Error{Profile: p.ID, State: pr.State, Err: err}
			}
			report.Failure = pe.Error()
			return report, pe
		}
	}
	return report, nil
}

func (r *Runner) runProfile(ctx context.Context, p *profile.Profile) (*ProfileReport, error) {
	pr := newProfileRun(r, p)
	r.cfg.Console.Heading("Deploy profile %q", p.ID)
	logger.Debug("profile pipeline starting", logger.String("profile", p.ID), logger.String("path", p.Path))

	for _, st := range pr.stages() {
		outcome, err := st.run(ctx)
		if err != nil {
			outcome = Fail
		}
		switch outcome {
		case Fail:
			if err == nil {
				err = errors.New("stage reported failure")
			}
			failedAt := st.state
			pr.report.State = Failed
			logger.Error("profile pipeline failed", logger.String("profile", p.ID), logger.String("state", string(failedAt)), logger.Err(err))
			return pr.report, &Error{Profile: p.ID, State: failedAt, Err: err}
		case SkipRemainingStages:
			pr.advance(st.state)
			pr.report.Deferred = true
			pr.finish()
			r.cfg.Console.Confirmed("Profile %q handed off to its deploy script", p.ID)
			return pr.report, nil
		default:
			pr.advance(st.state)
		}
	}

	pr.advance(Done)
	pr.finish()
	r.cfg.Console.Confirmed("Profile %q successfully deployed", p.ID)
	return pr.report, nil
}
