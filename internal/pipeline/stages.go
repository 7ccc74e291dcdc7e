package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/fulmenhq/convoy/internal/branch"
	"github.com/fulmenhq/convoy/internal/delta"
	"github.com/fulmenhq/convoy/internal/deployerr"
	"github.com/fulmenhq/convoy/internal/gitctx"
	"github.com/fulmenhq/convoy/internal/hooks"
	"github.com/fulmenhq/convoy/internal/manifest"
	"github.com/fulmenhq/convoy/internal/process"
	"github.com/fulmenhq/convoy/internal/profile"
	"github.com/fulmenhq/convoy/internal/release"
	"github.com/fulmenhq/convoy/pkg/logger"
	"github.com/fulmenhq/convoy/pkg/versioning"
)

type stage struct {
	state State
	run   func(ctx context.Context) (Outcome, error)
}

// profileRun carries one profile's pipeline state between stages
type profileRun struct {
	r       *Runner
	p       *profile.Profile
	report  *ProfileReport
	session Session

	git      *gitctx.Client
	tracker  *delta.Tracker
	manifest *manifest.Manifest
	before   delta.Snapshot
	statuses map[delta.Domain]delta.Status
	detached bool
}

func newProfileRun(r *Runner, p *profile.Profile) *profileRun {
	return &profileRun{
		r: r,
		p: p,
		report: &ProfileReport{
			ID:    p.ID,
			Title: p.Title,
			Path:  p.Path,
			State: Pending,
			Hooks: map[string]string{},
		},
	}
}

func (pr *profileRun) stages() []stage {
	list := []stage{
		{PathEntered, pr.enterPath},
		{EnvMerged, pr.mergeEnv},
	}
	if len(pr.p.DeployScript) > 0 {
		list = append(list, stage{ScriptDeferred, pr.deferToScript})
	}
	return append(list,
		stage{PreHookRun, pr.preHook},
		stage{Fetched, pr.fetch},
		stage{BranchResolved, pr.resolveBranch},
		stage{DeltaAfterCaptured, pr.captureAfter},
		stage{PackagesStage, pr.domainStage(delta.Dependencies, "Clean-install packages", pr.install)},
		stage{FrontendStage, pr.domainStage(delta.Frontend, "Build frontend", pr.build)},
		stage{BackendStage, pr.domainStage(delta.Backend, "Restart backend processes", pr.restart)},
		stage{PostHookRun, pr.postHook},
		stage{Tagged, pr.tag},
	)
}

func (pr *profileRun) advance(s State) {
	pr.report.State = s
	pr.report.Trail = append(pr.report.Trail, s)
}

func (pr *profileRun) finish() {
	if pr.session.Dir == "" {
		return
	}
	state, err := pr.r.inspect(pr.session.Dir)
	if err != nil {
		logger.Debug("could not inspect working tree", logger.String("profile", pr.p.ID), logger.Err(err))
		return
	}
	pr.report.Head = state.ShortSHA()
}

func (pr *profileRun) opts() Options {
	return pr.r.cfg.Options
}

func (pr *profileRun) enterPath(context.Context) (Outcome, error) {
	s, err := enter(pr.p.ID, pr.p.Path)
	if err != nil {
		return Fail, err
	}
	pr.session = s
	return Continue, nil
}

func (pr *profileRun) mergeEnv(context.Context) (Outcome, error) {
	pr.session = pr.session.withEnv(pr.p.Env)
	pr.git = gitctx.NewClient(pr.r.cfg.Exec, pr.session.Dir, pr.session.Env)
	if len(pr.p.Env) > 0 {
		keys := make([]string, 0, len(pr.p.Env))
		for k := range pr.p.Env {
			keys = append(keys, k)
		}
		logger.Debug("environment overlay", logger.String("profile", pr.p.ID), logger.Strings("keys", keys))
	}
	return Continue, nil
}

func (pr *profileRun) deferToScript(ctx context.Context) (Outcome, error) {
	pr.r.cfg.Console.Heading("Deferring to deploy script")
	if _, err := pr.r.cfg.Exec.Run(ctx, pr.p.DeployScript, pr.session.options(true)); err != nil {
		return Fail, deployerr.WithStep(err, "deploy script")
	}
	return SkipRemainingStages, nil
}

func (pr *profileRun) loadManifest() error {
	m, err := manifest.Load(pr.session.Dir)
	if errors.Is(err, manifest.ErrNotFound) {
		pr.manifest = nil
		return nil
	}
	if err != nil {
		return &deployerr.ConfigError{Profile: pr.p.ID, Reason: "package manifest", Err: err}
	}
	pr.manifest = m
	return nil
}

// snapshotDomains lists the domains whose deltas decide a stage
func (pr *profileRun) snapshotDomains() []delta.Domain {
	if pr.opts().Force {
		return nil
	}
	var out []delta.Domain
	for _, d := range delta.Domains {
		if !pr.opts().forced(d) {
			out = append(out, d)
		}
	}
	return out
}

func (pr *profileRun) preHook(ctx context.Context) (Outcome, error) {
	if domains := pr.snapshotDomains(); len(domains) > 0 {
		pr.r.cfg.Console.Heading("Calculate pre-deploy deltas")
		tracker, err := delta.NewTracker(pr.session.Dir, pr.r.cfg.Patterns)
		if err != nil {
			return Fail, &deployerr.ConfigError{Profile: pr.p.ID, Reason: "delta patterns", Err: err}
		}
		pr.tracker = tracker
		if pr.before, err = tracker.Snapshot(ctx, domains); err != nil {
			return Fail, err
		}
	}

	if err := pr.loadManifest(); err != nil {
		return Fail, err
	}
	return Continue, pr.runHook(ctx, hooks.PreDeploy)
}

func (pr *profileRun) runHook(ctx context.Context, hook hooks.Hook) error {
	e := &hooks.Executor{
		Exec:    pr.r.cfg.Exec,
		Command: pr.r.cfg.Commands.Hook,
		Dir:     pr.session.Dir,
		Env:     pr.session.Env,
		Enabled: pr.opts().Broadcast,
	}
	status, err := e.Run(ctx, pr.manifest, hook)
	if err != nil {
		return err
	}
	pr.report.Hooks[string(hook)] = string(status)
	if status != hooks.StatusRan {
		pr.r.cfg.Console.Skipped("Run %s hook", hook)
	}
	return nil
}

func (pr *profileRun) fetch(ctx context.Context) (Outcome, error) {
	pr.r.cfg.Console.Heading("Fetching %s", pr.p.Repo)
	return Continue, pr.git.Fetch(ctx, pr.p.Repo)
}

func (pr *profileRun) resolveBranch(ctx context.Context) (Outcome, error) {
	rev, err := branch.Resolve(ctx, pr.p.Branch, pr.git.ListTags)
	if err != nil {
		return Fail, err
	}
	pr.report.Revision = rev.String()
	pr.detached = rev.Kind == branch.KindTag

	if state, err := pr.r.inspect(pr.session.Dir); err == nil && state.Dirty() {
		logger.Warn("discarding local modifications", logger.String("profile", pr.p.ID), logger.Int("files", len(state.ModifiedFiles)), logger.String("scope", state.ChangeScope))
	}

	pr.r.cfg.Console.Heading("Synchronizing to %s", rev)
	action, err := branch.Sync(ctx, pr.git, pr.p.Repo, rev)
	if err != nil {
		return Fail, err
	}
	pr.report.SyncAction = string(action)
	return Continue, nil
}

func (pr *profileRun) captureAfter(ctx context.Context) (Outcome, error) {
	if err := pr.loadManifest(); err != nil {
		return Fail, err
	}
	domains := pr.snapshotDomains()
	if len(domains) == 0 {
		return Continue, nil
	}
	pr.r.cfg.Console.Heading("Calculate post-pull deltas")
	after, err := pr.tracker.Snapshot(ctx, domains)
	if err != nil {
		return Fail, err
	}
	pr.statuses = delta.Classify(pr.before, after)
	pr.report.Deltas = pr.statuses
	pr.r.cfg.Console.DeltaReport(pr.statuses)
	return Continue, nil
}

// domainStage gates work on the domain's force flag or delta
func (pr *profileRun) domainStage(d delta.Domain, title string, work func(context.Context) error) func(context.Context) (Outcome, error) {
	return func(ctx context.Context) (Outcome, error) {
		if !pr.opts().forced(d) && pr.statuses[d] != delta.Changed {
			pr.r.cfg.Console.Skipped(title)
			pr.report.Skipped = append(pr.report.Skipped, string(d))
			return Continue, nil
		}
		pr.r.cfg.Console.Heading(title)
		if err := work(ctx); err != nil {
			return Fail, err
		}
		return Continue, nil
	}
}

func (pr *profileRun) install(ctx context.Context) error {
	_, err := pr.r.cfg.Exec.Run(ctx, pr.r.cfg.Commands.Install, pr.session.options(true))
	return deployerr.WithStep(err, "package install")
}

func (pr *profileRun) build(ctx context.Context) error {
	_, err := pr.r.cfg.Exec.Run(ctx, pr.r.cfg.Commands.Build, pr.session.options(true))
	return deployerr.WithStep(err, "frontend build")
}

func (pr *profileRun) restart(ctx context.Context) error {
	instances, err := process.Derive(pr.p, pr.manifestVersion())
	if err != nil {
		return err
	}
	m := &process.Manager{
		Exec:         pr.r.cfg.Exec,
		Dir:          pr.session.Dir,
		Env:          pr.session.Env,
		StripPrefix:  pr.r.cfg.StripEnvPrefix,
		Binary:       pr.r.cfg.Process.Manager,
		ReadyTimeout: time.Duration(pr.r.cfg.Process.ReadyTimeout),
	}
	script := pr.p.Script
	if script == "" && pr.manifest != nil {
		script = pr.manifest.Main
	}
	action, err := m.Apply(ctx, pr.p.ID, script, instances)
	pr.report.ProcessAction = string(action)
	pr.report.Instances = process.InstanceNames(instances)
	return err
}

func (pr *profileRun) manifestVersion() *versioning.Version {
	if pr.manifest == nil || pr.manifest.Version == "" {
		return nil
	}
	v, err := versioning.ParseLenient(pr.manifest.Version)
	if err != nil {
		logger.Warn("package version is not semver", logger.String("profile", pr.p.ID), logger.String("version", pr.manifest.Version))
		return nil
	}
	return v
}

func (pr *profileRun) postHook(ctx context.Context) (Outcome, error) {
	return Continue, pr.runHook(ctx, hooks.PostDeploy)
}

func (pr *profileRun) tag(ctx context.Context) (Outcome, error) {
	if !pr.opts().Tag || !release.ShouldRun(pr.p.SemverPolicy, pr.opts().Force, delta.AnyChanged(pr.statuses)) {
		pr.r.cfg.Console.Skipped("Tag release")
		pr.report.Skipped = append(pr.report.Skipped, "tag")
		return Continue, nil
	}
	pr.r.cfg.Console.Heading("Tag release")
	tagger := &release.Tagger{Git: pr.git, DryRun: pr.opts().DryRun}
	res, err := tagger.Run(ctx, release.Request{
		ProfileID:    pr.p.ID,
		Remote:       pr.p.Repo,
		Policy:       pr.p.SemverPolicy,
		BumpManifest: pr.p.SemverBumpManifest,
		Manifest:     pr.manifest,
		Detached:     pr.detached,
	})
	if err != nil {
		return Fail, err
	}
	pr.report.Release = res
	return Continue, nil
}
