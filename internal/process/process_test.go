package process

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fulmenhq/convoy/internal/deployerr"
	"github.com/fulmenhq/convoy/internal/profile"
	"github.com/fulmenhq/convoy/pkg/command/commandtest"
	"github.com/fulmenhq/convoy/pkg/versioning"
)

func worker(count int) *profile.Profile {
	return &profile.Profile{
		ID:                   "worker",
		ProcessCount:         count,
		InstanceNameTemplate: profile.DefaultInstanceTemplate,
	}
}

func TestExpand(t *testing.T) {
	v, err := versioning.ParseLenient("1.4.3")
	require.NoError(t, err)
	vars := Vars{ID: "api", Offset: 2, Alpha: "c", Version: v}

	tests := []struct {
		tmpl string
		want string
	}{
		{"${id}-${alpha}", "api-c"},
		{"--port=300${offset}", "--port=3002"},
		{"${id}@${version} (${major}.${minor}.${patch})", "api@1.4.3 (1.4.3)"},
		{"${ id }", "api"},
		{"no placeholders", "no placeholders"},
		{"$id stays literal", "$id stays literal"},
	}
	for _, tt := range tests {
		t.Run(tt.tmpl, func(t *testing.T) {
			got, err := Expand(tt.tmpl, vars)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExpandErrors(t *testing.T) {
	_, err := Expand("${process.env.HOME}", Vars{ID: "api"})
	assert.ErrorContains(t, err, "unknown placeholder")

	_, err = Expand("${id", Vars{ID: "api"})
	assert.ErrorContains(t, err, "unterminated")

	_, err = Expand("${version}", Vars{ID: "api"})
	assert.ErrorContains(t, err, "needs a package version")
}

func TestDeriveFromTemplate(t *testing.T) {
	instances, err := Derive(worker(3), nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"worker-a", "worker-b", "worker-c"}, InstanceNames(instances))
	assert.Equal(t, 2, instances[2].Index)
}

func TestDeriveOverflowWithoutNames(t *testing.T) {
	instances, err := Derive(worker(27), nil)
	var cfgErr *deployerr.ConfigError
	require.True(t, errors.As(err, &cfgErr))
	assert.Empty(t, instances)

	_, err = Derive(worker(26), nil)
	assert.NoError(t, err)
}

func TestDeriveExplicitNamesWin(t *testing.T) {
	p := worker(40)
	p.InstanceNames = []string{"blue", "green"}
	instances, err := Derive(p, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"blue", "green"}, InstanceNames(instances))
}

func TestDeriveArgs(t *testing.T) {
	p := worker(2)
	p.InstanceArgs = map[string][]string{
		DefaultArgsKey: {"-e", "production", "--slot=${offset}"},
		"worker-b":     {"--queue", "${id}-slow"},
	}
	instances, err := Derive(p, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"-e", "production", "--slot=0"}, instances[0].Args)
	assert.Equal(t, []string{"--queue", "worker-slow"}, instances[1].Args)
}

func TestDeriveRejectsDuplicateNames(t *testing.T) {
	p := worker(2)
	p.InstanceNameTemplate = "${id}"
	_, err := Derive(p, nil)
	var cfgErr *deployerr.ConfigError
	assert.True(t, errors.As(err, &cfgErr))
}

func TestDeriveRejectsUnknownPlaceholder(t *testing.T) {
	p := worker(1)
	p.InstanceNameTemplate = "${id}-${host}"
	_, err := Derive(p, nil)
	var cfgErr *deployerr.ConfigError
	assert.True(t, errors.As(err, &cfgErr))
}

func TestDecide(t *testing.T) {
	assert.Equal(t, ActionRestart, Decide(true))
	assert.Equal(t, ActionStart, Decide(false))
}

func newManager(fake *commandtest.Fake) *Manager {
	return &Manager{
		Exec:         fake,
		Dir:          "/srv/worker",
		Env:          map[string]string{"NODE_ENV": "production"},
		StripPrefix:  "CONVOY_",
		ReadyTimeout: 10 * time.Second,
	}
}

func TestApplyRestartsAllTogether(t *testing.T) {
	fake := commandtest.New().Respond("status: online", "pm2", "describe")
	instances, err := Derive(worker(3), nil)
	require.NoError(t, err)

	action, err := newManager(fake).Apply(context.Background(), "worker", "server/index.js", instances)
	require.NoError(t, err)
	assert.Equal(t, ActionRestart, action)
	assert.Equal(t, []string{
		"pm2 describe worker-a",
		"pm2 restart worker-a worker-b worker-c --update-env --wait-ready --listen-timeout 10000",
	}, fake.Commands())

	calls := fake.Calls()
	assert.True(t, calls[0].Options.ReadOnly)
	assert.Equal(t, []string{"CONVOY_"}, calls[1].Options.StripEnvPrefixes)
	assert.Equal(t, "/srv/worker", calls[1].Options.Dir)
}

func TestApplyStartsEachWhenMissing(t *testing.T) {
	fake := commandtest.New().Fail(1, "[PM2][WARN] worker-a doesn't exist", "pm2", "describe")
	p := worker(2)
	p.InstanceArgs = map[string][]string{DefaultArgsKey: {"--slot", "${alpha}"}}
	instances, err := Derive(p, nil)
	require.NoError(t, err)

	action, err := newManager(fake).Apply(context.Background(), "worker", "server/index.js", instances)
	require.NoError(t, err)
	assert.Equal(t, ActionStart, action)
	assert.Equal(t, []string{
		"pm2 describe worker-a",
		"pm2 start server/index.js --name worker-a -- --slot a",
		"pm2 start server/index.js --name worker-b -- --slot b",
	}, fake.Commands())
	for _, call := range fake.Calls()[1:] {
		assert.Equal(t, []string{"CONVOY_"}, call.Options.StripEnvPrefixes)
		assert.Equal(t, "production", call.Options.Env["NODE_ENV"])
	}
}

func TestApplyNotFoundOnSuccessfulExit(t *testing.T) {
	fake := commandtest.New().Respond("[PM2][WARN] worker-a doesn't exist", "pm2", "describe")
	instances, err := Derive(worker(1), nil)
	require.NoError(t, err)

	action, err := newManager(fake).Apply(context.Background(), "worker", "index.js", instances)
	require.NoError(t, err)
	assert.Equal(t, ActionStart, action)
}

func TestApplyProbeFailureIsExternalError(t *testing.T) {
	fake := commandtest.New().Fail(127, "pm2: command not found", "pm2", "describe")
	instances, err := Derive(worker(1), nil)
	require.NoError(t, err)

	_, err = newManager(fake).Apply(context.Background(), "worker", "index.js", instances)
	var ext *deployerr.ExternalCommandError
	require.True(t, errors.As(err, &ext))
	assert.Equal(t, "process probe", ext.Step)
	assert.Len(t, fake.Calls(), 1)
}

func TestApplyStopsAtFirstFailedStart(t *testing.T) {
	fake := commandtest.New().
		Fail(1, "doesn't exist", "pm2", "describe").
		Fail(1, "script not found", "pm2", "start", "index.js", "--name", "worker-a")
	instances, err := Derive(worker(2), nil)
	require.NoError(t, err)

	_, err = newManager(fake).Apply(context.Background(), "worker", "index.js", instances)
	var ext *deployerr.ExternalCommandError
	require.True(t, errors.As(err, &ext))
	assert.Equal(t, "process start worker-a", ext.Step)
	assert.False(t, fake.Ran("pm2", "start", "index.js", "--name", "worker-b"))
}

func TestApplyStartWithoutScript(t *testing.T) {
	fake := commandtest.New().Fail(1, "doesn't exist", "pm2", "describe")
	instances, err := Derive(worker(1), nil)
	require.NoError(t, err)

	_, err = newManager(fake).Apply(context.Background(), "worker", "", instances)
	var cfgErr *deployerr.ConfigError
	assert.True(t, errors.As(err, &cfgErr))
}
