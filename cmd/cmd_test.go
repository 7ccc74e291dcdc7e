package cmd

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/fulmenhq/convoy/internal/deployerr"
	"github.com/fulmenhq/convoy/internal/pipeline"
	"github.com/fulmenhq/convoy/pkg/command"
	"github.com/fulmenhq/convoy/pkg/command/commandtest"
)

const workspaceYAML = `deploy:
  profiles:
    - id: web
      path: .
      sort: 20
      processes: 2
      peer_deploy: [api]
    - id: api
      title: API
      path: .
      sort: 5
    - id: maintenance
      path: .
      peer_deny: [web]
    - id: legacy
      path: .
      enabled: false
`

// execRoot runs a fresh command tree and returns stdout and stderr
func execRoot(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	t.Setenv("CONVOY_PROFILE", "")

	cmd := newRootCommand()
	registerSubcommands(cmd)

	var outBuf, errBuf bytes.Buffer
	cmd.SetOut(&outBuf)
	cmd.SetErr(&errBuf)
	cmd.SetArgs(append([]string{"--log-level", "error", "--no-color"}, args...))
	err := cmd.Execute()
	return outBuf.String(), errBuf.String(), err
}

func writeWorkspace(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "convoy.yaml"), []byte(body), 0o644))
	return dir
}

// useFakeExecutor routes deploy commands to a scripted executor
func useFakeExecutor(t *testing.T) *commandtest.Fake {
	t.Helper()
	fake := commandtest.New().Respond("master", "git", "branch", "--show-current")
	original := newLocalExecutor
	newLocalExecutor = func(io.Writer) command.Executor { return fake }
	t.Cleanup(func() { newLocalExecutor = original })
	return fake
}

func TestHelpListsCommandGroups(t *testing.T) {
	out, _, err := execRoot(t, "--help")
	require.NoError(t, err)
	assert.Contains(t, out, "Deploy Commands:")
	assert.Contains(t, out, "Inspection Commands:")
	assert.Contains(t, out, "Support Commands:")
	for _, name := range []string{"deploy", "plan", "profiles", "doctor", "version"} {
		assert.Contains(t, out, "  "+name)
	}
}

func TestEverySubcommandIsClassified(t *testing.T) {
	root := newRootCommand()
	reg := registerSubcommands(root)
	assert.Empty(t, reg.Unregistered(root))
}

func TestVersion_JSON(t *testing.T) {
	out, _, err := execRoot(t, "version", "--as-json")
	require.NoError(t, err)

	var v map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &v), out)
	assert.IsType(t, "", v["version"])
	assert.IsType(t, "", v["goVersion"])
	assert.IsType(t, "", v["platform"])
}

func TestVersion_Text(t *testing.T) {
	out, _, err := execRoot(t, "version", "--extended")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "convoy "))
	assert.Contains(t, out, "Go version:")
}

func TestProfilesInSortOrder(t *testing.T) {
	dir := writeWorkspace(t, workspaceYAML)
	out, _, err := execRoot(t, "--base-dir", dir, "profiles")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 5)
	assert.True(t, strings.HasPrefix(lines[0], "ID"))
	assert.True(t, strings.HasPrefix(lines[1], "api"))
	assert.Contains(t, lines[1], "API")
	assert.True(t, strings.HasPrefix(lines[4], "web"))
	assert.Contains(t, out, "no")
}

func TestBaseDirFromEnvironment(t *testing.T) {
	dir := writeWorkspace(t, workspaceYAML)
	t.Setenv("CONVOY_BASE_DIR", dir)

	out, _, err := execRoot(t, "profiles", "--as-json")
	require.NoError(t, err)
	var profiles []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &profiles))
	assert.Len(t, profiles, 4)
}

func TestMissingConfigurationIsConfigError(t *testing.T) {
	_, _, err := execRoot(t, "--base-dir", t.TempDir(), "profiles")
	var cfgErr *deployerr.ConfigError
	assert.True(t, errors.As(err, &cfgErr), "got %v", err)
}

func TestPlanResolvesPeersAndOrder(t *testing.T) {
	dir := writeWorkspace(t, workspaceYAML)
	out, _, err := execRoot(t, "--base-dir", dir, "plan", "web", "-o", "json")
	require.NoError(t, err)

	var plan Plan
	require.NoError(t, json.Unmarshal([]byte(out), &plan), out)
	require.Len(t, plan.Profiles, 2)
	assert.Equal(t, "api", plan.Profiles[0].ID)
	assert.True(t, plan.Profiles[0].Peer)
	assert.Equal(t, []string{"api-a"}, plan.Profiles[0].Instances)
	assert.Equal(t, "web", plan.Profiles[1].ID)
	assert.Equal(t, []string{"web-a", "web-b"}, plan.Profiles[1].Instances)
	assert.Equal(t, []string{"api"}, plan.Peers)
}

func TestPlanCountsWatchedFiles(t *testing.T) {
	dir := writeWorkspace(t, workspaceYAML)
	for rel, body := range map[string]string{
		"package.json":                   `{"name":"app","version":"1.0.0"}`,
		"src/App.vue":                    "<template/>",
		"src/theme.scss":                 "body {}",
		"node_modules/left-pad/index.js": "module.exports = 1",
	} {
		path := filepath.Join(dir, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	}

	out, _, err := execRoot(t, "--base-dir", dir, "plan", "api", "-o", "json")
	require.NoError(t, err)

	var plan Plan
	require.NoError(t, json.Unmarshal([]byte(out), &plan), out)
	require.Len(t, plan.Profiles, 1)
	assert.Equal(t, map[string]int{"dependencies": 1, "frontend": 2, "backend": 0}, plan.Profiles[0].Watched)
}

func TestPlanFormats(t *testing.T) {
	dir := writeWorkspace(t, workspaceYAML)

	out, _, err := execRoot(t, "--base-dir", dir, "plan", "api", "-o", "yaml")
	require.NoError(t, err)
	var fromYAML Plan
	require.NoError(t, yaml.Unmarshal([]byte(out), &fromYAML), out)
	require.Len(t, fromYAML.Profiles, 1)
	assert.Equal(t, "api", fromYAML.Profiles[0].ID)

	out, _, err = execRoot(t, "--base-dir", dir, "plan", "api", "-o", "toml")
	require.NoError(t, err)
	var fromTOML Plan
	require.NoError(t, toml.Unmarshal([]byte(out), &fromTOML), out)
	require.Len(t, fromTOML.Profiles, 1)
	assert.Equal(t, "origin", fromTOML.Profiles[0].Repo)

	out, _, err = execRoot(t, "--base-dir", dir, "plan", "api", "--branch", "tag semver=^1.0.0")
	require.NoError(t, err)
	assert.Contains(t, out, "origin tag semver=^1.0.0")

	_, _, err = execRoot(t, "--base-dir", dir, "plan", "api", "-o", "xml")
	assert.Error(t, err)
}

func TestPlanRejectsMalformedTagExpression(t *testing.T) {
	dir := writeWorkspace(t, workspaceYAML)
	_, _, err := execRoot(t, "--base-dir", dir, "plan", "api", "--branch", "tag sort=sideways")
	var syntaxErr *deployerr.BranchSyntaxError
	assert.True(t, errors.As(err, &syntaxErr), "got %v", err)
}

func TestDeploySelectionErrors(t *testing.T) {
	dir := writeWorkspace(t, workspaceYAML)
	fake := useFakeExecutor(t)

	_, _, err := execRoot(t, "--base-dir", dir, "deploy")
	var selErr *deployerr.SelectionError
	assert.True(t, errors.As(err, &selErr), "got %v", err)

	_, _, err = execRoot(t, "--base-dir", dir, "deploy", "ghost")
	assert.True(t, errors.As(err, &selErr), "got %v", err)

	_, _, err = execRoot(t, "--base-dir", dir, "deploy", "web", "maintenance")
	var conflict *deployerr.PeerConflictError
	assert.True(t, errors.As(err, &conflict), "got %v", err)

	assert.Empty(t, fake.Calls(), "selection failures run no command")
}

func TestDeployDefaultProfileFromEnvironment(t *testing.T) {
	dir := writeWorkspace(t, workspaceYAML)
	fake := useFakeExecutor(t)

	cmd := newRootCommand()
	registerSubcommands(cmd)
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs([]string{"--log-level", "error", "--no-color", "--base-dir", dir, "deploy", "--force", "--dry-run"})
	t.Setenv("CONVOY_PROFILE", "api")
	require.NoError(t, cmd.Execute())

	assert.Contains(t, stderr.String(), `Profile "api" successfully deployed`)
	assert.NotContains(t, stderr.String(), `"web"`)
	assert.True(t, fake.Ran("git", "branch", "--show-current"))
}

func TestDeployDryRunOnlyPassesQueriesThrough(t *testing.T) {
	dir := writeWorkspace(t, workspaceYAML)
	fake := useFakeExecutor(t)

	out, errOut, err := execRoot(t, "--base-dir", dir, "deploy", "api", "--force", "--dry-run", "--report", "-")
	require.NoError(t, err)

	assert.Equal(t, []string{"git branch --show-current", "pm2 describe api-a"}, fake.Commands())
	assert.Contains(t, errOut, "would exec `git fetch --prune --tags --force origin`")
	assert.Contains(t, errOut, "would exec `npm ci`")
	assert.Contains(t, errOut, "would exec `pm2 restart api-a")

	var report pipeline.Report
	require.NoError(t, json.Unmarshal([]byte(out), &report), out)
	assert.True(t, report.DryRun)
	require.Len(t, report.Profiles, 1)
	assert.Equal(t, pipeline.Done, report.Profiles[0].State)
}

func TestDeployFailureCarriesProfileAndStep(t *testing.T) {
	dir := writeWorkspace(t, workspaceYAML)
	fake := useFakeExecutor(t)
	fake.Fail(128, "fatal: 'origin' does not appear to be a git repository", "git", "fetch")

	_, _, err := execRoot(t, "--base-dir", dir, "deploy", "web", "--no-broadcast")
	require.Error(t, err)

	var pe *pipeline.Error
	require.True(t, errors.As(err, &pe), "got %v", err)
	assert.Equal(t, "api", pe.Profile, "the peer sorts first and fails first")
	assert.Equal(t, pipeline.Fetched, pe.State)

	var ext *deployerr.ExternalCommandError
	require.True(t, errors.As(err, &ext))
	assert.Equal(t, 128, ext.ExitCode)
	assert.Equal(t, "git fetch", ext.Step)
	assert.Len(t, fake.Commands(), 1)
}

func TestDeployStepRequiresTerminal(t *testing.T) {
	dir := writeWorkspace(t, workspaceYAML)
	useFakeExecutor(t)
	original := stdinIsTerminal
	stdinIsTerminal = func() bool { return false }
	t.Cleanup(func() { stdinIsTerminal = original })

	_, _, err := execRoot(t, "--base-dir", dir, "deploy", "api", "--step")
	assert.ErrorIs(t, err, ErrStepNeedsTerminal)
}

func TestDeployStepDeclineAborts(t *testing.T) {
	dir := writeWorkspace(t, workspaceYAML)
	fake := useFakeExecutor(t)
	original := stdinIsTerminal
	stdinIsTerminal = func() bool { return true }
	t.Cleanup(func() { stdinIsTerminal = original })

	cmd := newRootCommand()
	registerSubcommands(cmd)
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)
	cmd.SetIn(strings.NewReader("n\n"))
	t.Setenv("CONVOY_PROFILE", "")
	// the first mutating command is the fetch; declining it ends the run
	cmd.SetArgs([]string{"--log-level", "error", "--base-dir", dir, "deploy", "api", "--force", "--step"})
	err := cmd.Execute()
	assert.ErrorIs(t, err, command.ErrDeclined)
	assert.Empty(t, fake.Calls())
}

func TestDoctorReportsMissingTools(t *testing.T) {
	dir := writeWorkspace(t, workspaceYAML)
	fake := useFakeExecutor(t)
	fake.Respond("10.2.4", "npm", "--version")
	original := doctorLookPath
	doctorLookPath = func(name string) (string, error) {
		if name == "pm2" {
			return "", errors.New("not found")
		}
		return "/usr/bin/" + name, nil
	}
	t.Cleanup(func() { doctorLookPath = original })

	out, _, err := execRoot(t, "--base-dir", dir, "doctor")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pm2")
	assert.Contains(t, out, "missing")
	assert.Contains(t, out, "10.2.4")
	assert.Contains(t, out, "npm install -g pm2")
}
