package gitctx

import (
	"context"
	"errors"
	"strings"

	"github.com/fulmenhq/convoy/internal/deployerr"
	"github.com/fulmenhq/convoy/pkg/command"
	"github.com/fulmenhq/convoy/pkg/logger"
)

// Client issues git commands for one working tree through a command.Executor.
// Every operation is a single invocation; failures come back as
// *deployerr.ExternalCommandError naming the git step.
type Client struct {
	Exec command.Executor
	Dir  string
	Env  map[string]string
}

// NewClient binds a client to a working directory and environment overlay
func NewClient(exec command.Executor, dir string, env map[string]string) *Client {
	return &Client{Exec: exec, Dir: dir, Env: env}
}

func (c *Client) opts(readOnly bool) command.Options {
	o := command.Options{Dir: c.Dir, Env: c.Env, ReadOnly: readOnly}
	if readOnly {
		o.Buffer = true
		o.Trim = true
	} else {
		o.Log = true
	}
	return o
}

func (c *Client) run(ctx context.Context, step string, args ...string) error {
	argv := append([]string{"git"}, args...)
	_, err := c.Exec.Run(ctx, argv, c.opts(false))
	return deployerr.WithStep(err, step)
}

func (c *Client) query(ctx context.Context, step string, args ...string) (string, error) {
	argv := append([]string{"git"}, args...)
	out, err := c.Exec.Run(ctx, argv, c.opts(true))
	return out, deployerr.WithStep(err, step)
}

// Fetch updates remote refs and tags
func (c *Client) Fetch(ctx context.Context, remote string) error {
	return c.run(ctx, "git fetch", "fetch", "--prune", "--tags", "--force", remote)
}

// ListTags returns every tag name in the repository
func (c *Client) ListTags(ctx context.Context) ([]string, error) {
	out, err := c.query(ctx, "git tag --list", "tag", "--list")
	if err != nil {
		return nil, err
	}
	return splitLines(out), nil
}

// CurrentBranch returns the checked-out branch, or "" when HEAD is detached
func (c *Client) CurrentBranch(ctx context.Context) (string, error) {
	return c.query(ctx, "git branch --show-current", "branch", "--show-current")
}

// CheckoutTracking force-creates branch at remote/branch and checks it out
func (c *Client) CheckoutTracking(ctx context.Context, remote, branch string) error {
	return c.run(ctx, "git checkout", "checkout", "--force", "-B", branch, "--track", remote+"/"+branch)
}

// ResetHard discards local state and moves the current branch to remote/branch
func (c *Client) ResetHard(ctx context.Context, remote, branch string) error {
	return c.run(ctx, "git reset", "reset", "--hard", remote+"/"+branch)
}

// CheckoutTag force-checks-out a tag with a detached HEAD
func (c *Client) CheckoutTag(ctx context.Context, tag string) error {
	return c.run(ctx, "git checkout", "checkout", "--force", "--detach", "refs/tags/"+tag)
}

// LatestTag returns the nearest reachable release tag, or "" when there is
// none. Any other describe failure is returned.
func (c *Client) LatestTag(ctx context.Context) (string, error) {
	out, err := c.query(ctx, "git describe", "describe", "--tags", "--abbrev=0", "--match", "v[0-9]*.[0-9]*.[0-9]*")
	if err != nil {
		if noTagReachable(err) {
			logger.Debug("no release tag reachable from HEAD")
			return "", nil
		}
		return "", err
	}
	return out, nil
}

// noTagReachable matches the describe failures git reports for a repository
// without a matching tag
func noTagReachable(err error) bool {
	var ext *deployerr.ExternalCommandError
	if !errors.As(err, &ext) || ext.ExitCode <= 0 {
		return false
	}
	return strings.Contains(ext.Output, "No names found") ||
		strings.Contains(ext.Output, "No tags can describe") ||
		strings.Contains(ext.Output, "cannot describe anything")
}

// Add stages a path
func (c *Client) Add(ctx context.Context, path string) error {
	return c.run(ctx, "git add", "add", "--", path)
}

// Commit records staged changes
func (c *Client) Commit(ctx context.Context, message string) error {
	return c.run(ctx, "git commit", "commit", "-m", message)
}

// CreateTag creates a lightweight tag at HEAD
func (c *Client) CreateTag(ctx context.Context, tag string) error {
	return c.run(ctx, "git tag", "tag", tag)
}

// PushTag publishes a tag to remote; withHead also pushes the current branch
// in the same atomic push.
func (c *Client) PushTag(ctx context.Context, remote, tag string, withHead bool) error {
	args := []string{"push"}
	if withHead {
		args = append(args, "--atomic", remote, "HEAD", "refs/tags/"+tag)
	} else {
		args = append(args, remote, "refs/tags/"+tag)
	}
	return c.run(ctx, "git push", args...)
}

func splitLines(s string) []string {
	var out []string
	for _, line := range strings.Split(s, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return out
}
