package branch

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fulmenhq/convoy/internal/deployerr"
)

var releaseTags = []string{"v3.0.0", "v1.9.0", "v2.1.0", "nightly", "v2.0.0"}

func listing(tags []string, calls *int) TagLister {
	return func(context.Context) ([]string, error) {
		*calls++
		return tags, nil
	}
}

func TestIsDynamic(t *testing.T) {
	assert.True(t, IsDynamic("tag"))
	assert.True(t, IsDynamic("tag semver=^1.0.0"))
	assert.True(t, IsDynamic("  tag sort=asc"))
	assert.False(t, IsDynamic("main"))
	assert.False(t, IsDynamic("tagged-release"))
	assert.False(t, IsDynamic(""))
}

func TestParseExpressionDefaults(t *testing.T) {
	expr, err := ParseExpression("tag")
	require.NoError(t, err)
	assert.Equal(t, "*", expr.Constraint)
	assert.Equal(t, Descending, expr.Sort)
}

func TestParseExpressionSyntaxErrors(t *testing.T) {
	cases := map[string]string{
		"missing equals":    "tag semver",
		"empty value":       "tag semver=",
		"unknown key":       "tag channel=beta",
		"bad sort":          "tag sort=random",
		"duplicate key":     "tag sort=asc,sort=desc",
		"invalid range":     "tag semver=banana",
		"not an expression": "release",
	}
	for name, spec := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseExpression(spec)
			var syntaxErr *deployerr.BranchSyntaxError
			require.True(t, errors.As(err, &syntaxErr), "got %v", err)
			assert.NotEmpty(t, syntaxErr.Reason)
		})
	}
}

func TestSelectDescendingPicksHighestInRange(t *testing.T) {
	expr, err := ParseExpression("tag semver=^2.0.0,sort=desc")
	require.NoError(t, err)

	tag, err := expr.Select(releaseTags)
	require.NoError(t, err)
	assert.Equal(t, "v2.1.0", tag)
}

func TestSelectAscendingPicksLowestInRange(t *testing.T) {
	expr, err := ParseExpression("tag semver=^2.0.0, sort=asc")
	require.NoError(t, err)

	tag, err := expr.Select(releaseTags)
	require.NoError(t, err)
	assert.Equal(t, "v2.0.0", tag)
}

func TestSelectUsesLexicographicOrder(t *testing.T) {
	// v1.10.0 sorts before v1.9.0 as text, so descending order visits v1.9.0 first
	expr, err := ParseExpression("tag semver=~1")
	require.NoError(t, err)

	tag, err := expr.Select([]string{"v1.10.0", "v1.9.0"})
	require.NoError(t, err)
	assert.Equal(t, "v1.9.0", tag)
}

func TestSelectDoesNotMutateInput(t *testing.T) {
	expr, err := ParseExpression("tag")
	require.NoError(t, err)
	in := []string{"v2.0.0", "v1.0.0"}
	_, err = expr.Select(in)
	require.NoError(t, err)
	assert.Equal(t, []string{"v2.0.0", "v1.0.0"}, in)
}

func TestSelectNoMatch(t *testing.T) {
	expr, err := ParseExpression("tag semver=^9.0.0")
	require.NoError(t, err)

	_, err = expr.Select(releaseTags)
	var semErr *deployerr.SemverResolutionError
	require.True(t, errors.As(err, &semErr))
	assert.Equal(t, "^9.0.0", semErr.Constraint)
	assert.Equal(t, len(releaseTags), semErr.Candidates)
}

func TestResolveLiteralSkipsTagListing(t *testing.T) {
	calls := 0
	rev, err := Resolve(context.Background(), "release/2025-q1", listing(releaseTags, &calls))
	require.NoError(t, err)
	assert.Equal(t, Revision{Name: "release/2025-q1", Kind: KindBranch}, rev)
	assert.Zero(t, calls)
}

func TestResolveEmptyBranch(t *testing.T) {
	calls := 0
	_, err := Resolve(context.Background(), "  ", listing(nil, &calls))
	var syntaxErr *deployerr.BranchSyntaxError
	assert.True(t, errors.As(err, &syntaxErr))
}

func TestResolveTagExpression(t *testing.T) {
	calls := 0
	rev, err := Resolve(context.Background(), "tag semver=^2.0.0,sort=desc", listing(releaseTags, &calls))
	require.NoError(t, err)
	assert.Equal(t, Revision{Name: "v2.1.0", Kind: KindTag}, rev)
	assert.Equal(t, "tag v2.1.0", rev.String())
	assert.Equal(t, 1, calls)
}

func TestResolveSyntaxErrorBeforeListing(t *testing.T) {
	calls := 0
	_, err := Resolve(context.Background(), "tag sort=sideways", listing(releaseTags, &calls))
	assert.Error(t, err)
	assert.Zero(t, calls)
}

func TestResolvePropagatesListingError(t *testing.T) {
	boom := errors.New("git unavailable")
	_, err := Resolve(context.Background(), "tag", func(context.Context) ([]string, error) {
		return nil, boom
	})
	assert.ErrorIs(t, err, boom)
}

type recordingGit struct {
	current string
	calls   []string
	fail    error
}

func (g *recordingGit) CurrentBranch(context.Context) (string, error) {
	g.calls = append(g.calls, "current")
	return g.current, nil
}

func (g *recordingGit) CheckoutTracking(_ context.Context, remote, branch string) error {
	g.calls = append(g.calls, "checkout "+remote+"/"+branch)
	return g.fail
}

func (g *recordingGit) ResetHard(_ context.Context, remote, branch string) error {
	g.calls = append(g.calls, "reset "+remote+"/"+branch)
	return g.fail
}

func (g *recordingGit) CheckoutTag(_ context.Context, tag string) error {
	g.calls = append(g.calls, "detach "+tag)
	return g.fail
}

func TestSyncSwitchesBranch(t *testing.T) {
	g := &recordingGit{current: "develop"}
	action, err := Sync(context.Background(), g, "origin", Revision{Name: "main", Kind: KindBranch})
	require.NoError(t, err)
	assert.Equal(t, ActionCheckout, action)
	assert.Equal(t, []string{"current", "checkout origin/main"}, g.calls)
}

func TestSyncResetsCurrentBranch(t *testing.T) {
	g := &recordingGit{current: "main"}
	action, err := Sync(context.Background(), g, "upstream", Revision{Name: "main", Kind: KindBranch})
	require.NoError(t, err)
	assert.Equal(t, ActionReset, action)
	assert.Equal(t, []string{"current", "reset upstream/main"}, g.calls)
}

func TestSyncDetachesOnTag(t *testing.T) {
	g := &recordingGit{current: "main"}
	action, err := Sync(context.Background(), g, "origin", Revision{Name: "v2.1.0", Kind: KindTag})
	require.NoError(t, err)
	assert.Equal(t, ActionDetach, action)
	assert.Equal(t, []string{"detach v2.1.0"}, g.calls)
}

func TestSyncPropagatesFailure(t *testing.T) {
	boom := errors.New("checkout failed")
	g := &recordingGit{current: "develop", fail: boom}
	_, err := Sync(context.Background(), g, "origin", Revision{Name: "main", Kind: KindBranch})
	assert.ErrorIs(t, err, boom)
}
