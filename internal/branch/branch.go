// Package branch resolves a profile's branch setting to a concrete revision
// and brings the working tree to it.
//
// A branch setting is either a literal branch name or a tag expression:
//
//	tag semver=^2.0.0,sort=desc
//
// Recognized keys are semver (a version range, default "*") and sort
// ("asc" or "desc", default "desc").
package branch

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/fulmenhq/convoy/internal/deployerr"
	"github.com/fulmenhq/convoy/pkg/logger"
)

// Sentinel marks a branch setting as a dynamic tag expression. Git refs
// cannot contain spaces, so "tag " never collides with a real branch.
const Sentinel = "tag"

// Kind tells a branch revision apart from a tag revision
type Kind string

const (
	KindBranch Kind = "branch"
	KindTag    Kind = "tag"
)

// Revision is a resolved checkout target
type Revision struct {
	Name string
	Kind Kind
}

func (r Revision) String() string {
	return fmt.Sprintf("%s %s", r.Kind, r.Name)
}

// Order is the traversal order over lexicographically sorted tags
type Order string

const (
	Ascending  Order = "asc"
	Descending Order = "desc"
)

// Expression is a parsed tag expression
type Expression struct {
	Raw        string
	Constraint string
	Sort       Order

	constraints *semver.Constraints
}

// IsDynamic reports whether spec is a tag expression rather than a branch name
func IsDynamic(spec string) bool {
	spec = strings.TrimSpace(spec)
	return spec == Sentinel || strings.HasPrefix(spec, Sentinel+" ")
}

// ParseExpression parses a tag expression. Malformed input yields a
// *deployerr.BranchSyntaxError.
func ParseExpression(spec string) (Expression, error) {
	raw := strings.TrimSpace(spec)
	if !IsDynamic(raw) {
		return Expression{}, &deployerr.BranchSyntaxError{Expression: spec, Reason: fmt.Sprintf("missing %q prefix", Sentinel)}
	}

	expr := Expression{Raw: raw, Constraint: "*", Sort: Descending}
	body := strings.TrimSpace(strings.TrimPrefix(raw, Sentinel))
	seen := map[string]bool{}

	if body != "" {
		for _, pair := range strings.Split(body, ",") {
			key, value, ok := strings.Cut(strings.TrimSpace(pair), "=")
			key = strings.TrimSpace(key)
			value = strings.TrimSpace(value)
			if !ok || key == "" || value == "" {
				return Expression{}, &deployerr.BranchSyntaxError{Expression: spec, Reason: fmt.Sprintf("expected key=value, got %q", strings.TrimSpace(pair))}
			}
			if seen[key] {
				return Expression{}, &deployerr.BranchSyntaxError{Expression: spec, Reason: fmt.Sprintf("duplicate key %q", key)}
			}
			seen[key] = true

			switch key {
			case "semver":
				expr.Constraint = value
			case "sort":
				switch Order(strings.ToLower(value)) {
				case Ascending:
					expr.Sort = Ascending
				case Descending:
					expr.Sort = Descending
				default:
					return Expression{}, &deployerr.BranchSyntaxError{Expression: spec, Reason: fmt.Sprintf("sort must be asc or desc, got %q", value)}
				}
			default:
				return Expression{}, &deployerr.BranchSyntaxError{Expression: spec, Reason: fmt.Sprintf("unknown key %q", key)}
			}
		}
	}

	c, err := semver.NewConstraint(expr.Constraint)
	if err != nil {
		return Expression{}, &deployerr.BranchSyntaxError{Expression: spec, Reason: fmt.Sprintf("invalid semver range %q: %v", expr.Constraint, err)}
	}
	expr.constraints = c
	return expr, nil
}

// Select picks the first tag that satisfies the range after sorting tags
// lexicographically and reversing for descending order. Tags that are not
// semantic versions are skipped.
func (e Expression) Select(tags []string) (string, error) {
	ordered := append([]string(nil), tags...)
	sort.Strings(ordered)
	if e.Sort == Descending {
		for i, j := 0, len(ordered)-1; i < j; i, j = i+1, j-1 {
			ordered[i], ordered[j] = ordered[j], ordered[i]
		}
	}

	for _, tag := range ordered {
		v, err := semver.NewVersion(tag)
		if err != nil {
			logger.Trace("skipping non-semver tag", logger.String("tag", tag))
			continue
		}
		if e.constraints.Check(v) {
			return tag, nil
		}
	}
	return "", &deployerr.SemverResolutionError{Constraint: e.Constraint, Candidates: len(tags)}
}

// TagLister lists the tags known to the working tree
type TagLister func(ctx context.Context) ([]string, error)

// Resolve maps a branch setting to a concrete revision. Literal names are
// returned verbatim without listing tags.
func Resolve(ctx context.Context, spec string, listTags TagLister) (Revision, error) {
	if !IsDynamic(spec) {
		name := strings.TrimSpace(spec)
		if name == "" {
			return Revision{}, &deployerr.BranchSyntaxError{Expression: spec, Reason: "empty branch name"}
		}
		return Revision{Name: name, Kind: KindBranch}, nil
	}

	expr, err := ParseExpression(spec)
	if err != nil {
		return Revision{}, err
	}
	tags, err := listTags(ctx)
	if err != nil {
		return Revision{}, err
	}
	tag, err := expr.Select(tags)
	if err != nil {
		return Revision{}, err
	}
	logger.Debug("resolved tag expression", logger.String("expression", expr.Raw), logger.String("tag", tag))
	return Revision{Name: tag, Kind: KindTag}, nil
}
