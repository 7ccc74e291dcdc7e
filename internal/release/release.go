// Package release computes the next release version of a profile and records
// it as a git tag.
package release

import (
	"context"
	"errors"
	"fmt"

	"github.com/fulmenhq/convoy/internal/deployerr"
	"github.com/fulmenhq/convoy/internal/manifest"
	"github.com/fulmenhq/convoy/pkg/logger"
	"github.com/fulmenhq/convoy/pkg/safeio"
	"github.com/fulmenhq/convoy/pkg/versioning"
)

// InitialVersion is assumed when neither a manifest nor a tag carries one
const InitialVersion = "0.0.0"

// Bump computes the version following current under policy. Policies other
// than patch, minor and major are a *deployerr.ConfigError.
func Bump(current string, policy versioning.Policy) (*versioning.Version, error) {
	switch policy {
	case versioning.PolicyPatch, versioning.PolicyMinor, versioning.PolicyMajor:
	default:
		return nil, &deployerr.ConfigError{Reason: fmt.Sprintf("unknown semver bump policy %q", policy)}
	}
	v, err := versioning.ParseLenient(current)
	if err != nil {
		return nil, &deployerr.ConfigError{Reason: fmt.Sprintf("current version %q is not semver", current), Err: err}
	}
	return v.Bump(policy), nil
}

// ShouldRun reports whether the tag stage runs: the policy must bump and
// either the run is forced or some domain changed.
func ShouldRun(policy versioning.Policy, force, anyChanged bool) bool {
	return policy.Enabled() && (force || anyChanged)
}

// Git is the version-control surface the tagger needs
type Git interface {
	LatestTag(ctx context.Context) (string, error)
	Add(ctx context.Context, path string) error
	Commit(ctx context.Context, message string) error
	CreateTag(ctx context.Context, tag string) error
	PushTag(ctx context.Context, remote, tag string, withHead bool) error
}

// Request describes one profile's tag stage
type Request struct {
	ProfileID    string
	Remote       string
	Policy       versioning.Policy
	BumpManifest bool
	// Manifest is the profile's package.json; nil when it has none
	Manifest *manifest.Manifest
	// Detached is set when the working tree was checked out at a tag. The
	// release commit then has no branch to publish and only the tag is pushed.
	Detached bool
}

// Result describes what the tagger did
type Result struct {
	Previous       string `json:"previous"`
	Version        string `json:"version"`
	Tag            string `json:"tag"`
	ManifestBumped bool   `json:"manifest_bumped"`
}

// Tagger bumps, optionally rewrites the manifest, then tags and publishes
type Tagger struct {
	Git Git
	// DryRun leaves the manifest file untouched; git commands are expected
	// to go through a recording executor
	DryRun bool
}

// Run executes the stage. The manifest is checked for write access before
// any git mutation; tag creation and publishing are separate ordered steps.
func (t *Tagger) Run(ctx context.Context, req Request) (*Result, error) {
	current, err := t.currentVersion(ctx, req)
	if err != nil {
		return nil, err
	}
	next, err := Bump(current, req.Policy)
	if err != nil {
		var cfgErr *deployerr.ConfigError
		if errors.As(err, &cfgErr) {
			cfgErr.Profile = req.ProfileID
		}
		return nil, err
	}
	res := &Result{Previous: current, Version: next.Core(), Tag: next.Tag()}
	logger.Info("release version", logger.String("profile", req.ProfileID), logger.String("from", current), logger.String("to", res.Version))

	if req.BumpManifest {
		if err := safeio.CheckWritable(req.Manifest.Path); err != nil {
			return nil, &deployerr.FileAccessError{Path: req.Manifest.Path, Err: err}
		}
		if t.DryRun {
			logger.Info("dry-run: leaving manifest version unchanged", logger.String("path", req.Manifest.Path))
		} else if err := req.Manifest.SetVersion(res.Version); err != nil {
			return nil, &deployerr.FileAccessError{Path: req.Manifest.Path, Err: err}
		}
		if err := t.Git.Add(ctx, manifest.FileName); err != nil {
			return nil, err
		}
		if err := t.Git.Commit(ctx, "Release "+res.Tag); err != nil {
			return nil, err
		}
		res.ManifestBumped = true
	}

	if err := t.Git.CreateTag(ctx, res.Tag); err != nil {
		return nil, err
	}
	withHead := res.ManifestBumped && !req.Detached
	if res.ManifestBumped && req.Detached {
		logger.Warn("detached HEAD: release commit is published through its tag only", logger.String("profile", req.ProfileID), logger.String("tag", res.Tag))
	}
	if err := t.Git.PushTag(ctx, req.Remote, res.Tag, withHead); err != nil {
		return nil, err
	}
	return res, nil
}

func (t *Tagger) currentVersion(ctx context.Context, req Request) (string, error) {
	if req.BumpManifest {
		if req.Manifest == nil {
			return "", deployerr.Configf(req.ProfileID, "semver_package is set but the profile has no %s", manifest.FileName)
		}
		if req.Manifest.Version == "" {
			return InitialVersion, nil
		}
		return req.Manifest.Version, nil
	}
	tag, err := t.Git.LatestTag(ctx)
	if err != nil {
		return "", err
	}
	if tag == "" {
		return InitialVersion, nil
	}
	return tag, nil
}
