// Package deployerr defines the error taxonomy shared by every deploy stage.
// Callers match on the concrete types with errors.As.
package deployerr

import (
	"errors"
	"fmt"
	"strings"
)

// ConfigError reports a missing or malformed profile set, an instance-count
// overflow without explicit names, or an unknown bump policy.
type ConfigError struct {
	Profile string
	Reason  string
	Err     error
}

func (e *ConfigError) Error() string {
	var b strings.Builder
	b.WriteString("config error")
	if e.Profile != "" {
		fmt.Fprintf(&b, " in profile %q", e.Profile)
	}
	b.WriteString(": ")
	b.WriteString(e.Reason)
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *ConfigError) Unwrap() error { return e.Err }

// Configf builds a ConfigError for a profile.
func Configf(profile, format string, args ...interface{}) *ConfigError {
	return &ConfigError{Profile: profile, Reason: fmt.Sprintf(format, args...)}
}

// SelectionError reports that no usable profile was chosen.
type SelectionError struct {
	Reason    string
	Available []string
}

func (e *SelectionError) Error() string {
	if len(e.Available) == 0 {
		return "selection error: " + e.Reason
	}
	return fmt.Sprintf("selection error: %s (available: %s)", e.Reason, strings.Join(e.Available, ", "))
}

// PeerConflictError reports two selected profiles that deny each other.
type PeerConflictError struct {
	Profile string
	Denied  string
}

func (e *PeerConflictError) Error() string {
	return fmt.Sprintf("peer conflict: profile %q denies %q but both are selected", e.Profile, e.Denied)
}

// BranchSyntaxError reports a malformed dynamic tag expression.
type BranchSyntaxError struct {
	Expression string
	Reason     string
}

func (e *BranchSyntaxError) Error() string {
	return fmt.Sprintf("invalid branch expression %q: %s", e.Expression, e.Reason)
}

// SemverResolutionError reports that no tag satisfies the requested range.
type SemverResolutionError struct {
	Constraint string
	Candidates int
}

func (e *SemverResolutionError) Error() string {
	return fmt.Sprintf("no tag satisfies semver range %q (%d tags considered)", e.Constraint, e.Candidates)
}

// ExternalCommandError wraps a non-zero exit or spawn failure of an external
// command. Step names the deploy step that issued it.
type ExternalCommandError struct {
	Step     string
	Argv     []string
	ExitCode int
	Output   string
	Err      error
}

func (e *ExternalCommandError) Error() string {
	var b strings.Builder
	if e.Step != "" {
		fmt.Fprintf(&b, "failed %s: ", e.Step)
	}
	fmt.Fprintf(&b, "`%s`", strings.Join(e.Argv, " "))
	if e.ExitCode > 0 {
		fmt.Fprintf(&b, " exited with code %d", e.ExitCode)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *ExternalCommandError) Unwrap() error { return e.Err }

// WithStep returns err annotated with step when it is an ExternalCommandError
// that does not carry a step yet. Other errors are returned unchanged.
func WithStep(err error, step string) error {
	var ext *ExternalCommandError
	if errors.As(err, &ext) && ext.Step == "" {
		annotated := *ext
		annotated.Step = step
		return &annotated
	}
	return err
}

// FileAccessError reports a manifest that cannot be written for a version bump.
type FileAccessError struct {
	Path string
	Err  error
}

func (e *FileAccessError) Error() string {
	return fmt.Sprintf("file access error: %s is not writable: %v", e.Path, e.Err)
}

func (e *FileAccessError) Unwrap() error { return e.Err }
