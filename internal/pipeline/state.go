package pipeline

import "fmt"

// State is a step of one profile's pipeline. States only move forward.
type State string

const (
	Pending            State = "pending"
	PathEntered        State = "path-entered"
	EnvMerged          State = "env-merged"
	ScriptDeferred     State = "script-deferred"
	PreHookRun         State = "pre-hook-run"
	Fetched            State = "fetched"
	BranchResolved     State = "branch-resolved"
	DeltaAfterCaptured State = "delta-after-captured"
	PackagesStage      State = "packages"
	FrontendStage      State = "frontend"
	BackendStage       State = "backend"
	PostHookRun        State = "post-hook-run"
	Tagged             State = "tagged"
	Done               State = "done"
	Failed             State = "failed"
)

// Outcome is what a stage tells the runner to do next
type Outcome int

const (
	// Continue proceeds to the next stage
	Continue Outcome = iota
	// SkipRemainingStages ends the profile successfully
	SkipRemainingStages
	// Fail aborts the whole run
	Fail
)

func (o Outcome) String() string {
	switch o {
	case Continue:
		return "continue"
	case SkipRemainingStages:
		return "skip-remaining-stages"
	case Fail:
		return "fail"
	}
	return fmt.Sprintf("outcome(%d)", int(o))
}

// Error is a failed profile pipeline. It aborts the run.
type Error struct {
	Profile string
	State   State
	Err     error
}

func (e *Error) Error() string {
	return fmt.Sprintf("profile %q failed during %s: %v", e.Profile, e.State, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }
