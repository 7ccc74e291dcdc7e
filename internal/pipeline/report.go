package pipeline

import (
	"github.com/fulmenhq/convoy/internal/delta"
	"github.com/fulmenhq/convoy/internal/release"
)

// Report summarizes a run for the CLI and the JSON output
type Report struct {
	RunID    string           `json:"run_id"`
	DryRun   bool             `json:"dry_run"`
	Profiles []*ProfileReport `json:"profiles"`
	Failure  string           `json:"failure,omitempty"`
}

// ProfileReport records how far one profile got and what each stage did
type ProfileReport struct {
	ID    string  `json:"id"`
	Title string  `json:"title"`
	Path  string  `json:"path"`
	State State   `json:"state"`
	Trail []State `json:"trail"`

	// Skipped lists gated stages that did not run
	Skipped []string `json:"skipped,omitempty"`

	Revision      string                        `json:"revision,omitempty"`
	SyncAction    string                        `json:"sync_action,omitempty"`
	Deltas        map[delta.Domain]delta.Status `json:"deltas,omitempty"`
	ProcessAction string                        `json:"process_action,omitempty"`
	Instances     []string                      `json:"instances,omitempty"`
	Hooks         map[string]string             `json:"hooks,omitempty"`
	Release       *release.Result               `json:"release,omitempty"`
	Head          string                        `json:"head,omitempty"`
	Deferred      bool                          `json:"deferred,omitempty"`
}

// Succeeded reports whether every attempted profile finished
func (r *Report) Succeeded() bool {
	return r.Failure == ""
}
