// Package gitctx reads and drives the git working tree of a deploy profile.
//
// Inspection uses go-git so it works without a git binary; mutations go
// through Client so dry-run and step modes see them.
package gitctx

import (
	"errors"
	"path/filepath"
	"sort"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
)

// ErrNotRepository is returned when the path is not inside a git work tree
var ErrNotRepository = errors.New("not a git repository")

// State is a point-in-time view of a working tree
type State struct {
	Branch        string   `json:"branch,omitempty"`
	SHA           string   `json:"sha,omitempty"`
	Detached      bool     `json:"detached"`
	ModifiedFiles []string `json:"modified_files,omitempty"`
	ChangeScope   string   `json:"change_scope"` // small | medium | large
}

// Dirty reports whether the tree has staged or unstaged changes
func (s *State) Dirty() bool {
	return s != nil && len(s.ModifiedFiles) > 0
}

// ShortSHA returns the abbreviated commit id
func (s *State) ShortSHA() string {
	if s == nil || len(s.SHA) < 7 {
		return ""
	}
	return s.SHA[:7]
}

// Inspect reads HEAD and the work-tree status of the repository containing dir
func Inspect(dir string) (*State, error) {
	repo, err := git.PlainOpenWithOptions(dir, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		if errors.Is(err, git.ErrRepositoryNotExists) {
			return nil, ErrNotRepository
		}
		return nil, err
	}

	state := &State{ChangeScope: classifyByFileCount(0)}
	head, err := repo.Head()
	switch {
	case errors.Is(err, plumbing.ErrReferenceNotFound):
		// unborn branch: no commits yet
	case err != nil:
		return nil, err
	default:
		state.SHA = head.Hash().String()
		if head.Name().IsBranch() {
			state.Branch = head.Name().Short()
		} else {
			state.Detached = true
		}
	}

	wt, err := repo.Worktree()
	if err != nil {
		return nil, err
	}
	st, err := wt.Status()
	if err != nil {
		return nil, err
	}
	for path, s := range st {
		if s.Staging != git.Unmodified || s.Worktree != git.Unmodified {
			state.ModifiedFiles = append(state.ModifiedFiles, filepath.ToSlash(path))
		}
	}
	sort.Strings(state.ModifiedFiles)
	state.ChangeScope = classifyByFileCount(len(state.ModifiedFiles))
	return state, nil
}

// classifyByFileCount maps a count of modified files to a coarse scope label
func classifyByFileCount(n int) string {
	if n <= 5 {
		return "small"
	}
	if n <= 20 {
		return "medium"
	}
	return "large"
}
