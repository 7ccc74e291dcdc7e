package profile

import (
	"fmt"
	"sort"
	"strings"

	"github.com/fulmenhq/convoy/internal/deployerr"
	"github.com/fulmenhq/convoy/pkg/logger"
)

// SelectionRequest describes which profiles the operator asked for
type SelectionRequest struct {
	All       bool
	IDs       []string
	DefaultID string
}

// SelectedSet is the outcome of selection: the profiles to run in run order
// plus what peer propagation contributed.
type SelectedSet struct {
	// Profiles are the enabled selected profiles sorted by sort order
	Profiles []*Profile
	// Peers are the ids added by peer propagation, sorted
	Peers []string
	// Excluded are selected ids skipped because they are disabled
	Excluded []string

	members map[string]bool
}

// Contains reports whether id ended up in the selected set, including
// disabled members
func (s *SelectedSet) Contains(id string) bool {
	return s.members[id]
}

// IDs returns the run order as ids
func (s *SelectedSet) IDs() []string {
	ids := make([]string, len(s.Profiles))
	for i, p := range s.Profiles {
		ids[i] = p.ID
	}
	return ids
}

// Resolve builds the run's selected set. Peer propagation is a single pass
// over the profiles selected before it starts, so peers of peers are only
// included when they were selected directly. Mutually denying members fail
// with *deployerr.PeerConflictError.
func (r *Registry) Resolve(req SelectionRequest) (*SelectedSet, error) {
	members := make(map[string]bool)

	switch {
	case req.All:
		for _, p := range r.profiles {
			if p.Enabled {
				members[p.ID] = true
			}
		}
		if len(members) == 0 {
			return nil, &deployerr.SelectionError{Reason: "every profile is disabled"}
		}
	default:
		ids := compact(req.IDs)
		if len(ids) == 0 && strings.TrimSpace(req.DefaultID) != "" {
			ids = []string{strings.TrimSpace(req.DefaultID)}
		}
		if len(ids) == 0 {
			return nil, &deployerr.SelectionError{Reason: "select at least one profile or use --all", Available: r.EnabledIDs()}
		}
		for _, id := range ids {
			p, ok := r.byID[id]
			if !ok {
				return nil, &deployerr.SelectionError{Reason: fmt.Sprintf("unknown profile %q", id), Available: r.EnabledIDs()}
			}
			if !p.Enabled {
				return nil, &deployerr.SelectionError{Reason: fmt.Sprintf("profile %q is disabled", id), Available: r.EnabledIDs()}
			}
			members[id] = true
		}
	}

	// Iterate the declaration-ordered snapshot of what was selected before
	// propagation; peers added here are not themselves expanded.
	var snapshot []*Profile
	for _, p := range r.profiles {
		if members[p.ID] {
			snapshot = append(snapshot, p)
		}
	}
	added := map[string]bool{}
	for _, p := range snapshot {
		if !p.Enabled || len(p.PeerDeploy) == 0 {
			continue
		}
		for _, peer := range p.PeerDeploy {
			if !members[peer] {
				members[peer] = true
				added[peer] = true
			}
		}
	}

	for _, p := range r.profiles {
		if !members[p.ID] || !p.Enabled {
			continue
		}
		for _, denied := range p.PeerDeny {
			if members[denied] {
				return nil, &deployerr.PeerConflictError{Profile: p.ID, Denied: denied}
			}
		}
	}

	set := &SelectedSet{members: members}
	for peer := range added {
		set.Peers = append(set.Peers, peer)
	}
	sort.Strings(set.Peers)

	for _, p := range r.profiles {
		if !members[p.ID] {
			continue
		}
		if !p.Enabled {
			logger.Warn("skipping disabled peer profile", logger.String("profile", p.ID))
			set.Excluded = append(set.Excluded, p.ID)
			continue
		}
		set.Profiles = append(set.Profiles, p)
	}
	SortByOrder(set.Profiles)
	return set, nil
}

func compact(ids []string) []string {
	seen := map[string]bool{}
	var out []string
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
