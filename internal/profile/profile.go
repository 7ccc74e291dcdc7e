// Package profile holds the declared deploy profiles and resolves which of
// them take part in a run.
package profile

import (
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/fulmenhq/convoy/internal/deployerr"
	"github.com/fulmenhq/convoy/pkg/config"
	"github.com/fulmenhq/convoy/pkg/logger"
	"github.com/fulmenhq/convoy/pkg/versioning"
)

// Defaults applied to every declared profile
const (
	DefaultRepo             = "origin"
	DefaultBranch           = "master"
	DefaultSortOrder        = 10
	DefaultProcessCount     = 1
	DefaultInstanceTemplate = "${id}-${alpha}"
)

// Profile is a declared deploy target with defaults applied
type Profile struct {
	ID                   string              `json:"id" yaml:"id" toml:"id"`
	Title                string              `json:"title" yaml:"title" toml:"title"`
	Path                 string              `json:"path" yaml:"path" toml:"path"`
	Repo                 string              `json:"repo" yaml:"repo" toml:"repo"`
	Branch               string              `json:"branch" yaml:"branch" toml:"branch"`
	SortOrder            int                 `json:"sort" yaml:"sort" toml:"sort"`
	ProcessCount         int                 `json:"processes" yaml:"processes" toml:"processes"`
	InstanceNameTemplate string              `json:"instance_name" yaml:"instance_name" toml:"instance_name"`
	InstanceNames        []string            `json:"instance_names,omitempty" yaml:"instance_names,omitempty" toml:"instance_names,omitempty"`
	InstanceArgs         map[string][]string `json:"instance_args,omitempty" yaml:"instance_args,omitempty" toml:"instance_args,omitempty"`
	Script               string              `json:"script,omitempty" yaml:"script,omitempty" toml:"script,omitempty"`
	Env                  map[string]string   `json:"env,omitempty" yaml:"env,omitempty" toml:"env,omitempty"`
	Enabled              bool                `json:"enabled" yaml:"enabled" toml:"enabled"`
	PeerDeploy           []string            `json:"peer_deploy,omitempty" yaml:"peer_deploy,omitempty" toml:"peer_deploy,omitempty"`
	PeerDeny             []string            `json:"peer_deny,omitempty" yaml:"peer_deny,omitempty" toml:"peer_deny,omitempty"`
	SemverPolicy         versioning.Policy   `json:"semver" yaml:"semver" toml:"semver"`
	SemverBumpManifest   bool                `json:"semver_package" yaml:"semver_package" toml:"semver_package"`
	DeployScript         []string            `json:"deploy_script,omitempty" yaml:"deploy_script,omitempty" toml:"deploy_script,omitempty"`
}

// Registry is the immutable set of declared profiles in declaration order
type Registry struct {
	profiles []*Profile
	byID     map[string]*Profile
}

// New applies defaults to every definition and validates the set. Relative
// profile paths are resolved against baseDir.
func New(defs []config.ProfileConfig, baseDir string) (*Registry, error) {
	if len(defs) == 0 {
		return nil, &deployerr.ConfigError{Reason: "no deploy profiles declared"}
	}
	r := &Registry{byID: make(map[string]*Profile, len(defs))}
	for _, def := range defs {
		p, err := fromConfig(def, baseDir)
		if err != nil {
			return nil, err
		}
		if _, dup := r.byID[p.ID]; dup {
			return nil, deployerr.Configf(p.ID, "duplicate profile id")
		}
		r.byID[p.ID] = p
		r.profiles = append(r.profiles, p)
	}

	for _, p := range r.profiles {
		for _, peer := range p.PeerDeploy {
			if _, ok := r.byID[peer]; !ok {
				return nil, deployerr.Configf(p.ID, "peer_deploy names unknown profile %q", peer)
			}
			if peer == p.ID {
				return nil, deployerr.Configf(p.ID, "peer_deploy names itself")
			}
		}
		for _, denied := range p.PeerDeny {
			if denied == p.ID {
				return nil, deployerr.Configf(p.ID, "peer_deny names itself")
			}
			if _, ok := r.byID[denied]; !ok {
				logger.Warn("peer_deny names unknown profile", logger.String("profile", p.ID), logger.String("denied", denied))
			}
		}
	}
	return r, nil
}

// DefaultTitle derives a display title from a profile id: "api-worker" becomes "Api Worker"
func DefaultTitle(id string) string {
	words := strings.FieldsFunc(id, func(r rune) bool { return r == '-' || r == '_' || r == '.' })
	return cases.Title(language.English).String(strings.Join(words, " "))
}

func fromConfig(def config.ProfileConfig, baseDir string) (*Profile, error) {
	id := strings.TrimSpace(def.ID)
	if id == "" {
		return nil, &deployerr.ConfigError{Reason: "profile without id"}
	}

	policy, err := versioning.ParsePolicy(string(def.Semver))
	if err != nil {
		return nil, &deployerr.ConfigError{Profile: id, Reason: "invalid semver policy", Err: err}
	}

	p := &Profile{
		ID:                   id,
		Title:                def.Title,
		Path:                 def.Path,
		Repo:                 def.Repo,
		Branch:               def.Branch,
		SortOrder:            DefaultSortOrder,
		ProcessCount:         DefaultProcessCount,
		InstanceNameTemplate: def.InstanceName,
		InstanceNames:        append([]string(nil), def.InstanceNames...),
		Script:               def.Script,
		Enabled:              true,
		PeerDeploy:           append([]string(nil), def.PeerDeploy...),
		PeerDeny:             append([]string(nil), def.PeerDeny...),
		SemverPolicy:         policy,
		SemverBumpManifest:   def.SemverPackage,
		DeployScript:         append([]string(nil), def.DeployScript...),
	}
	if p.Title == "" {
		p.Title = DefaultTitle(id)
	}
	switch {
	case p.Path == "":
		p.Path = baseDir
	case !filepath.IsAbs(p.Path):
		p.Path = filepath.Join(baseDir, p.Path)
	}
	if p.Repo == "" {
		p.Repo = DefaultRepo
	}
	if p.Branch == "" {
		p.Branch = DefaultBranch
	}
	if def.Sort != nil {
		p.SortOrder = *def.Sort
	}
	if def.Processes != nil {
		if *def.Processes < 1 {
			return nil, deployerr.Configf(id, "processes must be at least 1, got %d", *def.Processes)
		}
		p.ProcessCount = *def.Processes
	}
	if p.InstanceNameTemplate == "" {
		p.InstanceNameTemplate = DefaultInstanceTemplate
	}
	if def.Enabled != nil {
		p.Enabled = *def.Enabled
	}
	if len(def.Env) > 0 {
		p.Env = make(map[string]string, len(def.Env))
		for k, v := range def.Env {
			p.Env[k] = v
		}
	}
	if len(def.InstanceArgs) > 0 {
		p.InstanceArgs = make(map[string][]string, len(def.InstanceArgs))
		for k, v := range def.InstanceArgs {
			p.InstanceArgs[k] = append([]string(nil), v...)
		}
	}
	return p, nil
}

// Profiles returns every declared profile in declaration order
func (r *Registry) Profiles() []*Profile {
	return append([]*Profile(nil), r.profiles...)
}

// Get looks up a profile by id
func (r *Registry) Get(id string) (*Profile, bool) {
	p, ok := r.byID[id]
	return p, ok
}

// EnabledIDs lists the ids of enabled profiles in declaration order
func (r *Registry) EnabledIDs() []string {
	var ids []string
	for _, p := range r.profiles {
		if p.Enabled {
			ids = append(ids, p.ID)
		}
	}
	return ids
}

// Override replaces the remote and target branch of every profile. Empty
// values leave the declared settings alone. It must be called before Resolve.
func (r *Registry) Override(repo, branch string) {
	for _, p := range r.profiles {
		if repo != "" {
			p.Repo = repo
		}
		if branch != "" {
			p.Branch = branch
		}
	}
}

// SortByOrder stably sorts profiles ascending by sort order; ties keep
// their existing relative order.
func SortByOrder(profiles []*Profile) {
	sort.SliceStable(profiles, func(i, j int) bool {
		return profiles[i].SortOrder < profiles[j].SortOrder
	})
}
