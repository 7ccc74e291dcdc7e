// Package process derives process-manager instances for a profile and
// decides whether to start or restart them.
package process

import (
	"github.com/fulmenhq/convoy/internal/deployerr"
	"github.com/fulmenhq/convoy/internal/profile"
	"github.com/fulmenhq/convoy/pkg/versioning"
)

const alphabet = "abcdefghijklmnopqrstuvwxyz"

// MaxTemplatedInstances is the number of instances a letter suffix can name
const MaxTemplatedInstances = len(alphabet)

// DefaultArgsKey selects the argument list used by instances without their own
const DefaultArgsKey = "default"

// Instance is one concrete process derived from a profile
type Instance struct {
	Name  string   `json:"name" yaml:"name" toml:"name"`
	Args  []string `json:"args,omitempty" yaml:"args,omitempty" toml:"args,omitempty"`
	Index int      `json:"index" yaml:"index" toml:"index"`
}

// Derive produces the instances of p. Explicit instance names win over the
// name template; otherwise ProcessCount names are generated, which cannot
// exceed MaxTemplatedInstances. version may be nil when the profile has no
// package manifest.
func Derive(p *profile.Profile, version *versioning.Version) ([]Instance, error) {
	names := p.InstanceNames
	if len(names) == 0 {
		if p.ProcessCount > MaxTemplatedInstances {
			return nil, deployerr.Configf(p.ID, "processes is %d but only %d instances can be named from a template; set instance_names", p.ProcessCount, MaxTemplatedInstances)
		}
		names = make([]string, p.ProcessCount)
		for offset := range names {
			name, err := Expand(p.InstanceNameTemplate, varsFor(p, offset, version))
			if err != nil {
				return nil, &deployerr.ConfigError{Profile: p.ID, Reason: "instance_name", Err: err}
			}
			names[offset] = name
		}
	}

	seen := make(map[string]bool, len(names))
	instances := make([]Instance, len(names))
	for offset, name := range names {
		if seen[name] {
			return nil, deployerr.Configf(p.ID, "instance name %q is not unique", name)
		}
		seen[name] = true

		args, ok := p.InstanceArgs[name]
		if !ok {
			args = p.InstanceArgs[DefaultArgsKey]
		}
		expanded := make([]string, 0, len(args))
		for _, arg := range args {
			a, err := Expand(arg, varsFor(p, offset, version))
			if err != nil {
				return nil, &deployerr.ConfigError{Profile: p.ID, Reason: "instance_args for " + name, Err: err}
			}
			expanded = append(expanded, a)
		}
		instances[offset] = Instance{Name: name, Args: expanded, Index: offset}
	}
	return instances, nil
}

// InstanceNames returns the instance names in order
func InstanceNames(instances []Instance) []string {
	out := make([]string, len(instances))
	for i, inst := range instances {
		out[i] = inst.Name
	}
	return out
}

func varsFor(p *profile.Profile, offset int, version *versioning.Version) Vars {
	v := Vars{ID: p.ID, Offset: offset, Version: version}
	if offset < len(alphabet) {
		v.Alpha = alphabet[offset : offset+1]
	}
	return v
}
