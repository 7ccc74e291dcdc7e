/*
Copyright © 2025 3 Leaps <info@3leaps.com>
*/
package ops

import (
	"fmt"
	"sort"
	"sync"

	"github.com/spf13/cobra"
)

// CommandGroup represents the operational classification of commands
type CommandGroup string

const (
	GroupDeploy  CommandGroup = "deploy"  // deploy
	GroupInspect CommandGroup = "inspect" // plan, profiles
	GroupSupport CommandGroup = "support" // version, help
)

// Groups lists every group in help order
var Groups = []CommandGroup{GroupDeploy, GroupInspect, GroupSupport}

// Title returns the help heading for a group
func (g CommandGroup) Title() string {
	switch g {
	case GroupDeploy:
		return "Deploy Commands"
	case GroupInspect:
		return "Inspection Commands"
	case GroupSupport:
		return "Support Commands"
	}
	return string(g)
}

// CommandRegistration represents a registered command with its classification
type CommandRegistration struct {
	Name        string
	Group       CommandGroup
	Command     *cobra.Command
	Description string
}

// Registry manages command classifications and registrations
type Registry struct {
	mu         sync.RWMutex
	commands   map[string]*CommandRegistration
	groupIndex map[CommandGroup][]*CommandRegistration
}

// NewRegistry returns an empty registry. Each root command owns one so test
// trees stay isolated.
func NewRegistry() *Registry {
	return &Registry{
		commands:   make(map[string]*CommandRegistration),
		groupIndex: make(map[CommandGroup][]*CommandRegistration),
	}
}

// Register adds a command to the registry. The description defaults to the
// command's Short text.
func (r *Registry) Register(group CommandGroup, cmd *cobra.Command) error {
	if cmd == nil {
		return fmt.Errorf("nil command")
	}
	known := false
	for _, g := range Groups {
		known = known || g == group
	}
	if !known {
		return fmt.Errorf("command %s: unknown group %q", cmd.Name(), group)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	name := cmd.Name()
	if _, exists := r.commands[name]; exists {
		return fmt.Errorf("command %s already registered", name)
	}

	registration := &CommandRegistration{
		Name:        name,
		Group:       group,
		Command:     cmd,
		Description: cmd.Short,
	}
	r.commands[name] = registration
	r.groupIndex[group] = append(r.groupIndex[group], registration)
	return nil
}

// GetCommand returns a registered command by name
func (r *Registry) GetCommand(name string) (*CommandRegistration, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cmd, exists := r.commands[name]
	return cmd, exists
}

// GetCommandsByGroup returns the commands of a group sorted by name
func (r *Registry) GetCommandsByGroup(group CommandGroup) []*CommandRegistration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := append([]*CommandRegistration(nil), r.groupIndex[group]...)
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// ListGroups returns all command groups and their command counts
func (r *Registry) ListGroups() map[CommandGroup]int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make(map[CommandGroup]int)
	for group, commands := range r.groupIndex {
		result[group] = len(commands)
	}
	return result
}

// Unregistered returns the names of root's available subcommands that have
// no classification. Cobra's generated help and completion commands are
// ignored.
func (r *Registry) Unregistered(root *cobra.Command) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var missing []string
	for _, c := range root.Commands() {
		name := c.Name()
		if name == "help" || name == "completion" || !c.IsAvailableCommand() {
			continue
		}
		if _, ok := r.commands[name]; !ok {
			missing = append(missing, name)
		}
	}
	sort.Strings(missing)
	return missing
}
