// Package doctor checks that the external tools a deploy shells out to are
// installed before a run reaches them.
package doctor

import (
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"sort"
	"strings"

	"github.com/fulmenhq/convoy/internal/profile"
	"github.com/fulmenhq/convoy/pkg/command"
	"github.com/fulmenhq/convoy/pkg/config"
	"github.com/fulmenhq/convoy/pkg/logger"
)

// Tool represents an external program a deploy invokes
type Tool struct {
	Name        string   // executable looked up on PATH
	Purpose     string   // what the deploy uses it for
	VersionArgs []string // arguments that print a version
}

// Status represents the result of a tool check
type Status struct {
	Name         string
	Purpose      string
	Present      bool
	Path         string
	Version      string
	Instructions string
	Error        error
}

var versionToken = regexp.MustCompile(`\d+\.\d+(\.\d+)?`)

// RequiredTools derives the tool list from configuration: git, the process
// manager, the package commands and any deploy script resolved on PATH.
// Tools are deduplicated by name and returned sorted.
func RequiredTools(cfg *config.DeployConfig, profiles []*profile.Profile) []Tool {
	tools := map[string]Tool{}
	add := func(argv []string, purpose string) {
		if len(argv) == 0 || argv[0] == "" || strings.ContainsRune(argv[0], '/') {
			return
		}
		if existing, ok := tools[argv[0]]; ok {
			if !strings.Contains(existing.Purpose, purpose) {
				existing.Purpose += ", " + purpose
				tools[argv[0]] = existing
			}
			return
		}
		tools[argv[0]] = Tool{Name: argv[0], Purpose: purpose, VersionArgs: []string{"--version"}}
	}

	add([]string{"git"}, "fetch and sync")
	add([]string{cfg.Process.Manager}, "process lifecycle")
	add(cfg.Commands.Install, "package install")
	add(cfg.Commands.Build, "frontend build")
	add(cfg.Commands.Hook, "lifecycle hooks")
	for _, p := range profiles {
		if p.Enabled {
			add(p.DeployScript, "deploy script of "+p.ID)
		}
	}

	out := make([]Tool, 0, len(tools))
	for _, t := range tools {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Checker probes tools through an executor
type Checker struct {
	Exec command.Executor
	// LookPath resolves an executable; defaults to exec.LookPath
	LookPath func(string) (string, error)
}

// CheckTool reports whether t is on PATH and which version it prints
func (c *Checker) CheckTool(ctx context.Context, t Tool) Status {
	lookPath := c.LookPath
	if lookPath == nil {
		lookPath = exec.LookPath
	}
	st := Status{Name: t.Name, Purpose: t.Purpose}

	path, err := lookPath(t.Name)
	if err != nil {
		st.Instructions = installInstruction(t)
		st.Error = err
		return st
	}
	st.Present = true
	st.Path = path

	if len(t.VersionArgs) > 0 {
		argv := append([]string{t.Name}, t.VersionArgs...)
		out, err := c.Exec.Run(ctx, argv, command.Options{Buffer: true, Trim: true, ReadOnly: true})
		if err != nil {
			logger.Debug("version probe failed", logger.String("tool", t.Name), logger.Err(err))
		} else {
			st.Version = versionToken.FindString(out)
		}
	}
	return st
}

// CheckAll checks every tool in order
func (c *Checker) CheckAll(ctx context.Context, tools []Tool) []Status {
	out := make([]Status, 0, len(tools))
	for _, t := range tools {
		out = append(out, c.CheckTool(ctx, t))
	}
	return out
}

// Missing returns the names of absent tools
func Missing(statuses []Status) []string {
	var out []string
	for _, s := range statuses {
		if !s.Present {
			out = append(out, s.Name)
		}
	}
	return out
}

func installInstruction(t Tool) string {
	switch t.Name {
	case "git":
		return "Install git from your system package manager"
	case "pm2":
		return "Install with: npm install -g pm2"
	case "npm", "node", "npx":
		return "Install Node.js (https://nodejs.org), which ships npm"
	case "yarn", "pnpm":
		return fmt.Sprintf("Install with: npm install -g %s", t.Name)
	}
	return fmt.Sprintf("Install %s and make sure it is on PATH", t.Name)
}
