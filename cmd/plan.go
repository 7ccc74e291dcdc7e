/*
Copyright © 2025 3 Leaps <info@3leaps.com>
*/
package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/fulmenhq/convoy/internal/branch"
	"github.com/fulmenhq/convoy/internal/console"
	"github.com/fulmenhq/convoy/internal/delta"
	"github.com/fulmenhq/convoy/internal/gitctx"
	"github.com/fulmenhq/convoy/internal/manifest"
	"github.com/fulmenhq/convoy/internal/process"
	"github.com/fulmenhq/convoy/internal/profile"
	"github.com/fulmenhq/convoy/pkg/logger"
	"github.com/fulmenhq/convoy/pkg/versioning"
)

// Plan is the resolved deploy plan for a selection. It is rendered without
// running any external command.
type Plan struct {
	BaseDir  string      `json:"base_dir" yaml:"base_dir" toml:"base_dir"`
	Peers    []string    `json:"peers,omitempty" yaml:"peers,omitempty" toml:"peers,omitempty"`
	Excluded []string    `json:"excluded,omitempty" yaml:"excluded,omitempty" toml:"excluded,omitempty"`
	Profiles []PlanEntry `json:"profiles" yaml:"profiles" toml:"profiles"`
}

// PlanEntry describes one profile of the plan in run order
type PlanEntry struct {
	ID           string   `json:"id" yaml:"id" toml:"id"`
	Title        string   `json:"title" yaml:"title" toml:"title"`
	Path         string   `json:"path" yaml:"path" toml:"path"`
	Repo         string   `json:"repo" yaml:"repo" toml:"repo"`
	Branch       string   `json:"branch" yaml:"branch" toml:"branch"`
	Dynamic      bool     `json:"dynamic" yaml:"dynamic" toml:"dynamic"`
	Sort         int      `json:"sort" yaml:"sort" toml:"sort"`
	Peer         bool     `json:"peer" yaml:"peer" toml:"peer"`
	Instances    []string `json:"instances,omitempty" yaml:"instances,omitempty" toml:"instances,omitempty"`
	DeployScript []string `json:"deploy_script,omitempty" yaml:"deploy_script,omitempty" toml:"deploy_script,omitempty"`
	Semver       string   `json:"semver" yaml:"semver" toml:"semver"`
	Head         string   `json:"head,omitempty" yaml:"head,omitempty" toml:"head,omitempty"`
	Dirty        bool     `json:"dirty" yaml:"dirty" toml:"dirty"`
	// Watched counts the files each delta domain fingerprints
	Watched map[string]int `json:"watched,omitempty" yaml:"watched,omitempty" toml:"watched,omitempty"`
}

var planFormats = []string{"text", "json", "yaml", "toml"}

func newPlanCommand() *cobra.Command {
	sel := &selectionFlags{}
	var format string
	cmd := &cobra.Command{
		Use:   "plan [profile...]",
		Short: "Show the resolved deploy plan",
		Long: `Plan resolves a selection exactly like deploy (peers, deny rules, sort order,
overrides) and prints the profiles that would run with their target branch and
process instances. It never runs an external command.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			logChangedFlags(cmd.Name(), cmd.Flags())
			ws, err := loadWorkspace(cmd)
			if err != nil {
				return err
			}
			set, err := sel.resolve(ws, args)
			if err != nil {
				return err
			}
			patterns, err := ws.patterns()
			if err != nil {
				return err
			}
			plan, err := buildPlan(cmd.Context(), ws.baseDir, patterns, set)
			if err != nil {
				return err
			}
			return renderPlan(cmd.OutOrStdout(), plan, format)
		},
	}
	sel.register(cmd)
	cmd.Flags().StringVarP(&format, "output", "o", "text", "Output format ("+strings.Join(planFormats, "|")+")")
	return cmd
}

func buildPlan(ctx context.Context, baseDir string, patterns map[delta.Domain][]string, set *profile.SelectedSet) (*Plan, error) {
	plan := &Plan{BaseDir: baseDir, Peers: set.Peers, Excluded: set.Excluded}
	peers := make(map[string]bool, len(set.Peers))
	for _, id := range set.Peers {
		peers[id] = true
	}

	for _, p := range set.Profiles {
		entry := PlanEntry{
			ID:           p.ID,
			Title:        p.Title,
			Path:         p.Path,
			Repo:         p.Repo,
			Branch:       p.Branch,
			Dynamic:      branch.IsDynamic(p.Branch),
			Sort:         p.SortOrder,
			Peer:         peers[p.ID],
			DeployScript: p.DeployScript,
			Semver:       string(p.SemverPolicy),
		}
		if entry.Dynamic {
			if _, err := branch.ParseExpression(p.Branch); err != nil {
				return nil, err
			}
		}
		if len(p.DeployScript) == 0 {
			instances, err := process.Derive(p, manifestVersion(p.Path))
			if err != nil {
				return nil, err
			}
			entry.Instances = process.InstanceNames(instances)
		}
		if state, err := gitctx.Inspect(p.Path); err == nil {
			entry.Head = state.ShortSHA()
			entry.Dirty = state.Dirty()
		}
		watched, err := watchedFiles(ctx, p.Path, patterns)
		if err != nil {
			return nil, err
		}
		entry.Watched = watched
		plan.Profiles = append(plan.Profiles, entry)
	}
	return plan, nil
}

// watchedFiles counts the files per domain; a path that cannot be walked
// yields nil so the plan still renders
func watchedFiles(ctx context.Context, dir string, patterns map[delta.Domain][]string) (map[string]int, error) {
	tracker, err := delta.NewTracker(dir, patterns)
	if err != nil {
		logger.Debug("skipping delta file counts", logger.String("path", dir), logger.Err(err))
		return nil, nil
	}
	counts := make(map[string]int, len(delta.Domains))
	for _, d := range delta.Domains {
		files, err := tracker.Files(ctx, d)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			logger.Debug("skipping delta file counts", logger.String("path", dir), logger.Err(err))
			return nil, nil
		}
		counts[string(d)] = len(files)
	}
	return counts, nil
}

// manifestVersion reads the version template variables from the profile's
// manifest; a missing or unversioned manifest yields nil
func manifestVersion(dir string) *versioning.Version {
	m, err := manifest.Load(dir)
	if err != nil || m.Version == "" {
		return nil
	}
	v, err := versioning.ParseLenient(m.Version)
	if err != nil {
		return nil
	}
	return v
}

func renderPlan(w io.Writer, plan *Plan, format string) error {
	switch strings.ToLower(format) {
	case "text", "":
		return renderPlanText(w, plan)
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(plan)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(plan); err != nil {
			return err
		}
		return enc.Close()
	case "toml":
		return toml.NewEncoder(w).Encode(plan)
	}
	return fmt.Errorf("unknown output format %q (want %s)", format, strings.Join(planFormats, ", "))
}

func renderPlanText(w io.Writer, plan *Plan) error {
	if len(plan.Profiles) == 0 {
		_, err := fmt.Fprintln(w, "No enabled profile selected.")
		return err
	}
	rows := [][]string{{"#", "ID", "BRANCH", "INSTANCES", "PATH"}}
	for i, e := range plan.Profiles {
		id := e.ID
		if e.Peer {
			id += " (peer)"
		}
		instances := strings.Join(e.Instances, ",")
		if len(e.DeployScript) > 0 {
			instances = "deploy script"
		}
		rows = append(rows, []string{strconv.Itoa(i + 1), id, e.Repo + " " + e.Branch, instances, e.Path})
	}
	console.Table(w, rows)
	if len(plan.Excluded) > 0 {
		if _, err := fmt.Fprintf(w, "\nDisabled, not deployed: %s\n", strings.Join(plan.Excluded, ", ")); err != nil {
			return err
		}
	}
	return nil
}
