package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/fulmenhq/convoy/internal/delta"
	"github.com/fulmenhq/convoy/internal/deployerr"
	"github.com/fulmenhq/convoy/internal/profile"
	"github.com/fulmenhq/convoy/pkg/config"
	"github.com/fulmenhq/convoy/pkg/logger"
)

// workspace is the loaded configuration every command starts from
type workspace struct {
	baseDir        string
	config         *config.Config
	registry       *profile.Registry
	defaultProfile string
}

// loadWorkspace reads the process settings once, then loads and validates
// the profile set from the base directory
func loadWorkspace(cmd *cobra.Command) (*workspace, error) {
	v := config.Settings()
	if f := cmd.Flags().Lookup("base-dir"); f != nil {
		if err := v.BindPFlag(config.KeyBaseDir, f); err != nil {
			return nil, err
		}
	}
	baseDir, err := config.BaseDir(v)
	if err != nil {
		return nil, err
	}

	cfg, err := config.Load(baseDir)
	if err != nil {
		return nil, err
	}
	reg, err := profile.New(cfg.Deploy.Profiles, baseDir)
	if err != nil {
		return nil, err
	}
	logger.Debug("workspace loaded", logger.String("config", cfg.Path), logger.Strings("profiles", reg.EnabledIDs()))
	return &workspace{
		baseDir:        baseDir,
		config:         cfg,
		registry:       reg,
		defaultProfile: config.DefaultProfile(v),
	}, nil
}

// patterns converts the configured delta overrides to tracker patterns
func (w *workspace) patterns() (map[delta.Domain][]string, error) {
	if len(w.config.Deploy.Deltas) == 0 {
		return nil, nil
	}
	out := make(map[delta.Domain][]string, len(w.config.Deploy.Deltas))
	for name, globs := range w.config.Deploy.Deltas {
		d, err := delta.ParseDomain(name)
		if err != nil {
			return nil, &deployerr.ConfigError{Reason: "deltas", Err: err}
		}
		out[d] = globs
	}
	return out, nil
}

// selectionFlags are the profile-choice flags shared by deploy and plan
type selectionFlags struct {
	all      bool
	profiles []string
	repo     string
	branch   string
}

func (s *selectionFlags) register(cmd *cobra.Command) {
	cmd.Flags().BoolVarP(&s.all, "all", "a", false, "Select every enabled profile")
	cmd.Flags().StringSliceVarP(&s.profiles, "profile", "p", nil, "Profile id to deploy (repeatable; positional ids work too)")
	cmd.Flags().StringVar(&s.repo, "repo", "", "Override the git remote of every selected profile")
	cmd.Flags().StringVar(&s.branch, "branch", "", "Override the branch or tag expression of every selected profile")
}

// resolve applies overrides and selects the run set
func (s *selectionFlags) resolve(w *workspace, args []string) (*profile.SelectedSet, error) {
	w.registry.Override(s.repo, s.branch)
	ids := append(append([]string(nil), args...), s.profiles...)
	set, err := w.registry.Resolve(profile.SelectionRequest{
		All:       s.all,
		IDs:       ids,
		DefaultID: w.defaultProfile,
	})
	if err != nil {
		return nil, err
	}
	for _, id := range set.Excluded {
		logger.Warn("selected profile is disabled and will not deploy", logger.String("profile", id))
	}
	return set, nil
}

// logChangedFlags records the flags the operator set explicitly
func logChangedFlags(command string, flags *pflag.FlagSet) {
	var set []string
	flags.Visit(func(f *pflag.Flag) {
		set = append(set, "--"+f.Name+"="+f.Value.String())
	})
	logger.Debug("command flags", logger.String("command", command), logger.Strings("flags", set))
}
