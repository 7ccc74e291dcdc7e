/*
Copyright © 2025 3 Leaps <info@3leaps.com>
*/
package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/fulmenhq/convoy/internal/console"
	"github.com/fulmenhq/convoy/internal/delta"
	"github.com/fulmenhq/convoy/internal/pipeline"
	"github.com/fulmenhq/convoy/pkg/command"
	"github.com/fulmenhq/convoy/pkg/logger"
	"github.com/fulmenhq/convoy/pkg/safeio"
)

// ErrStepNeedsTerminal is returned when --step is used without an interactive stdin
var ErrStepNeedsTerminal = errors.New("step mode needs an interactive terminal on stdin")

// newLocalExecutor is the executor that reaches the system; tests replace it
var newLocalExecutor = func(stream io.Writer) command.Executor {
	e := command.NewLocalExecutor()
	e.Stream = stream
	return e
}

// stdinIsTerminal reports whether step prompts can be answered
var stdinIsTerminal = func() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

type deployFlags struct {
	selectionFlags

	force         bool
	forcePackages bool
	forceFrontend bool
	forceBackend  bool
	noBroadcast   bool
	noTag         bool
	dryRun        bool
	step          bool
	report        string
}

func newDeployCommand() *cobra.Command {
	flags := &deployFlags{}
	cmd := &cobra.Command{
		Use:   "deploy [profile...]",
		Short: "Deploy the selected profiles",
		Long: `Deploy syncs each selected profile to its remote branch or tag, reinstalls,
rebuilds and restarts only the domains that changed, runs the profile's
pre-deploy and post-deploy hooks and optionally tags a release.

Profiles run one at a time in sort order. The first failure aborts the run.
Without ids, --all or --profile, $CONVOY_PROFILE names the profile.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDeploy(cmd, args, flags)
		},
	}

	flags.selectionFlags.register(cmd)
	cmd.Flags().BoolVarP(&flags.force, "force", "f", false, "Run every stage regardless of changes")
	cmd.Flags().BoolVar(&flags.forcePackages, "force-packages", false, "Reinstall packages regardless of changes")
	cmd.Flags().BoolVar(&flags.forceFrontend, "force-frontend", false, "Rebuild the frontend regardless of changes")
	cmd.Flags().BoolVar(&flags.forceBackend, "force-backend", false, "Restart backend processes regardless of changes")
	cmd.Flags().BoolVar(&flags.noBroadcast, "no-broadcast", false, "Skip the pre-deploy and post-deploy hooks")
	cmd.Flags().BoolVar(&flags.noTag, "no-tag", false, "Skip release tagging")
	cmd.Flags().BoolVarP(&flags.dryRun, "dry-run", "n", false, "Print mutating commands instead of running them")
	cmd.Flags().BoolVar(&flags.step, "step", false, "Confirm each mutating command interactively")
	cmd.Flags().StringVar(&flags.report, "report", "", "Write the run report as JSON to this file (- for stdout)")
	return cmd
}

func (f *deployFlags) options() pipeline.Options {
	forced := map[delta.Domain]bool{}
	if f.forcePackages {
		forced[delta.Dependencies] = true
	}
	if f.forceFrontend {
		forced[delta.Frontend] = true
	}
	if f.forceBackend {
		forced[delta.Backend] = true
	}
	return pipeline.Options{
		Force:        f.force,
		ForceDomains: forced,
		Broadcast:    !f.noBroadcast,
		Tag:          !f.noTag,
		DryRun:       f.dryRun,
	}
}

// executorFor builds the executor chain for the requested mode
func executorFor(cmd *cobra.Command, mode command.Mode) (command.Executor, error) {
	local := newLocalExecutor(cmd.ErrOrStderr())
	switch mode {
	case command.ModeDryRun:
		return command.NewDryRunExecutor(local, cmd.ErrOrStderr()), nil
	case command.ModeStep:
		if !stdinIsTerminal() {
			return nil, ErrStepNeedsTerminal
		}
		return command.NewStepExecutor(local, cmd.InOrStdin(), cmd.ErrOrStderr()), nil
	default:
		return local, nil
	}
}

func runDeploy(cmd *cobra.Command, args []string, flags *deployFlags) error {
	logChangedFlags(cmd.Name(), cmd.Flags())
	ws, err := loadWorkspace(cmd)
	if err != nil {
		return err
	}
	set, err := flags.resolve(ws, args)
	if err != nil {
		return err
	}
	if len(set.Profiles) == 0 {
		logger.Warn("no enabled profile selected; nothing to deploy")
		return nil
	}
	patterns, err := ws.patterns()
	if err != nil {
		return err
	}

	mode := command.ParseMode(flags.dryRun, flags.step)
	exec, err := executorFor(cmd, mode)
	if err != nil {
		return err
	}
	if flags.dryRun && flags.step {
		logger.Warn("--dry-run and --step both given; running dry")
	}

	runner := pipeline.New(pipeline.Config{
		Exec:     exec,
		Console:  console.New(cmd.ErrOrStderr()),
		Commands: ws.config.Deploy.Commands,
		Patterns: patterns,
		Process:  ws.config.Deploy.Process,
		Options:  flags.options(),
	})
	report, runErr := runner.Run(cmd.Context(), set)

	if flags.report != "" && report != nil {
		if err := writeReport(cmd, flags.report, report); err != nil {
			logger.Error("could not write run report", logger.Err(err))
		}
	}
	if report != nil && report.Succeeded() {
		logger.Info("deploy finished", logger.String("run", report.RunID), logger.Int("profiles", len(report.Profiles)))
	}
	return runErr
}

func writeReport(cmd *cobra.Command, dest string, report *pipeline.Report) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	data = append(data, '\n')
	if dest == "-" {
		_, err = cmd.OutOrStdout().Write(data)
		return err
	}
	return safeio.WriteFilePreservePerms(dest, data)
}
