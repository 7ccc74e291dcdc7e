/*
Copyright © 2025 3 Leaps <info@3leaps.com>
*/
package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/fulmenhq/convoy/internal/console"
	"github.com/fulmenhq/convoy/internal/ops"
	"github.com/fulmenhq/convoy/pkg/buildinfo"
	"github.com/fulmenhq/convoy/pkg/exitcode"
	"github.com/fulmenhq/convoy/pkg/logger"
)

// newRootCommand creates a fresh root command instance.
// This factory pattern allows tests to create isolated command trees without shared state.
func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "convoy",
		Short: "Multi-profile deployment orchestrator",
		Long: `Convoy deploys one or more application profiles from their git remotes:
it syncs each working tree, reinstalls, rebuilds and restarts only what changed,
runs the profile's lifecycle hooks and optionally tags a release.

Examples:
   convoy deploy web               # Deploy the "web" profile (and its peers)
   convoy deploy --all --dry-run   # Show what a full deploy would run
   convoy plan web -o yaml         # Print the resolved deploy plan
   convoy profiles                 # List declared profiles
   convoy doctor                   # Check required tools are installed`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			initializeLogger(cmd)
		},
	}

	cmd.PersistentFlags().String("log-level", "info", "Set log level (trace|debug|info|warn|error)")
	cmd.PersistentFlags().Bool("json", false, "Output logs in JSON format")
	cmd.PersistentFlags().Bool("no-color", false, "Disable colored output")
	cmd.PersistentFlags().String("base-dir", "", "Directory holding convoy.yaml (default $CONVOY_BASE_DIR or the working directory)")

	cmd.Version = buildinfo.Version()
	cmd.SetVersionTemplate("convoy {{.Version}}\n")
	return cmd
}

// registerSubcommands adds all subcommands to the root command and installs
// the grouped help. It is called for production and explicitly in tests.
func registerSubcommands(cmd *cobra.Command) *ops.Registry {
	reg := ops.NewRegistry()
	add := func(group ops.CommandGroup, sub *cobra.Command) {
		cmd.AddCommand(sub)
		if err := reg.Register(group, sub); err != nil {
			panic(err)
		}
	}
	add(ops.GroupDeploy, newDeployCommand())
	add(ops.GroupInspect, newPlanCommand())
	add(ops.GroupInspect, newProfilesCommand())
	add(ops.GroupSupport, newDoctorCommand())
	add(ops.GroupSupport, newVersionCommand())

	cmd.SetHelpFunc(func(c *cobra.Command, _ []string) {
		if c != cmd {
			c.Println(c.Long)
			c.Println()
			c.Print(c.UsageString())
			return
		}
		c.Println(c.Long)
		for _, group := range ops.Groups {
			commands := reg.GetCommandsByGroup(group)
			if len(commands) == 0 {
				continue
			}
			c.Println()
			c.Println(group.Title() + ":")
			for _, sub := range commands {
				c.Printf("  %-12s %s\n", sub.Name, sub.Description)
			}
		}
		c.Println()
		c.Println("Flags:")
		c.Print(c.LocalFlags().FlagUsages())
	})
	return reg
}

// rootCmd represents the base command when called without any subcommands
var rootCmd = newRootCommand()

func init() {
	registerSubcommands(rootCmd)
}

// Execute runs the CLI. An interrupt or SIGTERM cancels the run's context,
// which stops the running external command; every error exits with
// exitcode.Failure after its cause is written to stderr.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		console.New(os.Stderr).Failure(err)
		code := exitcode.ForError(err)
		logger.Debug("command execution failed", logger.Err(err), logger.String("status", exitcode.String(code)))
		os.Exit(code)
	}
}

// initializeLogger sets up the logger based on command flags
func initializeLogger(cmd *cobra.Command) {
	logLevelStr, _ := cmd.Flags().GetString("log-level")
	jsonLogs, _ := cmd.Flags().GetBool("json")
	noColor, _ := cmd.Flags().GetBool("no-color")
	// only deploy defines --dry-run; elsewhere the lookup fails and stays false
	dryRun, _ := cmd.Flags().GetBool("dry-run")

	if noColor {
		color.NoColor = true
	}

	config := logger.Config{
		Level:     logger.ParseLevel(logLevelStr),
		UseColor:  !noColor,
		JSON:      jsonLogs,
		Component: "convoy",
		DryRun:    dryRun,
	}

	if err := logger.Initialize(config); err != nil {
		_, _ = os.Stderr.WriteString("Failed to initialize logger: " + err.Error() + "\n")
		os.Exit(exitcode.Failure)
	}
	logger.SetOutput(cmd.ErrOrStderr())
}
