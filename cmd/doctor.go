/*
Copyright © 2025 3 Leaps <info@3leaps.com>
*/
package cmd

import (
	"fmt"
	"os/exec"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fulmenhq/convoy/internal/console"
	"github.com/fulmenhq/convoy/internal/doctor"
)

// doctorLookPath resolves executables for the doctor command; tests replace it
var doctorLookPath = exec.LookPath

func newDoctorCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check that git, the process manager and package tools are installed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ws, err := loadWorkspace(cmd)
			if err != nil {
				return err
			}
			tools := doctor.RequiredTools(&ws.config.Deploy, ws.registry.Profiles())
			checker := &doctor.Checker{Exec: newLocalExecutor(cmd.ErrOrStderr()), LookPath: doctorLookPath}
			statuses := checker.CheckAll(cmd.Context(), tools)

			rows := [][]string{{"TOOL", "STATUS", "VERSION", "USED FOR"}}
			for _, st := range statuses {
				status := "ok"
				if !st.Present {
					status = "missing"
				}
				version := st.Version
				if version == "" {
					version = "-"
				}
				rows = append(rows, []string{st.Name, status, version, st.Purpose})
			}
			out := cmd.OutOrStdout()
			console.Table(out, rows)

			missing := doctor.Missing(statuses)
			if len(missing) == 0 {
				return nil
			}
			fmt.Fprintln(out)
			for _, st := range statuses {
				if !st.Present {
					fmt.Fprintf(out, "%s: %s\n", st.Name, st.Instructions)
				}
			}
			return fmt.Errorf("missing required tools: %s", strings.Join(missing, ", "))
		},
	}
}
