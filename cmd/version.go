/*
Copyright © 2025 3 Leaps <info@3leaps.com>
*/
package cmd

import (
	"encoding/json"
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/fulmenhq/convoy/pkg/buildinfo"
)

func newVersionCommand() *cobra.Command {
	var extended, asJSON bool
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Show the convoy version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			info := map[string]string{
				"version":   buildinfo.Version(),
				"goVersion": runtime.Version(),
				"platform":  runtime.GOOS,
				"arch":      runtime.GOARCH,
			}
			if mv := buildinfo.ModuleVersion(); mv != "" {
				info["moduleVersion"] = mv
			}

			if asJSON {
				data, err := json.MarshalIndent(info, "", "  ")
				if err != nil {
					return fmt.Errorf("failed to format JSON: %v", err)
				}
				_, err = fmt.Fprintln(out, string(data))
				return err
			}

			fmt.Fprintf(out, "convoy %s\n", info["version"])
			if extended {
				fmt.Fprintf(out, "Go version: %s\n", info["goVersion"])
				fmt.Fprintf(out, "Platform: %s/%s\n", info["platform"], info["arch"])
				if mv, ok := info["moduleVersion"]; ok {
					fmt.Fprintf(out, "Module version: %s\n", mv)
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&extended, "extended", false, "Show Go toolchain and platform details")
	cmd.Flags().BoolVar(&asJSON, "as-json", false, "Output version information as JSON")
	return cmd
}
