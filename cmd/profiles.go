/*
Copyright © 2025 3 Leaps <info@3leaps.com>
*/
package cmd

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fulmenhq/convoy/internal/console"
	"github.com/fulmenhq/convoy/internal/profile"
)

func newProfilesCommand() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:     "profiles",
		Aliases: []string{"ls"},
		Short:   "List declared profiles",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ws, err := loadWorkspace(cmd)
			if err != nil {
				return err
			}
			profiles := ws.registry.Profiles()
			profile.SortByOrder(profiles)

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(profiles)
			}

			rows := [][]string{{"ID", "TITLE", "ENABLED", "SORT", "BRANCH", "PEERS", "PATH"}}
			for _, p := range profiles {
				enabled := "yes"
				if !p.Enabled {
					enabled = "no"
				}
				peers := strings.Join(p.PeerDeploy, ",")
				if peers == "" {
					peers = "-"
				}
				rows = append(rows, []string{p.ID, p.Title, enabled, strconv.Itoa(p.SortOrder), p.Branch, peers, p.Path})
			}
			console.Table(cmd.OutOrStdout(), rows)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "as-json", false, "Print profiles as JSON")
	return cmd
}
