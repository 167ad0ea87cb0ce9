package cli

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check database, lock and broker connectivity",
	RunE: func(cmd *cobra.Command, args []string) error {
		app := GetApp()
		if app == nil || app.Container == nil {
			fmt.Fprintln(cmd.OutOrStdout(), NoStorageMessage)
			return nil
		}

		overall := app.Container.Health.Report(cmd.Context())
		if jsonOutput {
			return PrintJSON(cmd.OutOrStdout(), overall)
		}

		names := make([]string, 0, len(overall.Checks))
		for name := range overall.Checks {
			names = append(names, name)
		}
		sort.Strings(names)

		fmt.Fprintf(cmd.OutOrStdout(), "Status: %s\n", overall.Status)
		for _, name := range names {
			result := overall.Checks[name]
			fmt.Fprintf(cmd.OutOrStdout(), "  %-10s %s  %s\n", name, result.Status, result.Message)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(healthCmd)
}
