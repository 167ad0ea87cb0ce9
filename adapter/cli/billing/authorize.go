package billing

import (
	"errors"
	"fmt"

	"github.com/ins72/mewayz-good-sub001/adapter/cli"
	billingApp "github.com/ins72/mewayz-good-sub001/internal/billing/application"
	"github.com/spf13/cobra"
)

var authorizeCmd = &cobra.Command{
	Use:   "authorize <service>",
	Short: "Check whether a user may call a service",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app := cli.GetApp()
		if app == nil || app.AccessGate == nil {
			fmt.Fprintln(cmd.OutOrStdout(), cli.NoStorageMessage)
			return nil
		}
		id, err := requireUser()
		if err != nil {
			return err
		}

		decision, err := app.AccessGate.Authorize(cmd.Context(), id, args[0])
		if err != nil {
			return err
		}

		view := billingApp.NewDecisionView(decision)
		if cli.JSONOutput() {
			return cli.PrintJSON(cmd.OutOrStdout(), view)
		}
		if view.Allowed {
			fmt.Fprintf(cmd.OutOrStdout(), "allowed: %s via %s\n", view.Service, view.BundleID)
			return nil
		}
		fmt.Fprintf(cmd.OutOrStdout(), "denied: %s (%s)\n", view.Service, view.Reason)
		return errAccessDenied
	},
}

// errAccessDenied makes a denial exit non-zero for scripts.
var errAccessDenied = errors.New("access denied")
