package billing

import (
	"fmt"

	"github.com/ins72/mewayz-good-sub001/adapter/cli"
	"github.com/spf13/cobra"
)

var cancelCmd = &cobra.Command{
	Use:   "cancel",
	Short: "Cancel a user's subscription",
	Long: `Ask the gateway to cancel the subscription. Access is revoked when the
gateway confirms the cancellation.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		sync := synchronizer(cmd)
		if sync == nil {
			return nil
		}
		id, err := requireUser()
		if err != nil {
			return err
		}

		view, err := sync.Cancel(cmd.Context(), id)
		if err != nil {
			return err
		}
		if !cli.JSONOutput() {
			fmt.Fprintln(cmd.OutOrStdout(), "Cancellation requested.")
		}
		return printSubscription(cmd, view)
	},
}
