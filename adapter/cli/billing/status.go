package billing

import (
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show a user's subscription",
	RunE: func(cmd *cobra.Command, args []string) error {
		sync := synchronizer(cmd)
		if sync == nil {
			return nil
		}
		id, err := requireUser()
		if err != nil {
			return err
		}

		view, err := sync.GetState(cmd.Context(), id)
		if err != nil {
			return err
		}
		return printSubscription(cmd, view)
	},
}
