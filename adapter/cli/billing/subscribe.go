package billing

import (
	"fmt"

	"github.com/ins72/mewayz-good-sub001/adapter/cli"
	billingApp "github.com/ins72/mewayz-good-sub001/internal/billing/application"
	"github.com/ins72/mewayz-good-sub001/internal/billing/domain"
	"github.com/spf13/cobra"
)

var (
	subscribeEmail    string
	subscribeBundles  []string
	subscribeInterval string
)

var subscribeCmd = &cobra.Command{
	Use:   "subscribe",
	Short: "Create or change a user's subscription",
	Long: `Subscribe a user to a bundle selection, or replace the selection of an
existing subscription. Repeating the current selection is a no-op.

Examples:
  mewayz billing subscribe --user user-1 --email user-1@example.com --bundles creator,business
  mewayz billing subscribe --user user-1 --bundles creator --interval yearly`,
	RunE: func(cmd *cobra.Command, args []string) error {
		sync := synchronizer(cmd)
		if sync == nil {
			return nil
		}
		id, err := requireUser()
		if err != nil {
			return err
		}
		interval, err := domain.ParseBillingInterval(subscribeInterval)
		if err != nil {
			return err
		}

		result, err := sync.Subscribe(cmd.Context(), billingApp.SubscribeCommand{
			UserID:    id,
			Email:     subscribeEmail,
			BundleIDs: subscribeBundles,
			Interval:  interval,
		})
		if err != nil {
			return err
		}

		if cli.JSONOutput() {
			return cli.PrintJSON(cmd.OutOrStdout(), result)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Subscription %s.\n", result.Action)
		return printSubscription(cmd, result.Subscription)
	},
}

func init() {
	subscribeCmd.Flags().StringVar(&subscribeEmail, "email", "", "billing email (required for new customers)")
	subscribeCmd.Flags().StringSliceVar(&subscribeBundles, "bundles", nil, "bundle ids, comma separated")
	subscribeCmd.Flags().StringVar(&subscribeInterval, "interval", "monthly", "billing interval (monthly or yearly)")
}
