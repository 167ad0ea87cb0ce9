// Package billing provides the subscription commands.
package billing

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ins72/mewayz-good-sub001/adapter/cli"
	billingApp "github.com/ins72/mewayz-good-sub001/internal/billing/application"
	"github.com/spf13/cobra"
)

// Cmd is the billing command group.
var Cmd = &cobra.Command{
	Use:   "billing",
	Short: "Manage subscriptions and access",
	Long:  `Inspect and change user subscriptions, check service access and replay payment events.`,
}

var userID string

func init() {
	Cmd.PersistentFlags().StringVar(&userID, "user", "", "user id")

	Cmd.AddCommand(statusCmd)
	Cmd.AddCommand(subscribeCmd)
	Cmd.AddCommand(cancelCmd)
	Cmd.AddCommand(authorizeCmd)
	Cmd.AddCommand(webhookCmd)
}

// synchronizer returns the wired synchronizer, or nil after printing the
// storage notice.
func synchronizer(cmd *cobra.Command) *billingApp.Synchronizer {
	app := cli.GetApp()
	if app == nil || app.Synchronizer == nil {
		fmt.Fprintln(cmd.OutOrStdout(), cli.NoStorageMessage)
		return nil
	}
	return app.Synchronizer
}

func requireUser() (string, error) {
	id := strings.TrimSpace(userID)
	if id == "" {
		return "", errors.New("--user is required")
	}
	return id, nil
}

func printSubscription(cmd *cobra.Command, v billingApp.SubscriptionView) error {
	if cli.JSONOutput() {
		return cli.PrintJSON(cmd.OutOrStdout(), v)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "User: %s\n", v.UserID)
	fmt.Fprintf(out, "Status: %s\n", v.Status)
	if len(v.ActiveBundles) == 0 {
		return nil
	}
	fmt.Fprintf(out, "Bundles: %s (%s)\n", strings.Join(v.ActiveBundles, ", "), v.BillingInterval)
	fmt.Fprintf(out, "Amount: %d.%02d %s\n", v.UnitAmountCents/100, v.UnitAmountCents%100, v.Currency)
	if v.ExternalSubscriptionID != "" {
		fmt.Fprintf(out, "Gateway subscription: %s\n", v.ExternalSubscriptionID)
	}
	if v.CancelRequestedAt != nil {
		fmt.Fprintf(out, "Cancel requested: %s\n", v.CancelRequestedAt.Format("2006-01-02 15:04 MST"))
	}
	return nil
}
