package cli

import (
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"

	billingApp "github.com/ins72/mewayz-good-sub001/internal/billing/application"
	"github.com/ins72/mewayz-good-sub001/internal/billing/domain"
	"github.com/spf13/cobra"
)

var bundlesCmd = &cobra.Command{
	Use:   "bundles",
	Short: "List feature bundles",
	Long: `List the bundles of the catalog with their monthly price and the
services each one unlocks.

Examples:
  mewayz bundles
  mewayz bundles show creator`,
	RunE: func(cmd *cobra.Command, args []string) error {
		calc, err := priceCalculator()
		if err != nil {
			return err
		}

		bundles := calc.Catalog().List()
		views := make([]billingApp.BundleView, len(bundles))
		for i, b := range bundles {
			views[i] = billingApp.NewBundleView(b)
		}
		if jsonOutput {
			return PrintJSON(cmd.OutOrStdout(), views)
		}

		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tNAME\tMONTHLY\tFEATURES")
		for _, v := range views {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%d\n", v.ID, v.DisplayName, v.MonthlyPrice, len(v.Features))
		}
		return tw.Flush()
	},
}

var bundlesShowCmd = &cobra.Command{
	Use:   "show <bundle-id>",
	Short: "Show one bundle and its services",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		calc, err := priceCalculator()
		if err != nil {
			return err
		}
		bundle, err := calc.Catalog().Get(args[0])
		if err != nil {
			return err
		}

		view := billingApp.NewBundleView(bundle)
		if jsonOutput {
			return PrintJSON(cmd.OutOrStdout(), view)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s (%s)\n", view.DisplayName, view.ID)
		fmt.Fprintf(cmd.OutOrStdout(), "Monthly: %s\n", view.MonthlyPrice)
		fmt.Fprintf(cmd.OutOrStdout(), "Services: %s\n", strings.Join(view.Features, ", "))
		return nil
	},
}

func priceCalculator() (*domain.PriceCalculator, error) {
	app := GetApp()
	if app == nil {
		return nil, errors.New("app not initialized")
	}
	return app.PriceCalculator()
}

func init() {
	bundlesCmd.AddCommand(bundlesShowCmd)
	rootCmd.AddCommand(bundlesCmd)
}
