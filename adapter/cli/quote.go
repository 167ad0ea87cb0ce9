package cli

import (
	"fmt"

	billingApp "github.com/ins72/mewayz-good-sub001/internal/billing/application"
	"github.com/ins72/mewayz-good-sub001/internal/billing/domain"
	"github.com/spf13/cobra"
)

var quoteInterval string

var quoteCmd = &cobra.Command{
	Use:   "quote <bundle-id>...",
	Short: "Price a bundle selection",
	Long: `Price a selection of bundles including the multi-bundle discount.
Duplicate ids are counted once.

Examples:
  mewayz quote creator business
  mewayz quote creator ecommerce education --interval yearly`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		interval, err := domain.ParseBillingInterval(quoteInterval)
		if err != nil {
			return err
		}
		calc, err := priceCalculator()
		if err != nil {
			return err
		}
		q, err := calc.Quote(args, interval)
		if err != nil {
			return err
		}

		view := billingApp.NewQuoteView(q)
		if jsonOutput {
			return PrintJSON(cmd.OutOrStdout(), view)
		}
		printQuote(cmd, view)
		return nil
	},
}

func printQuote(cmd *cobra.Command, v billingApp.QuoteView) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Bundles:  %v (%s)\n", v.Bundles, v.Interval)
	fmt.Fprintf(out, "Gross:    %s %s\n", v.GrossTotal, v.Currency)
	fmt.Fprintf(out, "Discount: %s (%s)\n", v.DiscountAmount, v.DiscountRate)
	fmt.Fprintf(out, "Total:    %s %s\n", v.NetTotal, v.Currency)
}

func init() {
	quoteCmd.Flags().StringVar(&quoteInterval, "interval", "monthly", "billing interval (monthly or yearly)")
	rootCmd.AddCommand(quoteCmd)
}
