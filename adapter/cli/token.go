package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var (
	tokenUserID string
	tokenEmail  string
	tokenTTL    time.Duration
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue a bearer token for the HTTP API",
	Long: `Issue a signed bearer token with JWT_SECRET. Intended for local
testing and service accounts.

Examples:
  mewayz token --user user-1 --email user-1@example.com --ttl 1h`,
	RunE: func(cmd *cobra.Command, args []string) error {
		app := GetApp()
		if app == nil || app.Tokens == nil {
			return errors.New("app not initialized")
		}
		if tokenUserID == "" {
			return errors.New("--user is required")
		}

		token, err := app.Tokens.Issue(tokenUserID, tokenEmail, tokenTTL)
		if err != nil {
			return err
		}
		if jsonOutput {
			return PrintJSON(cmd.OutOrStdout(), map[string]string{
				"token":      token,
				"expires_in": tokenTTL.String(),
			})
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}

func init() {
	tokenCmd.Flags().StringVar(&tokenUserID, "user", "", "user id (token subject)")
	tokenCmd.Flags().StringVar(&tokenEmail, "email", "", "email claim")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", time.Hour, "token lifetime")
	rootCmd.AddCommand(tokenCmd)
}
