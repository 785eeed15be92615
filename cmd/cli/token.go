package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cawinkelmann/rack-oauth2-server/internal/domain/repository"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Inspect and revoke issued tokens",
}

var tokenListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the tokens issued for a resource",
	RunE: func(cmd *cobra.Command, _ []string) error {
		resource, _ := cmd.Flags().GetString("resource")

		return withStores(func(ctx context.Context, stores repository.Stores) error {
			tokens, err := stores.Tokens.FindByResource(ctx, resource)
			if err != nil {
				return err
			}
			for _, token := range tokens {
				state := "active"
				switch {
				case token.RevokedAt != nil:
					state = "revoked"
				case token.IsExpired():
					state = "expired"
				}
				fmt.Printf("%s  %-8s  client=%s  scope=%q\n", token.Token, state, token.ClientID, token.Scope)
			}
			return nil
		})
	},
}

var tokenRevokeCmd = &cobra.Command{
	Use:   "revoke <token>",
	Short: "Revoke a token so it stops validating",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		return withStores(func(ctx context.Context, stores repository.Stores) error {
			if err := stores.Tokens.Revoke(ctx, args[0]); err != nil {
				return err
			}
			fmt.Println("token revoked")
			return nil
		})
	},
}

func init() {
	tokenListCmd.Flags().String("resource", "", "resource identifier the tokens were issued for")
	_ = tokenListCmd.MarkFlagRequired("resource")

	tokenCmd.AddCommand(tokenListCmd, tokenRevokeCmd)
	rootCmd.AddCommand(tokenCmd)
}
