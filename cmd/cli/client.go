package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cawinkelmann/rack-oauth2-server/internal/domain/models"
	"github.com/cawinkelmann/rack-oauth2-server/internal/domain/repository"
)

var clientCmd = &cobra.Command{
	Use:   "client",
	Short: "Manage registered clients",
}

var clientRegisterCmd = &cobra.Command{
	Use:   "register",
	Short: "Register a new client and print its credentials",
	RunE: func(cmd *cobra.Command, _ []string) error {
		name, _ := cmd.Flags().GetString("name")
		link, _ := cmd.Flags().GetString("link")
		image, _ := cmd.Flags().GetString("image")
		redirectURI, _ := cmd.Flags().GetString("redirect-uri")

		return withStores(func(ctx context.Context, stores repository.Stores) error {
			client, err := models.NewClient(name, link, image, redirectURI)
			if err != nil {
				return err
			}
			if err := stores.Clients.Create(ctx, client); err != nil {
				return err
			}
			fmt.Printf("id:     %s\n", client.ID)
			fmt.Printf("secret: %s\n", client.Secret)
			return nil
		})
	},
}

var clientListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered clients",
	RunE: func(*cobra.Command, []string) error {
		return withStores(func(ctx context.Context, stores repository.Stores) error {
			clients, err := stores.Clients.List(ctx)
			if err != nil {
				return err
			}
			for _, client := range clients {
				state := "active"
				if client.RevokedAt != nil {
					state = "revoked"
				}
				fmt.Printf("%s  %-8s  %s\n", client.ID, state, client.DisplayName)
			}
			return nil
		})
	},
}

var clientShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one client's registration",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		return withStores(func(ctx context.Context, stores repository.Stores) error {
			client, err := stores.Clients.FindByID(ctx, args[0])
			if err != nil {
				return err
			}
			fmt.Printf("id:           %s\n", client.ID)
			fmt.Printf("secret:       %s\n", client.Secret)
			fmt.Printf("display name: %s\n", client.DisplayName)
			if client.Link != "" {
				fmt.Printf("link:         %s\n", client.Link)
			}
			if client.ImageURL != "" {
				fmt.Printf("image:        %s\n", client.ImageURL)
			}
			if client.RedirectURI != "" {
				fmt.Printf("redirect uri: %s\n", client.RedirectURI)
			}
			fmt.Printf("created:      %s\n", client.CreatedAt.Format("2006-01-02 15:04:05"))
			if client.RevokedAt != nil {
				fmt.Printf("revoked:      %s\n", client.RevokedAt.Format("2006-01-02 15:04:05"))
			}
			return nil
		})
	},
}

var clientRevokeCmd = &cobra.Command{
	Use:   "revoke <id>",
	Short: "Revoke a client so its credentials stop working",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		return withStores(func(ctx context.Context, stores repository.Stores) error {
			if err := stores.Clients.Revoke(ctx, args[0]); err != nil {
				return err
			}
			fmt.Println("client revoked")
			return nil
		})
	},
}

func init() {
	clientRegisterCmd.Flags().String("name", "", "display name shown to end users")
	clientRegisterCmd.Flags().String("link", "", "application URL")
	clientRegisterCmd.Flags().String("image", "", "logo URL")
	clientRegisterCmd.Flags().String("redirect-uri", "", "pre-registered callback; empty accepts any absolute URI")
	_ = clientRegisterCmd.MarkFlagRequired("name")

	clientCmd.AddCommand(clientRegisterCmd, clientListCmd, clientShowCmd, clientRevokeCmd)
	rootCmd.AddCommand(clientCmd)
}
