package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"duskwire/internal/domain"
)

// registerCmd generates a Signed Pre-Key and a batch of One-Time Pre-Keys, assembles them into a
// PreKeyBundle, and publishes it to the relay.
func registerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "register <username>",
		Short: "Publish your pre-key bundle to the relay",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			usernameValue := domain.Username(args[0])

			if _, _, err := appCtx.PreKeyService.GenerateAndStorePreKeys(passphrase, 10); err != nil {
				return fmt.Errorf("generating pre-keys: %w", err)
			}

			bundle, err := appCtx.PreKeyService.LoadPreKeyBundle(passphrase, usernameValue, relayURL)
			if err != nil {
				return fmt.Errorf("loading bundle for %q: %w", usernameValue, err)
			}

			if err := appCtx.RelayClient.RegisterPreKeyBundle(cmd.Context(), bundle); err != nil {
				return fmt.Errorf("registering bundle: %w", err)
			}

			fmt.Println("Registered pre-keys with relay")
			return nil
		},
	}
	return cmd
}
