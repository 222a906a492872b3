package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"duskwire/internal/domain"
)

// startSessionCmd performs the X3DH handshake against a peer's pre-key bundle and persists a new
// session for future messaging.
func startSessionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "start-session <peer>",
		Short: "Establish a secure session with a peer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			peerUsername := domain.Username(args[0])

			if _, err := appCtx.SessionService.InitiateSession(cmd.Context(), passphrase, peerUsername); err != nil {
				return fmt.Errorf("starting session with %q: %w", peerUsername, err)
			}

			fmt.Printf("Session created with %s\n", peerUsername)
			return nil
		},
	}
}
