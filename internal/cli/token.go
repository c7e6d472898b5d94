package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/dkeye/Signage/internal/adapters/auth"
	"github.com/dkeye/Signage/internal/domain"
)

func newTokenCmd(o *rootOptions) *cobra.Command {
	var (
		userID string
		email  string
		role   string
		secret string
		ttl    time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a development token signed with the relay secret",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if secret == "" {
				secret = o.cfg.Relay.Secret
			}
			if ttl <= 0 {
				ttl = o.cfg.Relay.TokenTTL
			}
			m, err := auth.NewManager(secret, o.cfg.Relay.Issuer, ttl)
			if err != nil {
				return err
			}
			user, err := domain.NewUser(userID, email)
			if err != nil {
				return err
			}
			tok, err := m.Issue(user, role)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "user id (token subject)")
	cmd.Flags().StringVar(&email, "email", "", "user email")
	cmd.Flags().StringVar(&role, "role", auth.RoleEditor, "token role: editor or service")
	cmd.Flags().StringVar(&secret, "secret", "", "signing secret (default relay.secret)")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime (default relay.token_ttl)")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}
