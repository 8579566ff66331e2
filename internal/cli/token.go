package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/thebridge/bridge-checkout/internal/config"
	"github.com/thebridge/bridge-checkout/internal/devbridge"
)

func newTokenCmd(cfg *config.Config) *cobra.Command {
	var ttl time.Duration
	secret := cfg.JWTSecret

	cmd := &cobra.Command{
		Use:   "dev-token <memberId>",
		Short: "Sign a member token for the development Member API",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if secret == "" {
				return errors.New("a signing secret is required (--secret or JWT_SECRET)")
			}
			token, err := devbridge.SignToken(secret, args[0], ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVar(&secret, "secret", secret, "JWT signing secret shared with the Member API")
	cmd.Flags().DurationVar(&ttl, "ttl", 12*time.Hour, "token lifetime")
	return cmd
}
