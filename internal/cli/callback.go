package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/thebridge/bridge-checkout/internal/services"
)

var errTokenRequired = errors.New("a member token is required (--token or BRIDGE_TOKEN)")

func newCallbackCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "callback <paymentToken>",
		Short: "Forward a payment callback token to the Member API",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.token == "" {
				return errTokenRequired
			}
			callbacks := services.NewCallbackService(opts.client())
			result, err := callbacks.PayPalWebhook(cmd.Context(), services.Member{ID: "bridgectl", Token: opts.token}, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Result: %s\n", result)
			return nil
		},
	}
}
