package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/thebridge/bridge-checkout/internal/config"
	"github.com/thebridge/bridge-checkout/internal/models"
	"github.com/thebridge/bridge-checkout/internal/poller"
	"github.com/thebridge/bridge-checkout/internal/services"
)

func newTrackCmd(opts *options, cfg *config.Config) *cobra.Command {
	pollCfg := poller.Config{
		Interval:    cfg.PollInterval,
		Timeout:     cfg.PollTimeout,
		MaxAttempts: cfg.PollMaxAttempts,
	}

	cmd := &cobra.Command{
		Use:   "track <pubTrackId>",
		Short: "Poll an order until it completes, fails or is cancelled",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.token == "" {
				return errTokenRequired
			}
			client := opts.client()
			out := cmd.OutOrStdout()

			query := func(ctx context.Context, pubTrackID string) (poller.Status, error) {
				resp, err := client.OrderStatus(ctx, opts.token, pubTrackID)
				if err != nil {
					return poller.Status{}, err
				}
				status := poller.Status{IsPaid: resp.IsPaid, PaymentStatus: models.PaymentStatus(resp.PaymentStatus)}
				fmt.Fprintf(out, "order %d: %s (paid: %t)\n", resp.OrderID, status.PaymentStatus, status.IsPaid)
				return status, nil
			}

			res := poller.New(pollCfg).Run(cmd.Context(), args[0], query)
			fmt.Fprintf(out, "Outcome: %s after %d attempts\n", res.Outcome, res.Attempts)
			if res.Outcome != poller.OutcomeCompleted {
				return errors.New(services.OutcomeMessage(res.Outcome, res.Err))
			}
			return nil
		},
	}

	cmd.Flags().DurationVar(&pollCfg.Interval, "interval", pollCfg.Interval, "delay between status queries")
	cmd.Flags().DurationVar(&pollCfg.Timeout, "max-wait", pollCfg.Timeout, "give up after this long")
	cmd.Flags().IntVar(&pollCfg.MaxAttempts, "max-attempts", pollCfg.MaxAttempts, "give up after this many queries")
	return cmd
}
