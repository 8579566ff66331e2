// Package cli implements bridgectl, an operator tool that talks to the
// Member API directly.
package cli

import (
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/thebridge/bridge-checkout/internal/bridgeapi"
	"github.com/thebridge/bridge-checkout/internal/config"
)

type options struct {
	apiURL  string
	token   string
	timeout time.Duration
}

func (o *options) client() *bridgeapi.Client {
	return bridgeapi.NewClient(o.apiURL, o.timeout, bridgeapi.BreakerConfig{
		MaxRequests:      1,
		Interval:         time.Minute,
		Timeout:          30 * time.Second,
		FailureThreshold: 5,
	})
}

// NewRootCmd builds the bridgectl command tree. Defaults come from the same
// environment the gateway reads; BRIDGE_TOKEN supplies the member token.
func NewRootCmd() *cobra.Command {
	cfg := config.Load()
	opts := &options{}

	root := &cobra.Command{
		Use:           "bridgectl",
		Short:         "Inspect tiers and orders on the Bridge Member API",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.apiURL, "api-url", cfg.BridgeAPIURL, "Member API base URL")
	root.PersistentFlags().StringVar(&opts.token, "token", os.Getenv("BRIDGE_TOKEN"), "member bearer token")
	root.PersistentFlags().DurationVar(&opts.timeout, "timeout", cfg.BridgeAPITimeout, "per request timeout")

	root.AddCommand(newTiersCmd(opts))
	root.AddCommand(newTrackCmd(opts, cfg))
	root.AddCommand(newCallbackCmd(opts))
	root.AddCommand(newTokenCmd(cfg))
	return root
}
