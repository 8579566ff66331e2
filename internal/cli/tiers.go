package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/thebridge/bridge-checkout/internal/services"
)

func newTiersCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "tiers",
		Short: "List membership tiers in display order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			catalog := services.NewCatalogService(opts.client(), nil, 0)
			tiers, source := catalog.Catalog(cmd.Context())

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Source: %s\n", source)
			for _, tier := range services.SortTiers(tiers) {
				fmt.Fprintf(out, "%d. %-20s %-22s %8.2f\n", tier.DisplayOrder, tier.Code, tier.Name, tier.Price)
				for _, f := range tier.SortedFeatures() {
					fmt.Fprintf(out, "   - %s\n", featureLine(f.Name, f.Credits, f.AutoRenewFrequency))
				}
			}
			return nil
		},
	}
}

func featureLine(name string, credits int, renew string) string {
	parts := []string{name}
	if credits > 0 {
		parts = append(parts, fmt.Sprintf("%d credits", credits))
	}
	if renew != "" && renew != "None" {
		parts = append(parts, strings.ToLower(renew))
	}
	return strings.Join(parts, ", ")
}
