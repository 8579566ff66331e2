package cache

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/thebridge/bridge-checkout/internal/metrics"
)

const (
	ViewCredits     = "credits"
	ViewMemberships = "memberships"

	catalogKey = "catalog:tiers"
)

func CreditsKey(memberID string) string {
	return "member:" + memberID + ":" + ViewCredits
}

func MembershipsKey(memberID string) string {
	return "member:" + memberID + ":" + ViewMemberships
}

func CatalogKey() string { return catalogKey }

// Coordinator is the only writer of invalidation signals. Invalidating
// removes the cached copy so the next read refetches from the Member API;
// it never writes a predicted value. Reads already in flight when it runs
// do not refill the cache. Invalidation is idempotent.
type Coordinator struct {
	store Store
}

func NewCoordinator(store Store) *Coordinator {
	return &Coordinator{store: store}
}

// InvalidateMember marks the member's credits and active memberships stale.
func (c *Coordinator) InvalidateMember(ctx context.Context, memberID string) error {
	if err := c.store.Invalidate(ctx, CreditsKey(memberID), MembershipsKey(memberID)); err != nil {
		return fmt.Errorf("invalidate member views: %w", err)
	}
	metrics.CacheInvalidations.WithLabelValues(ViewCredits).Inc()
	metrics.CacheInvalidations.WithLabelValues(ViewMemberships).Inc()
	slog.Info("member views invalidated", "member_id", memberID)
	return nil
}
