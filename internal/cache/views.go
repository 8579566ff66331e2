package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/thebridge/bridge-checkout/internal/models"
)

// MemberSource fetches fresh member views from the Member API.
type MemberSource interface {
	RemainingCredits(ctx context.Context, token string) (*models.CreditsBalance, error)
	ActiveMemberships(ctx context.Context, token string) ([]models.ActiveMembership, error)
}

// Views serves member views read-through from the Store.
type Views struct {
	store  Store
	source MemberSource
	ttl    time.Duration
}

func NewViews(store Store, source MemberSource, ttl time.Duration) *Views {
	return &Views{store: store, source: source, ttl: ttl}
}

func (v *Views) Credits(ctx context.Context, memberID, token string) (*models.CreditsBalance, error) {
	return readThrough(ctx, v.store, CreditsKey(memberID), v.ttl, func() (*models.CreditsBalance, error) {
		return v.source.RemainingCredits(ctx, token)
	})
}

func (v *Views) Memberships(ctx context.Context, memberID, token string) ([]models.ActiveMembership, error) {
	return readThrough(ctx, v.store, MembershipsKey(memberID), v.ttl, func() ([]models.ActiveMembership, error) {
		return v.source.ActiveMemberships(ctx, token)
	})
}

// readThrough returns the cached value for key or fetches and stores it.
// A fetch that overlaps an invalidation of key is returned but not stored.
// Store failures degrade to a direct fetch.
func readThrough[T any](ctx context.Context, store Store, key string, ttl time.Duration, fetch func() (T, error)) (T, error) {
	var zero T

	raw, err := store.Get(ctx, key)
	if err == nil {
		var cached T
		if jsonErr := json.Unmarshal(raw, &cached); jsonErr == nil {
			return cached, nil
		}
		slog.Warn("discarding undecodable cache entry", "key", key)
	} else if !errors.Is(err, ErrMiss) {
		slog.Warn("cache read failed", "key", key, "error", err)
	}

	gen, genErr := store.Generation(ctx, key)
	if genErr != nil {
		slog.Warn("cache generation read failed", "key", key, "error", genErr)
	}

	fresh, err := fetch()
	if err != nil {
		return zero, err
	}
	if genErr != nil {
		return fresh, nil
	}

	encoded, err := json.Marshal(fresh)
	if err != nil {
		return fresh, nil
	}
	stored, err := store.SetIfGeneration(ctx, key, encoded, ttl, gen)
	if err != nil {
		slog.Warn("cache write failed", "key", key, "error", err)
	} else if !stored {
		slog.Debug("dropping member view read during invalidation", "key", key)
	}
	return fresh, nil
}
