package services

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sort"
	"time"

	"github.com/thebridge/bridge-checkout/internal/cache"
	"github.com/thebridge/bridge-checkout/internal/metrics"
	"github.com/thebridge/bridge-checkout/internal/models"
)

const (
	CatalogSourceLive     = "live"
	CatalogSourceCache    = "cache"
	CatalogSourceFallback = "fallback"
)

var errEmptyCatalog = errors.New("member api returned an empty tier catalog")

type TierSource interface {
	FetchTiers(ctx context.Context) ([]models.SubscriptionTier, error)
}

// CatalogService serves the tier catalog. A failed or empty remote fetch is
// answered with the built-in fallback catalog instead of an error, so the
// pricing page always has something to render.
type CatalogService struct {
	source TierSource
	store  cache.Store
	ttl    time.Duration
}

func NewCatalogService(source TierSource, store cache.Store, ttl time.Duration) *CatalogService {
	return &CatalogService{source: source, store: store, ttl: ttl}
}

// FetchTiers returns the catalog in the order the source gave it.
func (s *CatalogService) FetchTiers(ctx context.Context) []models.SubscriptionTier {
	tiers, _ := s.Catalog(ctx)
	return tiers
}

// Catalog returns the catalog and where it came from.
func (s *CatalogService) Catalog(ctx context.Context) ([]models.SubscriptionTier, string) {
	if tiers, ok := s.cached(ctx); ok {
		return tiers, CatalogSourceCache
	}

	tiers, err := s.source.FetchTiers(ctx)
	if err == nil && len(tiers) == 0 {
		err = errEmptyCatalog
	}
	if err != nil {
		slog.Error("tier catalog fetch failed, serving fallback", "error", err)
		metrics.CatalogFallbacks.Inc()
		return FallbackTiers(), CatalogSourceFallback
	}

	if s.store != nil {
		if encoded, err := json.Marshal(tiers); err == nil {
			if err := s.store.Set(ctx, cache.CatalogKey(), encoded, s.ttl); err != nil {
				slog.Warn("tier catalog cache write failed", "error", err)
			}
		}
	}
	return tiers, CatalogSourceLive
}

func (s *CatalogService) cached(ctx context.Context) ([]models.SubscriptionTier, bool) {
	if s.store == nil {
		return nil, false
	}
	raw, err := s.store.Get(ctx, cache.CatalogKey())
	if err != nil {
		if !errors.Is(err, cache.ErrMiss) {
			slog.Warn("tier catalog cache read failed", "error", err)
		}
		return nil, false
	}
	var tiers []models.SubscriptionTier
	if err := json.Unmarshal(raw, &tiers); err != nil || len(tiers) == 0 {
		return nil, false
	}
	return tiers, true
}

// SortTiers returns a copy ordered by display order. Ties keep their
// original relative order.
func SortTiers(tiers []models.SubscriptionTier) []models.SubscriptionTier {
	sorted := make([]models.SubscriptionTier, len(tiers))
	copy(sorted, tiers)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].DisplayOrder < sorted[j].DisplayOrder
	})
	return sorted
}

// FallbackTiers is the last known good catalog.
func FallbackTiers() []models.SubscriptionTier {
	tenPercent := 10.0
	twentyPercent := 20.0

	return []models.SubscriptionTier{
		{
			ID: 1, Code: models.TierGeneralMembership, Name: "General Membership",
			Price: 0, DisplayOrder: 1, IsOneTime: true,
			Features: []models.SubscriptionFeature{
				{ID: 1, Code: "COMMUNITYACCESS", Name: "Community events and blogs", DisplayOrder: 1, AutoRenewFrequency: "None"},
				{ID: 2, Code: "WELCOMECREDITS", Name: "Welcome credits", Credits: 5, DisplayOrder: 2, AutoRenewFrequency: "None"},
			},
		},
		{
			ID: 2, Code: models.TierDevelopingMedium, Name: "Developing Medium",
			Price: 14.99, DisplayOrder: 2,
			Features: []models.SubscriptionFeature{
				{ID: 3, Code: "DEVELOPMENTCIRCLES", Name: "Development circles", Price: 9.99, DisplayOrder: 1, AutoRenewFrequency: "Monthly"},
				{ID: 4, Code: "MONTHLYCREDITS", Name: "Monthly reading credits", Price: 5.00, Credits: 20, DisplayOrder: 2, AutoRenewFrequency: "Monthly"},
				{ID: 5, Code: "EVENTDISCOUNT", Name: "Event discount", DiscountPercentage: &tenPercent, DisplayOrder: 3, AutoRenewFrequency: "Monthly"},
			},
		},
		{
			ID: 3, Code: models.TierProfessionalMedium, Name: "Professional Medium",
			Price: 29.99, DisplayOrder: 3,
			Features: []models.SubscriptionFeature{
				{ID: 6, Code: "DIRECTORYLISTING", Name: "Medium directory listing", Price: 14.99, DisplayOrder: 1, AutoRenewFrequency: "Monthly"},
				{ID: 7, Code: "MONTHLYCREDITS", Name: "Monthly reading credits", Price: 15.00, Credits: 60, DisplayOrder: 2, AutoRenewFrequency: "Monthly"},
				{ID: 8, Code: "EVENTDISCOUNT", Name: "Event discount", DiscountPercentage: &twentyPercent, DisplayOrder: 3, AutoRenewFrequency: "Monthly"},
			},
		},
	}
}
