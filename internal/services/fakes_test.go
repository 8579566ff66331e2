package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/thebridge/bridge-checkout/internal/dto"
	"github.com/thebridge/bridge-checkout/internal/models"
	"github.com/thebridge/bridge-checkout/internal/poller"
)

type fakeMemberAPI struct {
	mu sync.Mutex

	placeResp       *dto.PlaceMembershipOrderResponse
	placeErr        error
	membershipReqs  []dto.PlaceMembershipOrderRequest
	topupReqs       []dto.PlaceTopupOrderRequest
	webhookTokens   []string
	webhookErr      error
	statuses        []dto.OrderStatusResponse
	statusErrAt     int
	statusCalls     int
	forwardedTokens []string
}

func (f *fakeMemberAPI) PlaceMembershipOrder(_ context.Context, token string, req dto.PlaceMembershipOrderRequest) (*dto.PlaceMembershipOrderResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.membershipReqs = append(f.membershipReqs, req)
	f.forwardedTokens = append(f.forwardedTokens, token)
	if f.placeErr != nil {
		return nil, f.placeErr
	}
	resp := *f.placeResp
	return &resp, nil
}

func (f *fakeMemberAPI) PlaceTopupOrder(_ context.Context, token string, req dto.PlaceTopupOrderRequest) (*dto.PlaceMembershipOrderResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.topupReqs = append(f.topupReqs, req)
	f.forwardedTokens = append(f.forwardedTokens, token)
	if f.placeErr != nil {
		return nil, f.placeErr
	}
	resp := *f.placeResp
	return &resp, nil
}

func (f *fakeMemberAPI) PayPalWebhook(_ context.Context, _ string, callbackToken string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.webhookTokens = append(f.webhookTokens, callbackToken)
	if f.webhookErr != nil {
		return "", f.webhookErr
	}
	return "OK", nil
}

// OrderStatus replays statuses in order and repeats the last one. When
// statusErrAt is n > 0 the n-th call fails.
func (f *fakeMemberAPI) OrderStatus(_ context.Context, _ string, _ string) (*dto.OrderStatusResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statusCalls++
	if f.statusErrAt > 0 && f.statusCalls == f.statusErrAt {
		return nil, errors.New("status endpoint unreachable")
	}
	idx := f.statusCalls - 1
	if idx >= len(f.statuses) {
		idx = len(f.statuses) - 1
	}
	resp := f.statuses[idx]
	return &resp, nil
}

func (f *fakeMemberAPI) StatusCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.statusCalls
}

func (f *fakeMemberAPI) WebhookTokens() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.webhookTokens...)
}

type countingInvalidator struct {
	mu    sync.Mutex
	calls map[string]int
}

func newCountingInvalidator() *countingInvalidator {
	return &countingInvalidator{calls: make(map[string]int)}
}

func (c *countingInvalidator) InvalidateMember(_ context.Context, memberID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls[memberID]++
	return nil
}

func (c *countingInvalidator) Count(memberID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[memberID]
}

type memoryOrderLog struct {
	mu     sync.Mutex
	orders []models.TrackedOrder
}

func (l *memoryOrderLog) RecordPlacement(_ context.Context, order *models.TrackedOrder) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.orders = append(l.orders, *order)
	return nil
}

func (l *memoryOrderLog) RecordOutcome(_ context.Context, memberID, pubTrackID, outcome string, attempts int, message string, resolvedAt time.Time) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := len(l.orders) - 1; i >= 0; i-- {
		o := &l.orders[i]
		if o.MemberID == memberID && o.PubTrackID == pubTrackID {
			if poller.Outcome(o.Outcome).Final() {
				return nil
			}
			o.Outcome = outcome
			o.Attempts = attempts
			o.Message = message
			o.ResolvedAt = &resolvedAt
			return nil
		}
	}
	return errors.New("not found")
}

func (l *memoryOrderLog) ListForMember(_ context.Context, memberID string, limit int) ([]models.TrackedOrder, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []models.TrackedOrder
	for _, o := range l.orders {
		if o.MemberID == memberID {
			out = append(out, o)
		}
	}
	return out, nil
}

func (l *memoryOrderLog) ListRecent(_ context.Context, limit int) ([]models.TrackedOrder, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]models.TrackedOrder(nil), l.orders...), nil
}

func (l *memoryOrderLog) Get(pubTrackID string) (models.TrackedOrder, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, o := range l.orders {
		if o.PubTrackID == pubTrackID {
			return o, true
		}
	}
	return models.TrackedOrder{}, false
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []interface{}
	sent   chan struct{}
}

func newRecordingPublisher() *recordingPublisher {
	return &recordingPublisher{sent: make(chan struct{}, 16)}
}

func (p *recordingPublisher) Publish(_ context.Context, _ string, body interface{}) error {
	p.mu.Lock()
	p.events = append(p.events, body)
	p.mu.Unlock()
	p.sent <- struct{}{}
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

type fakeTierSource struct {
	tiers []models.SubscriptionTier
	err   error
	calls int
}

func (f *fakeTierSource) FetchTiers(context.Context) ([]models.SubscriptionTier, error) {
	f.calls++
	return f.tiers, f.err
}
