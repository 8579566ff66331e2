package services

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/url"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/google/uuid"

	"github.com/thebridge/bridge-checkout/internal/apierror"
	"github.com/thebridge/bridge-checkout/internal/dto"
	"github.com/thebridge/bridge-checkout/internal/events"
	"github.com/thebridge/bridge-checkout/internal/metrics"
	"github.com/thebridge/bridge-checkout/internal/models"
	"github.com/thebridge/bridge-checkout/internal/poller"
)

var (
	ErrInvalidProcessor  = errors.New("processorId must be 1 (PayPal) or 2 (Stripe)")
	ErrInvalidMembership = errors.New("membershipId is required")
	ErrInvalidCredits    = errors.New("credits must be greater than zero")
	ErrMissingTrackID    = errors.New("pubTrackId is required")
	ErrTrackingNotFound  = errors.New("no order tracking found for this pubTrackId")
)

// MemberAPI is the part of the Member API the order workflow needs.
type MemberAPI interface {
	PlaceMembershipOrder(ctx context.Context, token string, req dto.PlaceMembershipOrderRequest) (*dto.PlaceMembershipOrderResponse, error)
	PlaceTopupOrder(ctx context.Context, token string, req dto.PlaceTopupOrderRequest) (*dto.PlaceMembershipOrderResponse, error)
	PayPalWebhook(ctx context.Context, token, callbackToken string) (string, error)
	OrderStatus(ctx context.Context, token, pubTrackID string) (*dto.OrderStatusResponse, error)
}

// Invalidator marks a member's cached credits and memberships stale.
type Invalidator interface {
	InvalidateMember(ctx context.Context, memberID string) error
}

// Member identifies the authenticated caller and carries the token that is
// forwarded to the Member API.
type Member struct {
	ID    string
	Token string
}

type OrderService struct {
	api         MemberAPI
	invalidator Invalidator
	tracker     *poller.Tracker
	orders      OrderLog
	publisher   events.Publisher
	devMode     bool
}

// NewOrderService wires the order workflow. devMode enables replaying the
// payment callback right after placement, for use against the mock Member
// API only.
func NewOrderService(api MemberAPI, invalidator Invalidator, tracker *poller.Tracker, orders OrderLog, publisher events.Publisher, devMode bool) *OrderService {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &OrderService{
		api:         api,
		invalidator: invalidator,
		tracker:     tracker,
		orders:      orders,
		publisher:   publisher,
		devMode:     devMode,
	}
}

func (s *OrderService) PlaceMembershipOrder(ctx context.Context, m Member, req dto.MembershipCheckoutRequest) (*dto.CheckoutResponse, error) {
	processor := models.PaymentProcessor(req.ProcessorID)
	if !processor.Valid() {
		return nil, ErrInvalidProcessor
	}
	if req.MembershipID <= 0 {
		return nil, ErrInvalidMembership
	}

	payload := dto.PlaceMembershipOrderRequest{
		MembershipID:          req.MembershipID,
		DiscountCode:          req.DiscountCode,
		AutoRenewMyMembership: req.AutoRenew,
		ProcessorID:           req.ProcessorID,
	}
	resp, err := s.api.PlaceMembershipOrder(ctx, m.Token, payload)
	if err != nil {
		recordPlacementFailure(models.OrderKindMembership, processor, err)
		return nil, err
	}
	return s.afterPlacement(ctx, m, models.OrderKindMembership, processor, payload, resp), nil
}

func (s *OrderService) PlaceTopupOrder(ctx context.Context, m Member, req dto.TopupCheckoutRequest) (*dto.CheckoutResponse, error) {
	processor := models.PaymentProcessor(req.ProcessorID)
	if !processor.Valid() {
		return nil, ErrInvalidProcessor
	}
	if req.Credits <= 0 {
		return nil, ErrInvalidCredits
	}

	payload := dto.PlaceTopupOrderRequest{Credits: req.Credits, ProcessorID: req.ProcessorID}
	resp, err := s.api.PlaceTopupOrder(ctx, m.Token, payload)
	if err != nil {
		recordPlacementFailure(models.OrderKindTopup, processor, err)
		return nil, err
	}
	return s.afterPlacement(ctx, m, models.OrderKindTopup, processor, payload, resp), nil
}

// afterPlacement finishes a synchronous order or hands a redirected one to
// the tracker.
func (s *OrderService) afterPlacement(ctx context.Context, m Member, kind string, processor models.PaymentProcessor, payload interface{}, resp *dto.PlaceMembershipOrderResponse) *dto.CheckoutResponse {
	out := &dto.CheckoutResponse{
		Result:      resp.Result,
		Message:     resp.Message,
		OrderID:     resp.OrderID,
		PubTrackID:  resp.PubTrackID,
		RedirectURL: resp.RedirectURL,
		ReturnURL:   resp.ReturnURL,
	}

	s.logPlacement(ctx, m, kind, processor, payload, resp)

	if resp.CompletedSynchronously() {
		metrics.OrdersPlaced.WithLabelValues(kind, processor.String(), "completed").Inc()
		if err := s.invalidator.InvalidateMember(ctx, m.ID); err != nil {
			slog.Error("cache invalidation failed after order", "member_id", m.ID, "error", err)
		}
		s.recordOutcome(ctx, m.ID, resp.PubTrackID, string(poller.OutcomeCompleted), 0, "", time.Now().UTC())
		out.Completed = true
		return out
	}

	metrics.OrdersPlaced.WithLabelValues(kind, processor.String(), "redirect").Inc()
	slog.Info("order awaiting payment processor", "member_id", m.ID, "pub_track_id", resp.PubTrackID, "processor", processor.String())

	if s.devMode {
		s.replayCallback(ctx, m, resp)
	}

	if resp.PubTrackID == "" {
		slog.Warn("redirected order has no pubTrackId, cannot track", "member_id", m.ID, "order_id", resp.OrderID)
		return out
	}
	if _, err := s.TrackOrder(m, resp.PubTrackID); err != nil {
		slog.Error("failed to start order tracking", "member_id", m.ID, "pub_track_id", resp.PubTrackID, "error", err)
		return out
	}
	out.Processing = true
	return out
}

// replayCallback simulates the provider's asynchronous confirmation by
// forwarding the callback token immediately. It only changes order state;
// cache invalidation still waits for tracking to observe completion.
func (s *OrderService) replayCallback(ctx context.Context, m Member, resp *dto.PlaceMembershipOrderResponse) {
	token := callbackToken(resp)
	if token == "" {
		return
	}
	if _, err := s.api.PayPalWebhook(ctx, m.Token, token); err != nil {
		metrics.CallbacksForwarded.WithLabelValues("dev_replay", "error").Inc()
		slog.Warn("development callback replay failed", "member_id", m.ID, "pub_track_id", resp.PubTrackID, "error", err)
		return
	}
	metrics.CallbacksForwarded.WithLabelValues("dev_replay", "ok").Inc()
	slog.Info("development callback replayed", "member_id", m.ID, "pub_track_id", resp.PubTrackID)
}

// callbackToken takes the provider token from the redirect URL and falls
// back to the tracking id.
func callbackToken(resp *dto.PlaceMembershipOrderResponse) string {
	if u, err := url.Parse(resp.RedirectURL); err == nil {
		if token := u.Query().Get("token"); token != "" {
			return token
		}
	}
	return resp.PubTrackID
}

// TrackOrder starts, or joins, tracking of an order for the member.
func (s *OrderService) TrackOrder(m Member, pubTrackID string) (poller.Snapshot, error) {
	if pubTrackID == "" {
		return poller.Snapshot{}, ErrMissingTrackID
	}

	task, err := s.tracker.Start(poller.Job{
		Owner:      m.ID,
		PubTrackID: pubTrackID,
		Query:      s.statusQuery(m.Token),
		OnCompleted: func(ctx context.Context) error {
			return s.invalidator.InvalidateMember(ctx, m.ID)
		},
		OnResolved: func(ctx context.Context, res poller.Result) {
			s.resolve(ctx, m.ID, res)
		},
	})
	if err != nil {
		return poller.Snapshot{}, err
	}
	return task.Snapshot(), nil
}

func (s *OrderService) TrackingStatus(m Member, pubTrackID string) (poller.Snapshot, error) {
	task, ok := s.tracker.Get(m.ID, pubTrackID)
	if !ok {
		return poller.Snapshot{}, ErrTrackingNotFound
	}
	return task.Snapshot(), nil
}

// CancelTracking stops tracking one order, e.g. when the checkout view is
// closed.
func (s *OrderService) CancelTracking(m Member, pubTrackID string) error {
	if !s.tracker.Cancel(m.ID, pubTrackID) {
		return ErrTrackingNotFound
	}
	return nil
}

// CancelAllTracking stops every tracking task of the member.
func (s *OrderService) CancelAllTracking(m Member) int {
	return s.tracker.CancelOwner(m.ID)
}

func (s *OrderService) History(ctx context.Context, m Member, limit int) ([]models.TrackedOrder, error) {
	if s.orders == nil {
		return []models.TrackedOrder{}, nil
	}
	return s.orders.ListForMember(ctx, m.ID, limit)
}

func (s *OrderService) RecentOrders(ctx context.Context, limit int) ([]models.TrackedOrder, error) {
	if s.orders == nil {
		return []models.TrackedOrder{}, nil
	}
	return s.orders.ListRecent(ctx, limit)
}

func (s *OrderService) TrackingTasks() []poller.Snapshot {
	return s.tracker.Tasks()
}

func (s *OrderService) statusQuery(token string) poller.StatusFunc {
	return func(ctx context.Context, pubTrackID string) (poller.Status, error) {
		resp, err := s.api.OrderStatus(ctx, token, pubTrackID)
		if err != nil {
			return poller.Status{}, err
		}
		return poller.Status{IsPaid: resp.IsPaid, PaymentStatus: models.PaymentStatus(resp.PaymentStatus)}, nil
	}
}

// resolve records and announces how tracking ended.
func (s *OrderService) resolve(ctx context.Context, memberID string, res poller.Result) {
	message := ""
	if res.Outcome != poller.OutcomeCompleted {
		message = OutcomeMessage(res.Outcome, res.Err)
	}
	resolvedAt := time.Now().UTC()
	s.recordOutcome(ctx, memberID, res.PubTrackID, string(res.Outcome), res.Attempts, message, resolvedAt)

	if res.Outcome == poller.OutcomeQueryError {
		sentry.CaptureException(res.Err)
	}
	if res.Outcome == poller.OutcomeAborted {
		return
	}

	err := s.publisher.Publish(ctx, events.RoutingOrderResolved, events.OrderResolved{
		PubTrackID: res.PubTrackID,
		MemberID:   memberID,
		Outcome:    string(res.Outcome),
		Attempts:   res.Attempts,
		Message:    message,
		ResolvedAt: resolvedAt,
	})
	if err != nil {
		slog.Warn("failed to publish order event", "member_id", memberID, "pub_track_id", res.PubTrackID, "error", err)
	}
}

// OutcomeMessage is the member-facing text for a tracking outcome.
func OutcomeMessage(outcome poller.Outcome, err error) string {
	switch outcome {
	case poller.OutcomePolling:
		return "Waiting for the payment provider to confirm your payment."
	case poller.OutcomeCompleted:
		return "Payment received. Your account has been updated."
	case poller.OutcomeFailed:
		return "The payment failed. No changes were made to your account."
	case poller.OutcomeCancelled:
		return "The payment was cancelled."
	case poller.OutcomeTimedOut:
		return "The payment provider has not confirmed your payment yet. Check your orders again later."
	case poller.OutcomeQueryError:
		if apiErr, ok := apierror.As(err); ok && apiErr.SessionExpired() {
			return "Your session expired while we were waiting for the payment provider. Sign in again and reopen the order to keep tracking it."
		}
		if apiErr, ok := apierror.As(err); ok {
			return "We could not confirm your payment status: " + apiErr.Message
		}
		return "We could not confirm your payment status."
	case poller.OutcomeAborted:
		return "Payment tracking was stopped."
	}
	return ""
}

func recordPlacementFailure(kind string, processor models.PaymentProcessor, err error) {
	result := "error"
	if apiErr, ok := apierror.As(err); ok && !apiErr.Upstream() {
		result = "rejected"
	}
	metrics.OrdersPlaced.WithLabelValues(kind, processor.String(), result).Inc()
}

func (s *OrderService) logPlacement(ctx context.Context, m Member, kind string, processor models.PaymentProcessor, payload interface{}, resp *dto.PlaceMembershipOrderResponse) {
	if s.orders == nil {
		return
	}
	raw, _ := json.Marshal(payload)
	order := &models.TrackedOrder{
		ID:          uuid.New(),
		MemberID:    m.ID,
		PubTrackID:  resp.PubTrackID,
		OrderID:     resp.OrderID,
		Kind:        kind,
		ProcessorID: int(processor),
		Outcome:     string(poller.OutcomePolling),
		Request:     raw,
		PlacedAt:    time.Now().UTC(),
	}
	if err := s.orders.RecordPlacement(ctx, order); err != nil {
		slog.Error("failed to record order placement", "member_id", m.ID, "pub_track_id", resp.PubTrackID, "error", err)
	}
}

func (s *OrderService) recordOutcome(ctx context.Context, memberID, pubTrackID, outcome string, attempts int, message string, at time.Time) {
	if s.orders == nil || pubTrackID == "" {
		return
	}
	if err := s.orders.RecordOutcome(ctx, memberID, pubTrackID, outcome, attempts, message, at); err != nil {
		slog.Error("failed to record order outcome", "member_id", memberID, "pub_track_id", pubTrackID, "error", err)
	}
}
