package services

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/thebridge/bridge-checkout/internal/metrics"
)

var ErrMissingCallbackToken = errors.New("payment callback token is required")

type CallbackAPI interface {
	PayPalWebhook(ctx context.Context, token, callbackToken string) (string, error)
}

// CallbackService exchanges a provider callback token, taken from the
// processor's return redirect, so the Member API can finalize the order.
// It never touches member caches; those follow order status only.
type CallbackService struct {
	api CallbackAPI
}

func NewCallbackService(api CallbackAPI) *CallbackService {
	return &CallbackService{api: api}
}

// PayPalWebhook returns "OK" when the Member API accepted the token.
// Failures are not retried.
func (s *CallbackService) PayPalWebhook(ctx context.Context, m Member, callbackToken string) (string, error) {
	callbackToken = strings.TrimSpace(callbackToken)
	if callbackToken == "" {
		return "", ErrMissingCallbackToken
	}

	result, err := s.api.PayPalWebhook(ctx, m.Token, callbackToken)
	if err != nil {
		metrics.CallbacksForwarded.WithLabelValues("redirect", "error").Inc()
		slog.Warn("payment callback rejected", "member_id", m.ID, "error", err)
		return "", err
	}

	metrics.CallbacksForwarded.WithLabelValues("redirect", "ok").Inc()
	slog.Info("payment callback forwarded", "member_id", m.ID)
	return result, nil
}
