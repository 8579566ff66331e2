// Package bridgeapi is a client for the Bridge Member REST API.
package bridgeapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/thebridge/bridge-checkout/internal/apierror"
	"github.com/thebridge/bridge-checkout/internal/dto"
	"github.com/thebridge/bridge-checkout/internal/models"
)

const (
	tiersPath             = "/Resources/MembershipsFeatures"
	placeMembershipPath   = "/Member/AppUserPlaceMembershipOrder"
	placeTopupPath        = "/Member/AppUserPlaceTopupOrder"
	paypalWebhookPath     = "/Member/PayPalWebhook"
	orderStatusPath       = "/Member/OrderStatus/"
	remainingCreditsPath  = "/Member/RemainingCredits"
	activeMembershipsPath = "/Member/ActiveMemberships"

	webhookAccepted = "OK"
	maxBodyBytes    = 1 << 20
)

// BreakerConfig configures the circuit breaker around Member API calls.
type BreakerConfig struct {
	MaxRequests      uint32
	Interval         time.Duration
	Timeout          time.Duration
	FailureThreshold uint32
}

type Client struct {
	baseURL    string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker[[]byte]
	logger     *slog.Logger
}

// NewClient creates a Member API client rooted at baseURL.
func NewClient(baseURL string, timeout time.Duration, bc BreakerConfig) *Client {
	if bc.FailureThreshold == 0 {
		bc.FailureThreshold = 5
	}
	logger := slog.Default().With("component", "bridgeapi")

	settings := gobreaker.Settings{
		Name:        "member-api",
		MaxRequests: bc.MaxRequests,
		Interval:    bc.Interval,
		Timeout:     bc.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= bc.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		},
		// Rejected requests are the caller's problem, not an outage.
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			apiErr, ok := apierror.As(err)
			return ok && !apiErr.Upstream()
		},
	}

	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		breaker:    gobreaker.NewCircuitBreaker[[]byte](settings),
		logger:     logger,
	}
}

// FetchTiers returns the raw tier catalog. It does not sort or fall back.
func (c *Client) FetchTiers(ctx context.Context) ([]models.SubscriptionTier, error) {
	var tiers []models.SubscriptionTier
	if err := c.getJSON(ctx, "", tiersPath, &tiers); err != nil {
		return nil, fmt.Errorf("fetch tiers: %w", err)
	}
	return tiers, nil
}

// PlaceMembershipOrder submits a membership purchase. A response with
// Result false is returned as an *apierror.Error carrying its message.
func (c *Client) PlaceMembershipOrder(ctx context.Context, token string, req dto.PlaceMembershipOrderRequest) (*dto.PlaceMembershipOrderResponse, error) {
	resp, err := c.placeOrder(ctx, token, placeMembershipPath, req)
	if err != nil {
		return nil, fmt.Errorf("place membership order: %w", err)
	}
	return resp, nil
}

// PlaceTopupOrder submits a credit purchase with the same contract as
// PlaceMembershipOrder.
func (c *Client) PlaceTopupOrder(ctx context.Context, token string, req dto.PlaceTopupOrderRequest) (*dto.PlaceMembershipOrderResponse, error) {
	resp, err := c.placeOrder(ctx, token, placeTopupPath, req)
	if err != nil {
		return nil, fmt.Errorf("place topup order: %w", err)
	}
	return resp, nil
}

// PayPalWebhook forwards a provider callback token. It returns "OK" when
// the Member API accepted it.
func (c *Client) PayPalWebhook(ctx context.Context, token, callbackToken string) (string, error) {
	body, err := c.do(ctx, http.MethodPost, token, paypalWebhookPath, "text/plain", []byte(callbackToken))
	if err != nil {
		return "", fmt.Errorf("paypal webhook: %w", err)
	}

	result := strings.TrimSpace(string(body))
	var quoted string
	if json.Unmarshal(body, &quoted) == nil {
		result = strings.TrimSpace(quoted)
	}
	if !strings.EqualFold(result, webhookAccepted) {
		return "", fmt.Errorf("paypal webhook: %w", apierror.FromResponse(http.StatusOK, body))
	}
	return webhookAccepted, nil
}

// OrderStatus queries the payment state of an order by its public tracking id.
func (c *Client) OrderStatus(ctx context.Context, token, pubTrackID string) (*dto.OrderStatusResponse, error) {
	var status dto.OrderStatusResponse
	if err := c.getJSON(ctx, token, orderStatusPath+url.PathEscape(pubTrackID), &status); err != nil {
		return nil, fmt.Errorf("order status %s: %w", pubTrackID, err)
	}
	return &status, nil
}

func (c *Client) RemainingCredits(ctx context.Context, token string) (*models.CreditsBalance, error) {
	var balance models.CreditsBalance
	if err := c.getJSON(ctx, token, remainingCreditsPath, &balance); err != nil {
		return nil, fmt.Errorf("remaining credits: %w", err)
	}
	return &balance, nil
}

func (c *Client) ActiveMemberships(ctx context.Context, token string) ([]models.ActiveMembership, error) {
	var memberships []models.ActiveMembership
	if err := c.getJSON(ctx, token, activeMembershipsPath, &memberships); err != nil {
		return nil, fmt.Errorf("active memberships: %w", err)
	}
	return memberships, nil
}

func (c *Client) placeOrder(ctx context.Context, token, path string, payload interface{}) (*dto.PlaceMembershipOrderResponse, error) {
	reqBody, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	body, err := c.do(ctx, http.MethodPost, token, path, "application/json", reqBody)
	if err != nil {
		return nil, err
	}

	var resp dto.PlaceMembershipOrderResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, apierror.FromResponse(http.StatusBadGateway, nil)
	}
	if !resp.Result && !resp.NeedsRedirect() {
		return nil, apierror.FromResponse(http.StatusUnprocessableEntity, body)
	}
	return &resp, nil
}

func (c *Client) getJSON(ctx context.Context, token, path string, out interface{}) error {
	body, err := c.do(ctx, http.MethodGet, token, path, "", nil)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return &apierror.Error{StatusCode: http.StatusBadGateway, Message: apierror.GenericMessage, Err: err}
	}
	return nil
}

// do performs one request through the circuit breaker and returns the body
// of a 2xx response. Every failure is an *apierror.Error.
func (c *Client) do(ctx context.Context, method, token, path, contentType string, payload []byte) ([]byte, error) {
	body, err := c.breaker.Execute(func() ([]byte, error) {
		var reader io.Reader
		if payload != nil {
			reader = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
		if err != nil {
			return nil, &apierror.Error{Message: apierror.GenericMessage, Err: err}
		}
		req.Header.Set("Accept", "application/json")
		if contentType != "" {
			req.Header.Set("Content-Type", contentType)
		}
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}

		start := time.Now()
		resp, err := c.httpClient.Do(req)
		if err != nil {
			c.logger.Warn("member api request failed", "method", method, "path", path, "error", err)
			return nil, apierror.FromTransport(err)
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
		if err != nil {
			return nil, apierror.FromTransport(err)
		}

		c.logger.Debug("member api request", "method", method, "path", path, "status", resp.StatusCode,
			"latency_ms", float64(time.Since(start).Microseconds())/1000)

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, apierror.FromResponse(resp.StatusCode, body)
		}
		return body, nil
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, apierror.FromTransport(err)
		}
		return nil, err
	}
	return body, nil
}
