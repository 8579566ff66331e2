package bridgeapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thebridge/bridge-checkout/internal/apierror"
	"github.com/thebridge/bridge-checkout/internal/dto"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, 2*time.Second, BreakerConfig{MaxRequests: 1, Interval: time.Minute, Timeout: time.Minute, FailureThreshold: 2})
}

func TestClient_PlaceMembershipOrder_SendsPayload(t *testing.T) {
	for _, processor := range []int{1, 2} {
		var got dto.PlaceMembershipOrderRequest
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "/Member/AppUserPlaceMembershipOrder", r.URL.Path)
			assert.Equal(t, "Bearer member-token", r.Header.Get("Authorization"))
			assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
			require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
			_ = json.NewEncoder(w).Encode(dto.PlaceMembershipOrderResponse{
				Result: true, OrderID: 7, PubTrackID: "trk-7", RedirectURL: "https://pay.example/checkout?token=EC-1",
			})
		})

		req := dto.PlaceMembershipOrderRequest{MembershipID: 2, DiscountCode: "SPRING", AutoRenewMyMembership: true, ProcessorID: processor}
		resp, err := client.PlaceMembershipOrder(context.Background(), "member-token", req)

		require.NoError(t, err)
		assert.Equal(t, req, got)
		assert.Equal(t, "trk-7", resp.PubTrackID)
		assert.True(t, resp.NeedsRedirect())
	}
}

func TestClient_PlaceTopupOrder_ResultFalseIsError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/Member/AppUserPlaceTopupOrder", r.URL.Path)
		_, _ = w.Write([]byte(`{"result":false,"errors":["Credit packs are sold out"]}`))
	})

	_, err := client.PlaceTopupOrder(context.Background(), "t", dto.PlaceTopupOrderRequest{Credits: 10, ProcessorID: 1})

	apiErr, ok := apierror.As(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusUnprocessableEntity, apiErr.StatusCode)
	assert.Equal(t, "Credit packs are sold out", apiErr.Message)
}

func TestClient_ErrorBodyIsNormalized(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"errors":{"membershipId":["Unknown membership"]}}`))
	})

	_, err := client.PlaceMembershipOrder(context.Background(), "t", dto.PlaceMembershipOrderRequest{MembershipID: 99, ProcessorID: 1})

	apiErr, ok := apierror.As(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Equal(t, "Unknown membership", apiErr.Message)
}

func TestClient_PayPalWebhook(t *testing.T) {
	var body string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/Member/PayPalWebhook", r.URL.Path)
		assert.Equal(t, "text/plain", r.Header.Get("Content-Type"))
		raw, _ := io.ReadAll(r.Body)
		body = string(raw)
		_, _ = w.Write([]byte(`"OK"`))
	})

	result, err := client.PayPalWebhook(context.Background(), "t", "EC-123")

	require.NoError(t, err)
	assert.Equal(t, "OK", result)
	assert.Equal(t, "EC-123", body)
}

func TestClient_PayPalWebhook_UnexpectedBody(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"message":"Token already consumed"}`))
	})

	_, err := client.PayPalWebhook(context.Background(), "t", "EC-123")

	apiErr, ok := apierror.As(err)
	require.True(t, ok)
	assert.Equal(t, "Token already consumed", apiErr.Message)
}

func TestClient_OrderStatus(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/Member/OrderStatus/trk-1", r.URL.Path)
		_, _ = w.Write([]byte(`{"orderId":1,"isPaid":true,"paymentStatus":2,"amount":25,"orderPlacedAt":"2026-10-01T10:00:00Z","paidAt":"2026-10-01T10:01:00Z"}`))
	})

	status, err := client.OrderStatus(context.Background(), "t", "trk-1")

	require.NoError(t, err)
	assert.True(t, status.IsPaid)
	assert.Equal(t, 2, status.PaymentStatus)
	require.NotNil(t, status.PaidAt)
}

func TestClient_BreakerOpensOnServerErrors(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	for i := 0; i < 2; i++ {
		_, err := client.FetchTiers(context.Background())
		require.Error(t, err)
	}
	_, err := client.FetchTiers(context.Background())

	apiErr, ok := apierror.As(err)
	require.True(t, ok)
	assert.Equal(t, apierror.UnavailableMessage, apiErr.Message)
	assert.Equal(t, int32(2), calls.Load(), "open breaker must not reach the server")
}

func TestClient_ClientErrorsDoNotTripBreaker(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"message":"Order not found"}`))
	})

	for i := 0; i < 4; i++ {
		_, err := client.OrderStatus(context.Background(), "t", "missing")
		require.Error(t, err)
	}
	assert.Equal(t, int32(4), calls.Load())
}
