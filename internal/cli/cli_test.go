package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thebridge/bridge-checkout/internal/devbridge"
	"github.com/thebridge/bridge-checkout/internal/dto"
)

const secret = "cli-test-secret"

func startMock(t *testing.T) string {
	t.Helper()
	srv := httptest.NewServer(adaptor.FiberApp(devbridge.New(devbridge.Options{JWTSecret: secret}).App()))
	t.Cleanup(srv.Close)
	return srv.URL
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("BRIDGE_TOKEN", "")
	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

// placeTopup places a paid order on the mock and returns its tracking id
// and payment token.
func placeTopup(t *testing.T, apiURL, token string) (string, string) {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, apiURL+"/Member/AppUserPlaceTopupOrder", strings.NewReader(`{"credits":12,"processorId":1}`))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var placed dto.PlaceMembershipOrderResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&placed))
	redirect, err := url.Parse(placed.RedirectURL)
	require.NoError(t, err)
	return placed.PubTrackID, redirect.Query().Get("token")
}

func TestTiers(t *testing.T) {
	out, err := run(t, "tiers", "--api-url", startMock(t))
	require.NoError(t, err)

	assert.Contains(t, out, "Source: live")
	assert.Contains(t, out, "GENERALMEMBERSHIP")
	assert.Less(t, strings.Index(out, "GENERALMEMBERSHIP"), strings.Index(out, "PROFESSIONALMEDIUM"))
	assert.Contains(t, out, "20 credits, monthly")
}

func TestTiers_FallbackWhenUnreachable(t *testing.T) {
	down := httptest.NewServer(http.NotFoundHandler())
	down.Close()

	out, err := run(t, "tiers", "--api-url", down.URL, "--timeout", "500ms")
	require.NoError(t, err)
	assert.Contains(t, out, "Source: fallback")
}

func TestCallbackAndTrack(t *testing.T) {
	apiURL := startMock(t)
	token, err := devbridge.SignToken(secret, "m-1", time.Hour)
	require.NoError(t, err)
	pubTrackID, paymentToken := placeTopup(t, apiURL, token)

	out, err := run(t, "callback", paymentToken, "--api-url", apiURL, "--token", token)
	require.NoError(t, err)
	assert.Contains(t, out, "Result: OK")

	out, err = run(t, "track", pubTrackID, "--api-url", apiURL, "--token", token, "--interval", "5ms")
	require.NoError(t, err)
	assert.Contains(t, out, "Outcome: completed after 1 attempts")
}

func TestTrack_CancelledOrderFails(t *testing.T) {
	apiURL := startMock(t)
	token, err := devbridge.SignToken(secret, "m-1", time.Hour)
	require.NoError(t, err)
	pubTrackID, paymentToken := placeTopup(t, apiURL, token)

	_, err = run(t, "callback", devbridge.CancelPrefix+paymentToken, "--api-url", apiURL, "--token", token)
	require.NoError(t, err)

	out, err := run(t, "track", pubTrackID, "--api-url", apiURL, "--token", token, "--interval", "5ms")
	assert.Error(t, err)
	assert.Contains(t, out, "Outcome: cancelled")
}

func TestTrack_GivesUpAfterMaxAttempts(t *testing.T) {
	apiURL := startMock(t)
	token, err := devbridge.SignToken(secret, "m-1", time.Hour)
	require.NoError(t, err)
	pubTrackID, _ := placeTopup(t, apiURL, token)

	out, err := run(t, "track", pubTrackID, "--api-url", apiURL, "--token", token, "--interval", "5ms", "--max-attempts", "3")
	assert.Error(t, err)
	assert.Contains(t, out, "Outcome: timed_out after 3 attempts")
}

func TestCommandsRequireToken(t *testing.T) {
	_, err := run(t, "callback", "EC-1", "--api-url", "http://127.0.0.1:1")
	assert.ErrorIs(t, err, errTokenRequired)

	_, err = run(t, "track", "TRK-1", "--api-url", "http://127.0.0.1:1")
	assert.ErrorIs(t, err, errTokenRequired)
}

func TestDevToken(t *testing.T) {
	out, err := run(t, "dev-token", "m-42", "--secret", secret)
	require.NoError(t, err)

	parsed, err := jwt.Parse(strings.TrimSpace(out), func(*jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	})
	require.NoError(t, err)
	sub, err := parsed.Claims.GetSubject()
	require.NoError(t, err)
	assert.Equal(t, "m-42", sub)
}
