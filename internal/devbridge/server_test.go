package devbridge

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thebridge/bridge-checkout/internal/dto"
	"github.com/thebridge/bridge-checkout/internal/models"
)

const secret = "dev-secret"

type client struct {
	t     *testing.T
	app   *fiber.App
	token string
}

func newClient(t *testing.T, app *fiber.App, memberID string) *client {
	t.Helper()
	token, err := SignToken(secret, memberID, time.Hour)
	require.NoError(t, err)
	return &client{t: t, app: app, token: token}
}

func (c *client) do(method, path, contentType, body string, out interface{}) int {
	c.t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if contentType != "" {
		req.Header.Set(fiber.HeaderContentType, contentType)
	}
	if c.token != "" {
		req.Header.Set(fiber.HeaderAuthorization, "Bearer "+c.token)
	}
	resp, err := c.app.Test(req)
	require.NoError(c.t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(c.t, err)
	if out != nil && resp.StatusCode < 300 {
		require.NoError(c.t, json.Unmarshal(raw, out), string(raw))
	}
	return resp.StatusCode
}

func (c *client) placeMembership(membershipID int, discount string) (int, dto.PlaceMembershipOrderResponse) {
	var out dto.PlaceMembershipOrderResponse
	body := `{"membershipId":` + strconv.Itoa(membershipID) + `,"discountCode":"` + discount + `","autoRenewMyMembership":true,"processorId":1}`
	code := c.do(http.MethodPost, "/Member/AppUserPlaceMembershipOrder", fiber.MIMEApplicationJSON, body, &out)
	return code, out
}

func (c *client) status(pubTrackID string) (int, dto.OrderStatusResponse) {
	var out dto.OrderStatusResponse
	code := c.do(http.MethodGet, "/Member/OrderStatus/"+pubTrackID, "", "", &out)
	return code, out
}

func (c *client) webhook(token string) int {
	var out string
	return c.do(http.MethodPost, "/Member/PayPalWebhook", fiber.MIMETextPlain, token, &out)
}

func TestListTiersIsPublic(t *testing.T) {
	app := New(Options{JWTSecret: secret}).App()
	c := &client{t: t, app: app}

	var tiers []models.SubscriptionTier
	require.Equal(t, fiber.StatusOK, c.do(http.MethodGet, "/Resources/MembershipsFeatures", "", "", &tiers))
	assert.Len(t, tiers, 3)
}

func TestMemberEndpointsRequireToken(t *testing.T) {
	app := New(Options{JWTSecret: secret}).App()
	c := &client{t: t, app: app}

	assert.Equal(t, fiber.StatusUnauthorized, c.do(http.MethodGet, "/Member/RemainingCredits", "", "", nil))
}

func TestFreeMembershipCompletesSynchronously(t *testing.T) {
	app := New(Options{JWTSecret: secret}).App()
	c := newClient(t, app, "m-1")

	code, placed := c.placeMembership(1, "")
	require.Equal(t, fiber.StatusOK, code)
	assert.True(t, placed.CompletedSynchronously())

	_, st := c.status(placed.PubTrackID)
	assert.True(t, st.IsPaid)
	assert.Equal(t, int(models.PaymentCompleted), st.PaymentStatus)

	var balance models.CreditsBalance
	c.do(http.MethodGet, "/Member/RemainingCredits", "", "", &balance)
	assert.Equal(t, 5, balance.RemainingCredits)
}

func TestPaidMembershipWaitsForWebhook(t *testing.T) {
	app := New(Options{JWTSecret: secret}).App()
	c := newClient(t, app, "m-1")

	code, placed := c.placeMembership(2, "welcome10")
	require.Equal(t, fiber.StatusOK, code)
	require.True(t, placed.NeedsRedirect())

	redirect, err := url.Parse(placed.RedirectURL)
	require.NoError(t, err)
	token := redirect.Query().Get("token")
	require.NotEmpty(t, token)

	_, st := c.status(placed.PubTrackID)
	assert.False(t, st.IsPaid)
	assert.Equal(t, int(models.PaymentPending), st.PaymentStatus)
	assert.InDelta(t, 13.49, st.Amount, 0.001)

	assert.Equal(t, fiber.StatusOK, c.webhook(token))
	assert.Equal(t, fiber.StatusOK, c.webhook(token))

	_, st = c.status(placed.PubTrackID)
	assert.True(t, st.IsPaid)
	assert.NotNil(t, st.PaidAt)

	var memberships []models.ActiveMembership
	c.do(http.MethodGet, "/Member/ActiveMemberships", "", "", &memberships)
	require.Len(t, memberships, 1)
	assert.Equal(t, models.TierDevelopingMedium, memberships[0].Code)
	assert.True(t, memberships[0].AutoRenew)
	assert.NotNil(t, memberships[0].ExpiresAt)
}

func TestWebhookPrefixesSettleWithoutPayment(t *testing.T) {
	app := New(Options{JWTSecret: secret}).App()
	c := newClient(t, app, "m-1")

	var topup dto.PlaceMembershipOrderResponse
	require.Equal(t, fiber.StatusOK, c.do(http.MethodPost, "/Member/AppUserPlaceTopupOrder", fiber.MIMEApplicationJSON, `{"credits":40,"processorId":2}`, &topup))
	redirect, err := url.Parse(topup.RedirectURL)
	require.NoError(t, err)
	assert.Contains(t, redirect.Path, "/stripe")

	assert.Equal(t, fiber.StatusOK, c.webhook(CancelPrefix+redirect.Query().Get("token")))

	_, st := c.status(topup.PubTrackID)
	assert.False(t, st.IsPaid)
	assert.Equal(t, int(models.PaymentCancelled), st.PaymentStatus)
	assert.InDelta(t, 10.0, st.Amount, 0.001)
}

func TestPlacementRejections(t *testing.T) {
	app := New(Options{JWTSecret: secret}).App()
	c := newClient(t, app, "m-1")

	code, _ := c.placeMembership(2, "NOPE")
	assert.Equal(t, fiber.StatusBadRequest, code)

	code, _ = c.placeMembership(99, "")
	assert.Equal(t, fiber.StatusNotFound, code)

	assert.Equal(t, fiber.StatusBadRequest, c.do(http.MethodPost, "/Member/AppUserPlaceTopupOrder", fiber.MIMEApplicationJSON, `{"credits":0,"processorId":1}`, nil))
	assert.Equal(t, fiber.StatusNotFound, c.webhook("EC-UNKNOWN"))
}

func TestOrderStatusIsScopedToMember(t *testing.T) {
	app := New(Options{JWTSecret: secret}).App()
	owner := newClient(t, app, "m-1")
	other := newClient(t, app, "m-2")

	_, placed := owner.placeMembership(3, "")

	code, _ := other.status(placed.PubTrackID)
	assert.Equal(t, fiber.StatusNotFound, code)
}

func TestApproveRedirectsToReturnURLWithToken(t *testing.T) {
	app := New(Options{JWTSecret: secret, ReturnBase: "https://app.example/return"}).App()
	c := newClient(t, app, "m-1")

	_, placed := c.placeMembership(3, "")
	redirect, err := url.Parse(placed.RedirectURL)
	require.NoError(t, err)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, redirect.RequestURI(), nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusFound, resp.StatusCode)

	location, err := url.Parse(resp.Header.Get(fiber.HeaderLocation))
	require.NoError(t, err)
	assert.Equal(t, "app.example", location.Host)
	assert.Equal(t, placed.PubTrackID, location.Query().Get("pubTrackId"))
	assert.Equal(t, redirect.Query().Get("token"), location.Query().Get("token"))
}
