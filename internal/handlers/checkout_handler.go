package handlers

import (
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"github.com/thebridge/bridge-checkout/internal/dto"
	"github.com/thebridge/bridge-checkout/internal/models"
	"github.com/thebridge/bridge-checkout/internal/poller"
	"github.com/thebridge/bridge-checkout/internal/services"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 100
)

type CheckoutHandler struct {
	orders    *services.OrderService
	callbacks *services.CallbackService
}

func NewCheckoutHandler(orders *services.OrderService, callbacks *services.CallbackService) *CheckoutHandler {
	return &CheckoutHandler{orders: orders, callbacks: callbacks}
}

func (h *CheckoutHandler) PlaceMembershipOrder(c *fiber.Ctx) error {
	m, ok := currentMember(c)
	if !ok {
		return unauthorized(c)
	}

	var req dto.MembershipCheckoutRequest
	if err := c.BodyParser(&req); err != nil {
		return invalidBody(c)
	}

	resp, err := h.orders.PlaceMembershipOrder(c.UserContext(), m, req)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(checkoutStatus(resp)).JSON(resp)
}

func (h *CheckoutHandler) PlaceTopupOrder(c *fiber.Ctx) error {
	m, ok := currentMember(c)
	if !ok {
		return unauthorized(c)
	}

	var req dto.TopupCheckoutRequest
	if err := c.BodyParser(&req); err != nil {
		return invalidBody(c)
	}

	resp, err := h.orders.PlaceTopupOrder(c.UserContext(), m, req)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(checkoutStatus(resp)).JSON(resp)
}

// PayPalCallback forwards the token the processor appended to the return
// redirect. Member caches are left alone; tracking invalidates them once
// the order is reported completed.
func (h *CheckoutHandler) PayPalCallback(c *fiber.Ctx) error {
	m, ok := currentMember(c)
	if !ok {
		return unauthorized(c)
	}

	var req dto.PaymentCallbackRequest
	if err := c.BodyParser(&req); err != nil {
		return invalidBody(c)
	}

	result, err := h.callbacks.PayPalWebhook(c.UserContext(), m, req.Token)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(dto.PaymentCallbackResponse{Result: result})
}

func (h *CheckoutHandler) TrackingStatus(c *fiber.Ctx) error {
	m, ok := currentMember(c)
	if !ok {
		return unauthorized(c)
	}

	snap, err := h.orders.TrackingStatus(m, c.Params("trackId"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(trackingResponse(snap))
}

// StartTracking starts tracking an order, e.g. after the member returns
// from the processor. Tracking an order already being tracked joins it.
func (h *CheckoutHandler) StartTracking(c *fiber.Ctx) error {
	m, ok := currentMember(c)
	if !ok {
		return unauthorized(c)
	}

	snap, err := h.orders.TrackOrder(m, c.Params("trackId"))
	if err != nil {
		return respondError(c, err)
	}
	if !snap.Processing {
		return c.JSON(trackingResponse(snap))
	}
	return c.Status(fiber.StatusAccepted).JSON(trackingResponse(snap))
}

func (h *CheckoutHandler) CancelTracking(c *fiber.Ctx) error {
	m, ok := currentMember(c)
	if !ok {
		return unauthorized(c)
	}

	if err := h.orders.CancelTracking(m, c.Params("trackId")); err != nil {
		return respondError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *CheckoutHandler) CancelAllTracking(c *fiber.Ctx) error {
	m, ok := currentMember(c)
	if !ok {
		return unauthorized(c)
	}

	cancelled := h.orders.CancelAllTracking(m)
	slog.Info("member tracking cancelled", "member_id", m.ID, "count", cancelled)
	return c.JSON(fiber.Map{"cancelled": cancelled})
}

func (h *CheckoutHandler) History(c *fiber.Ctx) error {
	m, ok := currentMember(c)
	if !ok {
		return unauthorized(c)
	}

	orders, err := h.orders.History(c.UserContext(), m, queryLimit(c))
	if err != nil {
		return respondError(c, err)
	}
	if orders == nil {
		orders = []models.TrackedOrder{}
	}
	return c.JSON(orders)
}

func checkoutStatus(resp *dto.CheckoutResponse) int {
	if resp.Processing {
		return fiber.StatusAccepted
	}
	return fiber.StatusOK
}

func trackingResponse(snap poller.Snapshot) dto.TrackingResponse {
	return dto.TrackingResponse{
		PubTrackID: snap.PubTrackID,
		Processing: snap.Processing,
		Outcome:    string(snap.Outcome),
		Attempts:   snap.Attempts,
		Message:    services.OutcomeMessage(snap.Outcome, snap.Err),
		StartedAt:  snap.StartedAt,
		ResolvedAt: snap.ResolvedAt,
	}
}

func queryLimit(c *fiber.Ctx) int {
	limit := c.QueryInt("limit", defaultHistoryLimit)
	if limit <= 0 {
		return defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		return maxHistoryLimit
	}
	return limit
}
