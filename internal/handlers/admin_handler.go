package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/thebridge/bridge-checkout/internal/dto"
	"github.com/thebridge/bridge-checkout/internal/models"
	"github.com/thebridge/bridge-checkout/internal/services"
)

type AdminHandler struct {
	orders *services.OrderService
}

func NewAdminHandler(orders *services.OrderService) *AdminHandler {
	return &AdminHandler{orders: orders}
}

func (h *AdminHandler) RecentOrders(c *fiber.Ctx) error {
	orders, err := h.orders.RecentOrders(c.UserContext(), queryLimit(c))
	if err != nil {
		return respondError(c, err)
	}
	if orders == nil {
		orders = []models.TrackedOrder{}
	}
	return c.JSON(orders)
}

// TrackingTasks lists running and recently finished tracking tasks.
func (h *AdminHandler) TrackingTasks(c *fiber.Ctx) error {
	snaps := h.orders.TrackingTasks()
	out := make([]adminTask, 0, len(snaps))
	for _, snap := range snaps {
		out = append(out, adminTask{MemberID: snap.Owner, TrackingResponse: trackingResponse(snap)})
	}
	return c.JSON(out)
}

type adminTask struct {
	MemberID string `json:"memberId"`
	dto.TrackingResponse
}
