package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/thebridge/bridge-checkout/internal/cache"
	"github.com/thebridge/bridge-checkout/internal/models"
)

// AccountHandler serves the member views that completed orders change.
type AccountHandler struct {
	views *cache.Views
}

func NewAccountHandler(views *cache.Views) *AccountHandler {
	return &AccountHandler{views: views}
}

func (h *AccountHandler) Credits(c *fiber.Ctx) error {
	m, ok := currentMember(c)
	if !ok {
		return unauthorized(c)
	}

	balance, err := h.views.Credits(c.UserContext(), m.ID, m.Token)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(balance)
}

func (h *AccountHandler) Memberships(c *fiber.Ctx) error {
	m, ok := currentMember(c)
	if !ok {
		return unauthorized(c)
	}

	memberships, err := h.views.Memberships(c.UserContext(), m.ID, m.Token)
	if err != nil {
		return respondError(c, err)
	}
	if memberships == nil {
		memberships = []models.ActiveMembership{}
	}
	return c.JSON(memberships)
}
