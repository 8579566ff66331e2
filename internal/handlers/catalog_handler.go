package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/thebridge/bridge-checkout/internal/dto"
	"github.com/thebridge/bridge-checkout/internal/services"
)

type CatalogHandler struct {
	catalog *services.CatalogService
}

func NewCatalogHandler(catalog *services.CatalogService) *CatalogHandler {
	return &CatalogHandler{catalog: catalog}
}

// ListTiers never fails; an unreachable Member API yields the fallback
// catalog with source "fallback".
func (h *CatalogHandler) ListTiers(c *fiber.Ctx) error {
	tiers, source := h.catalog.Catalog(c.UserContext())
	return c.JSON(dto.CatalogResponse{
		Source: source,
		Tiers:  services.SortTiers(tiers),
	})
}
