package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/thebridge/bridge-checkout/internal/cache"
	"github.com/thebridge/bridge-checkout/internal/database"
	"github.com/thebridge/bridge-checkout/internal/dto"
)

// ActiveCounter reports how many orders are being tracked.
type ActiveCounter interface {
	Active() int
}

type HealthHandler struct {
	store   cache.Store
	tracker ActiveCounter
	ping    func() error
}

func NewHealthHandler(store cache.Store, tracker ActiveCounter) *HealthHandler {
	return &HealthHandler{store: store, tracker: tracker, ping: database.Ping}
}

func (h *HealthHandler) Check(c *fiber.Ctx) error {
	dbStatus := "ok"
	if err := h.ping(); err != nil {
		dbStatus = "unhealthy: " + err.Error()
	}

	cacheStatus := "ok"
	if err := h.store.Ping(c.UserContext()); err != nil {
		cacheStatus = "unhealthy: " + err.Error()
	}

	return c.JSON(dto.HealthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		DB:        dbStatus,
		Cache:     cacheStatus,
		Tracking:  h.tracker.Active(),
	})
}
