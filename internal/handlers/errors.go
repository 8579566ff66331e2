package handlers

import (
	"errors"
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"github.com/thebridge/bridge-checkout/internal/apierror"
	"github.com/thebridge/bridge-checkout/internal/dto"
	"github.com/thebridge/bridge-checkout/internal/poller"
	"github.com/thebridge/bridge-checkout/internal/services"
	"github.com/thebridge/bridge-checkout/internal/session"
)

var badRequestErrors = []error{
	services.ErrInvalidProcessor,
	services.ErrInvalidMembership,
	services.ErrInvalidCredits,
	services.ErrMissingTrackID,
	services.ErrMissingCallbackToken,
}

// respondError writes err as an ErrorResponse. Member API rejections keep
// their status and message; outages become 502.
func respondError(c *fiber.Ctx, err error) error {
	for _, target := range badRequestErrors {
		if errors.Is(err, target) {
			return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: true, Message: err.Error()})
		}
	}

	switch {
	case errors.Is(err, services.ErrTrackingNotFound):
		return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{Error: true, Message: err.Error()})
	case errors.Is(err, poller.ErrTrackerClosed):
		return c.Status(fiber.StatusServiceUnavailable).JSON(dto.ErrorResponse{Error: true, Message: "Server is shutting down"})
	}

	if apiErr, ok := apierror.As(err); ok {
		if apiErr.Upstream() {
			slog.Warn("member api unavailable", "path", c.Path(), "error", err)
			return c.Status(fiber.StatusBadGateway).JSON(dto.ErrorResponse{Error: true, Message: apiErr.Message})
		}
		return c.Status(apiErr.StatusCode).JSON(dto.ErrorResponse{Error: true, Message: apiErr.Message})
	}

	slog.Error("request failed", "path", c.Path(), "error", err)
	return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: true, Message: "Internal server error"})
}

// currentMember builds the caller's identity from the verified token.
func currentMember(c *fiber.Ctx) (services.Member, bool) {
	id, err := session.GetMemberID(c)
	if err != nil {
		return services.Member{}, false
	}
	return services.Member{ID: id, Token: session.GetBearer(c)}, true
}

func unauthorized(c *fiber.Ctx) error {
	return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{
		Error: true, Message: "Unauthorized",
	})
}

func invalidBody(c *fiber.Ctx) error {
	return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
		Error: true, Message: "Invalid request body",
	})
}
