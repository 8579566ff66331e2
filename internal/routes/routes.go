package routes

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/thebridge/bridge-checkout/internal/config"
	"github.com/thebridge/bridge-checkout/internal/handlers"
	"github.com/thebridge/bridge-checkout/internal/middleware"
	"github.com/thebridge/bridge-checkout/internal/session"
)

type Handlers struct {
	Health   *handlers.HealthHandler
	Catalog  *handlers.CatalogHandler
	Checkout *handlers.CheckoutHandler
	Account  *handlers.AccountHandler
	Admin    *handlers.AdminHandler
}

func Setup(app *fiber.App, cfg *config.Config, h Handlers) {
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	api := app.Group("/api")

	// General API rate limiter: 120 req/min per IP (checkout pages poll
	// tracking status)
	api.Use(limiter.New(limiter.Config{
		Max:               120,
		Expiration:        1 * time.Minute,
		LimiterMiddleware: limiter.SlidingWindow{},
		KeyGenerator:      func(c *fiber.Ctx) string { return c.IP() },
	}))

	api.Get("/health", h.Health.Check)
	api.Get("/tiers", h.Catalog.ListTiers)

	// Member routes (JWT required) - middleware is applied per route so it
	// does not leak onto public or admin routes under the same prefix
	protected := middleware.JWTProtected(cfg)

	// Placing orders and exchanging callbacks: 10 req/min per member
	placement := limiter.New(limiter.Config{
		Max:               10,
		Expiration:        1 * time.Minute,
		LimiterMiddleware: limiter.SlidingWindow{},
		KeyGenerator:      memberKey,
	})
	api.Post("/orders/membership", protected, placement, h.Checkout.PlaceMembershipOrder)
	api.Post("/orders/topup", protected, placement, h.Checkout.PlaceTopupOrder)
	api.Post("/payments/paypal/callback", protected, placement, h.Checkout.PayPalCallback)

	api.Get("/orders", protected, h.Checkout.History)
	api.Get("/orders/:trackId/tracking", protected, h.Checkout.TrackingStatus)
	api.Post("/orders/:trackId/tracking", protected, h.Checkout.StartTracking)
	api.Delete("/orders/:trackId/tracking", protected, h.Checkout.CancelTracking)
	api.Delete("/session/tracking", protected, h.Checkout.CancelAllTracking)

	api.Get("/me/credits", protected, h.Account.Credits)
	api.Get("/me/memberships", protected, h.Account.Memberships)

	// Operators: admin token header, or a member on the admin lists
	admin := api.Group("/admin", optionalJWT(cfg), middleware.AdminRequired(cfg))
	admin.Get("/orders", h.Admin.RecentOrders)
	admin.Get("/tracking", h.Admin.TrackingTasks)
}

func memberKey(c *fiber.Ctx) string {
	if id, ok := c.Locals(session.MemberIDKey).(string); ok && id != "" {
		return "member:" + id
	}
	return c.IP()
}

// optionalJWT verifies a bearer token when one is sent, so AdminRequired
// can also accept the admin token header alone.
func optionalJWT(cfg *config.Config) fiber.Handler {
	verify := middleware.JWTProtected(cfg)
	return func(c *fiber.Ctx) error {
		if c.Get(fiber.HeaderAuthorization) == "" {
			return c.Next()
		}
		return verify(c)
	}
}
