// Package devbridge is an in-memory stand-in for the Bridge Member API,
// used for local development and tests. Paid orders stay pending until
// their payment token is posted to the webhook endpoint.
package devbridge

import (
	"fmt"
	"log/slog"
	"math"
	"net/url"
	"strings"
	"sync"
	"time"

	jwtware "github.com/gofiber/contrib/jwt"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/thebridge/bridge-checkout/internal/dto"
	"github.com/thebridge/bridge-checkout/internal/models"
	"github.com/thebridge/bridge-checkout/internal/services"
	"github.com/thebridge/bridge-checkout/internal/session"
)

const (
	// Webhook tokens with these prefixes settle the order named by the rest
	// of the token as cancelled or failed instead of completed.
	CancelPrefix = "CANCEL-"
	FailPrefix   = "FAIL-"

	creditPrice = 0.25
	webhookOK   = "OK"
)

type Options struct {
	JWTSecret    string
	RedirectBase string
	ReturnBase   string
	// Discounts maps discount codes to a percentage off.
	Discounts map[string]float64
	Tiers     []models.SubscriptionTier
}

type order struct {
	id         int64
	pubTrackID string
	token      string
	returnURL  string
	memberID   string
	kind       string
	tier       *models.SubscriptionTier
	credits    int
	autoRenew  bool
	amount     float64
	status     models.PaymentStatus
	placedAt   time.Time
	paidAt     *time.Time
}

type account struct {
	credits     models.CreditsBalance
	memberships []models.ActiveMembership
}

type Server struct {
	opts Options
	now  func() time.Time

	mu       sync.Mutex
	nextID   int64
	orders   map[string]*order
	byToken  map[string]*order
	accounts map[string]*account
}

func New(opts Options) *Server {
	if opts.RedirectBase == "" {
		opts.RedirectBase = "http://localhost:8081/pay"
	}
	if opts.ReturnBase == "" {
		opts.ReturnBase = "http://localhost:3000/checkout/return"
	}
	if opts.Tiers == nil {
		opts.Tiers = services.FallbackTiers()
	}
	if opts.Discounts == nil {
		opts.Discounts = map[string]float64{"WELCOME10": 10, "FRIENDS25": 25}
	}
	return &Server{
		opts:     opts,
		now:      time.Now,
		nextID:   1000,
		orders:   make(map[string]*order),
		byToken:  make(map[string]*order),
		accounts: make(map[string]*account),
	}
}

// App returns the Fiber app serving the Member API endpoints.
func (s *Server) App() *fiber.App {
	app := fiber.New(fiber.Config{AppName: "Bridge Member API (dev)"})

	app.Get("/Resources/MembershipsFeatures", s.listTiers)
	app.Get("/pay/:processor", s.approve)

	member := app.Group("/Member", jwtware.New(jwtware.Config{
		SigningKey: jwtware.SigningKey{Key: []byte(s.opts.JWTSecret)},
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"title": "Unauthorized"})
		},
	}))
	member.Post("/AppUserPlaceMembershipOrder", s.placeMembershipOrder)
	member.Post("/AppUserPlaceTopupOrder", s.placeTopupOrder)
	member.Post("/PayPalWebhook", s.paypalWebhook)
	member.Get("/OrderStatus/:pubTrackId", s.orderStatus)
	member.Get("/RemainingCredits", s.remainingCredits)
	member.Get("/ActiveMemberships", s.activeMemberships)

	return app
}

func (s *Server) listTiers(c *fiber.Ctx) error {
	return c.JSON(s.opts.Tiers)
}

func (s *Server) placeMembershipOrder(c *fiber.Ctx) error {
	memberID, err := session.GetMemberID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"title": "Unauthorized"})
	}

	var req dto.PlaceMembershipOrderRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"title": "Invalid request body"})
	}
	if !models.PaymentProcessor(req.ProcessorID).Valid() {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"errors": fiber.Map{"ProcessorId": []string{"Unsupported payment processor"}},
		})
	}

	tier := s.findTier(req.MembershipID)
	if tier == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"message": "Membership not found"})
	}

	price := tier.Price
	if code := strings.ToUpper(strings.TrimSpace(req.DiscountCode)); code != "" {
		pct, ok := s.opts.Discounts[code]
		if !ok {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"errors": fiber.Map{"DiscountCode": []string{"Invalid discount code"}},
			})
		}
		price = math.Round(price*(100-pct)) / 100
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	o := s.newOrderLocked(memberID, models.OrderKindMembership, price)
	o.tier = tier
	o.autoRenew = req.AutoRenewMyMembership
	return c.JSON(s.placedLocked(o, models.PaymentProcessor(req.ProcessorID)))
}

func (s *Server) placeTopupOrder(c *fiber.Ctx) error {
	memberID, err := session.GetMemberID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"title": "Unauthorized"})
	}

	var req dto.PlaceTopupOrderRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"title": "Invalid request body"})
	}
	if !models.PaymentProcessor(req.ProcessorID).Valid() {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"errors": fiber.Map{"ProcessorId": []string{"Unsupported payment processor"}},
		})
	}
	if req.Credits <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"errors": []string{"Credits must be greater than zero"},
		})
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	o := s.newOrderLocked(memberID, models.OrderKindTopup, float64(req.Credits)*creditPrice)
	o.credits = req.Credits
	return c.JSON(s.placedLocked(o, models.PaymentProcessor(req.ProcessorID)))
}

// paypalWebhook settles the order behind a payment token. Settling an
// order twice is a no-op.
func (s *Server) paypalWebhook(c *fiber.Ctx) error {
	token := strings.Trim(strings.TrimSpace(string(c.Body())), `"`)
	status := models.PaymentCompleted
	switch {
	case strings.HasPrefix(token, CancelPrefix):
		token, status = strings.TrimPrefix(token, CancelPrefix), models.PaymentCancelled
	case strings.HasPrefix(token, FailPrefix):
		token, status = strings.TrimPrefix(token, FailPrefix), models.PaymentFailed
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.byToken[token]
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"message": "Unknown payment token"})
	}
	if o.status == models.PaymentPending {
		s.settleLocked(o, status)
		slog.Info("dev order settled", "pub_track_id", o.pubTrackID, "status", status.String())
	}
	return c.JSON(webhookOK)
}

// approve plays the processor's hosted checkout: the member is sent back
// to the return URL with the payment token, which the client then forwards
// as a callback.
func (s *Server) approve(c *fiber.Ctx) error {
	token := c.Query("token")

	s.mu.Lock()
	o, ok := s.byToken[token]
	s.mu.Unlock()
	if !ok {
		return c.Status(fiber.StatusNotFound).SendString("Unknown payment token")
	}
	return c.Redirect(o.returnURL+"&token="+url.QueryEscape(token), fiber.StatusFound)
}

func (s *Server) orderStatus(c *fiber.Ctx) error {
	memberID, err := session.GetMemberID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"title": "Unauthorized"})
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[c.Params("pubTrackId")]
	if !ok || o.memberID != memberID {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"message": "Order not found"})
	}
	return c.JSON(dto.OrderStatusResponse{
		OrderID:       o.id,
		IsPaid:        o.status == models.PaymentCompleted,
		PaymentStatus: int(o.status),
		Amount:        o.amount,
		OrderPlacedAt: o.placedAt,
		PaidAt:        o.paidAt,
	})
}

func (s *Server) remainingCredits(c *fiber.Ctx) error {
	memberID, err := session.GetMemberID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"title": "Unauthorized"})
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return c.JSON(s.accountLocked(memberID).credits)
}

func (s *Server) activeMemberships(c *fiber.Ctx) error {
	memberID, err := session.GetMemberID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"title": "Unauthorized"})
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	memberships := append([]models.ActiveMembership{}, s.accountLocked(memberID).memberships...)
	return c.JSON(memberships)
}

func (s *Server) findTier(id int) *models.SubscriptionTier {
	for i := range s.opts.Tiers {
		if s.opts.Tiers[i].ID == id {
			tier := s.opts.Tiers[i]
			return &tier
		}
	}
	return nil
}

func (s *Server) newOrderLocked(memberID, kind string, amount float64) *order {
	s.nextID++
	return &order{
		id:         s.nextID,
		pubTrackID: uuid.NewString(),
		memberID:   memberID,
		kind:       kind,
		amount:     amount,
		status:     models.PaymentPending,
		placedAt:   s.now().UTC(),
	}
}

// placedLocked stores o and builds the placement response. Free orders
// complete at once; paid ones get a processor redirect carrying the token.
func (s *Server) placedLocked(o *order, processor models.PaymentProcessor) dto.PlaceMembershipOrderResponse {
	s.orders[o.pubTrackID] = o

	resp := dto.PlaceMembershipOrderResponse{
		Result:     true,
		OrderID:    o.id,
		PubTrackID: o.pubTrackID,
	}
	if o.amount <= 0 {
		s.settleLocked(o, models.PaymentCompleted)
		resp.Message = "Order completed"
		return resp
	}

	o.token = "EC-" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:17])
	s.byToken[o.token] = o

	resp.Message = fmt.Sprintf("Redirecting to %s", processor)
	resp.RedirectURL = fmt.Sprintf("%s/%s?token=%s", s.opts.RedirectBase, strings.ToLower(processor.String()), url.QueryEscape(o.token))
	resp.ReturnURL = s.opts.ReturnBase + "?pubTrackId=" + url.QueryEscape(o.pubTrackID)
	o.returnURL = resp.ReturnURL
	return resp
}

func (s *Server) settleLocked(o *order, status models.PaymentStatus) {
	o.status = status
	if status != models.PaymentCompleted {
		return
	}

	paidAt := s.now().UTC()
	o.paidAt = &paidAt
	acct := s.accountLocked(o.memberID)

	if o.kind == models.OrderKindTopup {
		acct.credits.TotalCredits += o.credits
		acct.credits.RemainingCredits += o.credits
		return
	}

	granted := 0
	for _, f := range o.tier.Features {
		granted += f.Credits
	}
	acct.credits.TotalCredits += granted
	acct.credits.RemainingCredits += granted

	membership := models.ActiveMembership{
		MembershipID: o.tier.ID,
		Code:         o.tier.Code,
		Name:         o.tier.Name,
		StartedAt:    paidAt,
		AutoRenew:    o.autoRenew,
	}
	if !o.tier.IsOneTime {
		expires := paidAt.AddDate(0, 1, 0)
		membership.ExpiresAt = &expires
	}

	kept := acct.memberships[:0]
	for _, m := range acct.memberships {
		if m.MembershipID != membership.MembershipID {
			kept = append(kept, m)
		}
	}
	acct.memberships = append(kept, membership)
}

func (s *Server) accountLocked(memberID string) *account {
	acct, ok := s.accounts[memberID]
	if !ok {
		acct = &account{memberships: []models.ActiveMembership{}}
		s.accounts[memberID] = acct
	}
	return acct
}
