package api

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/p-blackswan/therapy-booking/internal/booking"
	perrors "github.com/p-blackswan/therapy-booking/internal/errors"
	"github.com/p-blackswan/therapy-booking/internal/health"
	"github.com/p-blackswan/therapy-booking/internal/metrics"
	"github.com/p-blackswan/therapy-booking/internal/models"
	"github.com/p-blackswan/therapy-booking/internal/partneraccess"
)

// Store is the persistence the handlers need. *store.Store satisfies it.
type Store interface {
	SaveUser(ctx context.Context, u *models.User) error
	GetUser(ctx context.Context, id string) (*models.User, error)
	ReplacePartnerAccesses(ctx context.Context, userID string, accesses []*partneraccess.PartnerAccess) (int64, error)
	ListPartnerAccesses(ctx context.Context, userID string) ([]*partneraccess.PartnerAccess, int64, error)
}

// Handlers holds dependencies for HTTP handlers.
type Handlers struct {
	store    Store
	booking  *booking.Service
	selector *partneraccess.Selector
	sessions *Sessions
	checker  *health.Checker
	metrics  *metrics.Metrics
	logger   zerolog.Logger
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(deps Deps, logger zerolog.Logger) *Handlers {
	return &Handlers{
		store:    deps.Store,
		booking:  deps.Booking,
		selector: deps.Selector,
		sessions: deps.Sessions,
		checker:  deps.Checker,
		metrics:  deps.Metrics,
		logger:   logger.With().Str("component", "handlers").Logger(),
	}
}

// Liveness handles GET /healthz.
func (h *Handlers) Liveness(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

// Readiness handles GET /readyz.
func (h *Handlers) Readiness(c *fiber.Ctx) error {
	report := h.checker.RunAll(c.UserContext())
	if !report.Ready() {
		return c.Status(fiber.StatusServiceUnavailable).JSON(report)
	}
	return c.JSON(report)
}

// ResolvePartnerAccess handles POST /api/v1/partner-access/resolve.
func (h *Handlers) ResolvePartnerAccess(c *fiber.Ctx) error {
	var req ResolveRequest
	if err := c.BodyParser(&req); err != nil {
		return problemResponse(c, fiber.StatusBadRequest,
			"invalid_body", "Bad Request",
			"Invalid request body: "+err.Error())
	}

	res := partneraccess.Resolve(req.PartnerAccesses)
	if h.metrics != nil {
		h.metrics.RecordResolution(res.Outcome(), false)
	}

	return c.JSON(ResolveResponse{
		HasRemaining:  res.HasRemaining,
		SelectedIndex: res.IndexOf(req.PartnerAccesses),
		Selected:      res.Selected,
	})
}

// BookSession handles GET /api/v1/therapy/book-session.
func (h *Handlers) BookSession(c *fiber.Ctx) error {
	req, err := h.bookingRequest(c)
	if err != nil {
		return h.errorResponse(c, err)
	}

	page, err := h.booking.BookSession(c.UserContext(), req)
	if err != nil {
		return h.errorResponse(c, err)
	}
	return c.JSON(page)
}

// OpenWidget handles POST /api/v1/therapy/book-session/widget.
func (h *Handlers) OpenWidget(c *fiber.Ctx) error {
	req, err := h.bookingRequest(c)
	if err != nil {
		return h.errorResponse(c, err)
	}

	launch, err := h.booking.OpenWidget(c.UserContext(), req)
	if err != nil {
		return h.errorResponse(c, err)
	}
	return c.JSON(launch)
}

// CloseWidget handles DELETE /api/v1/therapy/book-session/widget.
func (h *Handlers) CloseWidget(c *fiber.Ctx) error {
	userID, _ := c.Locals(localUserID).(string)
	if err := h.booking.CloseWidget(c.UserContext(), userID); err != nil {
		return h.errorResponse(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *Handlers) bookingRequest(c *fiber.Ctx) (booking.Request, error) {
	userID, _ := c.Locals(localUserID).(string)
	ctx := c.UserContext()

	user, err := h.store.GetUser(ctx, userID)
	if err != nil {
		return booking.Request{}, err
	}
	if user == nil {
		return booking.Request{}, fmt.Errorf("user %s: %w", userID, perrors.ErrNotFound)
	}

	accesses, version, err := h.store.ListPartnerAccesses(ctx, userID)
	if err != nil {
		return booking.Request{}, err
	}

	return booking.Request{
		User:     user,
		Accesses: accesses,
		Version:  version,
		Locale:   c.Query("locale"),
	}, nil
}

// UpsertUser handles PUT /api/v1/admin/users/:id.
func (h *Handlers) UpsertUser(c *fiber.Ctx) error {
	var req UpsertUserRequest
	if err := c.BodyParser(&req); err != nil {
		return problemResponse(c, fiber.StatusBadRequest,
			"invalid_body", "Bad Request",
			"Invalid request body: "+err.Error())
	}

	user := &models.User{
		ID:     c.Params("id"),
		Name:   req.Name,
		Email:  req.Email,
		Locale: req.Locale,
	}
	if req.CreatedAt != nil {
		user.CreatedAt = *req.CreatedAt
	}

	if err := h.store.SaveUser(c.UserContext(), user); err != nil {
		return h.errorResponse(c, err)
	}

	saved, err := h.store.GetUser(c.UserContext(), user.ID)
	if err != nil {
		return h.errorResponse(c, err)
	}
	return c.JSON(saved)
}

// ReplacePartnerAccesses handles PUT /api/v1/admin/users/:id/partner-accesses.
func (h *Handlers) ReplacePartnerAccesses(c *fiber.Ctx) error {
	var req ReplaceAccessesRequest
	if err := c.BodyParser(&req); err != nil {
		return problemResponse(c, fiber.StatusBadRequest,
			"invalid_body", "Bad Request",
			"Invalid request body: "+err.Error())
	}

	for i, pa := range req.PartnerAccesses {
		if pa == nil {
			continue
		}
		if pa.TherapySessionsRemaining < 0 || pa.TherapySessionsRedeemed < 0 {
			return problemResponse(c, fiber.StatusBadRequest,
				"invalid_partner_access", "Bad Request",
				fmt.Sprintf("partner_accesses[%d]: session counts must not be negative", i))
		}
	}

	userID := c.Params("id")
	version, err := h.store.ReplacePartnerAccesses(c.UserContext(), userID, req.PartnerAccesses)
	if err != nil {
		return h.errorResponse(c, err)
	}
	h.selector.Invalidate(userID)

	h.logger.Info().
		Str("user_id", userID).
		Int64("version", version).
		Int("count", len(req.PartnerAccesses)).
		Msg("partner accesses replaced")

	return h.writeAccesses(c, userID)
}

// ListPartnerAccesses handles GET /api/v1/admin/users/:id/partner-accesses.
func (h *Handlers) ListPartnerAccesses(c *fiber.Ctx) error {
	return h.writeAccesses(c, c.Params("id"))
}

func (h *Handlers) writeAccesses(c *fiber.Ctx, userID string) error {
	accesses, version, err := h.store.ListPartnerAccesses(c.UserContext(), userID)
	if err != nil {
		return h.errorResponse(c, err)
	}
	if accesses == nil {
		accesses = []*partneraccess.PartnerAccess{}
	}
	return c.JSON(AccessesResponse{UserID: userID, Version: version, PartnerAccesses: accesses})
}

// IssueSessionToken handles POST /api/v1/admin/users/:id/session-token.
func (h *Handlers) IssueSessionToken(c *fiber.Ctx) error {
	if h.sessions == nil {
		return problemResponse(c, fiber.StatusServiceUnavailable,
			"sessions_disabled", "Service Unavailable",
			"User sessions are not configured")
	}

	userID := c.Params("id")
	user, err := h.store.GetUser(c.UserContext(), userID)
	if err != nil {
		return h.errorResponse(c, err)
	}
	if user == nil {
		return h.errorResponse(c, fmt.Errorf("user %s: %w", userID, perrors.ErrNotFound))
	}

	token, exp, err := h.sessions.Issue(userID)
	if err != nil {
		return h.errorResponse(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(SessionTokenResponse{Token: token, ExpiresAt: exp.UTC().Truncate(time.Second)})
}

// errorResponse maps domain errors to problem details; anything else goes to
// the error handler as a 500.
func (h *Handlers) errorResponse(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, perrors.ErrNotFound):
		return problemResponse(c, fiber.StatusNotFound, "not_found", "Not Found", err.Error())
	case errors.Is(err, perrors.ErrInvalidInput):
		return problemResponse(c, fiber.StatusBadRequest, "invalid_input", "Bad Request", err.Error())
	case errors.Is(err, perrors.ErrNoSessionsRemaining):
		return problemResponse(c, fiber.StatusConflict, "no_sessions_remaining", "Conflict", err.Error())
	case errors.Is(err, perrors.ErrUnavailable):
		return problemResponse(c, fiber.StatusServiceUnavailable, "unavailable", "Service Unavailable", err.Error())
	}
	return err
}
