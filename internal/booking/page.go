// Package booking assembles the therapy booking page and handles opening the
// scheduling widget.
package booking

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/p-blackswan/therapy-booking/internal/analytics"
	perrors "github.com/p-blackswan/therapy-booking/internal/errors"
	"github.com/p-blackswan/therapy-booking/internal/i18n"
	"github.com/p-blackswan/therapy-booking/internal/metrics"
	"github.com/p-blackswan/therapy-booking/internal/models"
	"github.com/p-blackswan/therapy-booking/internal/partneraccess"
	"github.com/p-blackswan/therapy-booking/internal/requestid"
	"github.com/p-blackswan/therapy-booking/internal/widget"
)

// EventLogger records analytics events. *analytics.Logger satisfies it.
type EventLogger interface {
	Log(ctx context.Context, name analytics.EventName, data map[string]interface{}) bool
}

// Request identifies whose page to build. Version is the store's snapshot
// version for Accesses; Locale overrides the user's locale when set.
type Request struct {
	User     *models.User
	Accesses []*partneraccess.PartnerAccess
	Version  int64
	Locale   string
}

func (r Request) locale() string {
	if r.Locale != "" {
		return r.Locale
	}
	if r.User != nil {
		return r.User.Locale
	}
	return ""
}

func (r Request) userID() string {
	if r.User == nil {
		return ""
	}
	return r.User.ID
}

// WidgetState tells the client whether to load the widget script.
type WidgetState struct {
	Open      bool           `json:"open"`
	ScriptID  string         `json:"script_id,omitempty"`
	ScriptSrc string         `json:"script_src,omitempty"`
	Config    *widget.Config `json:"config,omitempty"`
}

// Page is the booking page view model.
type Page struct {
	Locale            string                 `json:"locale"`
	HeadTitle         string                 `json:"head_title"`
	Header            Header                 `json:"header"`
	PartnerHeader     *PartnerHeader         `json:"partner_header,omitempty"`
	Partner           *partneraccess.Partner `json:"partner,omitempty"`
	HasRemaining      bool                   `json:"has_remaining"`
	CTA               i18n.RichText          `json:"cta"`
	ShowBookingButton bool                   `json:"show_booking_button"`
	BookingButton     string                 `json:"booking_button"`
	Steps             ImageTextGrid          `json:"steps"`
	FAQHeader         string                 `json:"faq_header"`
	FAQImage          Image                  `json:"faq_image"`
	FAQs              []FAQ                  `json:"faqs"`
	Widget            WidgetState            `json:"widget"`
}

// Launch is what the client needs to start the widget.
type Launch struct {
	ScriptID  string        `json:"script_id"`
	ScriptSrc string        `json:"script_src"`
	Config    widget.Config `json:"config"`
}

// Service builds booking pages.
type Service struct {
	catalog  *i18n.Catalog
	selector *partneraccess.Selector
	events   EventLogger
	sessions *widget.Sessions
	settings widget.Settings
	metrics  *metrics.Metrics
	logger   zerolog.Logger
	now      func() time.Time
}

// NewService creates a Service.
func NewService(
	catalog *i18n.Catalog,
	selector *partneraccess.Selector,
	events EventLogger,
	sessions *widget.Sessions,
	settings widget.Settings,
	m *metrics.Metrics,
	logger zerolog.Logger,
) *Service {
	return &Service{
		catalog:  catalog,
		selector: selector,
		events:   events,
		sessions: sessions,
		settings: settings,
		metrics:  m,
		logger:   logger.With().Str("component", "booking").Logger(),
		now:      time.Now,
	}
}

// Resolve picks the partner access for the request, through the selector
// cache. Requests without a user are resolved uncached.
func (s *Service) Resolve(req Request) partneraccess.Resolution {
	if req.User == nil {
		res := partneraccess.Resolve(req.Accesses)
		s.metrics.RecordResolution(res.Outcome(), false)
		return res
	}
	res, hit := s.selector.Resolve(req.User.ID, req.Version, req.Accesses)
	s.metrics.RecordResolution(res.Outcome(), hit)
	s.metrics.SetSelectorHitRatio(s.selector.Stats().HitRate())
	return res
}

// BookSession builds the booking page and records a view.
func (s *Service) BookSession(ctx context.Context, req Request) (*Page, error) {
	res := s.Resolve(req)

	locale := req.locale()
	tr := s.catalog.Translator(locale, "Therapy")
	shared := s.catalog.Translator(locale, "Shared")

	partnerName := shared.Raw("yourOrganisation")
	var partner *partneraccess.Partner
	if res.Selected != nil {
		partner = res.Selected.Partner
		partnerName, _ = res.Selected.PartnerName()
	}
	nameParams := i18n.Params{"partnerName": partnerName}

	page := &Page{
		Locale:    tr.Locale(),
		HeadTitle: tr.T("title", nil),
		Header: Header{
			Title:        tr.Rich("title", nil, nil),
			Introduction: tr.Rich("introduction", nameParams, nil),
			ImageSrc:     headerImageSrc,
			ImageAlt:     shared.Raw(headerImageAlt),
		},
		Partner:           partner,
		HasRemaining:      res.HasRemaining,
		ShowBookingButton: res.HasRemaining,
		BookingButton:     tr.T("bookingButton", nil),
		Steps:             buildSteps(s.catalog.Translator(locale, "Therapy.steps"), shared),
		FAQHeader:         tr.T("faqHeader", nil),
		FAQImage: Image{
			Src:    leafMixSrc,
			Alt:    shared.Raw(leafMixAlt),
			Width:  125,
			Height: 100,
		},
		FAQs: buildFAQs(s.catalog.Translator(locale, "Therapy.faqs"), partnerName),
	}

	if partner != nil && partner.Logo != "" {
		page.PartnerHeader = &PartnerHeader{
			PartnerLogoSrc: partner.Logo,
			PartnerLogoAlt: shared.T("alt.partnerLogo", nameParams),
			ImageSrc:       headerImageSrc,
			ImageAlt:       shared.Raw(headerImageAlt),
		}
	}

	if res.HasRemaining {
		// Without a named selection there is no count to show.
		remaining := ""
		if res.Selected != nil {
			remaining = strconv.Itoa(res.Selected.TherapySessionsRemaining)
		}
		page.CTA = tr.Rich("therapySessionsRemaining", nil, map[string]i18n.TagFunc{
			"strongText": func(string) string { return remaining },
		})
	} else {
		page.CTA = tr.Rich("noTherapySessionsRemaining", nameParams, nil)
	}

	if res.HasRemaining && req.User != nil {
		open, err := s.sessions.IsOpen(ctx, req.User.ID)
		if err != nil {
			return nil, fmt.Errorf("building booking page: %w", err)
		}
		if open {
			cfg := widget.NewConfig(s.settings, req.User)
			page.Widget = WidgetState{Open: true, ScriptID: widget.ScriptID, ScriptSrc: widget.ScriptSrc, Config: &cfg}
		}
	}

	s.events.Log(ctx, analytics.TherapyBookingViewed, analytics.EventUserData(req.User, req.Accesses, s.now()))

	s.logger.Debug().
		Str("user_id", req.userID()).
		Str("outcome", res.Outcome()).
		Str("locale", page.Locale).
		Msg("built booking page")

	return page, nil
}

// OpenWidget starts a widget session. It fails with ErrNoSessionsRemaining
// when the user has nothing left to book.
func (s *Service) OpenWidget(ctx context.Context, req Request) (*Launch, error) {
	res := s.Resolve(req)
	if !res.HasRemaining {
		return nil, perrors.ErrNoSessionsRemaining
	}

	s.events.Log(ctx, analytics.TherapyBookingOpened, analytics.EventUserData(req.User, req.Accesses, s.now()))

	if req.User != nil {
		reqID, _ := requestid.Lookup(ctx)
		if err := s.sessions.Open(ctx, req.User.ID, reqID); err != nil {
			s.logger.Warn().Err(err).Str("user_id", req.User.ID).Msg("failed to record widget session")
		}
	}

	return &Launch{
		ScriptID:  widget.ScriptID,
		ScriptSrc: widget.ScriptSrc,
		Config:    widget.NewConfig(s.settings, req.User),
	}, nil
}

// CloseWidget ends the user's widget session so the next page load starts
// with the widget closed.
func (s *Service) CloseWidget(ctx context.Context, userID string) error {
	if err := s.sessions.Close(ctx, userID); err != nil {
		return fmt.Errorf("closing widget: %w", err)
	}
	s.logger.Debug().Str("user_id", userID).Msg("closed booking widget")
	return nil
}
