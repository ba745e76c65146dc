// Package widget configures the SimplyBook scheduling widget embedded in the
// booking page.
package widget

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/p-blackswan/therapy-booking/internal/models"
	"github.com/p-blackswan/therapy-booking/pkg/tokenstore"
)

const (
	ScriptID  = "widget-js"
	ScriptSrc = "//widget.simplybook.it/v2/widget/widget.js"
)

// Settings are the deployment-wide widget options.
type Settings struct {
	Company       string
	Theme         string
	Timeline      string
	Datepicker    string
	ThemeSettings map[string]string
}

// DefaultSettings returns settings for company with the stock layout.
func DefaultSettings(company, theme string) Settings {
	return Settings{
		Company:    company,
		Theme:      theme,
		Timeline:   "modern",
		Datepicker: "top_calendar",
		ThemeSettings: map[string]string{
			"timeline_show_end_time":  "0",
			"timeline_modern_display": "as_slots",
			"sb_base_color":           "#FFBFA4",
			"display_item_mode":       "block",
			"body_bg_color":           "#FFFFFF",
			"dark_font_color":         "#000000",
			"light_font_color":        "#FFFFFF",
			"btn_color_1":             "#FFBFA4",
			"sb_company_label_color":  "#000000",
			"hide_img_mode":           "1",
			"show_sidebar":            "1",
			"sb_busy":                 "#D0D0D0",
			"sb_available":            "#FFE9DF",
		},
	}
}

// Predefined pre-fills the booking form.
type Predefined struct {
	Client Client `json:"client"`
}

// Client identifies the person booking.
type Client struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// AppConfig is the widget's app_config block.
type AppConfig struct {
	Predefined       Predefined `json:"predefined"`
	AllowSwitchToAda bool       `json:"allow_switch_to_ada"`
}

// Config is the object handed to the SimplybookWidget constructor.
type Config struct {
	WidgetType    string            `json:"widget_type"`
	URL           string            `json:"url"`
	Theme         string            `json:"theme"`
	ThemeSettings map[string]string `json:"theme_settings"`
	Timeline      string            `json:"timeline"`
	Datepicker    string            `json:"datepicker"`
	IsRTL         bool              `json:"is_rtl"`
	AppConfig     AppConfig         `json:"app_config"`
}

// NewConfig builds the widget configuration for user. A nil user leaves the
// client fields empty.
func NewConfig(s Settings, user *models.User) Config {
	themeSettings := make(map[string]string, len(s.ThemeSettings))
	for k, v := range s.ThemeSettings {
		themeSettings[k] = v
	}

	cfg := Config{
		WidgetType:    "iframe",
		URL:           fmt.Sprintf("https://%s.simplybook.it", s.Company),
		Theme:         s.Theme,
		ThemeSettings: themeSettings,
		Timeline:      s.Timeline,
		Datepicker:    s.Datepicker,
	}
	if user != nil {
		cfg.AppConfig.Predefined.Client = Client{Name: user.Name, Email: user.Email}
	}
	return cfg
}

// Sessions remembers which users have the widget open.
type Sessions struct {
	store tokenstore.Store
	ttl   time.Duration
}

// NewSessions creates Sessions backed by store.
func NewSessions(store tokenstore.Store, ttl time.Duration) *Sessions {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &Sessions{store: store, ttl: ttl}
}

func sessionKey(userID string) string {
	return "widget:" + userID
}

// Open records that userID opened the widget, extending any open session.
func (s *Sessions) Open(ctx context.Context, userID, requestID string) error {
	meta := map[string]string{"opened_by_request": requestID}
	if err := s.store.Set(ctx, sessionKey(userID), userID, s.ttl, meta); err != nil {
		return fmt.Errorf("recording widget session: %w", err)
	}
	return nil
}

// IsOpen reports whether userID has an unexpired widget session.
func (s *Sessions) IsOpen(ctx context.Context, userID string) (bool, error) {
	_, err := s.store.Get(ctx, sessionKey(userID))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, tokenstore.ErrTokenNotFound), errors.Is(err, tokenstore.ErrTokenExpired):
		return false, nil
	default:
		return false, fmt.Errorf("reading widget session: %w", err)
	}
}

// Close ends userID's widget session.
func (s *Sessions) Close(ctx context.Context, userID string) error {
	return s.store.Delete(ctx, sessionKey(userID))
}

// Cleanup drops expired sessions.
func (s *Sessions) Cleanup(ctx context.Context) (int, error) {
	return s.store.Cleanup(ctx)
}
