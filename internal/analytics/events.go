// Package analytics records booking-flow events without blocking the
// request path.
package analytics

import (
	"strings"
	"time"

	"github.com/p-blackswan/therapy-booking/internal/models"
	"github.com/p-blackswan/therapy-booking/internal/partneraccess"
)

// EventName identifies an analytics event.
type EventName string

const (
	TherapyBookingViewed EventName = "THERAPY_BOOKING_VIEWED"
	TherapyBookingOpened EventName = "THERAPY_BOOKING_OPENED"
)

// Event is one analytics record as delivered to sinks.
type Event struct {
	ID        string                 `json:"id"`
	Name      EventName              `json:"name"`
	Timestamp time.Time              `json:"timestamp"`
	RequestID string                 `json:"request_id,omitempty"`
	Data      map[string]interface{} `json:"data,omitempty"`
}

// EventUserData summarizes the user and their partner accesses for event
// payloads. Email and name are not included.
func EventUserData(user *models.User, accesses []*partneraccess.PartnerAccess, now time.Time) map[string]interface{} {
	data := map[string]interface{}{
		"account_age_days": user.AccountAgeDays(now),
	}
	if user != nil {
		data["user_id"] = user.ID
		if user.Locale != "" {
			data["locale"] = user.Locale
		}
	}

	var (
		names               []string
		therapy, liveChat   bool
		remaining, redeemed int
		count               int
	)
	for _, pa := range accesses {
		if pa == nil {
			continue
		}
		count++
		if name, ok := pa.PartnerName(); ok {
			names = append(names, name)
		}
		if pa.FeatureLiveChat {
			liveChat = true
		}
		if pa.FeatureTherapy {
			therapy = true
			remaining += pa.TherapySessionsRemaining
			redeemed += pa.TherapySessionsRedeemed
		}
	}

	data["partner_count"] = count
	if len(names) > 0 {
		data["partner"] = strings.Join(names, ", ")
	}
	data["has_therapy"] = therapy
	data["has_live_chat"] = liveChat
	data["partner_therapy_remaining"] = remaining
	data["partner_therapy_redeemed"] = redeemed

	return data
}
