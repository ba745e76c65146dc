// Package partneraccess models the partner accesses granted to a user and
// decides which one, if any, personalizes the therapy booking flow.
package partneraccess

import "time"

// Partner is the organization (employer, health plan) granting access.
type Partner struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name,omitempty"`
	Logo string `json:"logo,omitempty"`
}

// PartnerAccess links a user to the features a partner granted them and the
// therapy session counters for that grant.
type PartnerAccess struct {
	ID                       string     `json:"id,omitempty"`
	Partner                  *Partner   `json:"partner,omitempty"`
	AccessCode               string     `json:"access_code,omitempty"`
	FeatureLiveChat          bool       `json:"feature_live_chat"`
	FeatureTherapy           bool       `json:"feature_therapy"`
	TherapySessionsRemaining int        `json:"therapy_sessions_remaining"`
	TherapySessionsRedeemed  int        `json:"therapy_sessions_redeemed"`
	CreatedAt                *time.Time `json:"created_at,omitempty"`
}

// PartnerName returns the partner's name and whether it is usable for
// personalization. A nil access, nil partner and empty name all report false.
func (pa *PartnerAccess) PartnerName() (string, bool) {
	if pa == nil || pa.Partner == nil || pa.Partner.Name == "" {
		return "", false
	}
	return pa.Partner.Name, true
}

func (pa *PartnerAccess) hasRemaining() bool {
	return pa != nil && pa.FeatureTherapy && pa.TherapySessionsRemaining > 0
}

func (pa *PartnerAccess) hasRedeemed() bool {
	return pa != nil && pa.FeatureTherapy && pa.TherapySessionsRedeemed > 0
}
