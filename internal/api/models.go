package api

import (
	"time"

	"github.com/p-blackswan/therapy-booking/internal/partneraccess"
)

// ProblemDetail follows RFC 7807 for error responses.
type ProblemDetail struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`
}

// ResolveRequest is the body of POST /api/v1/partner-access/resolve.
type ResolveRequest struct {
	PartnerAccesses []*partneraccess.PartnerAccess `json:"partner_accesses"`
}

// ResolveResponse reports the resolution. SelectedIndex is -1 when nothing
// was selected.
type ResolveResponse struct {
	HasRemaining  bool                         `json:"has_remaining"`
	SelectedIndex int                          `json:"selected_index"`
	Selected      *partneraccess.PartnerAccess `json:"selected"`
}

// UpsertUserRequest is the body of PUT /api/v1/admin/users/:id.
type UpsertUserRequest struct {
	Name      string     `json:"name"`
	Email     string     `json:"email"`
	Locale    string     `json:"locale"`
	CreatedAt *time.Time `json:"created_at"`
}

// ReplaceAccessesRequest is the body of PUT
// /api/v1/admin/users/:id/partner-accesses.
type ReplaceAccessesRequest struct {
	PartnerAccesses []*partneraccess.PartnerAccess `json:"partner_accesses"`
}

// AccessesResponse is a user's partner access snapshot.
type AccessesResponse struct {
	UserID          string                         `json:"user_id"`
	Version         int64                          `json:"version"`
	PartnerAccesses []*partneraccess.PartnerAccess `json:"partner_accesses"`
}

// SessionTokenResponse carries a freshly minted user session token.
type SessionTokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}
