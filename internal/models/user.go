// Package models holds the account types shared across the booking flow.
package models

import "time"

// User is the signed-in account viewing the booking page.
type User struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Locale    string    `json:"locale,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// AccountAgeDays returns whole days since the account was created, or 0 when
// the creation time is unknown or in the future.
func (u *User) AccountAgeDays(now time.Time) int {
	if u == nil || u.CreatedAt.IsZero() || now.Before(u.CreatedAt) {
		return 0
	}
	return int(now.Sub(u.CreatedAt).Hours() / 24)
}
