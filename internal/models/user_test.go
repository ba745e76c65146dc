package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestUser_AccountAgeDays(t *testing.T) {
	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

	var nilUser *User
	assert.Equal(t, 0, nilUser.AccountAgeDays(now))
	assert.Equal(t, 0, (&User{}).AccountAgeDays(now))
	assert.Equal(t, 0, (&User{CreatedAt: now.Add(time.Hour)}).AccountAgeDays(now))
	assert.Equal(t, 9, (&User{CreatedAt: now.AddDate(0, 0, -9)}).AccountAgeDays(now))
}
