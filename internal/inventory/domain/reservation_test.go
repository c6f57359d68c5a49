package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestReservationExpiry(t *testing.T) {
	now := time.Now().UTC()
	r := Reservation{ExpiresAt: now.Add(time.Hour)}
	assert.False(t, r.IsExpired(now))
	assert.True(t, r.IsExpired(now.Add(2*time.Hour)))

	// zero expiry never expires
	var unbounded Reservation
	assert.False(t, unbounded.IsExpired(now))
}
