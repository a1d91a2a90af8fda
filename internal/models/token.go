package models

import "time"

// QRToken is the rotating credential displayed on the session's QR screen.
// Exactly one token is current per active session; superseded tokens stay
// acceptable until their own expiry to absorb clock and network skew.
type QRToken struct {
	SessionID string    `json:"session_id"`
	Token     string    `json:"token"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// ExpiresIn returns the remaining validity relative to now, floored at zero.
func (t QRToken) ExpiresIn(now time.Time) time.Duration {
	remaining := t.ExpiresAt.Sub(now)
	if remaining < 0 {
		return 0
	}
	return remaining
}
