package models

import "time"

// ReferralToken is a shareable, usage-bounded token a contact hands out so
// that new leads are attributed back to them. Tokens are never deleted;
// expiry and exhaustion are logical states.
type ReferralToken struct {
	ID        string    `json:"id"`
	Token     string    `json:"token"`
	ContactID string    `json:"contact_id"`
	UserEmail string    `json:"user_email"`
	MaxUses   int       `json:"max_uses"`
	UsesCount int       `json:"uses_count"`
	IsActive  bool      `json:"is_active"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsExpired determines whether the token has passed its expiry.
func (t ReferralToken) IsExpired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

// IsExhausted indicates whether the token has reached its usage cap.
func (t ReferralToken) IsExhausted() bool {
	return t.UsesCount >= t.MaxUses
}

// Usable reports whether the token can still attribute a new lead.
func (t ReferralToken) Usable(now time.Time) bool {
	return t.IsActive && now.Before(t.ExpiresAt) && t.UsesCount < t.MaxUses
}

// ReferralReceipt is the outcome of a successful token consumption.
type ReferralReceipt struct {
	ReferrerContactID string `json:"referrer_contact_id"`
	UsesRemaining     int    `json:"uses_remaining"`
}

// ReferralStats aggregates referral token usage for a single contact. A
// contact with no token yields the zero value rather than an error.
type ReferralStats struct {
	ContactID      string     `json:"contact_id"`
	UsesCount      int        `json:"uses_count"`
	MaxUses        int        `json:"max_uses"`
	TotalReferrals int        `json:"total_referrals"`
	HasActiveToken bool       `json:"has_active_token"`
	ExpiresAt      *time.Time `json:"expires_at,omitempty"`
}
