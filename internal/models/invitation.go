package models

import "time"

// Invitation is a one-time token binding an email to a CRM contact, used for
// first-time identity establishment in the borrower portal. The raw token is
// never stored, only its hash.
type Invitation struct {
	ID         string     `json:"id"`
	ContactID  string     `json:"contact_id"`
	Email      string     `json:"email"`
	TokenHash  string     `json:"-"`
	ExpiresAt  time.Time  `json:"expires_at"`
	AcceptedAt *time.Time `json:"accepted_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// IsExpired determines whether the invitation has expired.
func (i Invitation) IsExpired(now time.Time) bool {
	return now.After(i.ExpiresAt)
}

// IsUsed indicates whether the invitation has already been accepted.
func (i Invitation) IsUsed() bool {
	return i.AcceptedAt != nil
}
