package models

import "time"

// UserMapping links an identity-provider user to a durable CRM contact.
// At most one mapping exists per auth user id at any time.
type UserMapping struct {
	ID         string    `json:"id"`
	AuthUserID string    `json:"auth_user_id"`
	Email      string    `json:"email,omitempty"`
	ContactID  string    `json:"contact_id"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}
