package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Profile is the user record owned by the identity service.
type Profile struct {
	ID           uuid.UUID `json:"id"`
	Email        string    `json:"email"`
	FullName     string    `json:"fullName,omitempty"`
	Phone        string    `json:"phone,omitempty"`
	AvatarURL    string    `json:"avatarUrl,omitempty"`
	PasswordHash string    `json:"-"`
	// Provider is empty for password accounts.
	Provider  string    `json:"provider,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// ActivityLog is an append-only audit entry.
type ActivityLog struct {
	ID        uuid.UUID       `json:"id"`
	UserID    uuid.UUID       `json:"userId"`
	Action    string          `json:"action"`
	Details   json.RawMessage `json:"details,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
}

// Activity actions recorded by the services.
const (
	ActionSignUp                = "sign_up"
	ActionSignIn                = "sign_in"
	ActionSignOut               = "sign_out"
	ActionVerificationSubmitted = "verification_submitted"
)
