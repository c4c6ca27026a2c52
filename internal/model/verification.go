// Package model contains the entities shared by the intake client, the
// HTTP facade and the worker. Values are projections of remote rows; the
// authoritative copy always lives in the backend.
package model

import (
	"time"

	"github.com/google/uuid"
)

// VerificationStatus describes the overall lifecycle of a verification.
type VerificationStatus string

const (
	VerificationPending    VerificationStatus = "pending"
	VerificationProcessing VerificationStatus = "processing"
	VerificationCompleted  VerificationStatus = "completed"
	VerificationFailed     VerificationStatus = "failed"
)

// Terminal reports whether no further backend transition is expected.
func (s VerificationStatus) Terminal() bool {
	return s == VerificationCompleted || s == VerificationFailed
}

// RiskRating is the outcome bucket of fraud scoring. RiskPending is a
// sentinel used until a score exists and is not a real bucket.
type RiskRating string

const (
	RiskPending RiskRating = "pending"
	RiskGreen   RiskRating = "green"
	RiskYellow  RiskRating = "yellow"
	RiskRed     RiskRating = "red"
)

// IsScored is true for the three real risk buckets.
func (r RiskRating) IsScored() bool {
	switch r {
	case RiskGreen, RiskYellow, RiskRed:
		return true
	}
	return false
}

// PlaceholderAddress is written on intake until the user supplies the
// property address.
const PlaceholderAddress = "Address to be updated"

// Verification is one user-initiated property check.
type Verification struct {
	ID              uuid.UUID          `json:"id"`
	UserID          uuid.UUID          `json:"userId"`
	PropertyAddress string             `json:"propertyAddress"`
	PropertyType    string             `json:"propertyType,omitempty"`
	Status          VerificationStatus `json:"status"`
	// FraudScore stays nil until the backend has scored the verification.
	FraudScore *float64   `json:"fraudScore,omitempty"`
	RiskRating RiskRating `json:"riskRating"`
	ReportURL  string     `json:"reportUrl,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
	UpdatedAt  time.Time  `json:"updatedAt"`
}

// NewVerification returns a verification in its initial intake state.
func NewVerification(userID uuid.UUID) *Verification {
	now := time.Now().UTC()
	return &Verification{
		ID:              uuid.New(),
		UserID:          userID,
		PropertyAddress: PlaceholderAddress,
		Status:          VerificationPending,
		RiskRating:      RiskPending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}
