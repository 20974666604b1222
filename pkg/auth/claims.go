package auth

import (
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// DeviceTokenPayload captures the data available when minting a terminal JWT.
type DeviceTokenPayload struct {
	DeviceID string
	BranchID uuid.UUID
	JTI      string
}

// DeviceTokenClaims represents the typed JWT issued to POS terminals.
type DeviceTokenClaims struct {
	DeviceID string    `json:"device_id"`
	BranchID uuid.UUID `json:"branch_id"`
	jwt.RegisteredClaims
}
