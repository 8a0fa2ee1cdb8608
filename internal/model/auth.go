package model

import (
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8"`
}

type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
	User        *User  `json:"user"`
}

// TokenClaims represents JWT claims. Role and branch are informational;
// authorization always uses the stored user record.
type TokenClaims struct {
	UserID   uuid.UUID  `json:"user_id"`
	ClinicID uuid.UUID  `json:"clinic_id"`
	BranchID *uuid.UUID `json:"branch_id,omitempty"`
	Email    string     `json:"email"`
	Role     Role       `json:"role"`
	jwt.RegisteredClaims
}
