package model

import (
	"time"
)

// SessionStatus values returned by the identity provider.
const (
	SessionStatusComplete          = "complete"
	SessionStatusNeedsVerification = "needs_verification"
)

// Identity is the authenticated principal as known to the identity provider.
type Identity struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
}

// Token is a short-lived identity token with its expiry.
type Token struct {
	Value     string    `json:"value"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Expired reports whether the token is past its expiry, with a small skew
// allowance so a token about to expire is treated as already gone.
func (t Token) Expired(now time.Time) bool {
	const skew = 30 * time.Second
	return !t.ExpiresAt.IsZero() && now.Add(skew).After(t.ExpiresAt)
}

// SessionResult is the outcome of a createSession call.
type SessionResult struct {
	Status       string    `json:"status"`
	Token        Token     `json:"token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	Identity     *Identity `json:"identity,omitempty"`
}

type SignInRequest struct {
	Identifier string `json:"identifier" binding:"required,email"`
	Secret     string `json:"secret" binding:"required"`
}

type SignUpRequest struct {
	Identifier string `json:"identifier" binding:"required,email"`
	Secret     string `json:"secret" binding:"required,min=8"`
	FirstName  string `json:"first_name"`
	LastName   string `json:"last_name"`
}
