package apiclient

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// sessionKey is the credential-store key holding the serialized session.
const sessionKey = "auth_session"

// Session is the stored authentication state. It is owned by the credential
// store; the client re-reads it on every request attempt and never holds a
// copy for longer than one attempt.
type Session struct {
	AccessToken  string     `json:"access_token"`
	RefreshToken string     `json:"refresh_token"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
	UserID       string     `json:"user_id,omitempty"`
}

// User is the account object returned by login, register and whoami calls.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

// tokenExpiry extracts the exp claim from an access token without verifying
// its signature; verification is the server's job. Returns nil when the token
// is not a parseable JWT or carries no expiry.
func tokenExpiry(accessToken string) *time.Time {
	parser := jwt.NewParser()
	token, _, err := parser.ParseUnverified(accessToken, jwt.MapClaims{})
	if err != nil {
		return nil
	}
	exp, err := token.Claims.GetExpirationTime()
	if err != nil || exp == nil {
		return nil
	}
	t := exp.Time
	return &t
}

// newSession builds a Session from an auth endpoint response, recovering the
// expiry from the access token when it is a JWT.
func newSession(accessToken, refreshToken, userID string) *Session {
	return &Session{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresAt:    tokenExpiry(accessToken),
		UserID:       userID,
	}
}
