package middleware

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	tbTypes "github.com/tigerbeetle/tigerbeetle-go/pkg/types"
)

// SessionClaims wraps the opaque registry token in a signed bearer
// token. Nothing about the wallet ever enters the claims.
type SessionClaims struct {
	SessionToken string `json:"session_token"`
	jwt.RegisteredClaims
}

func NewSessionClaims(sessionToken string, duration time.Duration) (*SessionClaims, error) {
	tokenID := tbTypes.ID().String()
	return &SessionClaims{
		SessionToken: sessionToken,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        tokenID,
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(duration)),
		},
	}, nil
}
