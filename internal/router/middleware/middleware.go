package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/Yusufzhafir/go-dex/backend/internal/session"
	"github.com/Yusufzhafir/go-dex/backend/pkg/model"
)

type AuthKey struct{}

// AuthMiddleware verifies the bearer token and resolves the live
// session behind it. Handlers read the session out of the context.
func AuthMiddleware(tokenMaker *JWTMaker, sessions session.Registry) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess, err := sessionFromAuthHeader(r, tokenMaker, sessions)
			if err != nil {
				status := http.StatusUnauthorized
				if errors.Is(err, model.ErrSessionExpired) {
					status = http.StatusForbidden
				}
				http.Error(w, fmt.Sprintf("error verifying token: %v", err), status)
				return
			}

			ctx := context.WithValue(r.Context(), AuthKey{}, sess)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// SessionFromContext returns the session resolved by AuthMiddleware.
func SessionFromContext(ctx context.Context) (*session.Session, bool) {
	sess, ok := ctx.Value(AuthKey{}).(*session.Session)
	return sess, ok
}

func sessionFromAuthHeader(r *http.Request, tokenMaker *JWTMaker, sessions session.Registry) (*session.Session, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return nil, fmt.Errorf("authorization header is missing")
	}

	fields := strings.Fields(authHeader)
	if len(fields) != 2 || fields[0] != "Bearer" {
		return nil, fmt.Errorf("invalid authorization header")
	}

	claims, err := tokenMaker.VerifyToken(fields[1])
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}
	sess, err := sessions.Resolve(claims.SessionToken)
	if err != nil {
		return nil, err
	}
	return sess, nil
}
