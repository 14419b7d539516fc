// Package identity resolves a request credential to a verified user id.
// Token issuance lives in the identity provider, not here; this package
// only verifies what the provider signed.
package identity

import (
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/fx"

	"github.com/smallbiznis/pasar/internal/config"
)

var (
	ErrMissingToken = errors.New("unauthorized")
	ErrInvalidToken = errors.New("unauthorized")
)

// Verifier resolves a bearer token to a verified user id.
type Verifier interface {
	Verify(token string) (snowflake.ID, error)
}

// Module provides the JWT verifier.
var Module = fx.Module("identity",
	fx.Provide(NewJWTVerifier),
)

type jwtVerifier struct {
	secret []byte
}

func NewJWTVerifier(cfg config.Config) (Verifier, error) {
	secret := strings.TrimSpace(cfg.AuthJWTSecret)
	if secret == "" {
		return nil, errors.New("AUTH_JWT_SECRET is required")
	}
	return &jwtVerifier{secret: []byte(secret)}, nil
}

func (v *jwtVerifier) Verify(token string) (snowflake.ID, error) {
	raw := strings.TrimSpace(token)
	if raw == "" {
		return 0, ErrMissingToken
	}

	parsed, err := jwt.Parse(raw, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return v.secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil || !parsed.Valid {
		return 0, ErrInvalidToken
	}

	subject, err := parsed.Claims.GetSubject()
	if err != nil || subject == "" {
		return 0, ErrInvalidToken
	}

	userID, err := snowflake.ParseString(subject)
	if err != nil || userID == 0 {
		return 0, ErrInvalidToken
	}

	return userID, nil
}
