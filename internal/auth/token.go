package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// ExtractTokenFromRequest returns the token of an "Authorization: Bearer"
// header.
func ExtractTokenFromRequest(r *http.Request) (string, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", errors.New("authorization header is missing")
	}

	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
		return "", errors.New("authorization header format must be 'Bearer {token}'")
	}
	return parts[1], nil
}

// HMACVerifier checks HS256 tokens signed with a shared secret, for
// deployments without an identity provider.
type HMACVerifier struct {
	secret []byte
	parser *jwt.Parser
}

func NewHMACVerifier(secret string) (*HMACVerifier, error) {
	if secret == "" {
		return nil, errors.New("AUTH_HMAC_SECRET env var not set")
	}
	return &HMACVerifier{
		secret: []byte(secret),
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithExpirationRequired(),
		),
	}, nil
}

func (v *HMACVerifier) Verify(_ context.Context, rawToken string) (Identity, error) {
	var claims jwt.RegisteredClaims
	_, err := v.parser.ParseWithClaims(rawToken, &claims, func(*jwt.Token) (interface{}, error) {
		return v.secret, nil
	})
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Subject == "" {
		return Identity{}, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	return Identity{Subject: claims.Subject, ExpiresAt: claims.ExpiresAt.Time}, nil
}
