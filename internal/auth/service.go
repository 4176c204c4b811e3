package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"roomchat/internal/config"
	apperr "roomchat/internal/errors"
	"roomchat/internal/models"
)

const (
	fallbackName  = "Anonymous"
	fallbackEmail = "unknown@example.com"
)

// Claims is the bearer token payload issued by the identity provider.
type Claims struct {
	Name    string `json:"name,omitempty"`
	Email   string `json:"email,omitempty"`
	Picture string `json:"picture,omitempty"`
	jwt.RegisteredClaims
}

// Service verifies and mints HS256 bearer tokens.
type Service struct {
	cfg config.JWTConfig
	now func() time.Time
}

func NewService(cfg config.JWTConfig) *Service {
	return &Service{cfg: cfg, now: time.Now}
}

// VerifyToken checks the signature and expiry of tokenString and maps its
// claims onto an identity.
func (s *Service) VerifyToken(_ context.Context, tokenString string) (*models.Identity, error) {
	if tokenString == "" {
		return nil, apperr.Unauthenticated("Missing bearer token")
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
	}
	if s.cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.cfg.Issuer))
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.cfg.Secret, nil
	}, opts...)
	if err != nil {
		return nil, apperr.ErrUnauthenticated.WithCause(err)
	}
	if !token.Valid || claims.Subject == "" {
		return nil, apperr.Unauthenticated("Invalid token")
	}

	return identityFromClaims(claims), nil
}

// IssueToken mints a token for identity. Used by the dev token tool and tests.
func (s *Service) IssueToken(identity models.Identity) (string, error) {
	now := s.now()
	claims := Claims{
		Name:    identity.Name,
		Email:   identity.Email,
		Picture: identity.Avatar,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   identity.ID,
			Issuer:    s.cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.ExpiresIn)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.cfg.Secret)
}

func identityFromClaims(c *Claims) *models.Identity {
	name := strings.TrimSpace(c.Name)
	email := strings.TrimSpace(c.Email)
	if name == "" {
		name = email
	}
	if name == "" {
		name = fallbackName
	}
	if email == "" {
		email = fallbackEmail
	}
	return &models.Identity{
		ID:     c.Subject,
		Name:   name,
		Email:  email,
		Avatar: c.Picture,
	}
}

// TokenFromRequest reads the bearer token from the Authorization header,
// falling back to the token query parameter that browsers use for
// websocket handshakes.
func TokenFromRequest(r *http.Request) string {
	if header := strings.TrimSpace(r.Header.Get("Authorization")); header != "" {
		if after, ok := strings.CutPrefix(header, "Bearer "); ok {
			return strings.TrimSpace(after)
		}
		return header
	}
	return r.URL.Query().Get("token")
}
