package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Provider issues and verifies bearer tokens.
type Provider interface {
	GenerateToken(identity Identity, ttl time.Duration) (string, error)
	ValidateToken(tokenString string) (Identity, error)
}

type claims struct {
	jwt.RegisteredClaims
	Staff bool `json:"staff,omitempty"`
}

type jwtProvider struct {
	secret []byte
	issuer string
}

// NewJWTProvider returns an HS256 provider.
func NewJWTProvider(secret, issuer string) Provider {
	return &jwtProvider{secret: []byte(secret), issuer: issuer}
}

func (p *jwtProvider) GenerateToken(identity Identity, ttl time.Duration) (string, error) {
	if !identity.Authenticated() {
		return "", errors.New("cannot issue a token for an anonymous identity")
	}
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, &claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    p.issuer,
			Subject:   strconv.FormatUint(uint64(identity.UserID), 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Staff: identity.IsStaff,
	})
	signed, err := token.SignedString(p.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

func (p *jwtProvider) ValidateToken(tokenString string) (Identity, error) {
	parsed := &claims{}
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if p.issuer != "" {
		opts = append(opts, jwt.WithIssuer(p.issuer))
	}
	token, err := jwt.ParseWithClaims(tokenString, parsed, func(*jwt.Token) (any, error) {
		return p.secret, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Identity{}, ErrExpiredToken
		}
		return Identity{}, ErrInvalidToken
	}
	if !token.Valid {
		return Identity{}, ErrInvalidToken
	}
	id, err := strconv.ParseUint(parsed.Subject, 10, 64)
	if err != nil || id == 0 {
		return Identity{}, ErrInvalidToken
	}
	return Identity{UserID: uint(id), IsStaff: parsed.Staff}, nil
}
