// Package token issues and verifies the JWTs used for API authentication.
//
// Access and refresh tokens share the same payload shape (`sub` is the user
// id as a string, `exp` the expiry) but are signed with distinct secrets and
// carry independent lifetimes, so one verifier never accepts the other
// family's tokens.
package token

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken is returned for malformed tokens, wrong signatures, and
// unexpected signing methods.
var ErrInvalidToken = errors.New("invalid token")

// ErrExpiredToken is returned when a well-formed token is past its expiry.
var ErrExpiredToken = errors.New("token expired")

// Issuer mints signed tokens for a subject.
type Issuer struct {
	secret   []byte
	method   jwt.SigningMethod
	lifetime time.Duration
}

// NewIssuer constructs an Issuer. The algorithm name follows JWT conventions
// ("HS256" etc.); unknown names fall back to HS256. The lifetime is minutes.
func NewIssuer(secret, algorithm string, lifetimeMinutes int) *Issuer {
	method := jwt.GetSigningMethod(algorithm)
	if method == nil {
		method = jwt.SigningMethodHS256
	}
	return &Issuer{
		secret:   []byte(secret),
		method:   method,
		lifetime: time.Duration(lifetimeMinutes) * time.Minute,
	}
}

// Issue signs a token binding the subject to an expiry of now + lifetime.
func (i *Issuer) Issue(subject string) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(i.lifetime)),
	}
	return jwt.NewWithClaims(i.method, claims).SignedString(i.secret)
}

// Verifier checks token signatures and expiry against one secret.
type Verifier struct {
	secret []byte
}

func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

// Verify validates the token and returns its subject. Signature mismatch and
// malformed payloads yield ErrInvalidToken; a past expiry yields
// ErrExpiredToken regardless of how well-formed the rest of the payload is.
func (v *Verifier) Verify(tokenString string) (string, error) {
	claims := jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(tokenString, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return v.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrExpiredToken
		}
		return "", ErrInvalidToken
	}
	if !parsed.Valid || claims.Subject == "" {
		return "", ErrInvalidToken
	}
	return claims.Subject, nil
}
