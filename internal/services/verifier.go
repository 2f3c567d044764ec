package services

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// emailConfirmPurpose binds verification tokens to this one use so a token
// signed with the same secret for something else is rejected.
const emailConfirmPurpose = "email-confirm"

// DefaultVerificationMaxAge is how long a verification token stays redeemable.
const DefaultVerificationMaxAge = 24 * time.Hour

type verificationClaims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// Verifier issues and redeems signed email verification tokens. Tokens carry
// only their issue time; the maximum age is enforced on redemption.
type Verifier struct {
	secret []byte
	maxAge time.Duration
	now    func() time.Time
}

// VerifierOption customises a Verifier.
type VerifierOption func(*Verifier)

// WithClock replaces the time source used for issuing and redeeming.
func WithClock(now func() time.Time) VerifierOption {
	return func(v *Verifier) {
		v.now = now
	}
}

func NewVerifier(secret string, maxAge time.Duration, opts ...VerifierOption) *Verifier {
	if maxAge <= 0 {
		maxAge = DefaultVerificationMaxAge
	}
	v := &Verifier{secret: []byte(secret), maxAge: maxAge, now: time.Now}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// IssueToken signs a token that binds email.
func (v *Verifier) IssueToken(email string) (string, error) {
	claims := &verificationClaims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  emailConfirmPurpose,
			IssuedAt: jwt.NewNumericDate(v.now()),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}

// Redeem checks the token's signature and age and returns the bound email.
func (v *Verifier) Redeem(token string) (string, error) {
	var claims verificationClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithSubject(emailConfirmPurpose),
		jwt.WithTimeFunc(v.now),
	)
	if err != nil {
		return "", newError(ErrTokenInvalid, "Invalid token")
	}
	if claims.IssuedAt == nil || claims.Email == "" {
		return "", newError(ErrTokenInvalid, "Invalid token")
	}

	age := v.now().Sub(claims.IssuedAt.Time)
	if age > v.maxAge {
		return "", newError(ErrTokenExpired, "Token expired")
	}
	if age < -time.Minute {
		return "", newError(ErrTokenInvalid, "Invalid token")
	}
	return claims.Email, nil
}

// IsTokenError reports whether err came from redeeming a bad or stale token.
func IsTokenError(err error) bool {
	return errors.Is(err, ErrTokenInvalid) || errors.Is(err, ErrTokenExpired)
}
