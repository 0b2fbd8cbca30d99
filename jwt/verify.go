package jwtkit

import (
	"context"
	"errors"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

// StatusClaims is the verified content of a status token.
type StatusClaims struct {
	Subject       string
	Purchased     bool
	Entitlements  []string
	TransactionID string
	ExpiresAt     time.Time
}

// StatusVerifier validates status tokens against issuer, audience and keys.
type StatusVerifier struct {
	issuer   string
	audience string
	keySet   jwk.Set
	skew     time.Duration
	clock    jwt.Clock
}

// VerifierOpt configures a status verifier.
type VerifierOpt func(*StatusVerifier)

// WithAcceptableSkew tolerates clock drift between issuer and verifier.
func WithAcceptableSkew(d time.Duration) VerifierOpt {
	return func(v *StatusVerifier) { v.skew = d }
}

// WithClock overrides the time source used for exp/iat checks.
func WithClock(now func() time.Time) VerifierOpt {
	return func(v *StatusVerifier) { v.clock = jwt.ClockFunc(now) }
}

// NewStatusVerifier builds a verifier. An empty audience skips the aud check.
func NewStatusVerifier(issuer, audience string, keySet jwk.Set, opts ...VerifierOpt) *StatusVerifier {
	v := &StatusVerifier{issuer: issuer, audience: audience, keySet: keySet}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Verify validates rawToken and extracts its status claims.
func (v *StatusVerifier) Verify(ctx context.Context, rawToken string) (*StatusClaims, error) {
	if v == nil || v.keySet == nil {
		return nil, errors.New("jwtkit: missing key set")
	}
	opts := []jwt.ParseOption{
		jwt.WithKeySet(v.keySet),
		jwt.WithValidate(true),
		jwt.WithIssuer(v.issuer),
		jwt.WithContext(ctx),
		jwt.WithAcceptableSkew(v.skew),
	}
	if v.audience != "" {
		opts = append(opts, jwt.WithAudience(v.audience))
	}
	if v.clock != nil {
		opts = append(opts, jwt.WithClock(v.clock))
	}
	token, err := jwt.ParseString(rawToken, opts...)
	if err != nil {
		return nil, err
	}
	claims := &StatusClaims{Subject: token.Subject(), ExpiresAt: token.Expiration()}
	raw, ok := token.Get(ClaimPurchased)
	if !ok {
		return nil, errors.New("jwtkit: missing purchased claim")
	}
	if claims.Purchased, ok = raw.(bool); !ok {
		return nil, errors.New("jwtkit: purchased claim is not a boolean")
	}
	if rawEnts, ok := token.Get(ClaimEntitlements); ok {
		if list, ok := rawEnts.([]any); ok {
			for _, e := range list {
				if s, ok := e.(string); ok {
					claims.Entitlements = append(claims.Entitlements, s)
				}
			}
		}
	}
	if rawTx, ok := token.Get(ClaimTransactionID); ok {
		if s, ok := rawTx.(string); ok {
			claims.TransactionID = s
		}
	}
	return claims, nil
}
