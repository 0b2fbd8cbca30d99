package jwtkit

import (
	"context"
	"errors"
	"time"

	"github.com/PaulFidika/subkit/entitlements"
	jwt "github.com/golang-jwt/jwt/v5"
)

// Claim names carried by status tokens.
const (
	ClaimPurchased     = "purchased"
	ClaimEntitlements  = "entitlements"
	ClaimTransactionID = "transaction_id"
)

// StatusIssuer mints short-lived tokens asserting the current entitlement
// state, so other services can check it without calling back.
type StatusIssuer struct {
	Keys     KeySource
	Issuer   string
	Audience []string
	// TTL defaults to 15 minutes.
	TTL time.Duration

	now func() time.Time
}

// Issue signs a status token for subject. When tx entitles and expires before
// the TTL, the token expires with it.
func (s *StatusIssuer) Issue(ctx context.Context, subject string, purchased bool, tx *entitlements.TransactionRecord) (string, time.Time, error) {
	if s == nil || s.Keys == nil || s.Keys.ActiveSigner() == nil {
		return "", time.Time{}, errors.New("jwtkit: status issuer has no signer")
	}
	now := time.Now
	if s.now != nil {
		now = s.now
	}
	ttl := s.TTL
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	iat := now()
	exp := statusExpiry(iat, ttl, purchased, tx)

	names := []string{}
	claims := jwt.MapClaims{
		"iss":          s.Issuer,
		"sub":          subject,
		"iat":          iat.Unix(),
		"exp":          exp.Unix(),
		ClaimPurchased: purchased,
	}
	if len(s.Audience) > 0 {
		claims["aud"] = s.Audience
	}
	if purchased && tx != nil {
		names = append(names, tx.ProductID)
		claims[ClaimTransactionID] = tx.ID
	}
	claims[ClaimEntitlements] = names

	token, err := s.Keys.ActiveSigner().Sign(ctx, claims)
	if err != nil {
		return "", time.Time{}, err
	}
	return token, exp, nil
}

func statusExpiry(now time.Time, ttl time.Duration, purchased bool, tx *entitlements.TransactionRecord) time.Time {
	exp := now.Add(ttl)
	if purchased && tx != nil && tx.ExpiresAt != nil && tx.ExpiresAt.After(now) && tx.ExpiresAt.Before(exp) {
		exp = *tx.ExpiresAt
	}
	return exp
}
