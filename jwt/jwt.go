package jwtkit

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"

	jwt "github.com/golang-jwt/jwt/v5"
)

// statusKeyBits is the modulus size of generated status-token keys.
const statusKeyBits = 2048

// Signer signs status tokens with the key named by KID.
type Signer interface {
	KID() string
	PublicKey() *rsa.PublicKey
	Sign(ctx context.Context, claims jwt.Claims) (string, error)
}

// RSASigner signs RS256 tokens with an in-process key.
type RSASigner struct {
	key *rsa.PrivateKey
	kid string
}

// GenerateRSASigner creates a signer around a fresh key.
func GenerateRSASigner(kid string) (*RSASigner, error) {
	if kid == "" {
		return nil, errors.New("jwtkit: key id required")
	}
	k, err := rsa.GenerateKey(rand.Reader, statusKeyBits)
	if err != nil {
		return nil, err
	}
	return &RSASigner{key: k, kid: kid}, nil
}

// ParseRSASigner reads a PKCS#1 or PKCS#8 RSA private key.
func ParseRSASigner(kid string, pemBytes []byte) (*RSASigner, error) {
	blk, _ := pem.Decode(pemBytes)
	if blk == nil {
		return nil, errors.New("jwtkit: no PEM block in private key")
	}
	if k, err := x509.ParsePKCS1PrivateKey(blk.Bytes); err == nil {
		return &RSASigner{key: k, kid: kid}, nil
	}
	anyKey, err := x509.ParsePKCS8PrivateKey(blk.Bytes)
	if err != nil {
		return nil, fmt.Errorf("jwtkit: parse private key: %w", err)
	}
	k, ok := anyKey.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("jwtkit: private key is %T, want RSA", anyKey)
	}
	return &RSASigner{key: k, kid: kid}, nil
}

func (s *RSASigner) KID() string               { return s.kid }
func (s *RSASigner) PublicKey() *rsa.PublicKey { return &s.key.PublicKey }

// MarshalPEM encodes the private key as PKCS#1 PEM.
func (s *RSASigner) MarshalPEM() []byte {
	return pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(s.key)})
}

func (s *RSASigner) Sign(_ context.Context, claims jwt.Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = s.kid
	return token.SignedString(s.key)
}
