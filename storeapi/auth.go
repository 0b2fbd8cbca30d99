package storeapi

import (
	"crypto/ecdsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"
)

// KeyConfig holds the details needed to mint store API bearer tokens from an
// App Store Connect style .p8 key.
type KeyConfig struct {
	IssuerID      string        // iss
	KeyID         string        // kid header
	BundleID      string        // bid claim
	Audience      string        // default "appstoreconnect-v1"
	PrivateKeyPEM []byte        // contents of the .p8 private key
	TTL           time.Duration // default 5 minutes if <= 0 (the store rejects more than 60)
}

// ParsePrivateKey decodes a PEM encoded PKCS#8 or SEC1 ECDSA private key.
func ParsePrivateKey(privateKeyPEM []byte) (*ecdsa.PrivateKey, error) {
	block, _ := pem.Decode(privateKeyPEM)
	if block == nil {
		return nil, errors.New("storeapi: invalid private key pem")
	}
	keyAny, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		// Some keys might be in SEC1 EC format
		if k2, err2 := x509.ParseECPrivateKey(block.Bytes); err2 == nil {
			keyAny = k2
		} else {
			return nil, err
		}
	}
	ecKey, ok := keyAny.(*ecdsa.PrivateKey)
	if !ok {
		return nil, errors.New("storeapi: private key is not ECDSA")
	}
	return ecKey, nil
}

type keyTokenSource struct {
	cfg KeyConfig
	key *ecdsa.PrivateKey
	now func() time.Time
}

// NewTokenSource returns a TokenSource minting a fresh ES256 JWT whenever the
// previous one is about to expire.
func NewTokenSource(cfg KeyConfig) (oauth2.TokenSource, error) {
	if cfg.IssuerID == "" || cfg.KeyID == "" || len(cfg.PrivateKeyPEM) == 0 {
		return nil, errors.New("storeapi: missing required key config")
	}
	key, err := ParsePrivateKey(cfg.PrivateKeyPEM)
	if err != nil {
		return nil, err
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 5 * time.Minute
	}
	if cfg.Audience == "" {
		cfg.Audience = "appstoreconnect-v1"
	}
	return oauth2.ReuseTokenSource(nil, &keyTokenSource{cfg: cfg, key: key, now: time.Now}), nil
}

func (s *keyTokenSource) Token() (*oauth2.Token, error) {
	now := s.now()
	exp := now.Add(s.cfg.TTL)
	claims := jwt.MapClaims{
		"iss": s.cfg.IssuerID,
		"iat": now.Unix(),
		"exp": exp.Unix(),
		"aud": s.cfg.Audience,
	}
	if s.cfg.BundleID != "" {
		claims["bid"] = s.cfg.BundleID
	}
	token := jwt.NewWithClaims(jwt.SigningMethodES256, claims)
	token.Header["kid"] = s.cfg.KeyID
	signed, err := token.SignedString(s.key)
	if err != nil {
		return nil, err
	}
	return &oauth2.Token{AccessToken: signed, TokenType: "Bearer", Expiry: exp}, nil
}
