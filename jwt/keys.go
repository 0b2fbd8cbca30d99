package jwtkit

import (
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"
)

const (
	// DefaultKeysPath is where a mounted secret provides keys.json.
	DefaultKeysPath = "/vault/subkit"

	envKeyID      = "SUBKIT_STATUS_KEY_ID"
	envPrivateKey = "SUBKIT_STATUS_PRIVATE_KEY_PEM"
	envPublicKeys = "SUBKIT_STATUS_PUBLIC_KEYS"
)

// KeySource provides the active signer and the public keys served as JWKS.
type KeySource interface {
	ActiveSigner() Signer
	PublicKeys() map[string]*rsa.PublicKey
}

// StaticKeySource is a simple in-memory implementation.
type StaticKeySource struct {
	Active Signer
	Pubs   map[string]*rsa.PublicKey
}

func (s StaticKeySource) ActiveSigner() Signer                  { return s.Active }
func (s StaticKeySource) PublicKeys() map[string]*rsa.PublicKey { return s.Pubs }

// GeneratedKeySource generates and persists an RSA key (for development only).
type GeneratedKeySource struct {
	signer *RSASigner
	pubs   map[string]*rsa.PublicKey
}

const (
	defaultKeysDir = ".runtime/subkit"
	privateKeyFile = "private.pem"
	keyIDFile      = "kid"
)

// NewGeneratedKeySource loads the key persisted in dir (default
// .runtime/subkit), or generates and persists a new one.
func NewGeneratedKeySource(dir string, log logrus.FieldLogger) (*GeneratedKeySource, error) {
	if dir == "" {
		dir = defaultKeysDir
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	if signer, ok := loadKeysFromDisk(dir); ok {
		return &GeneratedKeySource{signer: signer, pubs: map[string]*rsa.PublicKey{signer.KID(): signer.PublicKey()}}, nil
	}

	kid := fmt.Sprintf("dev-%d", time.Now().Unix())
	signer, err := GenerateRSASigner(kid)
	if err != nil {
		return nil, fmt.Errorf("failed to generate RSA key: %w", err)
	}
	if err := persistKeysToDisk(dir, signer); err != nil {
		log.WithError(err).Warn("failed to persist dev status keys")
	}
	return &GeneratedKeySource{signer: signer, pubs: map[string]*rsa.PublicKey{kid: signer.PublicKey()}}, nil
}

func (g *GeneratedKeySource) ActiveSigner() Signer                  { return g.signer }
func (g *GeneratedKeySource) PublicKeys() map[string]*rsa.PublicKey { return g.pubs }

func loadKeysFromDisk(dir string) (*RSASigner, bool) {
	pemBytes, err := os.ReadFile(filepath.Join(dir, privateKeyFile))
	if err != nil {
		return nil, false
	}
	kid := "dev"
	if kidBytes, err := os.ReadFile(filepath.Join(dir, keyIDFile)); err == nil {
		if k := strings.TrimSpace(string(kidBytes)); k != "" {
			kid = k
		}
	}
	signer, err := ParseRSASigner(kid, pemBytes)
	if err != nil {
		return nil, false
	}
	return signer, true
}

func persistKeysToDisk(dir string, signer *RSASigner) error {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("create keys directory: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, privateKeyFile), signer.MarshalPEM(), 0600); err != nil {
		return fmt.Errorf("write private key: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, keyIDFile), []byte(signer.KID()), 0600); err != nil {
		return fmt.Errorf("write key ID: %w", err)
	}
	return nil
}

// KeyConfig selects where LoadKeySource looks for status-token keys.
type KeyConfig struct {
	// Path holds keys.json; default DefaultKeysPath.
	Path string
	// DevDir is where generated dev keys are persisted.
	DevDir string
	// Production disables the generated fallback.
	Production bool
	Log        logrus.FieldLogger
}

// LoadKeySource discovers status-token keys with the following priority:
//  1. SUBKIT_STATUS_KEY_ID / SUBKIT_STATUS_PRIVATE_KEY_PEM / SUBKIT_STATUS_PUBLIC_KEYS
//  2. <Path>/keys.json
//  3. generated dev keys, unless Production is set
//
// Keys that are provided but invalid are an error.
func LoadKeySource(cfg KeyConfig) (KeySource, error) {
	if cfg.Log == nil {
		cfg.Log = logrus.StandardLogger()
	}
	if ks, err := tryLoadFromEnv(cfg.Log); err != nil {
		return nil, fmt.Errorf("failed to load keys from environment variables: %w", err)
	} else if ks != nil {
		return ks, nil
	}
	path := cfg.Path
	if path == "" {
		path = DefaultKeysPath
	}
	if ks, err := tryLoadFromFilesystem(path, cfg.Log); err != nil {
		return nil, fmt.Errorf("failed to load keys from %s: %w", path, err)
	} else if ks != nil {
		return ks, nil
	}
	if cfg.Production {
		return nil, fmt.Errorf("no status keys found in env or %s and generated keys are disabled in production", path)
	}
	ks, err := NewGeneratedKeySource(cfg.DevDir, cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("failed to generate development keys: %w", err)
	}
	return ks, nil
}

func tryLoadFromEnv(log logrus.FieldLogger) (KeySource, error) {
	kid := strings.TrimSpace(os.Getenv(envKeyID))
	priv := strings.TrimSpace(os.Getenv(envPrivateKey))
	if kid == "" && priv == "" {
		return nil, nil
	}
	if kid == "" {
		return nil, fmt.Errorf("%s is set but %s is missing", envPrivateKey, envKeyID)
	}
	if priv == "" {
		return nil, fmt.Errorf("%s is set but %s is missing", envKeyID, envPrivateKey)
	}
	var extra map[string]string
	if raw := strings.TrimSpace(os.Getenv(envPublicKeys)); raw != "" {
		if err := json.Unmarshal([]byte(raw), &extra); err != nil {
			return nil, fmt.Errorf("failed to parse %s JSON: %w", envPublicKeys, err)
		}
	}
	return staticKeys(kid, priv, extra, log)
}

func tryLoadFromFilesystem(dir string, log logrus.FieldLogger) (KeySource, error) {
	data, err := os.ReadFile(filepath.Join(dir, "keys.json"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read keys.json: %w", err)
	}
	var keyData struct {
		ActiveKeyID         string            `json:"active_key_id"`
		ActivePrivateKeyPEM string            `json:"active_private_key_pem"`
		PublicKeys          map[string]string `json:"public_keys"`
	}
	if err := json.Unmarshal(data, &keyData); err != nil {
		return nil, fmt.Errorf("failed to parse keys.json: %w", err)
	}
	if keyData.ActiveKeyID == "" {
		return nil, fmt.Errorf("keys.json missing active_key_id")
	}
	if keyData.ActivePrivateKeyPEM == "" {
		return nil, fmt.Errorf("keys.json missing active_private_key_pem")
	}
	return staticKeys(keyData.ActiveKeyID, keyData.ActivePrivateKeyPEM, keyData.PublicKeys, log)
}

// staticKeys builds a StaticKeySource; unparsable extra public keys are skipped.
func staticKeys(kid, privPEM string, extra map[string]string, log logrus.FieldLogger) (KeySource, error) {
	signer, err := ParseRSASigner(kid, []byte(privPEM))
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}
	pubs := map[string]*rsa.PublicKey{kid: signer.PublicKey()}
	for k, pemStr := range extra {
		pub, err := jwt.ParseRSAPublicKeyFromPEM([]byte(pemStr))
		if err != nil {
			log.WithError(err).WithField("kid", k).Warn("skipping unparsable public key")
			continue
		}
		pubs[k] = pub
	}
	return StaticKeySource{Active: signer, Pubs: pubs}, nil
}
