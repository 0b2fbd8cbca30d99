package jwtkit

import (
	"crypto/rsa"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"sort"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
)

// KeySetFromPublicKeys converts RSA public keys into a jwx key set ordered
// by kid, each marked for RS256 signature use.
func KeySetFromPublicKeys(pubs map[string]*rsa.PublicKey) (jwk.Set, error) {
	kids := make([]string, 0, len(pubs))
	for kid := range pubs {
		kids = append(kids, kid)
	}
	sort.Strings(kids)

	set := jwk.NewSet()
	for _, kid := range kids {
		key, err := jwk.FromRaw(pubs[kid])
		if err != nil {
			return nil, err
		}
		for k, v := range map[string]any{
			jwk.KeyIDKey:     kid,
			jwk.AlgorithmKey: jwa.RS256,
			jwk.KeyUsageKey:  jwk.ForSignature,
		} {
			if err := key.Set(k, v); err != nil {
				return nil, err
			}
		}
		if err := set.AddKey(key); err != nil {
			return nil, err
		}
	}
	return set, nil
}

// JWKSDocument renders the public keys of ks as a JWKS JSON document.
func JWKSDocument(ks KeySource) ([]byte, error) {
	set, err := KeySetFromPublicKeys(ks.PublicKeys())
	if err != nil {
		return nil, err
	}
	return json.Marshal(set)
}

// ServeJWKS writes the JWKS of ks with a content ETag, answering a matching
// If-None-Match with 304.
func ServeJWKS(w http.ResponseWriter, r *http.Request, ks KeySource) {
	b, err := JWKSDocument(ks)
	if err != nil {
		http.Error(w, "jwks unavailable", http.StatusInternalServerError)
		return
	}
	sum := sha256.Sum256(b)
	etag := `"` + hex.EncodeToString(sum[:16]) + `"`
	w.Header().Set("ETag", etag)
	w.Header().Set("Cache-Control", "public, max-age=300, must-revalidate")
	if r.Header.Get("If-None-Match") == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(b)
}
