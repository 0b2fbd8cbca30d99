package subhttp

import (
	"net/http"

	jwtkit "github.com/PaulFidika/subkit/jwt"
)

// JWKSPath is where status-token consumers fetch the public keys.
const JWKSPath = "/.well-known/jwks.json"

// JWKSHandler serves the public JWKS document of the status-token keys.
func JWKSHandler(keys jwtkit.KeySource) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		jwtkit.ServeJWKS(w, r, keys)
	})
}
