package handlers

import (
	"net/http"
	"time"

	core "github.com/PaulFidika/subkit/core"
	"github.com/PaulFidika/subkit/entitlements"
	jwtkit "github.com/PaulFidika/subkit/jwt"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

type statusView struct {
	Purchased      bool                       `json:"purchased"`
	Entitlements   []entitlements.Entitlement `json:"entitlements"`
	UpdatedAt      *time.Time                 `json:"updated_at,omitempty"`
	Token          string                     `json:"token,omitempty"`
	TokenExpiresAt *time.Time                 `json:"token_expires_at,omitempty"`
}

// HandleSubscriptionStatusGET reports the current entitlement. With an
// issuer it also returns a signed status token for subject(c).
func HandleSubscriptionStatusGET(svc core.Provider, iss *jwtkit.StatusIssuer, subject func(*gin.Context) string, log logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		snap := svc.Snapshot()
		out := statusView{Purchased: snap.Purchased, Entitlements: []entitlements.Entitlement{}}
		if !snap.UpdatedAt.IsZero() {
			at := snap.UpdatedAt
			out.UpdatedAt = &at
		}
		if snap.Purchased && snap.Transaction != nil {
			out.Entitlements = append(out.Entitlements, entitlements.FromRecord(*snap.Transaction, snap.Source))
		}
		if iss != nil {
			tok, exp, err := iss.Issue(c.Request.Context(), subject(c), snap.Purchased, snap.Transaction)
			if err != nil {
				log.WithError(err).Warn("status token not issued")
			} else {
				out.Token = tok
				out.TokenExpiresAt = &exp
			}
		}
		c.JSON(http.StatusOK, out)
	}
}
