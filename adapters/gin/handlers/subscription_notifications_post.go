package handlers

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"

	"github.com/PaulFidika/subkit/adapters/ginutil"
	core "github.com/PaulFidika/subkit/core"
	"github.com/PaulFidika/subkit/entitlements"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// HandleSubscriptionNotificationsPOST ingests a transaction pushed by the
// store and hands it to the update stream. A non-empty secret must be sent
// as a bearer token.
func HandleSubscriptionNotificationsPOST(svc core.Provider, rl ginutil.RateLimiter, secret string, log logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !ginutil.AllowNamed(c, rl, ginutil.RLSubscriptionNotifications) {
			ginutil.TooMany(c)
			return
		}
		if secret != "" {
			got, _ := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
			if subtle.ConstantTimeCompare([]byte(got), []byte(secret)) != 1 {
				ginutil.Unauthorized(c)
				return
			}
		}
		var rec entitlements.TransactionRecord
		if err := c.ShouldBindJSON(&rec); err != nil || strings.TrimSpace(rec.ID) == "" {
			ginutil.BadRequest(c, "invalid_transaction")
			return
		}
		if err := svc.Publish(c.Request.Context(), rec); err != nil {
			if errors.Is(err, core.ErrNoPublisher) {
				c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "notifications_disabled"})
				return
			}
			ginutil.ServerErrWithLog(c, log, err, "failed_to_publish")
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"ok": true})
	}
}
