package handlers

import (
	"net/http"

	"github.com/PaulFidika/subkit/adapters/ginutil"
	core "github.com/PaulFidika/subkit/core"
	"github.com/gin-gonic/gin"
)

// HandleSubscriptionRefreshPOST restores purchases from the store snapshot.
func HandleSubscriptionRefreshPOST(svc core.Provider, rl ginutil.RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !ginutil.AllowNamed(c, rl, ginutil.RLSubscriptionRefresh) {
			ginutil.TooMany(c)
			return
		}
		purchased, err := svc.Refresh(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusBadGateway, gin.H{"error": "store_unavailable", "purchased": purchased})
			return
		}
		c.JSON(http.StatusOK, gin.H{"purchased": purchased})
	}
}
