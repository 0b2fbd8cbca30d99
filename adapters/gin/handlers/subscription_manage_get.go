package handlers

import (
	"net/http"

	core "github.com/PaulFidika/subkit/core"
	"github.com/gin-gonic/gin"
)

// HandleSubscriptionManageGET redirects to the platform's subscription
// management page, where cancellation happens.
func HandleSubscriptionManageGET(svc core.Provider) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Redirect(http.StatusFound, svc.ManageURL())
	}
}
