// Package subgin mounts the subscription HTTP surface on a gin router.
package subgin

import (
	"strings"

	"github.com/PaulFidika/subkit/adapters/gin/handlers"
	"github.com/PaulFidika/subkit/adapters/ginutil"
	core "github.com/PaulFidika/subkit/core"
	jwtkit "github.com/PaulFidika/subkit/jwt"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// SubjectHeader names the caller in status tokens when no Subject func is set.
const SubjectHeader = "X-Subscriber-ID"

type Options struct {
	// RateLimiter guards purchase, refresh and notifications per client IP.
	RateLimiter ginutil.RateLimiter
	Language    *LanguageConfig
	// StatusIssuer, when set, adds a signed status token to /status.
	StatusIssuer *jwtkit.StatusIssuer
	// Subject resolves the status token subject; default SubjectHeader.
	Subject func(*gin.Context) string
	// NotificationSecret, when set, is required as bearer token on
	// /notifications.
	NotificationSecret string
	Log                logrus.FieldLogger
}

func (o *Options) defaulted() Options {
	out := Options{}
	if o != nil {
		out = *o
	}
	if out.Subject == nil {
		out.Subject = headerSubject
	}
	if out.Log == nil {
		out.Log = logrus.StandardLogger()
	}
	return out
}

func headerSubject(c *gin.Context) string {
	if s := strings.TrimSpace(c.GetHeader(SubjectHeader)); s != "" {
		return s
	}
	return "anonymous"
}

// Register mounts the /subscription routes on r.
func Register(r gin.IRouter, svc core.Provider, opts *Options) {
	o := opts.defaulted()
	g := r.Group("/subscription", LanguageMiddleware(o.Language))
	g.GET("/products", handlers.HandleSubscriptionProductsGET(svc))
	g.GET("/status", handlers.HandleSubscriptionStatusGET(svc, o.StatusIssuer, o.Subject, o.Log))
	g.POST("/refresh", handlers.HandleSubscriptionRefreshPOST(svc, o.RateLimiter))
	g.POST("/purchase", handlers.HandleSubscriptionPurchasePOST(svc, o.RateLimiter))
	g.GET("/manage", handlers.HandleSubscriptionManageGET(svc))
	g.POST("/notifications", handlers.HandleSubscriptionNotificationsPOST(svc, o.RateLimiter, o.NotificationSecret, o.Log))
	if o.NotificationSecret == "" {
		o.Log.Warn("no notification secret configured: /subscription/notifications accepts unauthenticated posts and trusts their verification field")
	}
}
