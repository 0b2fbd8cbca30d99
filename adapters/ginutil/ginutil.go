// Package ginutil holds the JSON error and rate-limit helpers shared by the
// gin handlers.
package ginutil

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// RateLimiter is satisfied by ratelimit/memory and ratelimit/redis.
type RateLimiter interface {
	AllowNamed(bucket, key string) (bool, error)
}

// Rate-limit bucket names.
const (
	RLSubscriptionPurchase      = "subscription_purchase"
	RLSubscriptionRefresh       = "subscription_refresh"
	RLSubscriptionNotifications = "subscription_notifications"
)

// AllowNamed checks rl for the client IP. A nil limiter allows; limiter
// errors fail open.
func AllowNamed(c *gin.Context, rl RateLimiter, bucket string) bool {
	if rl == nil {
		return true
	}
	ok, err := rl.AllowNamed(bucket, c.ClientIP())
	if err != nil {
		logrus.WithError(err).WithField("bucket", bucket).Warn("rate limiter unavailable")
		return true
	}
	return ok
}

func BadRequest(c *gin.Context, code string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": code})
}

func NotFound(c *gin.Context, code string) {
	c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": code})
}

func Unauthorized(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
}

func TooMany(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate_limited"})
}

// Unavailable reports a failed store call (502).
func Unavailable(c *gin.Context, code string) {
	c.AbortWithStatusJSON(http.StatusBadGateway, gin.H{"error": code})
}

func ServerErr(c *gin.Context, code string) {
	c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": code})
}

// ServerErrWithLog logs err and answers 500 with code.
func ServerErrWithLog(c *gin.Context, log logrus.FieldLogger, err error, code string) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	log.WithError(err).WithField("path", c.FullPath()).Error(code)
	ServerErr(c, code)
}
