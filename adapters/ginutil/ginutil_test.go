package ginutil

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

type fixedLimiter struct {
	ok  bool
	err error
}

func (l fixedLimiter) AllowNamed(string, string) (bool, error) { return l.ok, l.err }

func TestAllowNamed(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodPost, "/", nil)

	if !AllowNamed(c, nil, RLSubscriptionPurchase) {
		t.Fatal("nil limiter must allow")
	}
	if AllowNamed(c, fixedLimiter{ok: false}, RLSubscriptionPurchase) {
		t.Fatal("denial must propagate")
	}
	if !AllowNamed(c, fixedLimiter{err: errors.New("redis down")}, RLSubscriptionPurchase) {
		t.Fatal("limiter errors fail open")
	}
}

func TestErrorHelpers(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cases := []struct {
		fn   func(*gin.Context)
		code int
	}{
		{func(c *gin.Context) { BadRequest(c, "bad") }, http.StatusBadRequest},
		{func(c *gin.Context) { NotFound(c, "missing") }, http.StatusNotFound},
		{Unauthorized, http.StatusUnauthorized},
		{TooMany, http.StatusTooManyRequests},
		{func(c *gin.Context) { Unavailable(c, "store") }, http.StatusBadGateway},
		{func(c *gin.Context) { ServerErrWithLog(c, nil, errors.New("x"), "boom") }, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
		tc.fn(c)
		if w.Code != tc.code || !c.IsAborted() {
			t.Fatalf("got %d aborted=%v, want %d", w.Code, c.IsAborted(), tc.code)
		}
	}
}
