package redislimiter

import (
	"context"
	"errors"
	"testing"

	"github.com/PaulFidika/subkit/ratelimit"
	"github.com/redis/go-redis/v9"
)

func TestNilClientAllows(t *testing.T) {
	l := New(nil, nil)
	if ok, err := l.AllowNamed("purchase", "k"); !ok || err != nil {
		t.Fatalf("limiter without redis must allow: %v %v", ok, err)
	}
	var nilLimiter *Limiter
	if ok, err := nilLimiter.Allow(context.Background(), "purchase", "k"); !ok || err != nil {
		t.Fatalf("nil limiter must allow: %v %v", ok, err)
	}
}

func TestInvalidKeyRejectedBeforeRedis(t *testing.T) {
	l := New(redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"}), nil)
	if _, err := l.AllowNamed("purchase", ""); !errors.Is(err, ratelimit.ErrInvalidKey) {
		t.Fatalf("expected ErrInvalidKey, got %v", err)
	}
}
