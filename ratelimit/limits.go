// Package ratelimit holds the bucket configuration shared by the memory and
// redis sliding-window limiters.
package ratelimit

import (
	"errors"
	"time"
)

// DefaultBucket names the entry applied to buckets without their own limit.
const DefaultBucket = "default"

// ErrInvalidKey is returned for an empty bucket or key.
var ErrInvalidKey = errors.New("ratelimit: bucket and key required")

// Limit allows Limit hits per Window.
type Limit struct {
	Limit  int
	Window time.Duration
}

// Fallback applies when neither the bucket nor DefaultBucket is configured.
var Fallback = Limit{Limit: 100, Window: time.Minute}

// Limits maps bucket names to limits.
type Limits map[string]Limit

// For returns the limit of bucket, then DefaultBucket, then Fallback.
func (ls Limits) For(bucket string) Limit {
	if v, ok := ls[bucket]; ok {
		return v
	}
	if v, ok := ls[DefaultBucket]; ok {
		return v
	}
	return Fallback
}

// Key joins bucket and key into one counter name.
func Key(bucket, key string) (string, error) {
	if bucket == "" || key == "" {
		return "", ErrInvalidKey
	}
	return bucket + ":" + key, nil
}
