package redisstore

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// FinishLedger records finished transaction ids in redis so only one
// replica finishes each transaction.
type FinishLedger struct {
	rdb   redis.UniversalClient
	keyNS string
	ttl   time.Duration
}

func NewFinishLedger(rdb redis.UniversalClient, keyPrefix string, ttl time.Duration) *FinishLedger {
	if keyPrefix == "" {
		keyPrefix = "subkit:finish:"
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &FinishLedger{rdb: rdb, keyNS: keyPrefix, ttl: ttl}
}

func (l *FinishLedger) key(transactionID string) string { return l.keyNS + transactionID }

// Claim reports true when this caller is the first to claim transactionID.
func (l *FinishLedger) Claim(ctx context.Context, transactionID string) (bool, error) {
	return l.rdb.SetNX(ctx, l.key(transactionID), time.Now().UTC().Format(time.RFC3339), l.ttl).Result()
}

func (l *FinishLedger) Release(ctx context.Context, transactionID string) error {
	return l.rdb.Del(ctx, l.key(transactionID)).Err()
}
