package redislimiter

import (
	"context"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/PaulFidika/subkit/ratelimit"
	"github.com/redis/go-redis/v9"
)

// KeyPrefix namespaces the limiter's sorted sets.
const KeyPrefix = "subkit:rl:"

// Limiter is a sliding-window limiter over one redis sorted set per
// bucket and key, shared by every replica.
type Limiter struct {
	rdb    redis.UniversalClient
	limits ratelimit.Limits
	seq    atomic.Uint64
}

func New(rdb redis.UniversalClient, limits ratelimit.Limits) *Limiter {
	return &Limiter{rdb: rdb, limits: limits}
}

// AllowNamed is Allow with a background context, matching ginutil.RateLimiter.
func (l *Limiter) AllowNamed(bucket, key string) (bool, error) {
	return l.Allow(context.Background(), bucket, key)
}

// Allow adds a hit and counts the window in one transaction. A hit over the
// limit is removed again so denied requests do not extend the window.
func (l *Limiter) Allow(ctx context.Context, bucket, key string) (bool, error) {
	if l == nil || l.rdb == nil {
		return true, nil
	}
	name, err := ratelimit.Key(bucket, key)
	if err != nil {
		return false, err
	}
	zkey := KeyPrefix + name
	lim := l.limits.For(bucket)
	nowMs := time.Now().UnixMilli()
	member := strconv.FormatInt(nowMs, 10) + "-" + strconv.FormatUint(l.seq.Add(1), 10)

	var card *redis.IntCmd
	_, err = l.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.ZRemRangeByScore(ctx, zkey, "-inf", strconv.FormatInt(nowMs-lim.Window.Milliseconds(), 10))
		p.ZAdd(ctx, zkey, redis.Z{Score: float64(nowMs), Member: member})
		card = p.ZCard(ctx, zkey)
		p.PExpire(ctx, zkey, lim.Window+time.Second)
		return nil
	})
	if err != nil {
		return false, err
	}
	if card.Val() > int64(lim.Limit) {
		l.rdb.ZRem(ctx, zkey, member)
		return false, nil
	}
	return true, nil
}
