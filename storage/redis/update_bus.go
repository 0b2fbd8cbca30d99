package redisstore

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/PaulFidika/subkit/entitlements"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// UpdateBus carries transaction updates between replicas over redis pub/sub.
// Publish is the sending end; every Updates subscription receives each
// record published after it subscribed.
type UpdateBus struct {
	rdb     redis.UniversalClient
	channel string
	buffer  int
	log     logrus.FieldLogger
}

func NewUpdateBus(rdb redis.UniversalClient, channel string, log logrus.FieldLogger) *UpdateBus {
	if channel == "" {
		channel = "subkit:transactions"
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &UpdateBus{rdb: rdb, channel: channel, buffer: 16, log: log}
}

func (b *UpdateBus) Publish(ctx context.Context, rec entitlements.TransactionRecord) error {
	payload, err := encodeRecord(rec)
	if err != nil {
		return err
	}
	return b.rdb.Publish(ctx, b.channel, payload).Err()
}

// Updates subscribes to the channel. The returned channel closes when ctx is
// done or the redis subscription ends.
func (b *UpdateBus) Updates(ctx context.Context) (<-chan entitlements.TransactionRecord, error) {
	sub := b.rdb.Subscribe(ctx, b.channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("subscribe %s: %w", b.channel, err)
	}
	out := make(chan entitlements.TransactionRecord, b.buffer)
	go func() {
		defer close(out)
		defer sub.Close()
		msgs := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				rec, err := decodeRecord(msg.Payload)
				if err != nil {
					b.log.WithError(err).WithField("channel", b.channel).Warn("dropping malformed transaction update")
					continue
				}
				select {
				case out <- rec:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

func encodeRecord(rec entitlements.TransactionRecord) (string, error) {
	b, err := json.Marshal(rec)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func decodeRecord(payload string) (entitlements.TransactionRecord, error) {
	var rec entitlements.TransactionRecord
	if err := json.Unmarshal([]byte(payload), &rec); err != nil {
		return entitlements.TransactionRecord{}, err
	}
	if rec.ID == "" {
		return entitlements.TransactionRecord{}, fmt.Errorf("transaction update without id")
	}
	return rec, nil
}
