// Package redis implements a Redis pub/sub transport for invalidation
// records, so subscribed processes learn about an invalidation the
// instant it happens instead of waiting for their next poll of the
// core/eventinvalidation registry. It still writes through to that
// registry on every publish, so the poll-based invalidation.Engine
// remains correct (and remains the system of record) even for a process
// that missed the pub/sub message entirely.
package redis

import (
	"context"
	"strings"

	goredis "github.com/redis/go-redis/v9"

	"github.com/unkn0wn-root/casloader/invalidation"
)

const channelPrefix = "casloader:invalidate:"

// Bus wraps an invalidation.Registry, publishing a live notice on every
// PutRecord in addition to the write-through.
type Bus struct {
	inner invalidation.Registry
	rdb   goredis.UniversalClient
}

var _ invalidation.Registry = (*Bus)(nil)

// New returns a Bus writing through to inner and publishing over rdb.
func New(inner invalidation.Registry, rdb goredis.UniversalClient) *Bus {
	return &Bus{inner: inner, rdb: rdb}
}

func channel(event string) string { return channelPrefix + event }

// Records delegates to the wrapped registry.
func (b *Bus) Records(ctx context.Context, event string) (map[string]string, error) {
	return b.inner.Records(ctx, event)
}

// PutRecord writes through to the wrapped registry, then publishes a live
// notice. A publish failure after a successful write-through is returned
// to the caller, but the registry itself is already consistent; the next
// poll will pick up the record regardless.
func (b *Bus) PutRecord(ctx context.Context, event, key, token string) error {
	if err := b.inner.PutRecord(ctx, event, key, token); err != nil {
		return err
	}
	return b.rdb.Publish(ctx, channel(event), encodeNotice(key, token)).Err()
}

// Notice is a live invalidation message received over pub/sub.
type Notice struct {
	Key   string
	Token string
}

// Subscribe blocks, delivering a Notice to handler for every invalidation
// published on event until ctx is cancelled or the subscription's
// connection is closed. Callers still need Engine.Process on the usual
// cadence: Subscribe is a latency optimization, not a correctness
// requirement.
func (b *Bus) Subscribe(ctx context.Context, event string, handler func(Notice)) error {
	sub := b.rdb.Subscribe(ctx, channel(event))
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			n, ok := decodeNotice(msg.Payload)
			if !ok {
				continue
			}
			handler(n)
		}
	}
}

func encodeNotice(key, token string) string {
	return key + "\x00" + token
}

func decodeNotice(payload string) (Notice, bool) {
	i := strings.IndexByte(payload, 0)
	if i < 0 {
		return Notice{}, false
	}
	return Notice{Key: payload[:i], Token: payload[i+1:]}, true
}
