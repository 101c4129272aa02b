package cacheinfra

import (
	"context"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack/v5"
	"go.uber.org/zap"
)

// InvalidationMessage announces that a process changed or evicted tenant keys. Key names
// a single logical key; otherwise peers re-run the Pattern selection against their own
// in-process tier. Prefix is the key namespace of the sender, so services with different
// namespaces can share a channel.
type InvalidationMessage struct {
	Origin   string `msgpack:"o"`
	Prefix   string `msgpack:"p"`
	TenantID string `msgpack:"t"`
	Key      string `msgpack:"k,omitempty"`
	Pattern  string `msgpack:"m,omitempty"`
}

// RedisBus fans invalidations out to every process sharing the Redis deployment.
type RedisBus struct {
	client  redis.UniversalClient
	channel string
	origin  string
	logger  *zap.Logger

	mu     sync.Mutex
	pubsub *redis.PubSub
	done   chan struct{}
}

// NewRedisBus returns a bus publishing on channel. origin identifies this process;
// messages carrying it are ignored on receipt.
func NewRedisBus(client redis.UniversalClient, channel, origin string, logger *zap.Logger) *RedisBus {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisBus{
		client:  client,
		channel: channel,
		origin:  origin,
		logger:  logger,
	}
}

// Origin returns the identifier stamped on published messages.
func (b *RedisBus) Origin() string { return b.origin }

// Publish sends msg to peers, stamping it with this bus's origin.
func (b *RedisBus) Publish(ctx context.Context, msg InvalidationMessage) error {
	msg.Origin = b.origin
	payload, err := msgpack.Marshal(msg)
	if err != nil {
		return err
	}
	return b.client.Publish(ctx, b.channel, payload).Err()
}

// Subscribe starts delivering peer messages to handler on a dedicated goroutine and
// waits for the server to confirm the subscription.
//
// An unconfirmed subscription is returned as an error but stays registered: the client
// reconnects and subscribes again once the server is reachable. Close ends it either way.
func (b *RedisBus) Subscribe(ctx context.Context, handler func(InvalidationMessage)) error {
	ps := b.client.Subscribe(ctx, b.channel)
	_, confirmErr := ps.Receive(ctx)

	b.mu.Lock()
	b.pubsub = ps
	b.done = make(chan struct{})
	done := b.done
	b.mu.Unlock()

	go func() {
		defer close(done)
		for m := range ps.Channel() {
			var msg InvalidationMessage
			if err := msgpack.Unmarshal([]byte(m.Payload), &msg); err != nil {
				b.logger.Warn("discarding malformed invalidation message",
					zap.String("channel", m.Channel),
					zap.Error(err),
				)
				continue
			}
			if msg.Origin == b.origin {
				continue
			}
			handler(msg)
		}
	}()

	return confirmErr
}

// Close ends the subscription and waits for the delivery goroutine to exit.
func (b *RedisBus) Close() error {
	b.mu.Lock()
	ps, done := b.pubsub, b.done
	b.pubsub, b.done = nil, nil
	b.mu.Unlock()

	if ps == nil {
		return nil
	}
	err := ps.Close()
	<-done
	return err
}
