package datastores

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/stevenmeyer142/pintler-va-app/internal/logger"
)

// RedisBus publishes record events to a Redis channel so every API instance
// can feed its own Hub. Events carry the publishing instance's origin and the
// forwarder skips its own, since the publisher's hub is notified directly.
type RedisBus struct {
	log     *logger.Logger
	rdb     *goredis.Client
	channel string
	origin  string
}

func NewRedisBus(ctx context.Context, addr, channel string, log *logger.Logger) (*RedisBus, error) {
	if addr == "" {
		return nil, fmt.Errorf("missing redis address")
	}
	if channel == "" {
		channel = "healthlake-datastores"
	}
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &RedisBus{
		log:     log.With("component", "RedisBus"),
		rdb:     rdb,
		channel: channel,
		origin:  uuid.NewString(),
	}, nil
}

func (b *RedisBus) Notify(ctx context.Context, e Event) error {
	if b == nil || b.rdb == nil {
		return fmt.Errorf("redis bus not initialized")
	}
	if e.Origin == "" {
		e.Origin = b.origin
	}
	raw, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := b.rdb.Publish(ctx, b.channel, raw).Err(); err != nil {
		return fmt.Errorf("redis publish: %w", err)
	}
	return nil
}

// StartForwarder subscribes to the channel and hands every decoded event to
// onEvent until ctx is done.
func (b *RedisBus) StartForwarder(ctx context.Context, onEvent func(ctx context.Context, e Event) error) error {
	if b == nil || b.rdb == nil {
		return fmt.Errorf("redis bus not initialized")
	}
	if onEvent == nil {
		return fmt.Errorf("onEvent callback required")
	}

	sub := b.rdb.Subscribe(ctx, b.channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("redis subscribe: %w", err)
	}

	go func() {
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				_ = sub.Close()
				return
			case m, ok := <-ch:
				if !ok || m == nil {
					_ = sub.Close()
					return
				}
				b.forward(ctx, []byte(m.Payload), onEvent)
			}
		}
	}()
	return nil
}

// forward decodes one payload and hands it on unless this instance published it.
func (b *RedisBus) forward(ctx context.Context, payload []byte, onEvent func(ctx context.Context, e Event) error) {
	e, err := decodeEvent(payload)
	if err != nil {
		b.log.Warn("bad redis record payload", "err", err)
		return
	}
	if e.Origin != "" && e.Origin == b.origin {
		return
	}
	if err := onEvent(ctx, e); err != nil {
		b.log.Warn("forward record event failed", "record_id", e.ID, "err", err)
	}
}

func (b *RedisBus) Close() error {
	if b == nil || b.rdb == nil {
		return nil
	}
	return b.rdb.Close()
}

func decodeEvent(raw []byte) (Event, error) {
	var e Event
	if err := json.Unmarshal(raw, &e); err != nil {
		return Event{}, err
	}
	if e.ID == "" {
		return Event{}, fmt.Errorf("event without id")
	}
	return e, nil
}
