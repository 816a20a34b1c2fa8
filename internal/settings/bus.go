package settings

import (
	"context"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Bus carries "setting changed" events between the writer and every
// provider that caches settings.
type Bus interface {
	Publish(ctx context.Context, key string) error
	Subscribe(fn func(key string)) (unsubscribe func())
	Close() error
}

// LocalBus delivers events synchronously inside one process.
type LocalBus struct {
	mu        sync.RWMutex
	next      int
	listeners map[int]func(string)
}

func NewLocalBus() *LocalBus {
	return &LocalBus{listeners: make(map[int]func(string))}
}

func (b *LocalBus) Publish(_ context.Context, key string) error {
	b.mu.RLock()
	fns := make([]func(string), 0, len(b.listeners))
	for _, fn := range b.listeners {
		fns = append(fns, fn)
	}
	b.mu.RUnlock()

	for _, fn := range fns {
		fn(key)
	}
	return nil
}

func (b *LocalBus) Subscribe(fn func(string)) func() {
	b.mu.Lock()
	id := b.next
	b.next++
	b.listeners[id] = fn
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		delete(b.listeners, id)
		b.mu.Unlock()
	}
}

func (b *LocalBus) Close() error { return nil }

// RedisChannel is the pub/sub channel setting changes travel on.
const RedisChannel = "trendkeys:settings"

// RedisBus fans setting changes out to every instance through redis pub/sub.
// A publisher receives its own events back through the subscription.
type RedisBus struct {
	client *redis.Client
	sub    *redis.PubSub
	local  *LocalBus
	log    *zap.Logger
}

// NewRedisBus connects to url and starts relaying channel messages to local
// subscribers.
func NewRedisBus(ctx context.Context, url string, log *zap.Logger) (*RedisBus, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	sub := client.Subscribe(ctx, RedisChannel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		_ = client.Close()
		return nil, fmt.Errorf("subscribe %s: %w", RedisChannel, err)
	}

	b := &RedisBus{client: client, sub: sub, local: NewLocalBus(), log: log}
	go b.relay()
	return b, nil
}

func (b *RedisBus) relay() {
	for msg := range b.sub.Channel() {
		b.log.Debug("setting changed", zap.String("key", msg.Payload))
		_ = b.local.Publish(context.Background(), msg.Payload)
	}
}

func (b *RedisBus) Publish(ctx context.Context, key string) error {
	return b.client.Publish(ctx, RedisChannel, key).Err()
}

func (b *RedisBus) Subscribe(fn func(string)) func() {
	return b.local.Subscribe(fn)
}

func (b *RedisBus) Close() error {
	if err := b.sub.Close(); err != nil {
		_ = b.client.Close()
		return err
	}
	return b.client.Close()
}
