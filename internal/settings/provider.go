package settings

import (
	"context"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"trendkeys/internal/apperr"
)

// Store is the persistence the provider reads and writes through.
type Store interface {
	GetSetting(ctx context.Context, key string) (string, bool, error)
	AllSettings(ctx context.Context) (map[string]string, error)
	UpsertSetting(ctx context.Context, key, value string) error
	InsertSettingIfMissing(ctx context.Context, key, value string) error
}

// Provider serves settings at request time. Values are cached briefly and
// every change event drops the cached entry before listeners run, so a
// listener always reads the new value.
type Provider struct {
	store Store
	bus   Bus
	cache *cache.Cache
	log   *zap.Logger

	// gen counts invalidations per key. A read only fills the cache when
	// no invalidation happened while it was in flight.
	genMu sync.Mutex
	gen   map[string]uint64

	mu        sync.RWMutex
	listeners []func(key string)

	unsubscribe func()
}

// NewProvider wires a provider to store and bus. A ttl of zero disables caching.
func NewProvider(store Store, bus Bus, ttl time.Duration, log *zap.Logger) *Provider {
	p := &Provider{store: store, bus: bus, log: log, gen: make(map[string]uint64)}
	if ttl > 0 {
		p.cache = cache.New(ttl, 2*ttl)
	}
	p.unsubscribe = bus.Subscribe(p.onChange)
	return p
}

func (p *Provider) invalidate(key string) {
	p.genMu.Lock()
	p.gen[key]++
	if p.cache != nil {
		p.cache.Delete(key)
	}
	p.genMu.Unlock()
}

func (p *Provider) onChange(key string) {
	p.invalidate(key)

	p.mu.RLock()
	fns := append([]func(string){}, p.listeners...)
	p.mu.RUnlock()

	for _, fn := range fns {
		fn(key)
	}
}

// Subscribe registers fn to run after any setting changes.
func (p *Provider) Subscribe(fn func(key string)) {
	p.mu.Lock()
	p.listeners = append(p.listeners, fn)
	p.mu.Unlock()
}

// Get returns the current value of key, falling back to its default.
func (p *Provider) Get(ctx context.Context, key string) (string, error) {
	if p.cache != nil {
		if v, ok := p.cache.Get(key); ok {
			return v.(string), nil
		}
	}

	p.genMu.Lock()
	gen := p.gen[key]
	p.genMu.Unlock()

	v, found, err := p.store.GetSetting(ctx, key)
	if err != nil {
		return "", err
	}
	if !found {
		v = Defaults[key]
	}
	if p.cache != nil {
		p.genMu.Lock()
		if p.gen[key] == gen {
			p.cache.SetDefault(key, v)
		}
		p.genMu.Unlock()
	}
	return v, nil
}

// String is Get with read errors logged and the default returned.
func (p *Provider) String(ctx context.Context, key string) string {
	v, err := p.Get(ctx, key)
	if err != nil {
		p.log.Warn("settings read failed, using default", zap.String("key", key), zap.Error(err))
		return Defaults[key]
	}
	return v
}

// Bool reports whether key holds the literal "true".
func (p *Provider) Bool(ctx context.Context, key string) bool {
	return p.String(ctx, key) == "true"
}

// All returns every known setting, stored values over defaults.
func (p *Provider) All(ctx context.Context) (map[string]string, error) {
	stored, err := p.store.AllSettings(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(Defaults))
	for k, v := range Defaults {
		out[k] = v
	}
	for k, v := range stored {
		if Known(k) {
			out[k] = v
		}
	}
	return out, nil
}

// Public is All with secret values masked.
func (p *Provider) Public(ctx context.Context) (map[string]string, error) {
	all, err := p.All(ctx)
	if err != nil {
		return nil, err
	}
	for k, v := range all {
		if IsSecret(k) && v != "" {
			all[k] = mask(v)
		}
	}
	return all, nil
}

func mask(v string) string {
	if len(v) <= 4 {
		return "****"
	}
	return "****" + v[len(v)-4:]
}

// Validate checks key and value without writing anything.
func Validate(key, value string) error {
	if !Known(key) {
		return apperr.BadRequest("unknown setting: " + key)
	}
	if booleanKeys[key] && value != "true" && value != "false" {
		return apperr.BadRequest(key + " must be \"true\" or \"false\"")
	}
	return nil
}

// Set upserts one setting and announces the change.
func (p *Provider) Set(ctx context.Context, key, value string) error {
	return p.SetMany(ctx, map[string]string{key: value})
}

// SetMany validates every entry first, then upserts and announces each.
func (p *Provider) SetMany(ctx context.Context, values map[string]string) error {
	for k, v := range values {
		if err := Validate(k, v); err != nil {
			return err
		}
	}
	for k, v := range values {
		if err := p.store.UpsertSetting(ctx, k, v); err != nil {
			return apperr.Internal("failed to save setting", err)
		}
		p.invalidate(k)
		if err := p.bus.Publish(ctx, k); err != nil {
			p.log.Warn("settings change publish failed", zap.String("key", k), zap.Error(err))
		}
	}
	return nil
}

// EnsureDefaults inserts a row for every known setting that has none.
func (p *Provider) EnsureDefaults(ctx context.Context) error {
	for k, v := range Defaults {
		if err := p.store.InsertSettingIfMissing(ctx, k, v); err != nil {
			return err
		}
	}
	return nil
}

// Close detaches the provider from its bus.
func (p *Provider) Close() {
	if p.unsubscribe != nil {
		p.unsubscribe()
	}
}
