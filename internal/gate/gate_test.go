package gate_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	dbpkg "trendkeys/internal/db"
	"trendkeys/internal/gate"
)

type fakeStore struct {
	mu      sync.Mutex
	keys    map[string]*dbpkg.APIKey
	findErr error
	touchFn func() error
	touches []uint
}

func (f *fakeStore) FindKeyByValue(_ context.Context, key string) (*dbpkg.APIKey, error) {
	if f.findErr != nil {
		return nil, f.findErr
	}
	k, ok := f.keys[key]
	if !ok {
		return nil, dbpkg.ErrKeyNotFound
	}
	return k, nil
}

func (f *fakeStore) TouchKeyUsage(_ context.Context, id uint, _ time.Time) error {
	f.mu.Lock()
	f.touches = append(f.touches, id)
	f.mu.Unlock()
	if f.touchFn != nil {
		return f.touchFn()
	}
	return nil
}

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func key(secret string, ips, domains []string) *dbpkg.APIKey {
	return &dbpkg.APIKey{
		ID:              7,
		Key:             secret,
		GameType:        "wingo",
		Duration:        "1m",
		IPWhitelist:     datatypes.JSONSlice[string](ips),
		DomainWhitelist: datatypes.JSONSlice[string](domains),
		CreatedAt:       now.Add(-24 * time.Hour),
		ExpiresAt:       now.Add(24 * time.Hour),
		IsActive:        true,
	}
}

func newGate(store *fakeStore, touched chan uint) *gate.Gate {
	opts := []gate.Option{gate.WithClock(func() time.Time { return now })}
	if touched != nil {
		opts = append(opts, gate.WithTouchHook(func(id uint, _ error) { touched <- id }))
	}
	return gate.New(store, zap.NewNop(), opts...)
}

func TestEvaluateUnrestrictedKeyAllowsAnyCaller(t *testing.T) {
	store := &fakeStore{keys: map[string]*dbpkg.APIKey{"tk_open": key("tk_open", nil, nil)}}
	g := newGate(store, nil)

	callers := []struct{ ip, domain string }{
		{"1.2.3.4", "example.com"},
		{"2001:db8::1", ""},
		{"", "https://anything.test/page"},
	}
	for _, c := range callers {
		d := g.Evaluate(context.Background(), "tk_open", c.ip, c.domain)
		assert.Equal(t, gate.Allowed, d.Status, "%+v", c)
	}
}

func TestEvaluateOrder(t *testing.T) {
	inactive := key("tk_inactive", nil, nil)
	inactive.IsActive = false

	expired := key("tk_expired", []string{"9.9.9.9"}, []string{"nowhere.test"})
	expired.ExpiresAt = now

	inactiveExpired := key("tk_both", nil, nil)
	inactiveExpired.IsActive = false
	inactiveExpired.ExpiresAt = now.Add(-time.Hour)

	store := &fakeStore{keys: map[string]*dbpkg.APIKey{
		"tk_inactive": inactive,
		"tk_expired":  expired,
		"tk_both":     inactiveExpired,
		"tk_ip":       key("tk_ip", []string{"1.2.3.4"}, nil),
		"tk_domain":   key("tk_domain", nil, []string{"example.com"}),
	}}
	g := newGate(store, nil)
	ctx := context.Background()

	assert.Equal(t, gate.NotFound, g.Evaluate(ctx, "tk_missing", "1.2.3.4", "").Status)
	assert.Equal(t, gate.NotFound, g.Evaluate(ctx, "", "1.2.3.4", "").Status)
	assert.Equal(t, gate.Inactive, g.Evaluate(ctx, "tk_inactive", "1.2.3.4", "").Status)
	// A swept key (flag cleared after expiry) still reports Expired.
	assert.Equal(t, gate.Expired, g.Evaluate(ctx, "tk_both", "1.2.3.4", "").Status)
	assert.Equal(t, gate.Expired, g.Evaluate(ctx, "tk_expired", "9.9.9.9", "nowhere.test").Status)
	assert.Equal(t, gate.Allowed, g.Evaluate(ctx, "tk_ip", "1.2.3.4", "").Status)
	assert.Equal(t, gate.IPNotAllowed, g.Evaluate(ctx, "tk_ip", "5.6.7.8", "").Status)
	assert.Equal(t, gate.Allowed, g.Evaluate(ctx, "tk_domain", "5.6.7.8", "WWW.Example.com").Status)
	assert.Equal(t, gate.DomainNotAllowed, g.Evaluate(ctx, "tk_domain", "5.6.7.8", "evil.com").Status)
	assert.Equal(t, gate.DomainNotAllowed, g.Evaluate(ctx, "tk_domain", "5.6.7.8", "").Status)
}

func TestEvaluateExpiredNeverAllowed(t *testing.T) {
	offsets := []time.Duration{0, time.Nanosecond, time.Minute, 400 * 24 * time.Hour}
	whitelists := [][]string{nil, {"1.2.3.4"}}

	for _, off := range offsets {
		for _, wl := range whitelists {
			k := key("tk_x", wl, nil)
			k.ExpiresAt = now.Add(-off)
			store := &fakeStore{keys: map[string]*dbpkg.APIKey{"tk_x": k}}
			d := newGate(store, nil).Evaluate(context.Background(), "tk_x", "1.2.3.4", "")
			assert.Equal(t, gate.Expired, d.Status, "offset %s whitelist %v", off, wl)
			assert.Empty(t, store.touches)
		}
	}
}

func TestEvaluateTouchesUsageAsynchronously(t *testing.T) {
	release := make(chan struct{})
	touched := make(chan uint, 1)
	store := &fakeStore{
		keys: map[string]*dbpkg.APIKey{"tk_open": key("tk_open", nil, nil)},
		touchFn: func() error {
			<-release
			return errors.New("db down")
		},
	}
	g := newGate(store, touched)

	d := g.Evaluate(context.Background(), "tk_open", "1.2.3.4", "")
	require.Equal(t, gate.Allowed, d.Status, "a blocked usage update must not hold the decision")

	close(release)
	select {
	case id := <-touched:
		assert.Equal(t, uint(7), id)
	case <-time.After(2 * time.Second):
		t.Fatal("usage update never ran")
	}
}

func TestEvaluateStoreFailure(t *testing.T) {
	store := &fakeStore{findErr: errors.New("connection refused")}
	d := newGate(store, nil).Evaluate(context.Background(), "tk_any", "1.2.3.4", "")

	assert.Equal(t, gate.Failed, d.Status)
	assert.False(t, d.Status.Denied())
	assert.Error(t, d.Err)
}
