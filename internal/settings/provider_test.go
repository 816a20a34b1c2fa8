package settings_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"trendkeys/internal/apperr"
	"trendkeys/internal/db/dbtest"
	"trendkeys/internal/settings"
)

func TestGetFallsBackToDefaults(t *testing.T) {
	store := dbtest.Open(t)
	p := settings.NewProvider(store, settings.NewLocalBus(), time.Minute, zap.NewNop())
	ctx := context.Background()

	v, err := p.Get(ctx, settings.UserAPIEndpoint)
	require.NoError(t, err)
	assert.Equal(t, "/api/trend", v)
	assert.False(t, p.Bool(ctx, settings.MaintenanceMode))
}

func TestSetInvalidatesCacheAndNotifies(t *testing.T) {
	store := dbtest.Open(t)
	bus := settings.NewLocalBus()
	p := settings.NewProvider(store, bus, time.Hour, zap.NewNop())
	ctx := context.Background()

	var seen []string
	p.Subscribe(func(key string) {
		seen = append(seen, key+"="+p.String(ctx, key))
	})

	assert.Equal(t, "Trend Keys", p.String(ctx, settings.SiteName))

	require.NoError(t, p.Set(ctx, settings.SiteName, "Oracle"))
	assert.Equal(t, "Oracle", p.String(ctx, settings.SiteName))
	assert.Equal(t, []string{"site_name=Oracle"}, seen)
}

func TestChangeFromAnotherWriterReachesProvider(t *testing.T) {
	store := dbtest.Open(t)
	bus := settings.NewLocalBus()
	reader := settings.NewProvider(store, bus, time.Hour, zap.NewNop())
	writer := settings.NewProvider(store, bus, time.Hour, zap.NewNop())
	ctx := context.Background()

	assert.Equal(t, "", reader.String(ctx, settings.InternalAPIDomain))

	require.NoError(t, writer.Set(ctx, settings.InternalAPIDomain, "https://feed.internal"))
	assert.Equal(t, "https://feed.internal", reader.String(ctx, settings.InternalAPIDomain))
}

func TestSetValidation(t *testing.T) {
	store := dbtest.Open(t)
	p := settings.NewProvider(store, settings.NewLocalBus(), 0, zap.NewNop())
	ctx := context.Background()

	err := p.Set(ctx, "colour", "blue")
	assert.True(t, errors.Is(err, apperr.ErrValidation))

	err = p.Set(ctx, settings.MaintenanceMode, "yes")
	assert.True(t, errors.Is(err, apperr.ErrValidation))

	err = p.SetMany(ctx, map[string]string{settings.MaintenanceMode: "true", "nope": "x"})
	assert.True(t, errors.Is(err, apperr.ErrValidation))
	assert.False(t, p.Bool(ctx, settings.MaintenanceMode), "a rejected batch writes nothing")

	require.NoError(t, p.Set(ctx, settings.MaintenanceMode, "true"))
	assert.True(t, p.Bool(ctx, settings.MaintenanceMode))
}

func TestPublicMasksSecrets(t *testing.T) {
	store := dbtest.Open(t)
	p := settings.NewProvider(store, settings.NewLocalBus(), 0, zap.NewNop())
	ctx := context.Background()

	require.NoError(t, p.EnsureDefaults(ctx))
	require.NoError(t, p.SetMany(ctx, map[string]string{
		settings.TelegramBotToken:  "123456:ABCDEF",
		settings.InternalAPIDomain: "https://feed.internal",
		settings.UserAPIDomain:     "https://api.example.com",
	}))

	pub, err := p.Public(ctx)
	require.NoError(t, err)
	assert.Equal(t, "****CDEF", pub[settings.TelegramBotToken])
	assert.NotContains(t, pub[settings.InternalAPIDomain], "feed.internal")
	assert.Equal(t, "https://api.example.com", pub[settings.UserAPIDomain])
	assert.Len(t, pub, len(settings.Defaults))
}

func TestLocalBusUnsubscribe(t *testing.T) {
	bus := settings.NewLocalBus()
	calls := 0
	unsubscribe := bus.Subscribe(func(string) { calls++ })

	require.NoError(t, bus.Publish(context.Background(), "a"))
	unsubscribe()
	require.NoError(t, bus.Publish(context.Background(), "b"))

	assert.Equal(t, 1, calls)
}

// slowStore holds the first GetSetting call until release is closed.
type slowStore struct {
	mu      sync.Mutex
	values  map[string]string
	held    bool
	entered chan struct{}
	release chan struct{}
}

func (s *slowStore) GetSetting(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	v, ok := s.values[key]
	hold := !s.held
	s.held = true
	s.mu.Unlock()
	if hold {
		close(s.entered)
		<-s.release
	}
	return v, ok, nil
}

func (s *slowStore) AllSettings(context.Context) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]string, len(s.values))
	for k, v := range s.values {
		out[k] = v
	}
	return out, nil
}

func (s *slowStore) UpsertSetting(_ context.Context, key, value string) error {
	s.mu.Lock()
	s.values[key] = value
	s.mu.Unlock()
	return nil
}

func (s *slowStore) InsertSettingIfMissing(_ context.Context, key, value string) error {
	s.mu.Lock()
	if _, ok := s.values[key]; !ok {
		s.values[key] = value
	}
	s.mu.Unlock()
	return nil
}

func TestReadOverlappingSetDoesNotCacheOldValue(t *testing.T) {
	store := &slowStore{
		values:  map[string]string{settings.InternalAPIDomain: "http://old.internal"},
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	p := settings.NewProvider(store, settings.NewLocalBus(), time.Hour, zap.NewNop())
	ctx := context.Background()

	got := make(chan string, 1)
	go func() {
		v, _ := p.Get(ctx, settings.InternalAPIDomain)
		got <- v
	}()

	<-store.entered
	require.NoError(t, p.Set(ctx, settings.InternalAPIDomain, "http://new.internal"))
	close(store.release)

	assert.Equal(t, "http://old.internal", <-got)
	assert.Equal(t, "http://new.internal", p.String(ctx, settings.InternalAPIDomain))
}
