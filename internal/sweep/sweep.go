// Package sweep warns key owners about upcoming and past expiry and clears
// the active flag of keys that have expired.
package sweep

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"trendkeys/internal/audit"
	dbpkg "trendkeys/internal/db"
	"trendkeys/internal/notify"
)

type KeyStore interface {
	KeysExpiringBetween(ctx context.Context, from, to time.Time) ([]dbpkg.APIKey, error)
	ExpiredActiveKeys(ctx context.Context, now time.Time) ([]dbpkg.APIKey, error)
	SetKeyActive(ctx context.Context, id uint, active bool) error
}

type Notifier interface {
	Send(ctx context.Context, template, chatID string, params notify.Params) notify.DeliveryResult
}

type ActivityRecorder interface {
	Activity(actorID uint, action string, details map[string]any, ip string)
}

// Sweeper runs one pass per interval.
type Sweeper struct {
	store    KeyStore
	notifier Notifier
	recorder ActivityRecorder
	window   time.Duration
	log      *zap.Logger
	now      func() time.Time

	// warned remembers keys already told about upcoming expiry.
	warned *cache.Cache
}

func New(store KeyStore, n Notifier, rec ActivityRecorder, window time.Duration, log *zap.Logger) *Sweeper {
	return &Sweeper{
		store:    store,
		notifier: n,
		recorder: rec,
		window:   window,
		log:      log,
		now:      time.Now,
		warned:   cache.New(window, time.Hour),
	}
}

// Result counts what one pass did.
type Result struct {
	Warned      int
	Deactivated int
}

// RunOnce performs a single sweep.
func (s *Sweeper) RunOnce(ctx context.Context) (Result, error) {
	var res Result
	now := s.now()

	if s.window > 0 {
		expiring, err := s.store.KeysExpiringBetween(ctx, now, now.Add(s.window))
		if err != nil {
			return res, fmt.Errorf("list expiring keys: %w", err)
		}
		for i := range expiring {
			k := &expiring[i]
			id := strconv.FormatUint(uint64(k.ID), 10)
			if _, seen := s.warned.Get(id); seen {
				continue
			}
			s.warned.Set(id, struct{}{}, k.ExpiresAt.Sub(now)+time.Minute)
			params := keyParams(k)
			params["time_left"] = humanDuration(k.ExpiresAt.Sub(now))
			s.notifyOwner(ctx, notify.Expiring, k, params)
			res.Warned++
		}
	}

	expired, err := s.store.ExpiredActiveKeys(ctx, now)
	if err != nil {
		return res, fmt.Errorf("list expired keys: %w", err)
	}
	for i := range expired {
		k := &expired[i]
		if err := s.store.SetKeyActive(ctx, k.ID, false); err != nil {
			s.log.Error("deactivate expired key failed", zap.Uint("key_id", k.ID), zap.Error(err))
			continue
		}
		res.Deactivated++
		s.recorder.Activity(0, audit.ActionExpireKey, map[string]any{
			"key_id":     k.ID,
			"user_id":    k.UserID,
			"expires_at": k.ExpiresAt,
		}, "")
		s.notifyOwner(ctx, notify.Expired, k, keyParams(k))
	}
	return res, nil
}

func (s *Sweeper) notifyOwner(ctx context.Context, template string, k *dbpkg.APIKey, params notify.Params) {
	if k.User == nil || k.User.TelegramID == "" {
		return
	}
	params["username"] = k.User.Username
	s.notifier.Send(ctx, template, k.User.TelegramID, params)
}

func keyParams(k *dbpkg.APIKey) notify.Params {
	return notify.Params{
		"key":        k.Key,
		"game_type":  k.GameType,
		"duration":   k.Duration,
		"expires_at": k.ExpiresAt.UTC().Format("2006-01-02 15:04 UTC"),
	}
}

func humanDuration(d time.Duration) string {
	switch {
	case d >= 48*time.Hour:
		return fmt.Sprintf("%d days", int(d.Hours()/24))
	case d >= time.Hour:
		return fmt.Sprintf("%d hours", int(d.Hours()))
	default:
		return fmt.Sprintf("%d minutes", int(d.Minutes()))
	}
}

// Start runs RunOnce at startup and then every interval until ctx is done.
// An interval of 0 disables the sweep.
func (s *Sweeper) Start(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	go func() {
		s.runLogged(ctx)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.runLogged(ctx)
			}
		}
	}()
}

func (s *Sweeper) runLogged(ctx context.Context) {
	res, err := s.RunOnce(ctx)
	if err != nil {
		s.log.Error("expiry sweep failed", zap.Error(err))
		return
	}
	if res.Warned > 0 || res.Deactivated > 0 {
		s.log.Info("expiry sweep", zap.Int("warned", res.Warned), zap.Int("deactivated", res.Deactivated))
	}
}
