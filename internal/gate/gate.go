// Package gate decides whether an inbound trend API call may proceed.
package gate

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"trendkeys/internal/apperr"
	dbpkg "trendkeys/internal/db"
)

// Status is the outcome of an evaluation.
type Status string

const (
	Allowed          Status = "allowed"
	NotFound         Status = "not_found"
	Inactive         Status = "inactive"
	Expired          Status = "expired"
	IPNotAllowed     Status = "ip_not_allowed"
	DomainNotAllowed Status = "domain_not_allowed"
	// Failed means the key could not be looked up at all.
	Failed Status = "failed"
)

// Denied reports whether the status blocks the call.
func (s Status) Denied() bool {
	return s != Allowed && s != Failed
}

// Message is the client-facing text for a status.
func (s Status) Message() string {
	switch s {
	case Allowed:
		return "ok"
	case NotFound:
		return "invalid API key"
	case Inactive:
		return "API key is inactive"
	case Expired:
		return "API key has expired"
	case IPNotAllowed:
		return "IP address not allowed for this key"
	case DomainNotAllowed:
		return "domain not allowed for this key"
	default:
		return "internal error"
	}
}

// Decision is the result of Evaluate. Key is set whenever the key was found.
type Decision struct {
	Status Status
	Key    *dbpkg.APIKey
	Err    error
}

// KeyStore is the slice of the registry the gate needs.
type KeyStore interface {
	FindKeyByValue(ctx context.Context, key string) (*dbpkg.APIKey, error)
	TouchKeyUsage(ctx context.Context, id uint, at time.Time) error
}

// Gate evaluates keys against their registry row.
type Gate struct {
	store KeyStore
	log   *zap.Logger
	now   func() time.Time

	// touchTimeout bounds the async usage update.
	touchTimeout time.Duration
	touched      func(id uint, err error)
}

// Option adjusts a Gate.
type Option func(*Gate)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(g *Gate) { g.now = now }
}

// WithTouchHook is called after every async usage update finishes.
func WithTouchHook(fn func(id uint, err error)) Option {
	return func(g *Gate) { g.touched = fn }
}

func New(store KeyStore, log *zap.Logger, opts ...Option) *Gate {
	g := &Gate{
		store:        store,
		log:          log,
		now:          time.Now,
		touchTimeout: 2 * time.Second,
	}
	for _, o := range opts {
		o(g)
	}
	return g
}

// Evaluate checks, in order: existence, expiry, active flag, IP whitelist,
// domain whitelist. A key past its expiry reports Expired even after the
// sweep has cleared its active flag. On Allowed the usage counters are
// bumped in the background; that update never affects the decision.
func (g *Gate) Evaluate(ctx context.Context, key, callerIP, callerDomain string) Decision {
	k, err := g.store.FindKeyByValue(ctx, key)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return Decision{Status: NotFound}
		}
		return Decision{Status: Failed, Err: err}
	}

	now := g.now()
	switch {
	case k.Expired(now):
		return Decision{Status: Expired, Key: k}
	case !k.IsActive:
		return Decision{Status: Inactive, Key: k}
	case !IPAllowed(k.IPWhitelist, callerIP):
		return Decision{Status: IPNotAllowed, Key: k}
	case !DomainAllowed(k.DomainWhitelist, callerDomain):
		return Decision{Status: DomainNotAllowed, Key: k}
	}

	g.touchAsync(k.ID, now)
	return Decision{Status: Allowed, Key: k}
}

func (g *Gate) touchAsync(id uint, at time.Time) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), g.touchTimeout)
		defer cancel()
		err := g.store.TouchKeyUsage(ctx, id, at)
		if err != nil {
			g.log.Warn("key usage update failed", zap.Uint("key_id", id), zap.Error(err))
		}
		if g.touched != nil {
			g.touched(id, err)
		}
	}()
}
