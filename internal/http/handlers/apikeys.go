package handlers

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"trendkeys/internal/apperr"
	"trendkeys/internal/audit"
	dbpkg "trendkeys/internal/db"
	"trendkeys/internal/gate"
	"trendkeys/internal/http/respond"
	"trendkeys/internal/notify"
	"trendkeys/internal/settings"
	"trendkeys/internal/trend"
)

func generateAPIKey() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return "tk_" + base64.RawURLEncoding.EncodeToString(b), nil
}

// keyView is a key plus the documented URL its owner calls.
type keyView struct {
	*dbpkg.APIKey
	TypeID  int    `json:"type_id"`
	DocsURL string `json:"docs_url,omitempty"`
}

func viewKey(ctx context.Context, s *settings.Provider, k *dbpkg.APIKey) keyView {
	v := keyView{APIKey: k}
	if feed, ok := trend.Lookup(k.GameType, k.Duration); ok {
		v.TypeID = feed.TypeID
		v.DocsURL, _ = trend.UserFacingURL(
			s.String(ctx, settings.UserAPIDomain),
			s.String(ctx, settings.UserAPIEndpoint),
			feed.TypeID, k.Key,
		)
	}
	return v
}

// ListKeys lists keys. Admins see all keys, optionally filtered by
// ?user_id=; resellers see their own.
func ListKeys(d *Deps) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		user, ok := MustUser(ctx)
		if !ok {
			return
		}
		f := dbpkg.KeyFilter{
			UserID:   queryUint(ctx, "user_id"),
			GameType: string(ctx.QueryArgs().Peek("game_type")),
			Page:     pageFrom(ctx),
		}
		if !isAdmin(user) {
			f.UserID = user.ID
		}
		keys, total, err := d.Store.ListKeys(ctx, f)
		if err != nil {
			respond.Error(ctx, err)
			return
		}
		views := make([]keyView, 0, len(keys))
		for i := range keys {
			views = append(views, viewKey(ctx, d.Settings, &keys[i]))
		}
		list(ctx, views, total, f.Page)
	}
}

// Feeds lists the game type and duration pairs keys can be issued for.
func Feeds() fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		respond.OK(ctx, trend.Feeds())
	}
}

type createKeyRequest struct {
	UserID          uint       `json:"user_id"`
	GameType        string     `json:"game_type" validate:"required"`
	Duration        string     `json:"duration" validate:"required"`
	ValidDays       int        `json:"valid_days" validate:"gte=0,lte=3650"`
	ExpiresAt       *time.Time `json:"expires_at"`
	BoundDomain     string     `json:"bound_domain" validate:"max=253"`
	IPWhitelist     []string   `json:"ip_whitelist" validate:"max=100"`
	DomainWhitelist []string   `json:"domain_whitelist" validate:"max=100"`
}

// CreateKey issues a key. Admins issue for any user; resellers issue for
// themselves and pay their per-key coin cost.
func CreateKey(d *Deps) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		caller, ok := MustUser(ctx)
		if !ok {
			return
		}
		var req createKeyRequest
		if !bind(ctx, &req) {
			return
		}
		if _, ok := trend.Lookup(req.GameType, req.Duration); !ok {
			respond.Error(ctx, apperr.BadRequest("unknown game_type/duration"))
			return
		}

		now := time.Now()
		var expiresAt time.Time
		switch {
		case req.ExpiresAt != nil:
			expiresAt = *req.ExpiresAt
		case req.ValidDays > 0:
			expiresAt = now.AddDate(0, 0, req.ValidDays)
		default:
			respond.Error(ctx, apperr.BadRequest("valid_days or expires_at required"))
			return
		}

		ownerID, payerID, cost := caller.ID, uint(0), int64(0)
		if isAdmin(caller) {
			if req.UserID != 0 {
				ownerID = req.UserID
			}
		} else {
			payerID = caller.ID
			if caller.Role != nil {
				cost = caller.Role.KeyCost
			}
		}

		owner := caller
		if ownerID != caller.ID {
			var err error
			if owner, err = d.Store.GetUser(ctx, ownerID); err != nil {
				respond.Error(ctx, err)
				return
			}
		}

		secret, err := generateAPIKey()
		if err != nil {
			respond.Error(ctx, apperr.Internal("failed to generate API key", err))
			return
		}
		key := &dbpkg.APIKey{
			Key:             secret,
			UserID:          owner.ID,
			GameType:        req.GameType,
			Duration:        req.Duration,
			BoundDomain:     gate.NormalizeDomain(req.BoundDomain),
			IPWhitelist:     gate.NormalizeIPs(req.IPWhitelist),
			DomainWhitelist: gate.NormalizeDomains(req.DomainWhitelist),
			CreatedAt:       now,
			ExpiresAt:       expiresAt,
			IsActive:        true,
		}
		if err := d.Store.CreateKeyCharged(ctx, key, payerID, cost); err != nil {
			respond.Error(ctx, err)
			return
		}

		d.Audit.Activity(caller.ID, audit.ActionCreateKey, map[string]any{
			"key_id":     key.ID,
			"user_id":    owner.ID,
			"game_type":  key.GameType,
			"duration":   key.Duration,
			"expires_at": key.ExpiresAt,
			"coin_cost":  cost,
		}, clientIP(ctx, d.Cfg.TrustProxyHeaders))

		view := viewKey(ctx, d.Settings, key)
		d.Notifier.SendAsync(notify.NewKey, owner.TelegramID, notify.Params{
			"username":   owner.Username,
			"key":        key.Key,
			"game_type":  key.GameType,
			"duration":   key.Duration,
			"expires_at": key.ExpiresAt.UTC().Format("2006-01-02 15:04 UTC"),
			"endpoint":   view.DocsURL,
		})

		respond.Created(ctx, view)
	}
}

// ownedKey loads the {id} key and checks the caller may manage it.
func ownedKey(ctx *fasthttp.RequestCtx, d *Deps) (*dbpkg.User, *dbpkg.APIKey, bool) {
	user, ok := MustUser(ctx)
	if !ok {
		return nil, nil, false
	}
	id, ok := pathID(ctx)
	if !ok {
		return nil, nil, false
	}
	key, err := d.Store.GetKey(ctx, id)
	if err != nil {
		respond.Error(ctx, err)
		return nil, nil, false
	}
	if key.UserID != user.ID && !isAdmin(user) {
		respond.Error(ctx, apperr.Forbidden("forbidden"))
		return nil, nil, false
	}
	return user, key, true
}

func SetKeyActive(d *Deps) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		var req activeRequest
		if !bind(ctx, &req) {
			return
		}
		user, key, ok := ownedKey(ctx, d)
		if !ok {
			return
		}
		if err := d.Store.SetKeyActive(ctx, key.ID, *req.Active); err != nil {
			respond.Error(ctx, err)
			return
		}
		d.Audit.Activity(user.ID, audit.ActionSetKeyActive, map[string]any{
			"key_id": key.ID,
			"active": *req.Active,
		}, clientIP(ctx, d.Cfg.TrustProxyHeaders))
		respond.OK(ctx, map[string]any{"key_id": key.ID, "active": *req.Active})
	}
}

type whitelistRequest struct {
	IPWhitelist     []string `json:"ip_whitelist" validate:"max=100"`
	DomainWhitelist []string `json:"domain_whitelist" validate:"max=100"`
}

// UpdateKeyWhitelists replaces both whitelists. Empty lists lift the restriction.
func UpdateKeyWhitelists(d *Deps) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		var req whitelistRequest
		if !bind(ctx, &req) {
			return
		}
		user, key, ok := ownedKey(ctx, d)
		if !ok {
			return
		}
		ips := gate.NormalizeIPs(req.IPWhitelist)
		domains := gate.NormalizeDomains(req.DomainWhitelist)
		if err := d.Store.UpdateKeyWhitelists(ctx, key.ID, ips, domains); err != nil {
			respond.Error(ctx, err)
			return
		}
		d.Audit.Activity(user.ID, audit.ActionUpdateKeyWhitelist, map[string]any{
			"key_id":           key.ID,
			"ip_whitelist":     ips,
			"domain_whitelist": domains,
		}, clientIP(ctx, d.Cfg.TrustProxyHeaders))
		respond.OK(ctx, map[string]any{
			"key_id":           key.ID,
			"ip_whitelist":     ips,
			"domain_whitelist": domains,
		})
	}
}

type extendRequest struct {
	Days      int        `json:"days" validate:"gte=0,lte=3650"`
	ExpiresAt *time.Time `json:"expires_at"`
}

// ExtendKey moves the expiry to expires_at, or by days from the later of
// now and the current expiry.
func ExtendKey(d *Deps) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		var req extendRequest
		if !bind(ctx, &req) {
			return
		}
		user, key, ok := ownedKey(ctx, d)
		if !ok {
			return
		}

		var expiresAt time.Time
		switch {
		case req.ExpiresAt != nil:
			expiresAt = *req.ExpiresAt
		case req.Days > 0:
			base := time.Now()
			if key.ExpiresAt.After(base) {
				base = key.ExpiresAt
			}
			expiresAt = base.AddDate(0, 0, req.Days)
		default:
			respond.Error(ctx, apperr.BadRequest("days or expires_at required"))
			return
		}

		if err := d.Store.ExtendKey(ctx, key.ID, expiresAt); err != nil {
			respond.Error(ctx, err)
			return
		}
		d.Audit.Activity(user.ID, audit.ActionExtendKey, map[string]any{
			"key_id":         key.ID,
			"old_expires_at": key.ExpiresAt,
			"expires_at":     expiresAt,
		}, clientIP(ctx, d.Cfg.TrustProxyHeaders))
		respond.OK(ctx, map[string]any{"key_id": key.ID, "expires_at": expiresAt})
	}
}

func DeleteKey(d *Deps) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		user, key, ok := ownedKey(ctx, d)
		if !ok {
			return
		}
		if err := d.Store.DeleteKey(ctx, key.ID); err != nil {
			if !errors.Is(err, apperr.ErrNotFound) {
				d.Log.Error("delete key failed", zap.Uint("key_id", key.ID), zap.Error(err))
			}
			respond.Error(ctx, err)
			return
		}
		d.Audit.Activity(user.ID, audit.ActionDeleteKey, map[string]any{
			"key_id":  key.ID,
			"user_id": key.UserID,
		}, clientIP(ctx, d.Cfg.TrustProxyHeaders))
		respond.OK(ctx, map[string]any{"key_id": key.ID})
	}
}
