package handlers

import (
	"strings"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"trendkeys/internal/apperr"
	"trendkeys/internal/audit"
	dbpkg "trendkeys/internal/db"
	"trendkeys/internal/http/respond"
	"trendkeys/internal/notify"
	"trendkeys/internal/settings"
	"trendkeys/internal/validate"
)

type createUserRequest struct {
	Username   string `json:"username" validate:"required,max=64"`
	Email      string `json:"email" validate:"required,email,max=255"`
	Password   string `json:"password" validate:"required,min=6,max=72"`
	TelegramID string `json:"telegram_id" validate:"max=32"`
	Role       string `json:"role" validate:"omitempty,oneof=admin user reseller"`
	Coins      int64  `json:"coins" validate:"gte=0"`
	KeyCost    int64  `json:"key_cost" validate:"gte=0"`
}

func (r *createUserRequest) normalize() {
	r.Username = strings.TrimSpace(r.Username)
	r.Email = strings.TrimSpace(r.Email)
	r.TelegramID = strings.TrimSpace(r.TelegramID)
	if r.Role == "" {
		r.Role = dbpkg.RoleUser
	}
	if r.Role != dbpkg.RoleReseller {
		r.KeyCost = 0
	}
}

func ListUsers(d *Deps) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		page := pageFrom(ctx)
		users, total, err := d.Store.ListUsers(ctx, page)
		if err != nil {
			respond.Error(ctx, err)
			return
		}
		list(ctx, users, total, page)
	}
}

// CreateUser provisions an account and its role. Admin only.
func CreateUser(d *Deps) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		admin, ok := MustUser(ctx)
		if !ok {
			return
		}
		var req createUserRequest
		if !decodeBody(ctx, &req) {
			return
		}
		req.normalize()
		if err := validate.Struct(&req); err != nil {
			respond.Error(ctx, err)
			return
		}

		hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
		if err != nil {
			respond.Error(ctx, apperr.Internal("failed to hash password", err))
			return
		}

		user := &dbpkg.User{
			Username:     req.Username,
			Email:        req.Email,
			PasswordHash: string(hash),
			TelegramID:   req.TelegramID,
			Active:       true,
			Coins:        req.Coins,
		}
		if err := d.Store.CreateUser(ctx, user, req.Role, req.KeyCost); err != nil {
			respond.Error(ctx, err)
			return
		}

		d.Audit.Activity(admin.ID, audit.ActionCreateUser, map[string]any{
			"user_id":  user.ID,
			"username": user.Username,
			"role":     req.Role,
			"key_cost": req.KeyCost,
		}, clientIP(ctx, d.Cfg.TrustProxyHeaders))

		d.Notifier.SendAsync(notify.Welcome, user.TelegramID, notify.Params{
			"username":      user.Username,
			"support_email": d.Settings.String(ctx, settings.SupportEmail),
		})

		respond.Created(ctx, user)
	}
}

// DeleteUser removes an account and everything it owns. Admin only; an
// admin cannot delete themselves.
func DeleteUser(d *Deps) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		admin, ok := MustUser(ctx)
		if !ok {
			return
		}
		id, ok := pathID(ctx)
		if !ok {
			return
		}
		if id == admin.ID {
			respond.Error(ctx, apperr.Forbidden("you cannot delete your own account"))
			return
		}

		target, err := d.Store.GetUser(ctx, id)
		if err != nil {
			respond.Error(ctx, err)
			return
		}

		res, err := d.Store.DeleteUserCascade(ctx, id)
		if err != nil {
			d.Log.Error("delete user failed", zap.Uint("user_id", id), zap.Error(err))
			respond.Error(ctx, err)
			return
		}

		d.Audit.Activity(admin.ID, audit.ActionDeleteUser, map[string]any{
			"user_id":  id,
			"username": target.Username,
			"removed":  res,
		}, clientIP(ctx, d.Cfg.TrustProxyHeaders))

		respond.OK(ctx, map[string]any{"user_id": id, "removed": res})
	}
}

type activeRequest struct {
	Active *bool `json:"active" validate:"required"`
}

func SetUserActive(d *Deps) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		admin, ok := MustUser(ctx)
		if !ok {
			return
		}
		id, ok := pathID(ctx)
		if !ok {
			return
		}
		var req activeRequest
		if !bind(ctx, &req) {
			return
		}
		if id == admin.ID && !*req.Active {
			respond.Error(ctx, apperr.BadRequest("you cannot deactivate your own account"))
			return
		}

		if err := d.Store.SetUserActive(ctx, id, *req.Active); err != nil {
			respond.Error(ctx, err)
			return
		}
		d.Audit.Activity(admin.ID, audit.ActionSetUserActive, map[string]any{
			"user_id": id,
			"active":  *req.Active,
		}, clientIP(ctx, d.Cfg.TrustProxyHeaders))

		respond.OK(ctx, map[string]any{"user_id": id, "active": *req.Active})
	}
}
