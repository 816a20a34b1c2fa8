package handlers

import (
	"errors"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"trendkeys/internal/apperr"
	"trendkeys/internal/audit"
	"trendkeys/internal/http/middleware"
	"trendkeys/internal/http/respond"
)

type loginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

func Login(d *Deps) fasthttp.RequestHandler {
	invalid := apperr.Unauthorized("invalid username or password")
	return func(ctx *fasthttp.RequestCtx) {
		var req loginRequest
		if !bind(ctx, &req) {
			return
		}

		user, err := d.Store.GetUserByUsername(ctx, req.Username)
		if err != nil {
			if errors.Is(err, apperr.ErrNotFound) {
				respond.Error(ctx, invalid)
				return
			}
			d.Log.Error("login lookup failed", zap.Error(err))
			respond.Error(ctx, err)
			return
		}
		if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
			respond.Error(ctx, invalid)
			return
		}
		if !user.Active {
			respond.Error(ctx, apperr.Unauthorized("account is disabled"))
			return
		}

		token, exp, err := d.Sessions.Issue(user.ID, user.RoleName())
		if err != nil {
			respond.Error(ctx, apperr.Internal("failed to issue session", err))
			return
		}
		setSessionCookie(ctx, token, exp)
		d.Audit.Activity(user.ID, audit.ActionLogin, nil, clientIP(ctx, d.Cfg.TrustProxyHeaders))

		respond.OK(ctx, map[string]any{
			"token":      token,
			"expires_at": exp,
			"user":       user,
		})
	}
}

func Logout() fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		var c fasthttp.Cookie
		c.SetKey(middleware.SessionCookie)
		c.SetValue("")
		c.SetPath("/")
		c.SetMaxAge(-1)
		ctx.Response.Header.SetCookie(&c)
		respond.OK(ctx, nil)
	}
}

// Me returns the signed-in user.
func Me() fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		user, ok := MustUser(ctx)
		if !ok {
			return
		}
		respond.OK(ctx, user)
	}
}

func setSessionCookie(ctx *fasthttp.RequestCtx, token string, exp time.Time) {
	var c fasthttp.Cookie
	c.SetKey(middleware.SessionCookie)
	c.SetValue(token)
	c.SetPath("/")
	c.SetHTTPOnly(true)
	c.SetSameSite(fasthttp.CookieSameSiteLaxMode)
	c.SetExpire(exp)
	ctx.Response.Header.SetCookie(&c)
}
