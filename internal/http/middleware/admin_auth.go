package middleware

import (
	"context"
	"errors"
	"slices"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"trendkeys/internal/apperr"
	"trendkeys/internal/auth"
	dbpkg "trendkeys/internal/db"
	httpctx "trendkeys/internal/http/ctx"
	"trendkeys/internal/http/respond"
)

type UserLoader interface {
	GetUser(ctx context.Context, id uint) (*dbpkg.User, error)
}

// AdminAuth verifies the session token and loads the signed-in user. The
// user is re-read on every request so deactivation and deletion take
// effect before the token expires.
func AdminAuth(sessions *auth.Sessions, users UserLoader, log *zap.Logger) func(fasthttp.RequestHandler) fasthttp.RequestHandler {
	return func(next fasthttp.RequestHandler) fasthttp.RequestHandler {
		return func(ctx *fasthttp.RequestCtx) {
			token := sessionToken(ctx)
			if token == "" {
				respond.Error(ctx, apperr.Unauthorized("authentication required"))
				return
			}
			claims, err := sessions.Parse(token)
			if err != nil {
				respond.Error(ctx, apperr.Unauthorized("invalid or expired session"))
				return
			}
			id, err := claims.UserID()
			if err != nil {
				respond.Error(ctx, apperr.Unauthorized("invalid or expired session"))
				return
			}

			user, err := users.GetUser(ctx, id)
			if err != nil {
				if errors.Is(err, apperr.ErrNotFound) {
					respond.Error(ctx, apperr.Unauthorized("invalid or expired session"))
					return
				}
				log.Error("load session user", zap.Uint("user_id", id), zap.Error(err))
				respond.Error(ctx, err)
				return
			}
			if !user.Active {
				respond.Error(ctx, apperr.Unauthorized("account is disabled"))
				return
			}

			httpctx.SetUser(ctx, user)
			next(ctx)
		}
	}
}

// RequireRole rejects signed-in users whose role is not listed. It must run
// after AdminAuth.
func RequireRole(roles ...string) func(fasthttp.RequestHandler) fasthttp.RequestHandler {
	return func(next fasthttp.RequestHandler) fasthttp.RequestHandler {
		return func(ctx *fasthttp.RequestCtx) {
			user, ok := httpctx.UserFromCtx(ctx)
			if !ok {
				respond.Error(ctx, apperr.Unauthorized("authentication required"))
				return
			}
			if !slices.Contains(roles, user.RoleName()) {
				respond.Error(ctx, apperr.Forbidden("insufficient role"))
				return
			}
			next(ctx)
		}
	}
}
