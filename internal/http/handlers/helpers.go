package handlers

import (
	"encoding/json"
	"net"
	"strconv"
	"strings"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"trendkeys/internal/apperr"
	"trendkeys/internal/audit"
	"trendkeys/internal/auth"
	"trendkeys/internal/config"
	dbpkg "trendkeys/internal/db"
	"trendkeys/internal/gate"
	httpctx "trendkeys/internal/http/ctx"
	"trendkeys/internal/http/respond"
	"trendkeys/internal/notify"
	"trendkeys/internal/settings"
	"trendkeys/internal/trend"
	"trendkeys/internal/validate"
)

// Deps bundles what the handlers need. main wires one instance.
type Deps struct {
	Cfg      *config.Config
	Store    *dbpkg.Store
	Settings *settings.Provider
	Sessions *auth.Sessions
	Audit    *audit.Recorder
	Notifier *notify.Notifier
	Gate     *gate.Gate
	Proxy    *trend.Proxy
	Log      *zap.Logger
}

// MustUser returns the current user from context, or sends 401 and returns (nil, false).
func MustUser(ctx *fasthttp.RequestCtx) (*dbpkg.User, bool) {
	user, ok := httpctx.UserFromCtx(ctx)
	if !ok {
		respond.Error(ctx, apperr.Unauthorized("authentication required"))
		return nil, false
	}
	return user, true
}

// pathID parses the {id} route parameter.
func pathID(ctx *fasthttp.RequestCtx) (uint, bool) {
	idStr, _ := ctx.UserValue("id").(string)
	id, err := strconv.ParseUint(idStr, 10, 32)
	if err != nil || id == 0 {
		respond.Error(ctx, apperr.BadRequest("invalid id"))
		return 0, false
	}
	return uint(id), true
}

// decodeBody unmarshals a JSON request body into v.
func decodeBody(ctx *fasthttp.RequestCtx, v any) bool {
	if err := json.Unmarshal(ctx.PostBody(), v); err != nil {
		respond.Error(ctx, apperr.BadRequest("invalid JSON body"))
		return false
	}
	return true
}

// bind decodes a JSON body into v and checks its validate tags.
func bind(ctx *fasthttp.RequestCtx, v any) bool {
	if !decodeBody(ctx, v) {
		return false
	}
	if err := validate.Struct(v); err != nil {
		respond.Error(ctx, err)
		return false
	}
	return true
}

func queryUint(ctx *fasthttp.RequestCtx, name string) uint {
	v, err := strconv.ParseUint(string(ctx.QueryArgs().Peek(name)), 10, 32)
	if err != nil {
		return 0
	}
	return uint(v)
}

func pageFrom(ctx *fasthttp.RequestCtx) dbpkg.Page {
	args := ctx.QueryArgs()
	limit, _ := args.GetUint("limit")
	offset, _ := args.GetUint("offset")
	return dbpkg.Page{Limit: limit, Offset: offset}
}

// list writes a paginated listing.
func list(ctx *fasthttp.RequestCtx, items any, total int64, page dbpkg.Page) {
	respond.OK(ctx, map[string]any{
		"items":  items,
		"total":  total,
		"limit":  page.Limit,
		"offset": page.Offset,
	})
}

// clientIP is the peer address, or the first forwarded hop when the
// deployment sits behind a trusted proxy.
func clientIP(ctx *fasthttp.RequestCtx, trustProxy bool) string {
	if trustProxy {
		if xff := string(ctx.Request.Header.Peek("X-Forwarded-For")); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			if ip := net.ParseIP(strings.TrimSpace(first)); ip != nil {
				return ip.String()
			}
		}
		if ip := net.ParseIP(strings.TrimSpace(string(ctx.Request.Header.Peek("X-Real-IP")))); ip != nil {
			return ip.String()
		}
	}
	return ctx.RemoteIP().String()
}

func isAdmin(u *dbpkg.User) bool {
	return u.RoleName() == dbpkg.RoleAdmin
}
