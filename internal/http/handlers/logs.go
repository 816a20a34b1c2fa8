package handlers

import (
	"github.com/valyala/fasthttp"

	dbpkg "trendkeys/internal/db"
	"trendkeys/internal/http/respond"
)

func logFilter(ctx *fasthttp.RequestCtx) dbpkg.LogFilter {
	args := ctx.QueryArgs()
	return dbpkg.LogFilter{
		KeyID:  queryUint(ctx, "key_id"),
		UserID: queryUint(ctx, "user_id"),
		Status: string(args.Peek("status")),
		Action: string(args.Peek("action")),
		Page:   pageFrom(ctx),
	}
}

// APILogs lists trend API calls. Resellers only see calls made with their keys.
func APILogs(d *Deps) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		user, ok := MustUser(ctx)
		if !ok {
			return
		}
		f := logFilter(ctx)
		if !isAdmin(user) {
			f.UserID = user.ID
		}
		logs, total, err := d.Store.ListAPILogs(ctx, f)
		if err != nil {
			respond.Error(ctx, err)
			return
		}
		list(ctx, logs, total, f.Page)
	}
}

func TelegramLogs(d *Deps) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		f := logFilter(ctx)
		logs, total, err := d.Store.ListTelegramLogs(ctx, f)
		if err != nil {
			respond.Error(ctx, err)
			return
		}
		list(ctx, logs, total, f.Page)
	}
}

func ActivityLogs(d *Deps) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		f := logFilter(ctx)
		logs, total, err := d.Store.ListActivityLogs(ctx, f)
		if err != nil {
			respond.Error(ctx, err)
			return
		}
		list(ctx, logs, total, f.Page)
	}
}
