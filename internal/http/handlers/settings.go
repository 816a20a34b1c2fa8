package handlers

import (
	"sort"

	"github.com/valyala/fasthttp"

	"trendkeys/internal/apperr"
	"trendkeys/internal/audit"
	"trendkeys/internal/http/respond"
	"trendkeys/internal/settings"
)

// GetSettings returns every setting with secrets masked.
func GetSettings(d *Deps) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		all, err := d.Settings.Public(ctx)
		if err != nil {
			respond.Error(ctx, err)
			return
		}
		respond.OK(ctx, all)
	}
}

// UpdateSettings applies a partial {key: value} update. Unknown keys or
// malformed booleans reject the whole update.
func UpdateSettings(d *Deps) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		user, ok := MustUser(ctx)
		if !ok {
			return
		}
		var values map[string]string
		if !decodeBody(ctx, &values) {
			return
		}
		if len(values) == 0 {
			respond.Error(ctx, apperr.BadRequest("no settings provided"))
			return
		}
		if err := d.Settings.SetMany(ctx, values); err != nil {
			respond.Error(ctx, err)
			return
		}

		changed := make([]string, 0, len(values))
		for k := range values {
			changed = append(changed, k)
		}
		sort.Strings(changed)
		details := map[string]any{"keys": changed}
		if v, ok := values[settings.MaintenanceMode]; ok {
			details[settings.MaintenanceMode] = v
		}
		d.Audit.Activity(user.ID, audit.ActionUpdateSettings, details, clientIP(ctx, d.Cfg.TrustProxyHeaders))

		all, err := d.Settings.Public(ctx)
		if err != nil {
			respond.Error(ctx, err)
			return
		}
		respond.OK(ctx, all)
	}
}
