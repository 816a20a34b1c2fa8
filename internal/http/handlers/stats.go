package handlers

import (
	"strconv"
	"time"

	"github.com/valyala/fasthttp"

	"trendkeys/internal/http/respond"
	"trendkeys/internal/notify"
)

// Stats returns headline counts and the hourly usage buckets of the last
// 24 hours, optionally for one ?key_id=.
func Stats(d *Deps) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		now := time.Now()
		sum, err := d.Store.Summary(ctx, now)
		if err != nil {
			respond.Error(ctx, err)
			return
		}
		buckets, err := d.Store.UsageSince(ctx, queryUint(ctx, "key_id"), now.UTC().Truncate(time.Hour).Add(-24*time.Hour))
		if err != nil {
			respond.Error(ctx, err)
			return
		}
		respond.OK(ctx, map[string]any{"summary": sum, "usage": buckets})
	}
}

// HealthReport sends the health template with current counts to the admin chat.
func HealthReport(d *Deps) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		sum, err := d.Store.Summary(ctx, time.Now())
		if err != nil {
			respond.Error(ctx, err)
			return
		}
		res := d.Notifier.NotifyAdmin(ctx, notify.Health, notify.Params{
			"status":      "ok",
			"active_keys": strconv.FormatInt(sum.ActiveKeys, 10),
			"calls_24h":   strconv.FormatInt(sum.CallsLast24h, 10),
			"blocked_24h": strconv.FormatInt(sum.BlockedLast24h, 10),
		})
		respond.OK(ctx, map[string]any{"summary": sum, "result": res})
	}
}
