package handlers

import (
	"strconv"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	dbpkg "trendkeys/internal/db"
	"trendkeys/internal/gate"
	"trendkeys/internal/http/respond"
	"trendkeys/internal/metrics"
	"trendkeys/internal/settings"
	"trendkeys/internal/trend"
)

func trendError(ctx *fasthttp.RequestCtx, status int, code, message string) {
	respond.JSON(ctx, status, map[string]any{
		"success": false,
		"error":   map[string]string{"code": code, "message": message},
	})
}

// Trend is the public endpoint customers call with their key. Every call
// past the maintenance check leaves exactly one api log row.
func Trend(d *Deps) fasthttp.RequestHandler {
	metrics.Init()
	return func(ctx *fasthttp.RequestCtx) {
		if d.Settings.Bool(ctx, settings.MaintenanceMode) {
			msg := d.Settings.String(ctx, settings.MaintenanceMessage)
			if msg == "" {
				msg = "service is under maintenance"
			}
			trendError(ctx, fasthttp.StatusServiceUnavailable, "MAINTENANCE", msg)
			return
		}

		start := time.Now()
		args := ctx.QueryArgs()
		ip := clientIP(ctx, d.Cfg.TrustProxyHeaders)
		domain := gate.CallerDomain(string(ctx.Request.Header.Peek("Origin")), string(ctx.Request.Header.Peek("Referer")))

		entry := dbpkg.APILog{
			Endpoint: string(ctx.Path()),
			IP:       ip,
			Domain:   gate.NormalizeDomain(domain),
		}
		record := func(status, reason string) {
			entry.Status = status
			entry.Reason = reason
			entry.ResponseTimeMs = time.Since(start).Milliseconds()
			d.Audit.Call(entry)
		}

		dec := d.Gate.Evaluate(ctx, string(args.Peek("key")), ip, domain)
		if dec.Key != nil {
			entry.KeyID = &dec.Key.ID
		}
		metrics.GateDecisions.WithLabelValues(string(dec.Status), statusFor(dec.Status)).Inc()

		switch {
		case dec.Status == gate.Failed:
			d.Log.Error("key lookup failed", zap.Error(dec.Err))
			record(dbpkg.CallError, string(gate.Failed))
			trendError(ctx, fasthttp.StatusInternalServerError, "INTERNAL_ERROR", dec.Status.Message())
			return
		case dec.Status == gate.NotFound:
			record(dbpkg.CallBlocked, string(dec.Status))
			trendError(ctx, fasthttp.StatusUnauthorized, "UNAUTHORIZED", dec.Status.Message())
			return
		case dec.Status.Denied():
			record(dbpkg.CallBlocked, string(dec.Status))
			trendError(ctx, fasthttp.StatusForbidden, "FORBIDDEN", dec.Status.Message())
			return
		}

		feed, ok := trend.Lookup(dec.Key.GameType, dec.Key.Duration)
		if !ok {
			d.Log.Error("key bound to unknown feed", zap.Uint("key_id", dec.Key.ID),
				zap.String("game_type", dec.Key.GameType), zap.String("duration", dec.Key.Duration))
			record(dbpkg.CallError, "unknown_feed")
			trendError(ctx, fasthttp.StatusInternalServerError, "INTERNAL_ERROR", "internal error")
			return
		}
		if raw := args.Peek("typeId"); len(raw) > 0 {
			if id, err := strconv.Atoi(string(raw)); err != nil || id != feed.TypeID {
				record(dbpkg.CallBlocked, "type_mismatch")
				trendError(ctx, fasthttp.StatusBadRequest, "VALIDATION_ERROR", "typeId does not match this key")
				return
			}
		}

		callStart := time.Now()
		resp, err := d.Proxy.Route(ctx, feed)
		if err != nil {
			metrics.UpstreamDuration.WithLabelValues(feed.GameType, "error").Observe(time.Since(callStart).Seconds())
			record(dbpkg.CallError, "upstream_error")
			trendError(ctx, fasthttp.StatusBadGateway, "UPSTREAM_ERROR", "trend service unavailable")
			return
		}
		metrics.UpstreamDuration.WithLabelValues(feed.GameType, "success").Observe(time.Since(callStart).Seconds())

		record(dbpkg.CallSuccess, "")
		if resp.ContentType != "" {
			ctx.SetContentType(resp.ContentType)
		}
		ctx.SetStatusCode(resp.StatusCode)
		ctx.SetBody(resp.Body)
	}
}

// statusFor is the api log status a gate decision leads to before proxying.
func statusFor(s gate.Status) string {
	switch {
	case s == gate.Allowed:
		return "allowed"
	case s == gate.Failed:
		return dbpkg.CallError
	default:
		return dbpkg.CallBlocked
	}
}
