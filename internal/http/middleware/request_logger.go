package middleware

import (
	"time"

	"github.com/google/uuid"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	httpctx "trendkeys/internal/http/ctx"
)

// RequestLogger tags each request with an id, echoed in X-Request-ID, and
// logs method, path, status and duration once the handler returns.
func RequestLogger(log *zap.Logger) func(fasthttp.RequestHandler) fasthttp.RequestHandler {
	return func(next fasthttp.RequestHandler) fasthttp.RequestHandler {
		return func(ctx *fasthttp.RequestCtx) {
			id := string(ctx.Request.Header.Peek("X-Request-ID"))
			if id == "" {
				id = uuid.NewString()
			}
			httpctx.SetRequestID(ctx, id)
			ctx.Response.Header.Set("X-Request-ID", id)

			start := time.Now()
			next(ctx)

			path := string(ctx.Path())
			if path == "/healthz" {
				return
			}
			log.Info("request",
				zap.String("request_id", id),
				zap.ByteString("method", ctx.Method()),
				zap.String("path", path),
				zap.Int("status", ctx.Response.StatusCode()),
				zap.Duration("duration", time.Since(start)),
				zap.String("ip", ctx.RemoteIP().String()),
			)
		}
	}
}

// Chain applies middlewares so that the first listed runs outermost.
func Chain(h fasthttp.RequestHandler, mws ...func(fasthttp.RequestHandler) fasthttp.RequestHandler) fasthttp.RequestHandler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}
