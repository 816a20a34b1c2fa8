package handlers

import (
	"strings"

	"github.com/fasthttp/router"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/valyala/fasthttp"

	dbpkg "trendkeys/internal/db"
	appmw "trendkeys/internal/http/middleware"
	"trendkeys/internal/http/respond"
	"trendkeys/internal/settings"
)

// Routes builds the full handler: admin API, public trend endpoint, health
// and metrics, wrapped in the request logger.
func Routes(d *Deps) fasthttp.RequestHandler {
	r := router.New()

	signedIn := appmw.AdminAuth(d.Sessions, d.Store, d.Log)
	admin := func(h fasthttp.RequestHandler) fasthttp.RequestHandler {
		return appmw.Chain(h, signedIn, appmw.RequireRole(dbpkg.RoleAdmin))
	}
	staff := func(h fasthttp.RequestHandler) fasthttp.RequestHandler {
		return appmw.Chain(h, signedIn, appmw.RequireRole(dbpkg.RoleAdmin, dbpkg.RoleReseller))
	}

	r.GET("/healthz", func(ctx *fasthttp.RequestCtx) {
		ctx.SetStatusCode(fasthttp.StatusOK)
		ctx.SetBodyString("ok")
	})
	r.GET("/metrics", admin(MetricsHandler(prometheus.DefaultGatherer)))

	r.POST("/api/auth/login", Login(d))
	r.POST("/api/auth/logout", Logout())
	r.GET("/api/auth/me", signedIn(Me()))

	r.GET("/api/admin/users", admin(ListUsers(d)))
	r.POST("/api/admin/users", admin(CreateUser(d)))
	r.DELETE("/api/admin/users/{id}", admin(DeleteUser(d)))
	r.POST("/api/admin/users/{id}/active", admin(SetUserActive(d)))

	r.GET("/api/admin/feeds", staff(Feeds()))
	r.GET("/api/admin/keys", staff(ListKeys(d)))
	r.POST("/api/admin/keys", staff(CreateKey(d)))
	r.POST("/api/admin/keys/{id}/active", staff(SetKeyActive(d)))
	r.PUT("/api/admin/keys/{id}/whitelists", staff(UpdateKeyWhitelists(d)))
	r.POST("/api/admin/keys/{id}/extend", staff(ExtendKey(d)))
	r.DELETE("/api/admin/keys/{id}", staff(DeleteKey(d)))

	r.GET("/api/admin/logs/api", staff(APILogs(d)))
	r.GET("/api/admin/logs/telegram", admin(TelegramLogs(d)))
	r.GET("/api/admin/logs/activity", admin(ActivityLogs(d)))

	r.GET("/api/admin/settings", admin(GetSettings(d)))
	r.PUT("/api/admin/settings", admin(UpdateSettings(d)))

	r.POST("/api/admin/telegram/send", admin(TelegramSend(d)))
	r.POST("/api/admin/telegram/send-all", admin(TelegramSendAll(d)))
	r.POST("/api/admin/telegram/health", admin(HealthReport(d)))

	r.GET("/api/admin/stats", admin(Stats(d)))

	trendHandler := Trend(d)
	r.GET(settings.Defaults[settings.UserAPIEndpoint], trendHandler)
	r.NotFound = func(ctx *fasthttp.RequestCtx) {
		// The documented endpoint is editable at runtime.
		if ctx.IsGet() && string(ctx.Path()) == endpointPath(d.Settings.String(ctx, settings.UserAPIEndpoint)) {
			trendHandler(ctx)
			return
		}
		respond.JSON(ctx, fasthttp.StatusNotFound, map[string]any{
			"success": false,
			"error":   map[string]string{"code": "NOT_FOUND", "message": "route not found"},
		})
	}

	return appmw.RequestLogger(d.Log)(r.Handler)
}

func endpointPath(endpoint string) string {
	p, _, _ := strings.Cut(strings.TrimSpace(endpoint), "?")
	if p != "" && !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return p
}
