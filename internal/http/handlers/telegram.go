package handlers

import (
	"context"
	"strings"

	"github.com/valyala/fasthttp"

	"trendkeys/internal/apperr"
	"trendkeys/internal/http/respond"
	"trendkeys/internal/notify"
	"trendkeys/internal/settings"
)

type telegramRequest struct {
	Template string            `json:"template" validate:"max=32"`
	ChatID   string            `json:"chat_id" validate:"max=32"`
	Params   map[string]string `json:"params"`
}

// chat resolves the target chat, defaulting to the configured admin chat.
func (r *telegramRequest) chat(ctx context.Context, s *settings.Provider) string {
	if id := strings.TrimSpace(r.ChatID); id != "" {
		return id
	}
	return s.String(ctx, settings.AdminChatID)
}

// TelegramSend delivers one template and reports the provider's verdict.
// A failed delivery is still a 200: the outcome is in the body and the log.
func TelegramSend(d *Deps) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		var req telegramRequest
		if !bind(ctx, &req) {
			return
		}
		if req.Template == "" {
			req.Template = notify.Test
		}
		if !notify.Known(req.Template) {
			respond.Error(ctx, apperr.BadRequest("unknown template: "+req.Template))
			return
		}
		chatID := req.chat(ctx, d.Settings)
		if chatID == "" {
			respond.Error(ctx, apperr.BadRequest("chat_id required (no admin chat configured)"))
			return
		}
		res := d.Notifier.Send(ctx, req.Template, chatID, req.Params)
		respond.OK(ctx, map[string]any{"template": req.Template, "chat_id": chatID, "result": res})
	}
}

// TelegramSendAll sends every template in order with the configured pause.
func TelegramSendAll(d *Deps) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		var req telegramRequest
		if len(ctx.PostBody()) > 0 && !bind(ctx, &req) {
			return
		}
		chatID := req.chat(ctx, d.Settings)
		if chatID == "" {
			respond.Error(ctx, apperr.BadRequest("chat_id required (no admin chat configured)"))
			return
		}
		results := d.Notifier.SendAll(ctx, chatID, req.Params)
		sent := 0
		for _, r := range results {
			if r.OK {
				sent++
			}
		}
		respond.OK(ctx, map[string]any{
			"chat_id": chatID,
			"total":   len(results),
			"sent":    sent,
			"failed":  len(results) - sent,
			"results": results,
		})
	}
}
