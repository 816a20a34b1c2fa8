// Package respond writes the admin API's JSON envelopes.
package respond

import (
	"encoding/json"

	"github.com/valyala/fasthttp"

	"trendkeys/internal/apperr"
)

type errorBody struct {
	Code    apperr.Code `json:"code"`
	Message string      `json:"message"`
}

// JSON writes v with the given status.
func JSON(ctx *fasthttp.RequestCtx, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		ctx.SetStatusCode(fasthttp.StatusInternalServerError)
		ctx.SetBodyString(`{"success":false,"error":{"code":"INTERNAL_ERROR","message":"encode failed"}}`)
		return
	}
	ctx.SetStatusCode(status)
	ctx.SetContentType("application/json")
	ctx.SetBody(body)
}

// OK wraps data in {"success":true,"data":...}.
func OK(ctx *fasthttp.RequestCtx, data any) {
	JSON(ctx, fasthttp.StatusOK, map[string]any{"success": true, "data": data})
}

// Created is OK with 201.
func Created(ctx *fasthttp.RequestCtx, data any) {
	JSON(ctx, fasthttp.StatusCreated, map[string]any{"success": true, "data": data})
}

// Error writes err as {"success":false,"error":{...}}. Errors that are not
// *apperr.Error become a 500 without leaking their text.
func Error(ctx *fasthttp.RequestCtx, err error) {
	ae := apperr.From(err)
	msg := ae.Message
	if ae.Code == apperr.CodeInternal {
		msg = "internal error"
	}
	JSON(ctx, ae.HTTPStatus(), map[string]any{
		"success": false,
		"error":   errorBody{Code: ae.Code, Message: msg},
	})
}
