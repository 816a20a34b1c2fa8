package middleware

import (
	"bytes"
	"strings"

	"github.com/valyala/fasthttp"
)

// SessionCookie carries the admin session token for browser clients.
const SessionCookie = "session"

// sessionToken reads the token from the Authorization header, falling back
// to the session cookie.
func sessionToken(ctx *fasthttp.RequestCtx) string {
	const prefix = "Bearer "
	if auth := ctx.Request.Header.Peek("Authorization"); bytes.HasPrefix(auth, []byte(prefix)) {
		if token := strings.TrimSpace(string(auth[len(prefix):])); token != "" {
			return token
		}
	}
	return string(ctx.Request.Header.Cookie(SessionCookie))
}
