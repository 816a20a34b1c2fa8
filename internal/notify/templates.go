package notify

import (
	"fmt"
	"html"
	"strings"
)

// Template names.
const (
	Welcome  = "welcome"
	NewKey   = "new_key"
	Expiring = "expiring"
	Expired  = "expired"
	Reminder = "reminder"
	Health   = "health"
	Alert    = "alert"
	Test     = "test"
)

// Params feeds a template. Missing values render as "-".
type Params map[string]string

func (p Params) get(key string) string {
	if v := strings.TrimSpace(p[key]); v != "" {
		return html.EscapeString(v)
	}
	return "-"
}

func (p Params) siteName() string {
	if v := strings.TrimSpace(p["site_name"]); v != "" {
		return html.EscapeString(v)
	}
	return "Trend Keys"
}

type renderFunc func(Params) string

var templates = map[string]renderFunc{
	Welcome: func(p Params) string {
		return fmt.Sprintf("👋 <b>Welcome to %s, %s!</b>\n\n"+
			"Your account is ready. You will receive key updates and expiry reminders in this chat.\n\n"+
			"Support: %s",
			p.siteName(), p.get("username"), p.get("support_email"))
	},
	NewKey: func(p Params) string {
		return fmt.Sprintf("🔑 <b>New API key issued</b>\n\n"+
			"• <b>Key:</b> <code>%s</code>\n"+
			"• <b>Game:</b> %s %s\n"+
			"• <b>Expires:</b> %s\n"+
			"• <b>Endpoint:</b> %s\n\n"+
			"<i>%s</i>",
			p.get("key"), p.get("game_type"), p.get("duration"), p.get("expires_at"), p.get("endpoint"), p.siteName())
	},
	Expiring: func(p Params) string {
		return fmt.Sprintf("⏳ <b>API key expiring soon</b>\n\n"+
			"Key <code>%s</code> (%s %s) expires on %s, in %s.\n"+
			"Renew it to avoid interruption.\n\n"+
			"<i>%s</i>",
			p.get("key"), p.get("game_type"), p.get("duration"), p.get("expires_at"), p.get("time_left"), p.siteName())
	},
	Expired: func(p Params) string {
		return fmt.Sprintf("⛔ <b>API key expired</b>\n\n"+
			"Key <code>%s</code> (%s %s) expired on %s and no longer accepts calls.\n\n"+
			"<i>%s</i>",
			p.get("key"), p.get("game_type"), p.get("duration"), p.get("expires_at"), p.siteName())
	},
	Reminder: func(p Params) string {
		return fmt.Sprintf("🔔 <b>Reminder</b>\n\n%s\n\n<i>%s</i>", p.get("message"), p.siteName())
	},
	Health: func(p Params) string {
		return fmt.Sprintf("💚 <b>Health report</b>\n\n"+
			"• <b>Status:</b> %s\n"+
			"• <b>Active keys:</b> %s\n"+
			"• <b>Calls (24h):</b> %s\n"+
			"• <b>Blocked (24h):</b> %s\n"+
			"• <b>Time:</b> %s",
			p.get("status"), p.get("active_keys"), p.get("calls_24h"), p.get("blocked_24h"), p.get("time"))
	},
	Alert: func(p Params) string {
		return fmt.Sprintf("🚨 <b>Alert</b>\n\n%s\n\n<i>%s</i>", p.get("message"), p.siteName())
	},
	Test: func(p Params) string {
		return fmt.Sprintf("✅ <b>Test message</b>\n\nThe %s bot is configured correctly.\nTime: %s",
			p.siteName(), p.get("time"))
	},
}

// Templates lists every template in send-all order.
var Templates = []string{Welcome, NewKey, Expiring, Expired, Reminder, Health, Alert, Test}

// Known reports whether name is a template.
func Known(name string) bool {
	_, ok := templates[name]
	return ok
}

// Render produces the message text for a template.
func Render(name string, p Params) (string, bool) {
	fn, ok := templates[name]
	if !ok {
		return "", false
	}
	return fn(p), true
}

// Truncate cuts s to at most n runes.
func Truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
