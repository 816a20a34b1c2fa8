package handlers_test

import (
	"context"
	"encoding/json"
	"net"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttputil"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"trendkeys/internal/audit"
	"trendkeys/internal/auth"
	"trendkeys/internal/config"
	dbpkg "trendkeys/internal/db"
	"trendkeys/internal/db/dbtest"
	"trendkeys/internal/gate"
	"trendkeys/internal/http/handlers"
	"trendkeys/internal/notify"
	"trendkeys/internal/settings"
	"trendkeys/internal/trend"
)

// harness serves the full route table against an in-memory store, with a
// fake upstream feed and a fake Telegram API behind one in-memory listener.
type harness struct {
	t       *testing.T
	store   *dbpkg.Store
	deps    *handlers.Deps
	handler fasthttp.RequestHandler

	mu       sync.Mutex
	upstream fasthttp.RequestHandler
	messages []string
	chats    []string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	ctx := context.Background()
	log := zap.NewNop()
	store := dbtest.Open(t)

	h := &harness{t: t, store: store}
	h.upstream = func(ctx *fasthttp.RequestCtx) {
		ctx.SetContentType("application/json")
		ctx.SetBodyString(`{"typeId":` + string(ctx.QueryArgs().Peek("typeId")) + `,"trend":"up"}`)
	}

	ln := fasthttputil.NewInmemoryListener()
	srv := &fasthttp.Server{Handler: h.external}
	go func() { _ = srv.Serve(ln) }()
	t.Cleanup(func() { _ = ln.Close() })
	client := &fasthttp.Client{Dial: func(string) (net.Conn, error) { return ln.Dial() }}

	provider := settings.NewProvider(store, settings.NewLocalBus(), 0, log)
	require.NoError(t, provider.EnsureDefaults(ctx))
	require.NoError(t, provider.SetMany(ctx, map[string]string{
		settings.InternalAPIDomain:  "http://feed.internal",
		settings.UserAPIDomain:      "https://api.example.com",
		settings.TelegramBotToken:   "123:abc",
		settings.AdminChatID:        "1000",
		settings.MaintenanceMessage: "back soon",
	}))

	recorder := audit.NewRecorder(store, log)
	notifier := notify.New(notify.NewTelegramClient(client, "http://telegram.test", time.Second), provider, store, 0, log)
	t.Cleanup(func() {
		notifier.Flush()
		recorder.Flush()
	})

	h.deps = &handlers.Deps{
		Cfg:      &config.Config{JWTSecret: "test-secret", SessionTTL: time.Hour},
		Store:    store,
		Settings: provider,
		Sessions: auth.NewSessions("test-secret", time.Hour),
		Audit:    recorder,
		Notifier: notifier,
		Gate:     gate.New(store, log),
		Proxy:    trend.NewProxy(client, provider, time.Second, log),
		Log:      log,
	}
	h.handler = handlers.Routes(h.deps)
	return h
}

func (h *harness) external(ctx *fasthttp.RequestCtx) {
	if strings.HasPrefix(string(ctx.Path()), "/bot") {
		var req struct {
			ChatID any    `json:"chat_id"`
			Text   string `json:"text"`
		}
		_ = json.Unmarshal(ctx.PostBody(), &req)
		h.mu.Lock()
		h.messages = append(h.messages, req.Text)
		chat, _ := json.Marshal(req.ChatID)
		h.chats = append(h.chats, strings.Trim(string(chat), `"`))
		h.mu.Unlock()
		ctx.SetContentType("application/json")
		ctx.SetBodyString(`{"ok":true,"result":{}}`)
		return
	}
	h.mu.Lock()
	up := h.upstream
	h.mu.Unlock()
	up(ctx)
}

func (h *harness) setUpstream(fn fasthttp.RequestHandler) {
	h.mu.Lock()
	h.upstream = fn
	h.mu.Unlock()
}

func (h *harness) sentMessages() []string {
	h.deps.Notifier.Flush()
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.messages...)
}

// flush waits for background log writes.
func (h *harness) flush() {
	h.deps.Audit.Flush()
	h.deps.Notifier.Flush()
}

func (h *harness) user(name, role string, mutate ...func(*dbpkg.User)) *dbpkg.User {
	h.t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("password-"+name), bcrypt.MinCost)
	require.NoError(h.t, err)
	u := &dbpkg.User{Username: name, Email: name + "@example.com", PasswordHash: string(hash), Active: true}
	for _, m := range mutate {
		m(u)
	}
	var cost int64
	if role == dbpkg.RoleReseller {
		cost = 4
	}
	require.NoError(h.t, h.store.CreateUser(context.Background(), u, role, cost))
	return u
}

func (h *harness) token(u *dbpkg.User) string {
	h.t.Helper()
	tok, _, err := h.deps.Sessions.Issue(u.ID, u.RoleName())
	require.NoError(h.t, err)
	return tok
}

func (h *harness) key(owner *dbpkg.User, secret string, mutate ...func(*dbpkg.APIKey)) *dbpkg.APIKey {
	h.t.Helper()
	now := time.Now()
	k := &dbpkg.APIKey{
		Key:       secret,
		UserID:    owner.ID,
		GameType:  trend.WinGo,
		Duration:  "1m",
		CreatedAt: now.Add(-time.Hour),
		ExpiresAt: now.Add(24 * time.Hour),
		IsActive:  true,
	}
	for _, m := range mutate {
		m(k)
	}
	require.NoError(h.t, h.store.CreateKey(context.Background(), k))
	return k
}

type request struct {
	method  string
	uri     string
	token   string
	body    any
	headers map[string]string
	ip      string
}

type response struct {
	status int
	header *fasthttp.ResponseHeader
	body   []byte
}

func (r response) json(t *testing.T) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(r.body, &out), string(r.body))
	return out
}

// data returns the "data" member of a success envelope.
func (r response) data(t *testing.T) map[string]any {
	t.Helper()
	d, ok := r.json(t)["data"].(map[string]any)
	require.True(t, ok, string(r.body))
	return d
}

func (r response) errorCode(t *testing.T) string {
	t.Helper()
	e, ok := r.json(t)["error"].(map[string]any)
	require.True(t, ok, string(r.body))
	code, _ := e["code"].(string)
	return code
}

func (h *harness) do(r request) response {
	h.t.Helper()
	var req fasthttp.Request
	req.Header.SetMethod(r.method)
	req.SetRequestURI(r.uri)
	if r.body != nil {
		b, err := json.Marshal(r.body)
		require.NoError(h.t, err)
		req.SetBody(b)
		req.Header.SetContentType("application/json")
	}
	if r.token != "" {
		req.Header.Set("Authorization", "Bearer "+r.token)
	}
	for k, v := range r.headers {
		req.Header.Set(k, v)
	}
	ip := r.ip
	if ip == "" {
		ip = "203.0.113.7"
	}

	var ctx fasthttp.RequestCtx
	ctx.Init(&req, &net.TCPAddr{IP: net.ParseIP(ip), Port: 40000}, nil)
	h.handler(&ctx)

	header := &fasthttp.ResponseHeader{}
	ctx.Response.Header.CopyTo(header)
	return response{
		status: ctx.Response.StatusCode(),
		header: header,
		body:   append([]byte(nil), ctx.Response.Body()...),
	}
}

func itoa(id uint) string {
	return strconv.FormatUint(uint64(id), 10)
}
