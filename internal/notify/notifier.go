// Package notify renders lifecycle messages and delivers them through a
// Telegram bot, logging every attempt.
package notify

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	dbpkg "trendkeys/internal/db"
	"trendkeys/internal/metrics"
	"trendkeys/internal/settings"
)

// Sender delivers one rendered message.
type Sender interface {
	SendMessage(token, chatID, text string) DeliveryResult
}

// SettingsReader is what the notifier needs from the settings provider.
type SettingsReader interface {
	String(ctx context.Context, key string) string
}

// LogStore records delivery attempts.
type LogStore interface {
	CreateTelegramLog(ctx context.Context, l *dbpkg.TelegramLog) error
}

// Notifier sends templates to chats.
type Notifier struct {
	sender   Sender
	settings SettingsReader
	store    LogStore
	log      *zap.Logger

	delay time.Duration
	sleep func(ctx context.Context, d time.Duration) error

	wg sync.WaitGroup
}

// Option adjusts a Notifier.
type Option func(*Notifier)

// WithSleep replaces the pause used between bulk sends.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(n *Notifier) { n.sleep = fn }
}

// New builds a notifier. delay is the pause between messages of SendAll.
func New(sender Sender, s SettingsReader, store LogStore, delay time.Duration, log *zap.Logger, opts ...Option) *Notifier {
	metrics.Init()
	n := &Notifier{
		sender:   sender,
		settings: s,
		store:    store,
		log:      log,
		delay:    delay,
		sleep:    sleepCtx,
	}
	for _, o := range opts {
		o(n)
	}
	return n
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Send renders template with params and delivers it to chatID. Every
// delivery attempt is written to the telegram log, failed or not. params is
// not modified.
func (n *Notifier) Send(ctx context.Context, template, chatID string, in Params) DeliveryResult {
	params := make(Params, len(in)+2)
	for k, v := range in {
		params[k] = v
	}
	if _, ok := params["site_name"]; !ok {
		params["site_name"] = n.settings.String(ctx, settings.SiteName)
	}
	if _, ok := params["time"]; !ok {
		params["time"] = time.Now().UTC().Format("2006-01-02 15:04:05 UTC")
	}

	text, ok := Render(template, params)
	if !ok {
		return DeliveryResult{Description: "unknown template " + template}
	}
	if chatID == "" {
		return DeliveryResult{Description: "chat id required"}
	}

	res := n.sender.SendMessage(n.settings.String(ctx, settings.TelegramBotToken), chatID, text)
	n.record(ctx, template, chatID, text, res)
	return res
}

func (n *Notifier) record(ctx context.Context, template, chatID, text string, res DeliveryResult) {
	entry := &dbpkg.TelegramLog{
		MessageType: template,
		ChatID:      chatID,
		Message:     Truncate(text, dbpkg.MaxLoggedMessage),
		Status:      dbpkg.DeliverySent,
		CreatedAt:   time.Now(),
	}
	if !res.OK {
		entry.Status = dbpkg.DeliveryFailed
		entry.Error = res.Description
		n.log.Warn("telegram delivery failed",
			zap.String("template", template),
			zap.String("chat_id", chatID),
			zap.String("description", res.Description),
		)
	}
	metrics.TelegramMessages.WithLabelValues(template, entry.Status).Inc()

	if err := n.store.CreateTelegramLog(context.WithoutCancel(ctx), entry); err != nil {
		n.log.Error("telegram log write failed", zap.String("template", template), zap.Error(err))
	}
}

// TemplateResult pairs a template with its delivery outcome.
type TemplateResult struct {
	Template string `json:"template"`
	DeliveryResult
}

// SendAll sends every template to chatID in order, pausing between sends.
// A failed delivery does not stop the run; a cancelled ctx does.
func (n *Notifier) SendAll(ctx context.Context, chatID string, params Params) []TemplateResult {
	results := make([]TemplateResult, 0, len(Templates))
	for i, name := range Templates {
		if i > 0 && n.delay > 0 {
			if err := n.sleep(ctx, n.delay); err != nil {
				break
			}
		}
		results = append(results, TemplateResult{Template: name, DeliveryResult: n.Send(ctx, name, chatID, params)})
	}
	return results
}

// NotifyAdmin sends template to the configured admin chat, if any.
func (n *Notifier) NotifyAdmin(ctx context.Context, template string, params Params) DeliveryResult {
	chatID := n.settings.String(ctx, settings.AdminChatID)
	if chatID == "" {
		return DeliveryResult{Description: "admin chat id not configured"}
	}
	return n.Send(ctx, template, chatID, params)
}

// SendAsync sends in the background, for callers on a response path.
func (n *Notifier) SendAsync(template, chatID string, params Params) {
	if chatID == "" {
		return
	}
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		n.Send(ctx, template, chatID, params)
	}()
}

// Flush waits for every SendAsync started so far.
func (n *Notifier) Flush() {
	n.wg.Wait()
}
