// Package audit writes call and activity logs off the response path.
package audit

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"

	dbpkg "trendkeys/internal/db"
	"trendkeys/internal/metrics"
)

// Activity action names.
const (
	ActionLogin              = "LOGIN"
	ActionCreateUser         = "CREATE_USER"
	ActionDeleteUser         = "DELETE_USER"
	ActionSetUserActive      = "SET_USER_ACTIVE"
	ActionCreateKey          = "CREATE_KEY"
	ActionDeleteKey          = "DELETE_KEY"
	ActionSetKeyActive       = "SET_KEY_ACTIVE"
	ActionUpdateKeyWhitelist = "UPDATE_KEY_WHITELIST"
	ActionExtendKey          = "EXTEND_KEY"
	ActionUpdateSettings     = "UPDATE_SETTINGS"
	ActionExpireKey          = "EXPIRE_KEY"
)

// Store is the persistence the recorder writes to.
type Store interface {
	CreateAPILog(ctx context.Context, l *dbpkg.APILog) error
	CreateActivityLog(ctx context.Context, l *dbpkg.ActivityLog) error
}

// Recorder writes each row in its own goroutine. Write failures are logged
// and counted, never returned.
type Recorder struct {
	store   Store
	log     *zap.Logger
	timeout time.Duration
	wg      sync.WaitGroup
}

func NewRecorder(store Store, log *zap.Logger) *Recorder {
	metrics.Init()
	return &Recorder{store: store, log: log, timeout: 5 * time.Second}
}

// Call records one trend API call.
func (r *Recorder) Call(entry dbpkg.APILog) {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	r.spawn("api", func(ctx context.Context) error {
		return r.store.CreateAPILog(ctx, &entry)
	})
}

// Activity records one administrative action. actorID 0 means a system action.
func (r *Recorder) Activity(actorID uint, action string, details map[string]any, ip string) {
	entry := dbpkg.ActivityLog{
		Action:    action,
		Details:   datatypes.JSONMap(details),
		IP:        ip,
		CreatedAt: time.Now(),
	}
	if actorID != 0 {
		entry.UserID = &actorID
	}
	r.spawn("activity", func(ctx context.Context) error {
		return r.store.CreateActivityLog(ctx, &entry)
	})
}

func (r *Recorder) spawn(kind string, write func(ctx context.Context) error) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		defer cancel()
		if err := write(ctx); err != nil {
			metrics.AuditWriteErrors.WithLabelValues(kind).Inc()
			r.log.Error("audit write failed", zap.String("kind", kind), zap.Error(err))
		}
	}()
}

// Flush blocks until every write started so far has finished.
func (r *Recorder) Flush() {
	r.wg.Wait()
}
