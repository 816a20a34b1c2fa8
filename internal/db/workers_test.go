package db_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trendkeys/internal/db"
	"trendkeys/internal/db/dbtest"
)

func TestRetentionDropsOldRows(t *testing.T) {
	s := dbtest.Open(t)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, s.CreateAPILog(ctx, &db.APILog{Endpoint: "/api/trend", Status: db.CallSuccess, CreatedAt: now.Add(-40 * 24 * time.Hour)}))
	require.NoError(t, s.CreateAPILog(ctx, &db.APILog{Endpoint: "/api/trend", Status: db.CallSuccess, CreatedAt: now}))
	require.NoError(t, s.CreateTelegramLog(ctx, &db.TelegramLog{MessageType: "test", ChatID: "1", Status: db.DeliverySent, CreatedAt: now.Add(-40 * 24 * time.Hour)}))

	require.NoError(t, db.RunRetentionOnce(s.DB(), now.Add(-30*24*time.Hour)))

	_, apiTotal, err := s.ListAPILogs(ctx, db.LogFilter{})
	require.NoError(t, err)
	assert.EqualValues(t, 1, apiTotal)

	_, tgTotal, err := s.ListTelegramLogs(ctx, db.LogFilter{})
	require.NoError(t, err)
	assert.Zero(t, tgTotal)
}

func TestAggregationBuildsHourlyBuckets(t *testing.T) {
	s := dbtest.Open(t)
	ctx := context.Background()
	u := newUser(t, s, "agg", db.RoleUser)
	k := newKey(t, s, u.ID, "tk_agg", time.Hour)

	hour := time.Now().UTC().Truncate(time.Hour).Add(-time.Hour)
	calls := []struct {
		status string
		ms     int64
	}{
		{db.CallSuccess, 10},
		{db.CallSuccess, 30},
		{db.CallBlocked, 0},
		{db.CallError, 20},
	}
	for i, c := range calls {
		require.NoError(t, s.CreateAPILog(ctx, &db.APILog{
			KeyID:          &k.ID,
			Endpoint:       "/api/trend",
			Status:         c.status,
			ResponseTimeMs: c.ms,
			CreatedAt:      hour.Add(time.Duration(i+1) * time.Minute),
		}))
	}
	// Unknown-key calls are not bucketed.
	require.NoError(t, s.CreateAPILog(ctx, &db.APILog{Endpoint: "/api/trend", Status: db.CallBlocked, CreatedAt: hour.Add(5 * time.Minute)}))

	require.NoError(t, db.RunAggregationOnce(s.DB(), hour))
	// Re-running updates in place.
	require.NoError(t, db.RunAggregationOnce(s.DB(), hour))

	buckets, err := s.UsageSince(ctx, k.ID, hour)
	require.NoError(t, err)
	require.Len(t, buckets, 1)
	b := buckets[0]
	assert.EqualValues(t, 4, b.TotalCount)
	assert.EqualValues(t, 2, b.SuccessCount)
	assert.EqualValues(t, 1, b.BlockedCount)
	assert.EqualValues(t, 1, b.ErrorCount)
	assert.EqualValues(t, 20, b.ResponseP50Ms)
	assert.EqualValues(t, 30, b.ResponseP99Ms)
}
