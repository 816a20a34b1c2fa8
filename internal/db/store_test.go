package db_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"trendkeys/internal/apperr"
	"trendkeys/internal/config"
	"trendkeys/internal/db"
	"trendkeys/internal/db/dbtest"
)

func newUser(t *testing.T, s *db.Store, name, role string) *db.User {
	t.Helper()
	u := &db.User{Username: name, Email: name + "@example.com", PasswordHash: "x", Active: true}
	require.NoError(t, s.CreateUser(context.Background(), u, role, 0))
	return u
}

func newKey(t *testing.T, s *db.Store, userID uint, secret string, expiresIn time.Duration) *db.APIKey {
	t.Helper()
	now := time.Now().UTC()
	k := &db.APIKey{
		Key:       secret,
		UserID:    userID,
		GameType:  "wingo",
		Duration:  "1m",
		CreatedAt: now,
		ExpiresAt: now.Add(expiresIn),
		IsActive:  true,
	}
	require.NoError(t, s.CreateKey(context.Background(), k))
	return k
}

func TestCreateUserProvisionsRole(t *testing.T) {
	s := dbtest.Open(t)
	ctx := context.Background()

	u := newUser(t, s, "alice", db.RoleReseller)

	got, err := s.GetUser(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, db.RoleReseller, got.RoleName())

	dup := &db.User{Username: "alice", Email: "other@example.com", PasswordHash: "x", Active: true}
	err = s.CreateUser(ctx, dup, db.RoleUser, 0)
	assert.True(t, errors.Is(err, apperr.ErrConflict), "got %v", err)

	err = s.CreateUser(ctx, &db.User{Username: "bob", Email: "bob@example.com"}, "superuser", 0)
	assert.True(t, errors.Is(err, apperr.ErrValidation))
}

func TestCreateKeyRejectsEmptyWindow(t *testing.T) {
	s := dbtest.Open(t)
	u := newUser(t, s, "alice", db.RoleUser)

	now := time.Now()
	err := s.CreateKey(context.Background(), &db.APIKey{
		Key: "tk_a", UserID: u.ID, GameType: "wingo", Duration: "1m",
		CreatedAt: now, ExpiresAt: now, IsActive: true,
	})
	assert.True(t, errors.Is(err, apperr.ErrValidation))
}

func TestFindKeyAndTouchUsage(t *testing.T) {
	s := dbtest.Open(t)
	ctx := context.Background()
	u := newUser(t, s, "alice", db.RoleUser)
	k := newKey(t, s, u.ID, "tk_find", time.Hour)

	got, err := s.FindKeyByValue(ctx, "tk_find")
	require.NoError(t, err)
	assert.Equal(t, k.ID, got.ID)
	assert.Empty(t, got.IPWhitelist)

	_, err = s.FindKeyByValue(ctx, "tk_missing")
	assert.ErrorIs(t, err, db.ErrKeyNotFound)

	at := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, s.TouchKeyUsage(ctx, k.ID, at))
	require.NoError(t, s.TouchKeyUsage(ctx, k.ID, at))

	got, err = s.GetKey(ctx, k.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 2, got.TotalCalls)
	require.NotNil(t, got.LastUsedAt)
	assert.True(t, got.LastUsedAt.Equal(at))
}

func TestUpdateWhitelistsAndExtend(t *testing.T) {
	s := dbtest.Open(t)
	ctx := context.Background()
	u := newUser(t, s, "alice", db.RoleUser)
	k := newKey(t, s, u.ID, "tk_wl", time.Hour)

	require.NoError(t, s.UpdateKeyWhitelists(ctx, k.ID, []string{"1.2.3.4"}, []string{"example.com"}))
	got, err := s.GetKey(ctx, k.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"1.2.3.4"}, []string(got.IPWhitelist))
	assert.Equal(t, []string{"example.com"}, []string(got.DomainWhitelist))

	err = s.ExtendKey(ctx, k.ID, k.CreatedAt.Add(-time.Minute))
	assert.True(t, errors.Is(err, apperr.ErrValidation))

	later := k.ExpiresAt.Add(48 * time.Hour)
	require.NoError(t, s.ExtendKey(ctx, k.ID, later))

	assert.ErrorIs(t, s.SetKeyActive(ctx, 9999, false), db.ErrKeyNotFound)
}

func TestCreateKeyChargedDeductsCoins(t *testing.T) {
	s := dbtest.Open(t)
	ctx := context.Background()
	r := newUser(t, s, "reseller", db.RoleReseller)
	require.NoError(t, s.DB().Model(&db.User{}).Where("id = ?", r.ID).Update("coins", 3).Error)

	now := time.Now()
	mk := func(secret string) *db.APIKey {
		return &db.APIKey{Key: secret, UserID: r.ID, GameType: "k3", Duration: "3m",
			CreatedAt: now, ExpiresAt: now.Add(time.Hour), IsActive: true}
	}

	require.NoError(t, s.CreateKeyCharged(ctx, mk("tk_c1"), r.ID, 2))
	err := s.CreateKeyCharged(ctx, mk("tk_c2"), r.ID, 2)
	assert.ErrorIs(t, err, db.ErrInsufficientCoins)

	got, err := s.GetUser(ctx, r.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, got.Coins)

	_, err = s.FindKeyByValue(ctx, "tk_c2")
	assert.ErrorIs(t, err, db.ErrKeyNotFound)
}

func TestDeleteUserCascade(t *testing.T) {
	s := dbtest.Open(t)
	ctx := context.Background()

	admin := newUser(t, s, "admin", db.RoleAdmin)
	victim := newUser(t, s, "victim", db.RoleUser)
	other := newUser(t, s, "other", db.RoleUser)

	vk := newKey(t, s, victim.ID, "tk_victim", time.Hour)
	otherKey := newKey(t, s, other.ID, "tk_other", time.Hour)

	for _, id := range []uint{vk.ID, vk.ID, otherKey.ID} {
		keyID := id
		require.NoError(t, s.CreateAPILog(ctx, &db.APILog{KeyID: &keyID, Endpoint: "/api/trend", Status: db.CallSuccess}))
	}
	require.NoError(t, s.CreateActivityLog(ctx, &db.ActivityLog{UserID: &victim.ID, Action: "LOGIN"}))
	require.NoError(t, s.CreateActivityLog(ctx, &db.ActivityLog{UserID: &admin.ID, Action: "LOGIN"}))

	res, err := s.DeleteUserCascade(ctx, victim.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 2, res.APILogs)
	assert.EqualValues(t, 1, res.Keys)
	assert.EqualValues(t, 1, res.ActivityLogs)
	assert.EqualValues(t, 1, res.Roles)

	_, err = s.GetUser(ctx, victim.ID)
	assert.ErrorIs(t, err, db.ErrUserNotFound)
	_, err = s.FindKeyByValue(ctx, "tk_victim")
	assert.ErrorIs(t, err, db.ErrKeyNotFound)

	var roles int64
	require.NoError(t, s.DB().Model(&db.UserRole{}).Where("user_id = ?", victim.ID).Count(&roles).Error)
	assert.Zero(t, roles)

	logs, total, err := s.ListAPILogs(ctx, db.LogFilter{})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	require.Len(t, logs, 1)
	assert.Equal(t, otherKey.ID, *logs[0].KeyID)

	acts, _, err := s.ListActivityLogs(ctx, db.LogFilter{UserID: admin.ID})
	require.NoError(t, err)
	assert.Len(t, acts, 1)

	_, err = s.DeleteUserCascade(ctx, victim.ID)
	assert.ErrorIs(t, err, db.ErrUserNotFound)
}

func TestSettingsUpsert(t *testing.T) {
	s := dbtest.Open(t)
	ctx := context.Background()

	_, found, err := s.GetSetting(ctx, "site_name")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, s.UpsertSetting(ctx, "site_name", "Trend Keys"))
	require.NoError(t, s.UpsertSetting(ctx, "site_name", "Trend Keys Pro"))
	require.NoError(t, s.InsertSettingIfMissing(ctx, "site_name", "ignored"))
	require.NoError(t, s.InsertSettingIfMissing(ctx, "maintenance_mode", "false"))

	all, err := s.AllSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"site_name": "Trend Keys Pro", "maintenance_mode": "false"}, all)
}

func TestExpiryQueries(t *testing.T) {
	s := dbtest.Open(t)
	ctx := context.Background()
	u := newUser(t, s, "alice", db.RoleUser)

	soon := newKey(t, s, u.ID, "tk_soon", 2*time.Hour)
	newKey(t, s, u.ID, "tk_later", 30*24*time.Hour)

	now := time.Now().UTC()
	expiring, err := s.KeysExpiringBetween(ctx, now, now.Add(72*time.Hour))
	require.NoError(t, err)
	require.Len(t, expiring, 1)
	assert.Equal(t, soon.ID, expiring[0].ID)
	require.NotNil(t, expiring[0].User)
	assert.Equal(t, "alice", expiring[0].User.Username)

	expired, err := s.ExpiredActiveKeys(ctx, now.Add(3*time.Hour))
	require.NoError(t, err)
	require.Len(t, expired, 1)
	assert.Equal(t, soon.ID, expired[0].ID)
}

func TestEnsureBootstrapAdmin(t *testing.T) {
	s := dbtest.Open(t)
	ctx := context.Background()
	cfg := &config.Config{AdminUser: "root", AdminPassword: "s3cret", AdminEmail: "root@example.com"}

	require.NoError(t, db.EnsureBootstrapAdmin(ctx, s, cfg))
	u, err := s.GetUserByUsername(ctx, "root")
	require.NoError(t, err)
	assert.Equal(t, db.RoleAdmin, u.RoleName())
	assert.True(t, u.Active)
	require.NoError(t, bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte("s3cret")))

	// Existing admin is left alone.
	cfg.AdminPassword = "other"
	require.NoError(t, db.EnsureBootstrapAdmin(ctx, s, cfg))
	again, err := s.GetUserByUsername(ctx, "root")
	require.NoError(t, err)
	assert.Equal(t, u.PasswordHash, again.PasswordHash)
}
