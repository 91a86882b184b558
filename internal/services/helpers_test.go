package services

import (
	"context"
	"sync"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/localnerve/autogift/internal/models"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// newTestDB opens a private in-memory SQLite database with every table migrated.
// A single connection keeps the in-memory database alive and shared.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger:                                   logger.Default.LogMode(logger.Silent),
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(
		&models.Profile{},
		&models.GiftSettings{},
		&models.GiftRule{},
		&models.AutoGiftEventLog{},
		&models.AutoGiftExecution{},
		&models.ProtectionCounter{},
		&models.ProtectionFlag{},
	))
	return db
}

func strPtr(s string) *string { return &s }

func floatPtr(f float64) *float64 { return &f }

func boolPtr(b bool) *bool { return &b }

// eventTypes lists the types stored for userID, oldest first
func eventTypes(t *testing.T, db *gorm.DB, userID string) []string {
	t.Helper()
	var logs []models.AutoGiftEventLog
	require.NoError(t, db.Where("user_id = ?", userID).Order("created_at").Find(&logs).Error)
	out := make([]string, len(logs))
	for i := range logs {
		out[i] = logs[i].EventType
	}
	return out
}

type edgeCall struct {
	Function string
	Body     map[string]interface{}
}

// fakeEdge records invocations and answers from respond
type fakeEdge struct {
	mu      sync.Mutex
	calls   []edgeCall
	respond func(function string) (map[string]interface{}, error)
}

func (f *fakeEdge) Invoke(ctx context.Context, function string, body interface{}) (map[string]interface{}, error) {
	f.mu.Lock()
	m, _ := body.(map[string]interface{})
	f.calls = append(f.calls, edgeCall{Function: function, Body: m})
	f.mu.Unlock()

	if f.respond == nil {
		return map[string]interface{}{"success": true}, nil
	}
	return f.respond(function)
}

func (f *fakeEdge) Calls() []edgeCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]edgeCall(nil), f.calls...)
}

// failingStore is a CounterStore whose every call fails
type failingStore struct{ err error }

func (f failingStore) Name() string { return "failing" }
func (f failingStore) BreakerTripped(ctx context.Context) (bool, error) {
	return false, f.err
}
func (f failingStore) SetBreaker(ctx context.Context, tripped bool, reason string) error {
	return f.err
}
func (f failingStore) Used(ctx context.Context, userID, period string) (int, error) {
	return 0, f.err
}
func (f failingStore) Reserve(ctx context.Context, userID, period string, limit int) (bool, int, error) {
	return false, 0, f.err
}
func (f failingStore) Release(ctx context.Context, userID, period string) error { return f.err }
func (f failingStore) ResetAll(ctx context.Context) error { return f.err }
func (f failingStore) ResetBefore(ctx context.Context, period string) error {
	return f.err
}
