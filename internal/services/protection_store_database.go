package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/localnerve/autogift/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const breakerFlagName = "emergency_circuit_breaker"

// DatabaseCounterStore keeps protection state in the shared SQL database.
// Reservations are a conditional UPDATE so concurrent callers cannot overshoot the limit.
type DatabaseCounterStore struct {
	db *gorm.DB
}

// NewDatabaseCounterStore creates a database backed store
func NewDatabaseCounterStore(db *gorm.DB) *DatabaseCounterStore {
	return &DatabaseCounterStore{db: db}
}

// Name implements CounterStore
func (d *DatabaseCounterStore) Name() string { return "database" }

// BreakerTripped implements CounterStore
func (d *DatabaseCounterStore) BreakerTripped(ctx context.Context) (bool, error) {
	var flag models.ProtectionFlag
	err := d.db.WithContext(ctx).Where("name = ?", breakerFlagName).First(&flag).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("breaker read failed: %w", err)
	}
	return flag.Enabled, nil
}

// SetBreaker implements CounterStore
func (d *DatabaseCounterStore) SetBreaker(ctx context.Context, tripped bool, reason string) error {
	flag := models.ProtectionFlag{
		Name:      breakerFlagName,
		Enabled:   tripped,
		Reason:    reason,
		UpdatedAt: time.Now().UTC(),
	}
	err := d.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"enabled", "reason", "updated_at"}),
	}).Create(&flag).Error
	if err != nil {
		return fmt.Errorf("breaker write failed: %w", err)
	}
	return nil
}

// Used implements CounterStore
func (d *DatabaseCounterStore) Used(ctx context.Context, userID, period string) (int, error) {
	var counter models.ProtectionCounter
	err := d.db.WithContext(ctx).
		Where("user_id = ? AND period = ?", userID, period).
		First(&counter).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("counter read failed: %w", err)
	}
	return counter.Used, nil
}

// Reserve implements CounterStore
func (d *DatabaseCounterStore) Reserve(ctx context.Context, userID, period string, limit int) (bool, int, error) {
	var (
		allowed bool
		used    int
	)

	err := d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		seed := models.ProtectionCounter{UserID: userID, Period: period, Used: 0, UpdatedAt: time.Now().UTC()}
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&seed).Error; err != nil {
			return err
		}

		result := tx.Model(&models.ProtectionCounter{}).
			Where("user_id = ? AND period = ? AND used < ?", userID, period, limit).
			UpdateColumns(map[string]interface{}{
				"used":       gorm.Expr("used + 1"),
				"updated_at": time.Now().UTC(),
			})
		if result.Error != nil {
			return result.Error
		}
		allowed = result.RowsAffected == 1

		var counter models.ProtectionCounter
		if err := tx.Where("user_id = ? AND period = ?", userID, period).First(&counter).Error; err != nil {
			return err
		}
		used = counter.Used
		return nil
	})
	if err != nil {
		return false, 0, fmt.Errorf("counter reserve failed: %w", err)
	}
	return allowed, used, nil
}

// Release implements CounterStore
func (d *DatabaseCounterStore) Release(ctx context.Context, userID, period string) error {
	err := d.db.WithContext(ctx).Model(&models.ProtectionCounter{}).
		Where("user_id = ? AND period = ? AND used > 0", userID, period).
		UpdateColumns(map[string]interface{}{
			"used":       gorm.Expr("used - 1"),
			"updated_at": time.Now().UTC(),
		}).Error
	if err != nil {
		return fmt.Errorf("counter release failed: %w", err)
	}
	return nil
}

// ResetAll implements CounterStore
func (d *DatabaseCounterStore) ResetAll(ctx context.Context) error {
	err := d.db.WithContext(ctx).
		Session(&gorm.Session{AllowGlobalUpdate: true}).
		Delete(&models.ProtectionCounter{}).Error
	if err != nil {
		return fmt.Errorf("counter reset failed: %w", err)
	}
	return nil
}

// ResetBefore implements CounterStore
func (d *DatabaseCounterStore) ResetBefore(ctx context.Context, period string) error {
	err := d.db.WithContext(ctx).
		Where("period < ?", period).
		Delete(&models.ProtectionCounter{}).Error
	if err != nil {
		return fmt.Errorf("counter prune failed: %w", err)
	}
	return nil
}
