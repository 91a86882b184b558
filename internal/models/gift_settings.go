package models

import "time"

// DefaultBudgetLimit applies when neither the rule nor the settings carry a budget
const DefaultBudgetLimit = 50.0

// GiftSettings holds the per-user defaults that apply when a rule does not override them
type GiftSettings struct {
	ID                     string     `gorm:"primaryKey;size:36" json:"id"`
	UserID                 string     `gorm:"size:36;not null;uniqueIndex" json:"user_id"`
	DefaultBudgetLimit     float64    `gorm:"not null" json:"default_budget_limit"`
	EmailNotifications     bool       `gorm:"not null" json:"email_notifications"`
	PushNotifications      bool       `gorm:"not null" json:"push_notifications"`
	NotificationDaysBefore int        `gorm:"not null" json:"notification_days_before"`
	DefaultGiftSource      GiftSource `gorm:"size:32;not null" json:"default_gift_source"`
	AutoApproveGifts       bool       `gorm:"not null" json:"auto_approve_gifts"`
	CreatedAt              time.Time  `json:"created_at"`
	UpdatedAt              time.Time  `json:"updated_at"`
}

// TableName overrides the table name for GiftSettings
func (GiftSettings) TableName() string {
	return "gift_settings"
}

// DefaultGiftSettings returns the record auto-created on first access
func DefaultGiftSettings(userID string) GiftSettings {
	return GiftSettings{
		UserID:                 userID,
		DefaultBudgetLimit:     DefaultBudgetLimit,
		EmailNotifications:     true,
		PushNotifications:      false,
		NotificationDaysBefore: 7,
		DefaultGiftSource:      GiftSourceBoth,
		AutoApproveGifts:       false,
	}
}
