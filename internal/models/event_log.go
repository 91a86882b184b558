package models

import "time"

// AutoGiftEventLog is an immutable audit record of the auto-gift flow
type AutoGiftEventLog struct {
	ID           string     `gorm:"primaryKey;size:36" json:"id"`
	UserID       string     `gorm:"size:36;not null;index:idx_event_logs_user_created,priority:1" json:"user_id"`
	EventType    string     `gorm:"size:128;not null;index" json:"event_type"`
	RuleID       *string    `gorm:"size:36;index" json:"rule_id,omitempty"`
	ExecutionID  *string    `gorm:"size:36" json:"execution_id,omitempty"`
	SetupToken   *string    `gorm:"size:128" json:"setup_token,omitempty"`
	EventData    JSON       `json:"event_data"`
	Metadata     JSON       `json:"metadata"`
	ErrorMessage *string    `gorm:"size:2000" json:"error_message,omitempty"`
	CreatedAt    time.Time  `gorm:"not null;index:idx_event_logs_user_created,priority:2" json:"created_at"`
	ExpiresAt    *time.Time `gorm:"index" json:"expires_at,omitempty"`
}

// TableName overrides the table name for AutoGiftEventLog
func (AutoGiftEventLog) TableName() string {
	return "auto_gift_event_logs"
}
