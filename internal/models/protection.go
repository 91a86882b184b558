package models

import "time"

// ProtectionCounter is the shared per-user monthly execution counter row
type ProtectionCounter struct {
	UserID    string `gorm:"primaryKey;size:36"`
	Period    string `gorm:"primaryKey;size:7"`
	Used      int    `gorm:"not null"`
	UpdatedAt time.Time
}

// TableName overrides the table name for ProtectionCounter
func (ProtectionCounter) TableName() string {
	return "protection_counters"
}

// ProtectionFlag is a named global switch, such as the emergency circuit breaker
type ProtectionFlag struct {
	Name      string `gorm:"primaryKey;size:64"`
	Enabled   bool   `gorm:"not null"`
	Reason    string `gorm:"size:500"`
	UpdatedAt time.Time
}

// TableName overrides the table name for ProtectionFlag
func (ProtectionFlag) TableName() string {
	return "protection_flags"
}
