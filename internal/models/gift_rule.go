package models

import (
	"time"
)

// GiftSource is the strategy used to pick the actual product
type GiftSource string

const (
	GiftSourceWishlist GiftSource = "wishlist"
	GiftSourceAI       GiftSource = "ai"
	GiftSourceBoth     GiftSource = "both"
	GiftSourceSpecific GiftSource = "specific"
)

// Valid reports whether s is one of the known gift sources
func (s GiftSource) Valid() bool {
	switch s {
	case GiftSourceWishlist, GiftSourceAI, GiftSourceBoth, GiftSourceSpecific:
		return true
	}
	return false
}

// GiftRule is a recurring or one-time instruction to auto-purchase a gift.
// Exactly one of RecipientID and PendingRecipientEmail is set.
type GiftRule struct {
	ID                    string     `gorm:"primaryKey;size:36" json:"id"`
	UserID                string     `gorm:"size:36;not null;index:idx_gift_rules_user_created,priority:1" json:"user_id"`
	RecipientID           *string    `gorm:"size:36;index" json:"recipient_id"`
	PendingRecipientEmail *string    `gorm:"size:320;index" json:"pending_recipient_email"`
	DateType              string     `gorm:"size:64;not null" json:"date_type"`
	ScheduledDate         *time.Time `json:"scheduled_date"`
	BudgetLimit           *float64   `json:"budget_limit"`
	GiftSource            GiftSource `gorm:"size:32;not null" json:"gift_source"`
	SpecificProductID     *string    `gorm:"size:128" json:"specific_product_id,omitempty"`
	Notes                 string     `gorm:"size:1000" json:"notes,omitempty"`
	IsActive              bool       `gorm:"not null" json:"is_active"`
	CreatedAt             time.Time  `gorm:"index:idx_gift_rules_user_created,priority:2" json:"created_at"`
	UpdatedAt             time.Time  `json:"updated_at"`

	Recipient *Profile `gorm:"foreignKey:RecipientID;references:ID" json:"recipient,omitempty"`
}

// TableName overrides the table name for GiftRule
func (GiftRule) TableName() string {
	return "gift_rules"
}

// Profile is the resolved account of a connection that a rule targets.
// Rows are owned by the account service; this service only reads them.
type Profile struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	Name      string    `gorm:"size:255" json:"name"`
	Email     string    `gorm:"size:320;index" json:"email,omitempty"`
	CreatedAt time.Time `json:"-"`
	UpdatedAt time.Time `json:"-"`
}

// TableName overrides the table name for Profile
func (Profile) TableName() string {
	return "profiles"
}
