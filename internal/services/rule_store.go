// rule_store.go
//
// Auto-gift rules, protection and event log service for the gift marketplace
// Copyright (c) 2026 Alex Grant <info@localnerve.com> (https://www.localnerve.com), LocalNerve LLC
//
// This file is part of autogift.
// autogift is free software: you can redistribute it and/or modify it
// under the terms of the GNU Affero General Public License as published by the Free Software
// Foundation, either version 3 of the License, or (at your option) any later version.
// autogift is distributed in the hope that it will be useful, but WITHOUT ANY WARRANTY;
// without even the implied warranty of MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.
// See the GNU Affero General Public License for more details.
// You should have received a copy of the GNU Affero General Public License along with autogift.
// If not, see <https://www.gnu.org/licenses/>.
// Additional terms under GNU AGPL version 3 section 7:
// a) The reasonable legal notice of original copyright and author attribution must be preserved
//    by including the string: "Copyright (c) 2026 Alex Grant <info@localnerve.com> (https://www.localnerve.com), LocalNerve LLC"
//    in this material, copies, or source code of derived works.

package services

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/localnerve/autogift/internal/display"
	"github.com/localnerve/autogift/internal/models"
	"github.com/localnerve/autogift/internal/types"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/hints"
)

// RuleInput carries the fields of a new rule
type RuleInput struct {
	RecipientID           *string
	PendingRecipientEmail *string
	DateType              string
	ScheduledDate         *time.Time
	BudgetLimit           *float64
	GiftSource            models.GiftSource
	SpecificProductID     *string
	Notes                 string
	IsActive              *bool
}

// RulePatch is a partial update. Nil fields are left alone,
// an empty string clears a nullable text field and a zero budget clears the limit.
type RulePatch struct {
	RecipientID           *string
	PendingRecipientEmail *string
	DateType              *string
	ScheduledDate         *time.Time
	BudgetLimit           *float64
	GiftSource            *models.GiftSource
	SpecificProductID     *string
	Notes                 *string
	IsActive              *bool
}

// SettingsPatch is a partial update of GiftSettings
type SettingsPatch struct {
	DefaultBudgetLimit     *float64
	EmailNotifications     *bool
	PushNotifications      *bool
	NotificationDaysBefore *int
	DefaultGiftSource      *models.GiftSource
	AutoApproveGifts       *bool
}

// RuleStore is CRUD over gift rules and settings
type RuleStore struct {
	db     *gorm.DB
	events *EventLog
	cache  *ruleCache
}

// NewRuleStore creates the rule store. A non-positive cacheTTL disables the rule cache.
func NewRuleStore(db *gorm.DB, events *EventLog, cacheTTL time.Duration) *RuleStore {
	return &RuleStore{
		db:     db,
		events: events,
		cache:  newRuleCache(cacheTTL),
	}
}

// GetSettings returns the user's settings, creating the defaults on first access
func (s *RuleStore) GetSettings(ctx context.Context, userID string) (*models.GiftSettings, error) {
	var settings models.GiftSettings
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).First(&settings).Error
	if err == nil {
		return &settings, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to load settings: %w", err)
	}

	settings = models.DefaultGiftSettings(userID)
	settings.ID = uuid.NewString()
	if err := s.db.WithContext(ctx).Create(&settings).Error; err != nil {
		// a concurrent first read may have created the row already
		var existing models.GiftSettings
		if findErr := s.db.WithContext(ctx).Where("user_id = ?", userID).First(&existing).Error; findErr == nil {
			return &existing, nil
		}
		return nil, fmt.Errorf("failed to create default settings: %w", err)
	}

	log.Debug().Str("user_id", userID).Msg("Created default gift settings")
	return &settings, nil
}

// UpdateSettings merges patch into the user's settings
func (s *RuleStore) UpdateSettings(ctx context.Context, userID string, patch SettingsPatch) (*models.GiftSettings, error) {
	settings, err := s.GetSettings(ctx, userID)
	if err != nil {
		return nil, err
	}

	if patch.DefaultBudgetLimit != nil {
		if *patch.DefaultBudgetLimit <= 0 {
			return nil, &types.ValidationError{Field: "default_budget_limit", Message: "must be greater than zero"}
		}
		settings.DefaultBudgetLimit = *patch.DefaultBudgetLimit
	}
	if patch.EmailNotifications != nil {
		settings.EmailNotifications = *patch.EmailNotifications
	}
	if patch.PushNotifications != nil {
		settings.PushNotifications = *patch.PushNotifications
	}
	if patch.NotificationDaysBefore != nil {
		if *patch.NotificationDaysBefore < 0 || *patch.NotificationDaysBefore > 90 {
			return nil, &types.ValidationError{Field: "notification_days_before", Message: "must be between 0 and 90"}
		}
		settings.NotificationDaysBefore = *patch.NotificationDaysBefore
	}
	if patch.DefaultGiftSource != nil {
		if !patch.DefaultGiftSource.Valid() {
			return nil, &types.ValidationError{Field: "default_gift_source", Message: fmt.Sprintf("unknown gift source %q", *patch.DefaultGiftSource)}
		}
		settings.DefaultGiftSource = *patch.DefaultGiftSource
	}
	if patch.AutoApproveGifts != nil {
		settings.AutoApproveGifts = *patch.AutoApproveGifts
	}

	if err := s.db.WithContext(ctx).Save(settings).Error; err != nil {
		return nil, fmt.Errorf("failed to update settings: %w", err)
	}
	return settings, nil
}

func (s *RuleStore) loadRules(ctx context.Context, userID string) ([]models.GiftRule, error) {
	var rules []models.GiftRule
	err := s.db.WithContext(ctx).
		Clauses(hints.Comment("select", "autogift:get_user_rules")).
		Preload("Recipient").
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Order("id").
		Find(&rules).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load rules: %w", err)
	}
	return rules, nil
}

// refresh reloads the user's rules into the cache after a mutation
func (s *RuleStore) refresh(ctx context.Context, userID string) {
	gen := s.cache.bump(userID)
	rules, err := s.loadRules(ctx, userID)
	if err != nil {
		s.cache.invalidate(userID)
		log.Warn().Err(err).Str("user_id", userID).Msg("rule cache refresh failed")
		return
	}
	s.cache.set(userID, gen, rules)
}

// GetUserRules returns the user's rules, newest first
func (s *RuleStore) GetUserRules(ctx context.Context, userID string) ([]models.GiftRule, error) {
	if rules, ok := s.cache.get(userID); ok {
		return rules, nil
	}
	gen := s.cache.generation(userID)
	rules, err := s.loadRules(ctx, userID)
	if err != nil {
		return nil, err
	}
	s.cache.set(userID, gen, rules)
	return rules, nil
}

// GetRule loads one of the user's rules
func (s *RuleStore) GetRule(ctx context.Context, userID, id string) (*models.GiftRule, error) {
	var rule models.GiftRule
	err := s.db.WithContext(ctx).
		Preload("Recipient").
		Where("id = ? AND user_id = ?", id, userID).
		First(&rule).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, &types.NotFoundError{Resource: "rule", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load rule: %w", err)
	}
	return &rule, nil
}

// CreateRule validates and persists a new rule for userID
func (s *RuleStore) CreateRule(ctx context.Context, userID string, in RuleInput) (*models.GiftRule, error) {
	rule := &models.GiftRule{
		ID:                    uuid.NewString(),
		UserID:                userID,
		RecipientID:           in.RecipientID,
		PendingRecipientEmail: in.PendingRecipientEmail,
		DateType:              in.DateType,
		ScheduledDate:         in.ScheduledDate,
		BudgetLimit:           in.BudgetLimit,
		GiftSource:            in.GiftSource,
		SpecificProductID:     in.SpecificProductID,
		Notes:                 in.Notes,
		IsActive:              true,
	}
	if in.IsActive != nil {
		rule.IsActive = *in.IsActive
	}
	if rule.GiftSource == "" {
		rule.GiftSource = models.GiftSourceBoth
	}

	normalizeRule(rule)
	if err := validateRule(rule); err != nil {
		return nil, err
	}

	if err := s.db.WithContext(ctx).Omit(clause.Associations).Create(rule).Error; err != nil {
		return nil, fmt.Errorf("failed to create rule: %w", err)
	}

	s.events.Record(ctx, userID, EventRuleCreated, &rule.ID, nil, map[string]interface{}{
		"date_type":          rule.DateType,
		"gift_source":        rule.GiftSource,
		"pending_invitation": display.IsPendingInvitation(rule),
	}, nil)

	s.refresh(ctx, userID)
	return s.GetRule(ctx, userID, rule.ID)
}

// UpdateRule merges patch into the user's rule and re-validates the result
func (s *RuleStore) UpdateRule(ctx context.Context, userID, id string, patch RulePatch) (*models.GiftRule, error) {
	var changed []string

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		query := tx
		switch tx.Dialector.Name() {
		case "postgres", "mysql":
			query = tx.Clauses(clause.Locking{Strength: "UPDATE"})
		}

		var rule models.GiftRule
		err := query.Where("id = ? AND user_id = ?", id, userID).First(&rule).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &types.NotFoundError{Resource: "rule", ID: id}
		}
		if err != nil {
			return err
		}

		changed = applyRulePatch(&rule, patch)
		normalizeRule(&rule)
		if err := validateRule(&rule); err != nil {
			return err
		}
		if len(changed) == 0 {
			return nil
		}

		return tx.Omit(clause.Associations).Save(&rule).Error
	})
	if err != nil {
		var verr *types.ValidationError
		var nferr *types.NotFoundError
		if errors.As(err, &verr) || errors.As(err, &nferr) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to update rule: %w", err)
	}

	if len(changed) > 0 {
		s.events.Record(ctx, userID, EventRuleUpdated, &id, nil, map[string]interface{}{
			"fields": changed,
		}, nil)
		s.refresh(ctx, userID)
	}

	return s.GetRule(ctx, userID, id)
}

// DeleteRule hard deletes the user's rule. Deleting a missing rule is not an error.
func (s *RuleStore) DeleteRule(ctx context.Context, userID, id string) (int64, error) {
	result := s.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userID).
		Delete(&models.GiftRule{})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to delete rule: %w", result.Error)
	}

	if result.RowsAffected > 0 {
		s.events.Record(ctx, userID, EventRuleDeleted, &id, nil, nil, nil)
		s.refresh(ctx, userID)
	}
	return result.RowsAffected, nil
}

func applyRulePatch(rule *models.GiftRule, patch RulePatch) []string {
	var changed []string

	if patch.RecipientID != nil {
		rule.RecipientID = clearable(*patch.RecipientID)
		rule.Recipient = nil
		changed = append(changed, "recipient_id")
	}
	if patch.PendingRecipientEmail != nil {
		rule.PendingRecipientEmail = clearable(*patch.PendingRecipientEmail)
		changed = append(changed, "pending_recipient_email")
	}
	if patch.DateType != nil {
		rule.DateType = *patch.DateType
		changed = append(changed, "date_type")
	}
	if patch.ScheduledDate != nil {
		rule.ScheduledDate = patch.ScheduledDate
		changed = append(changed, "scheduled_date")
	}
	if patch.BudgetLimit != nil {
		if *patch.BudgetLimit == 0 {
			rule.BudgetLimit = nil
		} else {
			budget := *patch.BudgetLimit
			rule.BudgetLimit = &budget
		}
		changed = append(changed, "budget_limit")
	}
	if patch.GiftSource != nil {
		rule.GiftSource = *patch.GiftSource
		changed = append(changed, "gift_source")
	}
	if patch.SpecificProductID != nil {
		rule.SpecificProductID = clearable(*patch.SpecificProductID)
		changed = append(changed, "specific_product_id")
	}
	if patch.Notes != nil {
		rule.Notes = *patch.Notes
		changed = append(changed, "notes")
	}
	if patch.IsActive != nil {
		rule.IsActive = *patch.IsActive
		changed = append(changed, "is_active")
	}

	return changed
}

func clearable(value string) *string {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return &value
}

func normalizeRule(rule *models.GiftRule) {
	if rule.RecipientID != nil {
		rule.RecipientID = clearable(strings.TrimSpace(*rule.RecipientID))
	}
	if rule.PendingRecipientEmail != nil {
		rule.PendingRecipientEmail = clearable(strings.ToLower(strings.TrimSpace(*rule.PendingRecipientEmail)))
	}
	if rule.SpecificProductID != nil {
		rule.SpecificProductID = clearable(strings.TrimSpace(*rule.SpecificProductID))
	}
	rule.DateType = display.NormalizeOccasionCode(rule.DateType)
	rule.Notes = strings.TrimSpace(rule.Notes)
}

// validateRule enforces that a rule targets exactly one of a connection or a pending invitee
func validateRule(rule *models.GiftRule) error {
	hasRecipient := rule.RecipientID != nil
	hasPending := rule.PendingRecipientEmail != nil

	switch {
	case hasRecipient && hasPending:
		return &types.ValidationError{Field: "recipient_id", Message: "set either recipient_id or pending_recipient_email, not both"}
	case !hasRecipient && !hasPending:
		return &types.ValidationError{Field: "recipient_id", Message: "one of recipient_id or pending_recipient_email is required"}
	}

	if hasPending {
		addr, err := mail.ParseAddress(*rule.PendingRecipientEmail)
		if err != nil || addr.Address != *rule.PendingRecipientEmail {
			return &types.ValidationError{Field: "pending_recipient_email", Message: "must be a plain email address"}
		}
	}

	if rule.DateType == "" {
		return &types.ValidationError{Field: "date_type", Message: "is required"}
	}
	if !rule.GiftSource.Valid() {
		return &types.ValidationError{Field: "gift_source", Message: fmt.Sprintf("unknown gift source %q", rule.GiftSource)}
	}
	if rule.GiftSource == models.GiftSourceSpecific && rule.SpecificProductID == nil {
		return &types.ValidationError{Field: "specific_product_id", Message: "is required when gift_source is specific"}
	}
	if rule.BudgetLimit != nil && *rule.BudgetLimit < 0 {
		return &types.ValidationError{Field: "budget_limit", Message: "must not be negative"}
	}
	return nil
}
