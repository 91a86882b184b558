// event_log.go
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
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/localnerve/autogift/internal/models"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
	"gorm.io/hints"
)

// Event types emitted by the auto-gift flow. Producers may post other free-text types.
const (
	EventSetupInitiated        = "setup_initiated"
	EventRuleCreated           = "rule_created"
	EventRuleUpdated           = "rule_updated"
	EventRuleDeleted           = "rule_deleted"
	EventExecutionStarted      = "execution_started"
	EventExecutionCompleted    = "execution_completed"
	EventExecutionFailed       = "execution_failed"
	EventExecutionBlocked      = "execution_blocked"
	EventExecutionCancelled    = "execution_cancelled"
	EventInvitationEmailFailed = "invitation_email_failed"
)

// MaxEventLogs is the size of the window returned by LoadEventLogs
const MaxEventLogs = 50

const purgeBatchSize = 500

// EventArchiver receives expired events before they are deleted
type EventArchiver interface {
	Archive(ctx context.Context, events []models.AutoGiftEventLog) error
}

// EventLog is the append-only auto-gift audit trail
type EventLog struct {
	db        *gorm.DB
	retention time.Duration
	archiver  EventArchiver
	now       func() time.Time
}

// NewEventLog creates the event log. A zero retention leaves expires_at unset,
// a nil archiver drops expired rows without copying them.
func NewEventLog(db *gorm.DB, retention time.Duration, archiver EventArchiver) *EventLog {
	return &EventLog{
		db:        db,
		retention: retention,
		archiver:  archiver,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// LogEvent appends an entry. The id and created_at are always assigned here.
func (l *EventLog) LogEvent(ctx context.Context, entry *models.AutoGiftEventLog) error {
	if strings.TrimSpace(entry.UserID) == "" {
		return fmt.Errorf("event user_id is required")
	}
	if strings.TrimSpace(entry.EventType) == "" {
		return fmt.Errorf("event_type is required")
	}

	now := l.now()
	entry.ID = uuid.NewString()
	entry.CreatedAt = now
	if entry.ExpiresAt == nil && l.retention > 0 {
		expires := now.Add(l.retention)
		entry.ExpiresAt = &expires
	}

	if err := l.db.WithContext(ctx).Create(entry).Error; err != nil {
		return fmt.Errorf("failed to log %s event: %w", entry.EventType, err)
	}
	return nil
}

// Record is LogEvent for internal emitters. Failures are logged, never returned,
// so the audit trail cannot break the operation being audited.
func (l *EventLog) Record(ctx context.Context, userID, eventType string, ruleID, executionID *string, data map[string]interface{}, errMsg *string) {
	entry := &models.AutoGiftEventLog{
		UserID:       userID,
		EventType:    eventType,
		RuleID:       ruleID,
		ExecutionID:  executionID,
		EventData:    models.MustJSON(data),
		ErrorMessage: errMsg,
	}
	if err := l.LogEvent(ctx, entry); err != nil {
		log.Error().Err(err).Str("user_id", userID).Str("event_type", eventType).Msg("event log write failed")
	}
}

// LoadEventLogs returns the most recent entries for a user, newest first
func (l *EventLog) LoadEventLogs(ctx context.Context, userID string) (EventLogs, error) {
	var logs []models.AutoGiftEventLog
	err := l.db.WithContext(ctx).
		Clauses(hints.Comment("select", "autogift:load_event_logs")).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(MaxEventLogs).
		Find(&logs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load event logs: %w", err)
	}
	return EventLogs(logs), nil
}

// PurgeExpired archives then deletes entries whose expires_at is at or before now.
func (l *EventLog) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	var total int64
	for {
		var batch []models.AutoGiftEventLog
		err := l.db.WithContext(ctx).
			Where("expires_at IS NOT NULL AND expires_at <= ?", now).
			Order("created_at").
			Limit(purgeBatchSize).
			Find(&batch).Error
		if err != nil {
			return total, fmt.Errorf("failed to select expired events: %w", err)
		}
		if len(batch) == 0 {
			return total, nil
		}

		if l.archiver != nil {
			if err := l.archiver.Archive(ctx, batch); err != nil {
				return total, fmt.Errorf("failed to archive expired events: %w", err)
			}
		}

		ids := make([]string, len(batch))
		for i := range batch {
			ids[i] = batch[i].ID
		}
		result := l.db.WithContext(ctx).Where("id IN ?", ids).Delete(&models.AutoGiftEventLog{})
		if result.Error != nil {
			return total, fmt.Errorf("failed to delete expired events: %w", result.Error)
		}
		total += result.RowsAffected

		if len(batch) < purgeBatchSize {
			return total, nil
		}
	}
}

// EventLogs is a loaded window of events. Its views filter without refetching.
type EventLogs []models.AutoGiftEventLog

func (e EventLogs) filter(keep func(*models.AutoGiftEventLog) bool) EventLogs {
	out := EventLogs{}
	for i := range e {
		if keep(&e[i]) {
			out = append(out, e[i])
		}
	}
	return out
}

// ByType returns the events with exactly this type
func (e EventLogs) ByType(eventType string) EventLogs {
	return e.filter(func(ev *models.AutoGiftEventLog) bool {
		return ev.EventType == eventType
	})
}

// SetupFlow returns events from rule setup
func (e EventLogs) SetupFlow() EventLogs {
	return e.filter(func(ev *models.AutoGiftEventLog) bool {
		return strings.Contains(ev.EventType, "setup") || strings.Contains(ev.EventType, "rule")
	})
}

// Execution returns events from executions and scheduled runs
func (e EventLogs) Execution() EventLogs {
	return e.filter(func(ev *models.AutoGiftEventLog) bool {
		return strings.Contains(ev.EventType, "execution") || strings.Contains(ev.EventType, "scheduled")
	})
}

// Errors returns failures and anything carrying an error message
func (e EventLogs) Errors() EventLogs {
	return e.filter(func(ev *models.AutoGiftEventLog) bool {
		return strings.Contains(ev.EventType, "failed") || (ev.ErrorMessage != nil && *ev.ErrorMessage != "")
	})
}

// SetupCompletionRate is rule_created over setup_initiated as a rounded percentage, 0 without setups
func (e EventLogs) SetupCompletionRate() int {
	initiated := len(e.ByType(EventSetupInitiated))
	if initiated == 0 {
		return 0
	}
	created := len(e.ByType(EventRuleCreated))
	return int(math.Round(float64(created) / float64(initiated) * 100))
}

// EventSummary aggregates a loaded window
type EventSummary struct {
	Total               int            `json:"total"`
	ByType              map[string]int `json:"byType"`
	SetupEvents         int            `json:"setupEvents"`
	ExecutionEvents     int            `json:"executionEvents"`
	ErrorEvents         int            `json:"errorEvents"`
	SetupCompletionRate int            `json:"setupCompletionRate"`
}

// Summary counts the window by type and view
func (e EventLogs) Summary() EventSummary {
	byType := make(map[string]int)
	for i := range e {
		byType[e[i].EventType]++
	}
	return EventSummary{
		Total:               len(e),
		ByType:              byType,
		SetupEvents:         len(e.SetupFlow()),
		ExecutionEvents:     len(e.Execution()),
		ErrorEvents:         len(e.Errors()),
		SetupCompletionRate: e.SetupCompletionRate(),
	}
}
