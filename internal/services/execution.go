// execution.go
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
	"time"

	"github.com/google/uuid"
	"github.com/localnerve/autogift/internal/display"
	"github.com/localnerve/autogift/internal/models"
	"github.com/localnerve/autogift/internal/types"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// ExecutionService runs an automatic purchase for a rule: reserve quota, call fulfilment, record the outcome.
type ExecutionService struct {
	db     *gorm.DB
	rules  *RuleStore
	guard  *Guard
	events *EventLog
	edge   EdgeInvoker
}

// NewExecutionService wires the orchestrator
func NewExecutionService(db *gorm.DB, rules *RuleStore, guard *Guard, events *EventLog, edge EdgeInvoker) *ExecutionService {
	return &ExecutionService{db: db, rules: rules, guard: guard, events: events, edge: edge}
}

// Execute attempts the purchase for one of the user's rules. On a fulfilment failure
// the failed execution is returned together with the error.
func (s *ExecutionService) Execute(ctx context.Context, userID, ruleID string) (*models.AutoGiftExecution, error) {
	rule, err := s.rules.GetRule(ctx, userID, ruleID)
	if err != nil {
		return nil, err
	}
	if !rule.IsActive {
		return nil, &types.ValidationError{Field: "is_active", Message: "rule is not active"}
	}
	if display.IsPendingInvitation(rule) {
		return nil, &types.ValidationError{Field: "recipient_id", Message: "recipient has not accepted the invitation yet"}
	}

	reservation, err := s.guard.ReserveExecution(ctx, userID)
	if err != nil {
		msg := err.Error()
		s.events.Record(ctx, userID, EventExecutionBlocked, &rule.ID, nil, map[string]interface{}{
			"executions_used": reservation.Status.ExecutionsUsed,
			"cap":             reservation.Status.Cap,
		}, &msg)
		return nil, err
	}

	settings, err := s.rules.GetSettings(ctx, userID)
	if err != nil {
		s.release(ctx, reservation)
		return nil, err
	}

	budget := settings.DefaultBudgetLimit
	if rule.BudgetLimit != nil && *rule.BudgetLimit > 0 {
		budget = *rule.BudgetLimit
	}

	exec := &models.AutoGiftExecution{
		ID:       uuid.NewString(),
		UserID:   userID,
		RuleID:   rule.ID,
		Status:   models.ExecutionPending,
		Budget:   budget,
		Occasion: rule.DateType,
		Priority: IsPriorityOccasion(rule.DateType),
	}
	if reservation.Counted {
		exec.QuotaPeriod = reservation.Period
	}
	if err := s.db.WithContext(ctx).Create(exec).Error; err != nil {
		s.release(ctx, reservation)
		return nil, fmt.Errorf("failed to create execution: %w", err)
	}
	s.events.Record(ctx, userID, EventExecutionStarted, &rule.ID, &exec.ID, map[string]interface{}{
		"budget":   budget,
		"occasion": exec.Occasion,
		"priority": exec.Priority,
		"degraded": reservation.Status.Degraded,
	}, nil)

	if err := s.transition(ctx, exec, models.ExecutionProcessing); err != nil {
		// cancelled between creation and processing
		s.refund(ctx, exec)
		return exec, err
	}

	response, callErr := s.edge.Invoke(ctx, FunctionProcessAutoGift, map[string]interface{}{
		"execution_id":        exec.ID,
		"rule_id":             rule.ID,
		"user_id":             userID,
		"recipient_id":        rule.RecipientID,
		"budget":              budget,
		"occasion":            rule.DateType,
		"priority":            exec.Priority,
		"gift_source":         rule.GiftSource,
		"specific_product_id": rule.SpecificProductID,
		"auto_approve":        settings.AutoApproveGifts,
	})
	if callErr != nil {
		msg := callErr.Error()
		exec.ErrorMessage = &msg
		if err := s.transition(ctx, exec, models.ExecutionFailed); err != nil {
			log.Error().Err(err).Str("execution_id", exec.ID).Msg("failed to record failed execution")
		}
		s.refund(ctx, exec)
		s.events.Record(ctx, userID, EventExecutionFailed, &rule.ID, &exec.ID, nil, &msg)
		return exec, callErr
	}

	exec.OrderReference = orderReference(response)
	if err := s.transition(ctx, exec, models.ExecutionCompleted); err != nil {
		return exec, err
	}
	s.events.Record(ctx, userID, EventExecutionCompleted, &rule.ID, &exec.ID, map[string]interface{}{
		"order_reference": exec.OrderReference,
	}, nil)

	return exec, nil
}

// Cancel stops an execution that has not started processing
func (s *ExecutionService) Cancel(ctx context.Context, userID, executionID string) (*models.AutoGiftExecution, error) {
	exec, err := s.getExecution(ctx, userID, executionID)
	if err != nil {
		return nil, err
	}

	if err := s.transition(ctx, exec, models.ExecutionCancelled); err != nil {
		return nil, err
	}

	s.refund(ctx, exec)
	s.events.Record(ctx, userID, EventExecutionCancelled, &exec.RuleID, &exec.ID, nil, nil)
	return exec, nil
}

// ListExecutions returns the user's most recent executions, newest first
func (s *ExecutionService) ListExecutions(ctx context.Context, userID string) ([]models.AutoGiftExecution, error) {
	var executions []models.AutoGiftExecution
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(MaxEventLogs).
		Find(&executions).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list executions: %w", err)
	}
	return executions, nil
}

func (s *ExecutionService) getExecution(ctx context.Context, userID, id string) (*models.AutoGiftExecution, error) {
	var exec models.AutoGiftExecution
	err := s.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).First(&exec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, &types.NotFoundError{Resource: "execution", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load execution: %w", err)
	}
	return &exec, nil
}

// transition applies the state change in memory and persists it only if the stored
// status still matches, so a concurrent change loses cleanly.
func (s *ExecutionService) transition(ctx context.Context, exec *models.AutoGiftExecution, next models.ExecutionStatus) error {
	from := exec.Status
	if err := exec.Transition(next); err != nil {
		return err
	}

	result := s.db.WithContext(ctx).Model(&models.AutoGiftExecution{}).
		Where("id = ? AND status = ?", exec.ID, from).
		Updates(map[string]interface{}{
			"status":          exec.Status,
			"order_reference": exec.OrderReference,
			"error_message":   exec.ErrorMessage,
			"updated_at":      time.Now().UTC(),
		})
	if result.Error != nil {
		exec.Status = from
		return fmt.Errorf("failed to update execution: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		exec.Status = from
		return fmt.Errorf("%w: %s changed concurrently", types.ErrInvalidTransition, exec.ID)
	}
	return nil
}

// refund returns the quota counted for a stored execution. Clearing quota_period is
// conditional, so only the caller whose UPDATE wins releases the reservation.
func (s *ExecutionService) refund(ctx context.Context, exec *models.AutoGiftExecution) {
	period := exec.QuotaPeriod
	if period == "" {
		return
	}

	result := s.db.WithContext(ctx).Model(&models.AutoGiftExecution{}).
		Where("id = ? AND quota_period = ?", exec.ID, period).
		Update("quota_period", "")
	if result.Error != nil {
		log.Warn().Err(result.Error).Str("execution_id", exec.ID).Msg("failed to claim execution refund")
		return
	}
	exec.QuotaPeriod = ""
	if result.RowsAffected == 0 {
		return
	}
	s.release(ctx, Reservation{UserID: exec.UserID, Period: period, Counted: true})
}

func (s *ExecutionService) release(ctx context.Context, res Reservation) {
	if err := s.guard.ReleaseExecution(ctx, res); err != nil {
		log.Warn().Err(err).Str("user_id", res.UserID).Msg("failed to release execution reservation")
	}
}

func orderReference(response map[string]interface{}) *string {
	for _, key := range []string{"order_id", "orderId", "order_reference"} {
		if ref, ok := response[key].(string); ok && ref != "" {
			return &ref
		}
	}
	return nil
}
