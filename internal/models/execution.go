package models

import (
	"fmt"
	"time"

	"github.com/localnerve/autogift/internal/types"
)

// ExecutionStatus is the state of an automatic purchase attempt
type ExecutionStatus string

const (
	ExecutionPending    ExecutionStatus = "pending"
	ExecutionProcessing ExecutionStatus = "processing"
	ExecutionCompleted  ExecutionStatus = "completed"
	ExecutionFailed     ExecutionStatus = "failed"
	ExecutionCancelled  ExecutionStatus = "cancelled"
)

var executionTransitions = map[ExecutionStatus][]ExecutionStatus{
	ExecutionPending:    {ExecutionProcessing, ExecutionCancelled},
	ExecutionProcessing: {ExecutionCompleted, ExecutionFailed},
}

// CanTransitionTo reports whether next is reachable from s in one step
func (s ExecutionStatus) CanTransitionTo(next ExecutionStatus) bool {
	for _, allowed := range executionTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IsTerminal is true for states with no outgoing transitions
func (s ExecutionStatus) IsTerminal() bool {
	return len(executionTransitions[s]) == 0
}

// AutoGiftExecution records a single attempt to fulfil a rule
type AutoGiftExecution struct {
	ID             string          `gorm:"primaryKey;size:36" json:"id"`
	UserID         string          `gorm:"size:36;not null;index:idx_executions_user_created,priority:1" json:"user_id"`
	RuleID         string          `gorm:"size:36;not null;index" json:"rule_id"`
	Status         ExecutionStatus `gorm:"size:16;not null;index" json:"status"`
	Budget         float64         `gorm:"not null" json:"budget"`
	Occasion       string          `gorm:"size:64" json:"occasion"`
	Priority       bool            `gorm:"not null" json:"priority"`
	OrderReference *string         `gorm:"size:128" json:"order_reference,omitempty"`
	ErrorMessage   *string         `gorm:"size:2000" json:"error_message,omitempty"`
	QuotaPeriod    string          `gorm:"size:7" json:"-"`
	CreatedAt      time.Time       `gorm:"index:idx_executions_user_created,priority:2" json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// TableName overrides the table name for AutoGiftExecution
func (AutoGiftExecution) TableName() string {
	return "auto_gift_executions"
}

// Transition moves the execution to next, rejecting moves the state machine does not allow
func (e *AutoGiftExecution) Transition(next ExecutionStatus) error {
	if !e.Status.CanTransitionTo(next) {
		return fmt.Errorf("%w: %s -> %s", types.ErrInvalidTransition, e.Status, next)
	}
	e.Status = next
	return nil
}
