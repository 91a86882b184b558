package services

import (
	"context"

	"github.com/localnerve/autogift/internal/display"
	"github.com/localnerve/autogift/internal/models"
	"github.com/rs/zerolog/log"
)

// Notifier sends invitation emails for rules that target someone who has not joined yet
type Notifier struct {
	edge   EdgeInvoker
	events *EventLog
}

// NewNotifier creates a notifier
func NewNotifier(edge EdgeInvoker, events *EventLog) *Notifier {
	return &Notifier{edge: edge, events: events}
}

// SendRuleInvitation emails the pending recipient of rule. Failures are recorded, never returned.
func (n *Notifier) SendRuleInvitation(ctx context.Context, userID string, rule *models.GiftRule) {
	if !display.IsPendingInvitation(rule) {
		return
	}

	_, err := n.edge.Invoke(ctx, FunctionSendNotification, map[string]interface{}{
		"type":            "auto_gift_invitation",
		"sender_id":       userID,
		"recipient_email": *rule.PendingRecipientEmail,
		"rule_id":         rule.ID,
		"occasion":        display.OccasionDisplayName(rule.DateType),
		"budget":          display.FormatBudgetDisplay(rule.BudgetLimit),
	})
	if err == nil {
		return
	}

	msg := err.Error()
	log.Warn().Err(err).Str("rule_id", rule.ID).Msg("invitation email failed")
	n.events.Record(ctx, userID, EventInvitationEmailFailed, &rule.ID, nil, map[string]interface{}{
		"recipient_email": *rule.PendingRecipientEmail,
	}, &msg)
}
