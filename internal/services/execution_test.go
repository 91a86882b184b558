package services

import (
	"context"
	"testing"
	"time"

	"github.com/localnerve/autogift/internal/models"
	"github.com/localnerve/autogift/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type executionFixture struct {
	db    *gorm.DB
	rules *RuleStore
	guard *Guard
	edge  *fakeEdge
	svc   *ExecutionService
}

func newExecutionFixture(t *testing.T, limit int) *executionFixture {
	t.Helper()
	db := newTestDB(t)
	events := NewEventLog(db, 0, nil)
	rules := NewRuleStore(db, events, 0)
	guard := NewGuard(NewDatabaseCounterStore(db), limit, FailClosed)
	edge := &fakeEdge{}
	return &executionFixture{
		db:    db,
		rules: rules,
		guard: guard,
		edge:  edge,
		svc:   NewExecutionService(db, rules, guard, events, edge),
	}
}

func (f *executionFixture) rule(t *testing.T, in RuleInput) *models.GiftRule {
	t.Helper()
	if in.RecipientID == nil && in.PendingRecipientEmail == nil {
		in.RecipientID = strPtr("friend-1")
	}
	if in.DateType == "" {
		in.DateType = "birthday"
	}
	rule, err := f.rules.CreateRule(context.Background(), "user-1", in)
	require.NoError(t, err)
	return rule
}

func TestExecuteCompletes(t *testing.T) {
	ctx := context.Background()
	f := newExecutionFixture(t, 10)
	f.edge.respond = func(string) (map[string]interface{}, error) {
		return map[string]interface{}{"success": true, "orderId": "ord_42"}, nil
	}
	rule := f.rule(t, RuleInput{BudgetLimit: floatPtr(120)})

	exec, err := f.svc.Execute(ctx, "user-1", rule.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionCompleted, exec.Status)
	assert.Equal(t, 120.0, exec.Budget)
	assert.True(t, exec.Priority)
	require.NotNil(t, exec.OrderReference)
	assert.Equal(t, "ord_42", *exec.OrderReference)

	calls := f.edge.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, FunctionProcessAutoGift, calls[0].Function)
	assert.Equal(t, exec.ID, calls[0].Body["execution_id"])
	assert.Equal(t, 120.0, calls[0].Body["budget"])

	var stored models.AutoGiftExecution
	require.NoError(t, f.db.First(&stored, "id = ?", exec.ID).Error)
	assert.Equal(t, models.ExecutionCompleted, stored.Status)

	assert.Equal(t, 1, f.guard.GetUserRateLimitStatus(ctx, "user-1").ExecutionsUsed)
	assert.Equal(t, []string{EventRuleCreated, EventExecutionStarted, EventExecutionCompleted}, eventTypes(t, f.db, "user-1"))
}

func TestExecuteUsesSettingsBudget(t *testing.T) {
	ctx := context.Background()
	f := newExecutionFixture(t, 10)
	_, err := f.rules.UpdateSettings(ctx, "user-1", SettingsPatch{DefaultBudgetLimit: floatPtr(35)})
	require.NoError(t, err)
	rule := f.rule(t, RuleInput{DateType: "graduation"})

	exec, err := f.svc.Execute(ctx, "user-1", rule.ID)
	require.NoError(t, err)
	assert.Equal(t, 35.0, exec.Budget)
	assert.False(t, exec.Priority)
}

func TestExecuteFailureReleasesQuota(t *testing.T) {
	ctx := context.Background()
	f := newExecutionFixture(t, 10)
	f.edge.respond = func(string) (map[string]interface{}, error) {
		return nil, &types.RemoteCallError{Function: FunctionProcessAutoGift, StatusCode: 500, Message: "no stock"}
	}
	rule := f.rule(t, RuleInput{})

	exec, err := f.svc.Execute(ctx, "user-1", rule.ID)
	var remote *types.RemoteCallError
	require.ErrorAs(t, err, &remote)
	require.NotNil(t, exec)
	assert.Equal(t, models.ExecutionFailed, exec.Status)
	require.NotNil(t, exec.ErrorMessage)
	assert.Contains(t, *exec.ErrorMessage, "no stock")

	assert.Zero(t, f.guard.GetUserRateLimitStatus(ctx, "user-1").ExecutionsUsed)
	assert.Equal(t, []string{EventRuleCreated, EventExecutionStarted, EventExecutionFailed}, eventTypes(t, f.db, "user-1"))
}

func TestExecuteRateLimited(t *testing.T) {
	ctx := context.Background()
	f := newExecutionFixture(t, 1)
	rule := f.rule(t, RuleInput{})

	_, err := f.svc.Execute(ctx, "user-1", rule.ID)
	require.NoError(t, err)

	_, err = f.svc.Execute(ctx, "user-1", rule.ID)
	var rl *types.RateLimitExceeded
	require.ErrorAs(t, err, &rl)
	assert.Len(t, f.edge.Calls(), 1)

	var count int64
	require.NoError(t, f.db.Model(&models.AutoGiftExecution{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
	assert.Contains(t, eventTypes(t, f.db, "user-1"), EventExecutionBlocked)
}

func TestExecuteCircuitBreaker(t *testing.T) {
	ctx := context.Background()
	f := newExecutionFixture(t, 10)
	rule := f.rule(t, RuleInput{})
	require.NoError(t, f.guard.TripCircuitBreaker(ctx, "incident"))

	_, err := f.svc.Execute(ctx, "user-1", rule.ID)
	assert.ErrorIs(t, err, types.ErrCircuitBreakerTripped)
	assert.Empty(t, f.edge.Calls())
}

func TestExecuteRejectsIneligibleRules(t *testing.T) {
	ctx := context.Background()
	f := newExecutionFixture(t, 10)

	inactive := f.rule(t, RuleInput{IsActive: boolPtr(false)})
	pending := f.rule(t, RuleInput{PendingRecipientEmail: strPtr("jordan@example.com")})

	for _, id := range []string{inactive.ID, pending.ID} {
		_, err := f.svc.Execute(ctx, "user-1", id)
		var verr *types.ValidationError
		assert.ErrorAs(t, err, &verr)
	}

	_, err := f.svc.Execute(ctx, "user-2", inactive.ID)
	var nferr *types.NotFoundError
	assert.ErrorAs(t, err, &nferr)

	assert.Empty(t, f.edge.Calls())
	assert.Zero(t, f.guard.GetUserRateLimitStatus(ctx, "user-1").ExecutionsUsed)
}

func TestCancelExecution(t *testing.T) {
	ctx := context.Background()
	f := newExecutionFixture(t, 10)
	rule := f.rule(t, RuleInput{})

	res, err := f.guard.ReserveExecution(ctx, "user-1")
	require.NoError(t, err)
	pending := &models.AutoGiftExecution{
		ID:          "exec-pending",
		UserID:      "user-1",
		RuleID:      rule.ID,
		Status:      models.ExecutionPending,
		Budget:      50,
		QuotaPeriod: res.Period,
	}
	require.NoError(t, f.db.Create(pending).Error)

	cancelled, err := f.svc.Cancel(ctx, "user-1", pending.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionCancelled, cancelled.Status)
	assert.Zero(t, f.guard.GetUserRateLimitStatus(ctx, "user-1").ExecutionsUsed, "cancel refunds the quota")

	_, err = f.svc.Cancel(ctx, "user-1", pending.ID)
	assert.ErrorIs(t, err, types.ErrInvalidTransition)

	_, err = f.svc.Cancel(ctx, "user-1", "missing")
	var nferr *types.NotFoundError
	assert.ErrorAs(t, err, &nferr)
}

func TestCancelRacingExecuteRefundsOnce(t *testing.T) {
	ctx := context.Background()
	f := newExecutionFixture(t, 10)
	rule := f.rule(t, RuleInput{})

	// an earlier execution keeps one slot in use
	_, err := f.guard.ReserveExecution(ctx, "user-1")
	require.NoError(t, err)

	// cancel the execution as soon as its pending row commits
	fired := false
	var cancelErr error
	err = f.db.Callback().Create().After("gorm:commit_or_rollback_transaction").
		Register("test:cancel_pending_execution", func(tx *gorm.DB) {
			exec, ok := tx.Statement.Dest.(*models.AutoGiftExecution)
			if !ok || fired || tx.Error != nil {
				return
			}
			fired = true
			_, cancelErr = f.svc.Cancel(ctx, exec.UserID, exec.ID)
		})
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = f.db.Callback().Create().Remove("test:cancel_pending_execution")
	})

	exec, err := f.svc.Execute(ctx, "user-1", rule.ID)
	require.True(t, fired)
	require.NoError(t, cancelErr)
	assert.ErrorIs(t, err, types.ErrInvalidTransition)
	require.NotNil(t, exec)
	assert.Empty(t, f.edge.Calls())

	var stored models.AutoGiftExecution
	require.NoError(t, f.db.First(&stored, "id = ?", exec.ID).Error)
	assert.Equal(t, models.ExecutionCancelled, stored.Status)
	assert.Empty(t, stored.QuotaPeriod)

	assert.Equal(t, 1, f.guard.GetUserRateLimitStatus(ctx, "user-1").ExecutionsUsed,
		"only the cancelled execution is refunded")
}

func TestFailedExecutionRefundsOnce(t *testing.T) {
	ctx := context.Background()
	f := newExecutionFixture(t, 10)
	f.edge.respond = func(string) (map[string]interface{}, error) {
		return nil, assert.AnError
	}
	rule := f.rule(t, RuleInput{})

	res, err := f.guard.ReserveExecution(ctx, "user-1")
	require.NoError(t, err)

	exec, err := f.svc.Execute(ctx, "user-1", rule.ID)
	require.Error(t, err)
	assert.Equal(t, models.ExecutionFailed, exec.Status)
	assert.Equal(t, 1, f.guard.GetUserRateLimitStatus(ctx, "user-1").ExecutionsUsed)

	// a stale copy still carrying the period cannot refund again
	stale := *exec
	stale.QuotaPeriod = res.Period
	f.svc.refund(ctx, &stale)
	assert.Equal(t, 1, f.guard.GetUserRateLimitStatus(ctx, "user-1").ExecutionsUsed)
}

func TestTransitionDetectsConcurrentChange(t *testing.T) {
	ctx := context.Background()
	f := newExecutionFixture(t, 10)

	exec := &models.AutoGiftExecution{ID: "exec-1", UserID: "user-1", RuleID: "rule-1", Status: models.ExecutionPending}
	require.NoError(t, f.db.Create(exec).Error)

	// another worker already moved it on
	require.NoError(t, f.db.Model(&models.AutoGiftExecution{}).Where("id = ?", exec.ID).
		Update("status", models.ExecutionCancelled).Error)

	err := f.svc.transition(ctx, exec, models.ExecutionProcessing)
	assert.ErrorIs(t, err, types.ErrInvalidTransition)
	assert.Equal(t, models.ExecutionPending, exec.Status)
}

func TestListExecutions(t *testing.T) {
	ctx := context.Background()
	f := newExecutionFixture(t, 10)
	rule := f.rule(t, RuleInput{})

	first, err := f.svc.Execute(ctx, "user-1", rule.ID)
	require.NoError(t, err)
	time.Sleep(5 * time.Millisecond)
	second, err := f.svc.Execute(ctx, "user-1", rule.ID)
	require.NoError(t, err)

	list, err := f.svc.ListExecutions(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, second.ID, list[0].ID)
	assert.Equal(t, first.ID, list[1].ID)

	other, err := f.svc.ListExecutions(ctx, "user-2")
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestOrderReference(t *testing.T) {
	assert.Equal(t, "a", *orderReference(map[string]interface{}{"order_id": "a"}))
	assert.Equal(t, "b", *orderReference(map[string]interface{}{"orderId": "b"}))
	assert.Equal(t, "c", *orderReference(map[string]interface{}{"order_reference": "c"}))
	assert.Nil(t, orderReference(map[string]interface{}{"order_id": 12}))
	assert.Nil(t, orderReference(nil))
}
