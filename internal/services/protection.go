// protection.go
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
	"time"

	"github.com/localnerve/autogift/internal/types"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog/log"
)

// FailPolicy decides what the guard does when its store cannot be reached
type FailPolicy string

const (
	// FailOpen allows executions with the full quota when the store errors
	FailOpen FailPolicy = "open"
	// FailClosed denies executions when the store errors
	FailClosed FailPolicy = "closed"
)

var priorityOccasions = map[string]bool{
	"birthday":       true,
	"anniversary":    true,
	"valentines_day": true,
	"mothers_day":    true,
	"fathers_day":    true,
	"christmas":      true,
}

var (
	guardReservations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "autogift_protection_reservations_total",
		Help: "Auto-gift execution reservations by result",
	}, []string{"result"})

	guardStoreErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "autogift_protection_store_errors_total",
		Help: "Protection store failures by store and operation",
	}, []string{"store", "op"})
)

// RateLimitStatus is a user's standing against the monthly cap
type RateLimitStatus struct {
	ExecutionsRemaining int       `json:"executionsRemaining"`
	ExecutionsUsed      int       `json:"executionsUsed"`
	Cap                 int       `json:"cap"`
	ResetAt             time.Time `json:"resetAt"`

	// Degraded is set when the store failed and the fail policy produced the answer
	Degraded bool `json:"degraded,omitempty"`
}

// Reservation is the receipt for one counted execution, handed back to ReleaseExecution
type Reservation struct {
	UserID string
	Period string

	// Counted is false when a fail-open decision let the execution through uncounted
	Counted bool
	Status  RateLimitStatus
}

// Guard gates automatic purchases behind the emergency circuit breaker and a per-user monthly cap
type Guard struct {
	store      CounterStore
	monthlyCap int
	policy     FailPolicy
	now        func() time.Time
}

// NewGuard creates a guard over store
func NewGuard(store CounterStore, monthlyCap int, policy FailPolicy) *Guard {
	if policy != FailClosed {
		policy = FailOpen
	}
	return &Guard{
		store:      store,
		monthlyCap: monthlyCap,
		policy:     policy,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Policy returns the configured fail policy
func (g *Guard) Policy() FailPolicy {
	return g.policy
}

// StoreName returns the backing store kind
func (g *Guard) StoreName() string {
	return g.store.Name()
}

// period is the UTC calendar month key of t
func period(t time.Time) string {
	return t.UTC().Format("2006-01")
}

// nextMonthlyReset is 00:00 UTC on the first of the month after t
func nextMonthlyReset(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month()+1, 1, 0, 0, 0, 0, time.UTC)
}

func (g *Guard) storeFailed(op string, err error) {
	guardStoreErrors.WithLabelValues(g.store.Name(), op).Inc()
	log.Error().Err(err).Str("store", g.store.Name()).Str("op", op).
		Str("policy", string(g.policy)).Msg("protection store failure")
}

// CheckEmergencyCircuitBreaker is false when the breaker is tripped
func (g *Guard) CheckEmergencyCircuitBreaker(ctx context.Context) bool {
	tripped, err := g.store.BreakerTripped(ctx)
	if err != nil {
		g.storeFailed("breaker", err)
		return g.policy == FailOpen
	}
	return !tripped
}

// TripCircuitBreaker stops all automatic purchases until reset
func (g *Guard) TripCircuitBreaker(ctx context.Context, reason string) error {
	if err := g.store.SetBreaker(ctx, true, reason); err != nil {
		return err
	}
	log.Warn().Str("reason", reason).Msg("Auto-gift circuit breaker tripped")
	return nil
}

// ResetCircuitBreaker re-enables automatic purchases
func (g *Guard) ResetCircuitBreaker(ctx context.Context) error {
	if err := g.store.SetBreaker(ctx, false, ""); err != nil {
		return err
	}
	log.Info().Msg("Auto-gift circuit breaker reset")
	return nil
}

// GetUserRateLimitStatus reports usage for the current month
func (g *Guard) GetUserRateLimitStatus(ctx context.Context, userID string) RateLimitStatus {
	now := g.now()
	status := RateLimitStatus{Cap: g.monthlyCap, ResetAt: nextMonthlyReset(now)}

	used, err := g.store.Used(ctx, userID, period(now))
	if err != nil {
		g.storeFailed("used", err)
		status.Degraded = true
		if g.policy == FailOpen {
			status.ExecutionsRemaining = g.monthlyCap
		}
		return status
	}

	status.ExecutionsUsed = used
	status.ExecutionsRemaining = max(g.monthlyCap-used, 0)
	return status
}

// CheckCanExecuteAutoGift is advisory; use ReserveExecution before committing to a purchase
func (g *Guard) CheckCanExecuteAutoGift(ctx context.Context, userID string) bool {
	if !g.CheckEmergencyCircuitBreaker(ctx) {
		return false
	}
	return g.GetUserRateLimitStatus(ctx, userID).ExecutionsRemaining > 0
}

// ReserveExecution checks the breaker and atomically takes one execution from the user's quota.
func (g *Guard) ReserveExecution(ctx context.Context, userID string) (Reservation, error) {
	now := g.now()
	res := Reservation{
		UserID: userID,
		Period: period(now),
		Status: RateLimitStatus{Cap: g.monthlyCap, ResetAt: nextMonthlyReset(now)},
	}

	tripped, err := g.store.BreakerTripped(ctx)
	if err != nil {
		g.storeFailed("breaker", err)
		if g.policy == FailClosed {
			guardReservations.WithLabelValues("unavailable").Inc()
			return res, fmt.Errorf("%w: %v", types.ErrProtectionUnavailable, err)
		}
	} else if tripped {
		guardReservations.WithLabelValues("breaker").Inc()
		return res, types.ErrCircuitBreakerTripped
	}

	allowed, used, err := g.store.Reserve(ctx, userID, res.Period, g.monthlyCap)
	if err != nil {
		g.storeFailed("reserve", err)
		res.Status.Degraded = true
		if g.policy == FailClosed {
			guardReservations.WithLabelValues("unavailable").Inc()
			return res, fmt.Errorf("%w: %v", types.ErrProtectionUnavailable, err)
		}
		guardReservations.WithLabelValues("degraded").Inc()
		res.Status.ExecutionsRemaining = g.monthlyCap
		return res, nil
	}

	res.Status.ExecutionsUsed = used
	res.Status.ExecutionsRemaining = max(g.monthlyCap-used, 0)

	if !allowed {
		guardReservations.WithLabelValues("rate_limited").Inc()
		return res, &types.RateLimitExceeded{
			UserID:  userID,
			Cap:     g.monthlyCap,
			Used:    used,
			ResetAt: res.Status.ResetAt,
		}
	}

	res.Counted = true
	guardReservations.WithLabelValues("allowed").Inc()
	return res, nil
}

// ReleaseExecution refunds a counted reservation after a failed purchase
func (g *Guard) ReleaseExecution(ctx context.Context, res Reservation) error {
	if !res.Counted {
		return nil
	}
	if err := g.store.Release(ctx, res.UserID, res.Period); err != nil {
		g.storeFailed("release", err)
		return err
	}
	return nil
}

// ResetMonthlyTracking clears every per-user counter
func (g *Guard) ResetMonthlyTracking(ctx context.Context) error {
	if err := g.store.ResetAll(ctx); err != nil {
		g.storeFailed("reset", err)
		return err
	}
	log.Info().Str("store", g.store.Name()).Msg("Monthly auto-gift tracking reset")
	return nil
}

// PrunePastPeriods drops counters left over from earlier months. Usage in the
// current month is kept, so running it on every instance at rollover is safe.
func (g *Guard) PrunePastPeriods(ctx context.Context) error {
	current := period(g.now())
	if err := g.store.ResetBefore(ctx, current); err != nil {
		g.storeFailed("prune", err)
		return err
	}
	log.Info().Str("store", g.store.Name()).Str("kept_period", current).Msg("Pruned past auto-gift counters")
	return nil
}

// IsPriorityOccasion reports occasions that take precedence for budget allocation
func IsPriorityOccasion(occasion string) bool {
	return priorityOccasions[occasion]
}
