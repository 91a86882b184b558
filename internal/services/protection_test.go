package services

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/localnerve/autogift/internal/types"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newRedisStore(t *testing.T) (*RedisCounterStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisCounterStore(client), mr
}

// counterStores returns one fresh instance of every CounterStore implementation
func counterStores(t *testing.T) map[string]CounterStore {
	redisStore, _ := newRedisStore(t)
	return map[string]CounterStore{
		"memory":   NewMemoryCounterStore(),
		"redis":    redisStore,
		"database": NewDatabaseCounterStore(newTestDB(t)),
	}
}

func fixedGuard(store CounterStore, limit int, policy FailPolicy, now time.Time) *Guard {
	g := NewGuard(store, limit, policy)
	g.now = func() time.Time { return now }
	return g
}

func TestCounterStores(t *testing.T) {
	ctx := context.Background()

	for name, store := range counterStores(t) {
		t.Run(name, func(t *testing.T) {
			t.Run("ReserveUpToLimit", func(t *testing.T) {
				for i := 1; i <= 3; i++ {
					allowed, used, err := store.Reserve(ctx, "user-a", "2026-03", 3)
					require.NoError(t, err)
					assert.True(t, allowed)
					assert.Equal(t, i, used)
				}

				allowed, used, err := store.Reserve(ctx, "user-a", "2026-03", 3)
				require.NoError(t, err)
				assert.False(t, allowed)
				assert.Equal(t, 3, used)

				got, err := store.Used(ctx, "user-a", "2026-03")
				require.NoError(t, err)
				assert.Equal(t, 3, got)
			})

			t.Run("PeriodsAndUsersAreIndependent", func(t *testing.T) {
				allowed, used, err := store.Reserve(ctx, "user-a", "2026-04", 3)
				require.NoError(t, err)
				assert.True(t, allowed)
				assert.Equal(t, 1, used)

				got, err := store.Used(ctx, "user-b", "2026-03")
				require.NoError(t, err)
				assert.Zero(t, got)
			})

			t.Run("ReleaseNeverGoesNegative", func(t *testing.T) {
				require.NoError(t, store.Release(ctx, "user-c", "2026-03"))
				got, err := store.Used(ctx, "user-c", "2026-03")
				require.NoError(t, err)
				assert.Zero(t, got)

				_, _, err = store.Reserve(ctx, "user-c", "2026-03", 3)
				require.NoError(t, err)
				require.NoError(t, store.Release(ctx, "user-c", "2026-03"))
				require.NoError(t, store.Release(ctx, "user-c", "2026-03"))
				got, err = store.Used(ctx, "user-c", "2026-03")
				require.NoError(t, err)
				assert.Zero(t, got)
			})

			t.Run("Breaker", func(t *testing.T) {
				tripped, err := store.BreakerTripped(ctx)
				require.NoError(t, err)
				assert.False(t, tripped)

				require.NoError(t, store.SetBreaker(ctx, true, "fraud spike"))
				tripped, err = store.BreakerTripped(ctx)
				require.NoError(t, err)
				assert.True(t, tripped)

				require.NoError(t, store.SetBreaker(ctx, false, ""))
				tripped, err = store.BreakerTripped(ctx)
				require.NoError(t, err)
				assert.False(t, tripped)
			})

			t.Run("ResetBeforeKeepsCurrentPeriod", func(t *testing.T) {
				require.NoError(t, store.ResetBefore(ctx, "2026-04"))

				got, err := store.Used(ctx, "user-a", "2026-03")
				require.NoError(t, err)
				assert.Zero(t, got, "earlier period dropped")

				got, err = store.Used(ctx, "user-a", "2026-04")
				require.NoError(t, err)
				assert.Equal(t, 1, got, "current period kept")

				// the dropped period starts over
				allowed, used, err := store.Reserve(ctx, "user-a", "2026-03", 3)
				require.NoError(t, err)
				assert.True(t, allowed)
				assert.Equal(t, 1, used)
			})

			t.Run("ResetAll", func(t *testing.T) {
				require.NoError(t, store.ResetAll(ctx))
				for _, period := range []string{"2026-03", "2026-04"} {
					got, err := store.Used(ctx, "user-a", period)
					require.NoError(t, err)
					assert.Zero(t, got, period)
				}
			})
		})
	}
}

func TestCounterStoresConcurrentReserve(t *testing.T) {
	ctx := context.Background()
	const limit = 5

	for name, store := range counterStores(t) {
		t.Run(name, func(t *testing.T) {
			var (
				wg      sync.WaitGroup
				granted atomic.Int32
			)
			for i := 0; i < 20; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					allowed, _, err := store.Reserve(ctx, "racer", "2026-05", limit)
					if err == nil && allowed {
						granted.Add(1)
					}
				}()
			}
			wg.Wait()

			assert.Equal(t, int32(limit), granted.Load())
			used, err := store.Used(ctx, "racer", "2026-05")
			require.NoError(t, err)
			assert.Equal(t, limit, used)
		})
	}
}

func TestRedisCounterStoreKeys(t *testing.T) {
	ctx := context.Background()
	store, mr := newRedisStore(t)

	_, _, err := store.Reserve(ctx, "user-1", "2026-06", 10)
	require.NoError(t, err)

	key := "autogift:exec:2026-06:user-1"
	assert.True(t, mr.Exists(key))
	assert.Greater(t, mr.TTL(key), 30*24*time.Hour)

	require.NoError(t, store.SetBreaker(ctx, true, "test"))
	v, err := mr.Get(redisBreakerKey)
	require.NoError(t, err)
	assert.Equal(t, "1", v)

	_, _, err = store.Reserve(ctx, "user-1", "2026-05", 10)
	require.NoError(t, err)
	require.NoError(t, store.ResetBefore(ctx, "2026-06"))
	assert.False(t, mr.Exists("autogift:exec:2026-05:user-1"))
	assert.True(t, mr.Exists(key))

	require.NoError(t, store.ResetAll(ctx))
	assert.False(t, mr.Exists(key))
	assert.True(t, mr.Exists(redisBreakerKey), "reset leaves the breaker alone")
}

func TestRedisCounterStoreUnavailable(t *testing.T) {
	ctx := context.Background()
	store, mr := newRedisStore(t)
	mr.Close()

	_, _, err := store.Reserve(ctx, "user-1", "2026-06", 10)
	assert.Error(t, err)
	_, err = store.BreakerTripped(ctx)
	assert.Error(t, err)
}

func TestGuardReserveExecution(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	guard := fixedGuard(NewMemoryCounterStore(), 2, FailOpen, now)

	res, err := guard.ReserveExecution(ctx, "user-1")
	require.NoError(t, err)
	assert.True(t, res.Counted)
	assert.Equal(t, "2026-03", res.Period)
	assert.Equal(t, 1, res.Status.ExecutionsUsed)
	assert.Equal(t, 1, res.Status.ExecutionsRemaining)
	assert.Equal(t, time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC), res.Status.ResetAt)

	_, err = guard.ReserveExecution(ctx, "user-1")
	require.NoError(t, err)

	_, err = guard.ReserveExecution(ctx, "user-1")
	var rl *types.RateLimitExceeded
	require.ErrorAs(t, err, &rl)
	assert.Equal(t, 2, rl.Cap)
	assert.Equal(t, 2, rl.Used)
	assert.Equal(t, time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC), rl.ResetAt)

	assert.False(t, guard.CheckCanExecuteAutoGift(ctx, "user-1"))
	assert.True(t, guard.CheckCanExecuteAutoGift(ctx, "user-2"))

	status := guard.GetUserRateLimitStatus(ctx, "user-1")
	assert.Equal(t, 0, status.ExecutionsRemaining)
	assert.Equal(t, 2, status.ExecutionsUsed)
	assert.False(t, status.Degraded)
}

func TestGuardReleaseExecution(t *testing.T) {
	ctx := context.Background()
	guard := fixedGuard(NewMemoryCounterStore(), 1, FailOpen, time.Date(2026, 1, 31, 23, 0, 0, 0, time.UTC))

	res, err := guard.ReserveExecution(ctx, "user-1")
	require.NoError(t, err)
	require.NoError(t, guard.ReleaseExecution(ctx, res))
	assert.Equal(t, 1, guard.GetUserRateLimitStatus(ctx, "user-1").ExecutionsRemaining)

	// uncounted reservations refund nothing
	require.NoError(t, guard.ReleaseExecution(ctx, Reservation{UserID: "user-1", Period: "2026-01"}))
}

func TestGuardCircuitBreaker(t *testing.T) {
	ctx := context.Background()
	guard := NewGuard(NewMemoryCounterStore(), 10, FailOpen)

	assert.True(t, guard.CheckEmergencyCircuitBreaker(ctx))
	require.NoError(t, guard.TripCircuitBreaker(ctx, "payment provider outage"))
	assert.False(t, guard.CheckEmergencyCircuitBreaker(ctx))
	assert.False(t, guard.CheckCanExecuteAutoGift(ctx, "user-1"))

	_, err := guard.ReserveExecution(ctx, "user-1")
	assert.ErrorIs(t, err, types.ErrCircuitBreakerTripped)
	assert.Equal(t, 0, guard.GetUserRateLimitStatus(ctx, "user-1").ExecutionsUsed, "a blocked call takes no quota")

	require.NoError(t, guard.ResetCircuitBreaker(ctx))
	assert.True(t, guard.CheckEmergencyCircuitBreaker(ctx))
}

func TestGuardFailPolicy(t *testing.T) {
	ctx := context.Background()
	store := failingStore{err: errors.New("connection refused")}

	t.Run("open", func(t *testing.T) {
		guard := NewGuard(store, 10, FailOpen)
		assert.True(t, guard.CheckEmergencyCircuitBreaker(ctx))

		res, err := guard.ReserveExecution(ctx, "user-1")
		require.NoError(t, err)
		assert.False(t, res.Counted)
		assert.True(t, res.Status.Degraded)
		assert.Equal(t, 10, res.Status.ExecutionsRemaining)

		status := guard.GetUserRateLimitStatus(ctx, "user-1")
		assert.True(t, status.Degraded)
		assert.Equal(t, 10, status.ExecutionsRemaining)
		assert.True(t, guard.CheckCanExecuteAutoGift(ctx, "user-1"))
	})

	t.Run("closed", func(t *testing.T) {
		guard := NewGuard(store, 10, FailClosed)
		assert.False(t, guard.CheckEmergencyCircuitBreaker(ctx))

		_, err := guard.ReserveExecution(ctx, "user-1")
		assert.ErrorIs(t, err, types.ErrProtectionUnavailable)

		status := guard.GetUserRateLimitStatus(ctx, "user-1")
		assert.True(t, status.Degraded)
		assert.Equal(t, 0, status.ExecutionsRemaining)
		assert.False(t, guard.CheckCanExecuteAutoGift(ctx, "user-1"))
	})

	t.Run("unknown policy defaults open", func(t *testing.T) {
		assert.Equal(t, FailOpen, NewGuard(store, 10, FailPolicy("sometimes")).Policy())
	})
}

func TestGuardDatabaseStoreFailure(t *testing.T) {
	ctx := context.Background()

	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	dbErr := errors.New("too many connections")
	mock.ExpectQuery(`protection_flags`).WillReturnError(dbErr)
	mock.ExpectBegin().WillReturnError(dbErr)

	guard := NewGuard(NewDatabaseCounterStore(db), 10, FailOpen)
	assert.Equal(t, "database", guard.StoreName())

	res, err := guard.ReserveExecution(ctx, "user-1")
	require.NoError(t, err)
	assert.True(t, res.Status.Degraded)
	assert.False(t, res.Counted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGuardResetMonthlyTracking(t *testing.T) {
	ctx := context.Background()
	store, _ := newRedisStore(t)
	guard := NewGuard(store, 3, FailClosed)

	for i := 0; i < 3; i++ {
		_, err := guard.ReserveExecution(ctx, "user-1")
		require.NoError(t, err)
	}
	assert.False(t, guard.CheckCanExecuteAutoGift(ctx, "user-1"))

	require.NoError(t, guard.ResetMonthlyTracking(ctx))
	assert.Equal(t, 3, guard.GetUserRateLimitStatus(ctx, "user-1").ExecutionsRemaining)
}

func TestGuardPrunePastPeriods(t *testing.T) {
	ctx := context.Background()
	store := NewDatabaseCounterStore(newTestDB(t))
	april := time.Date(2026, 4, 30, 23, 59, 0, 0, time.UTC)
	may := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)

	_, err := fixedGuard(store, 3, FailClosed, april).ReserveExecution(ctx, "user-1")
	require.NoError(t, err)

	// an execution lands in the new month before the rollover job runs
	guard := fixedGuard(store, 3, FailClosed, may)
	_, err = guard.ReserveExecution(ctx, "user-1")
	require.NoError(t, err)

	require.NoError(t, guard.PrunePastPeriods(ctx))
	assert.Equal(t, 1, guard.GetUserRateLimitStatus(ctx, "user-1").ExecutionsUsed)

	old, err := store.Used(ctx, "user-1", "2026-04")
	require.NoError(t, err)
	assert.Zero(t, old)

	// running it again on another instance changes nothing
	require.NoError(t, guard.PrunePastPeriods(ctx))
	assert.Equal(t, 1, guard.GetUserRateLimitStatus(ctx, "user-1").ExecutionsUsed)

	failing := NewGuard(failingStore{err: errors.New("down")}, 3, FailClosed)
	assert.Error(t, failing.PrunePastPeriods(ctx))
}

func TestPeriodHelpers(t *testing.T) {
	dec := time.Date(2026, 12, 31, 23, 59, 59, 0, time.UTC)
	assert.Equal(t, "2026-12", period(dec))
	assert.Equal(t, time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC), nextMonthlyReset(dec))

	// the evening of Feb 28 in New York is already March in UTC
	est := time.FixedZone("EST", -5*3600)
	assert.Equal(t, "2026-03", period(time.Date(2026, 2, 28, 22, 0, 0, 0, est)))
}

func TestIsPriorityOccasion(t *testing.T) {
	for _, occasion := range []string{"birthday", "anniversary", "valentines_day", "mothers_day", "fathers_day", "christmas"} {
		assert.True(t, IsPriorityOccasion(occasion), occasion)
	}
	assert.False(t, IsPriorityOccasion("graduation"))
	assert.False(t, IsPriorityOccasion(""))
}
