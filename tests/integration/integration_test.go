package integration_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/localnerve/autogift/internal/config"
	"github.com/localnerve/autogift/internal/database"
	"github.com/localnerve/autogift/internal/models"
	"github.com/localnerve/autogift/internal/services"
	"github.com/localnerve/autogift/internal/types"
	"github.com/localnerve/autogift/tests/helpers"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"gorm.io/gorm"
)

// TestWithMariaDB tests the service with a real MariaDB container
func TestWithMariaDB(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx := context.Background()

	// Start MariaDB container
	mariadbContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        os.Getenv("DB_IMAGE"),
			ExposedPorts: []string{"3306/tcp"},
			Env: map[string]string{
				"MYSQL_ROOT_PASSWORD": "rootpass",
				"MYSQL_DATABASE":      "testdb",
				"MYSQL_USER":          "testuser",
				"MYSQL_PASSWORD":      "testpass",
			},
			WaitingFor: wait.ForLog("ready for connections").WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("Failed to start MariaDB container: %v", err)
	}
	defer func() {
		if err := mariadbContainer.Terminate(ctx); err != nil {
			t.Logf("Failed to terminate MariaDB container: %v", err)
		}
	}()

	host, err := mariadbContainer.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}

	port, err := mariadbContainer.MappedPort(ctx, "3306")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	cfg := &config.Config{
		DBType:               "mysql",
		DBHost:               host,
		DBPort:               port.Port(),
		DBAppDatabase:        "testdb",
		DBAppUser:            "testuser",
		DBAppPassword:        "testpass",
		DBAppConnectionLimit: 10,
	}

	// Wait for database to be ready
	time.Sleep(5 * time.Second)

	db := connectAndMigrate(t, cfg)
	defer database.Close(db)

	runDatabaseSuite(t, db)
}

// TestWithPostgreSQL tests the service with a real PostgreSQL container
func TestWithPostgreSQL(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx := context.Background()

	// Start PostgreSQL container
	postgresContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        os.Getenv("POSTGRES_IMAGE"),
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_PASSWORD": "testpass",
				"POSTGRES_USER":     "testuser",
				"POSTGRES_DB":       "testdb",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("Failed to start PostgreSQL container: %v", err)
	}
	defer func() {
		if err := postgresContainer.Terminate(ctx); err != nil {
			t.Logf("Failed to terminate container: %v", err)
		}
	}()

	host, err := postgresContainer.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}

	port, err := postgresContainer.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	cfg := &config.Config{
		DBType:               "postgres",
		DBHost:               host,
		DBPort:               port.Port(),
		DBAppDatabase:        "testdb",
		DBAppUser:            "testuser",
		DBAppPassword:        "testpass",
		DBAppConnectionLimit: 10,
	}

	// Wait for database to be ready
	time.Sleep(2 * time.Second)

	db := connectAndMigrate(t, cfg)
	defer database.Close(db)

	runDatabaseSuite(t, db)
}

// TestWithRedis exercises the shared counter store against a real Redis
func TestWithRedis(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx := context.Background()

	redisContainer, addr, err := helpers.StartRedis(ctx)
	if err != nil {
		t.Fatalf("Failed to start Redis container: %v", err)
	}
	defer func() {
		if err := redisContainer.Terminate(ctx); err != nil {
			t.Logf("Failed to terminate Redis container: %v", err)
		}
	}()

	rdb, err := database.ConnectRedis(ctx, "redis://"+addr+"/0")
	if err != nil {
		t.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer rdb.Close()

	store := services.NewRedisCounterStore(rdb)

	t.Run("ConcurrentReserve", func(t *testing.T) {
		testConcurrentReserve(t, store)
	})

	t.Run("CircuitBreaker", func(t *testing.T) {
		testCircuitBreaker(t, store)
	})

	t.Run("HealthCheck", func(t *testing.T) {
		upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
		defer upstream.Close()

		cfg := &config.Config{
			DBType:           "sqlite",
			DBAppDatabase:    "file::memory:",
			AuthzURL:         upstream.URL,
			EdgeFunctionsURL: upstream.URL,
			ProtectionStore:  config.StoreRedis,
		}
		db, err := database.Connect(cfg)
		if err != nil {
			t.Fatalf("Failed to connect to sqlite: %v", err)
		}
		defer database.Close(db)

		result := services.HealthCheck(ctx, cfg, db, rdb)
		if result.Redis != "ok" {
			t.Errorf("Expected redis to be ok, got: %s", result.Redis)
		}
		if result.Status != "healthy" {
			t.Errorf("Expected status to be healthy, got: %s (%s)", result.Status, result.ErrorMessage)
		}
	})
}

func connectAndMigrate(t *testing.T, cfg *config.Config) *gorm.DB {
	db, err := database.Connect(cfg)
	if err != nil {
		t.Fatalf("Failed to connect to database: %v", err)
	}

	if err := database.AutoMigrate(db); err != nil {
		t.Fatalf("Failed to run migrations: %v", err)
	}
	return db
}

func runDatabaseSuite(t *testing.T, db *gorm.DB) {
	t.Run("RuleLifecycle", func(t *testing.T) {
		testRuleLifecycle(t, db)
	})

	t.Run("ConcurrentReserve", func(t *testing.T) {
		testConcurrentReserve(t, services.NewDatabaseCounterStore(db))
	})

	t.Run("CircuitBreaker", func(t *testing.T) {
		testCircuitBreaker(t, services.NewDatabaseCounterStore(db))
	})

	t.Run("EventPurge", func(t *testing.T) {
		testEventPurge(t, db)
	})

	t.Run("HealthCheck", func(t *testing.T) {
		testHealthCheck(t, db)
	})
}

// testRuleLifecycle creates, reads, patches and deletes a rule against a real database
func testRuleLifecycle(t *testing.T, db *gorm.DB) {
	ctx := context.Background()
	events := services.NewEventLog(db, 90*24*time.Hour, nil)
	store := services.NewRuleStore(db, events, time.Minute)

	userID := "10000000-0000-4000-8000-00000000000a"
	recipient := helpers.CreateTestProfile(t, db, "Casey Morgan", "casey@example.com")

	settings, err := store.GetSettings(ctx, userID)
	if err != nil {
		t.Fatalf("Failed to get settings: %v", err)
	}
	if settings.DefaultBudgetLimit != models.DefaultBudgetLimit {
		t.Errorf("Expected default budget %v, got %v", models.DefaultBudgetLimit, settings.DefaultBudgetLimit)
	}

	budget := 80.0
	rule, err := store.CreateRule(ctx, userID, services.RuleInput{
		RecipientID: &recipient.ID,
		DateType:    "Birthday",
		BudgetLimit: &budget,
		GiftSource:  models.GiftSourceWishlist,
	})
	if err != nil {
		t.Fatalf("Failed to create rule: %v", err)
	}
	if rule.DateType != "birthday" {
		t.Errorf("Expected normalized date type, got %s", rule.DateType)
	}
	if rule.Recipient == nil || rule.Recipient.Name != "Casey Morgan" {
		t.Errorf("Expected recipient profile to be loaded, got %+v", rule.Recipient)
	}

	rules, err := store.GetUserRules(ctx, userID)
	if err != nil {
		t.Fatalf("Failed to list rules: %v", err)
	}
	if len(rules) != 1 {
		t.Fatalf("Expected 1 rule, got %d", len(rules))
	}

	inactive := false
	updated, err := store.UpdateRule(ctx, userID, rule.ID, services.RulePatch{IsActive: &inactive})
	if err != nil {
		t.Fatalf("Failed to update rule: %v", err)
	}
	if updated.IsActive {
		t.Error("Expected rule to be inactive")
	}

	var nferr *types.NotFoundError
	if _, err := store.GetRule(ctx, "someone-else", rule.ID); !errors.As(err, &nferr) {
		t.Errorf("Expected rule not found for another user, got: %v", err)
	}

	deleted, err := store.DeleteRule(ctx, userID, rule.ID)
	if err != nil {
		t.Fatalf("Failed to delete rule: %v", err)
	}
	if deleted != 1 {
		t.Errorf("Expected 1 deleted row, got %d", deleted)
	}

	logs, err := events.LoadEventLogs(ctx, userID)
	if err != nil {
		t.Fatalf("Failed to load events: %v", err)
	}
	if len(logs.ByType("rule_created")) != 1 {
		t.Errorf("Expected a rule_created event, got %d events", len(logs))
	}
}

// testConcurrentReserve hammers one user's quota and expects exactly the cap to pass
func testConcurrentReserve(t *testing.T, store services.CounterStore) {
	ctx := context.Background()
	if err := store.ResetAll(ctx); err != nil {
		t.Fatalf("Failed to reset counters: %v", err)
	}

	guard := services.NewGuard(store, 5, services.FailClosed)
	userID := "concurrent-" + store.Name()

	var allowed, limited atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := guard.ReserveExecution(ctx, userID)
			var rle *types.RateLimitExceeded
			switch {
			case err == nil:
				allowed.Add(1)
			case errors.As(err, &rle):
				limited.Add(1)
			default:
				t.Errorf("Unexpected reserve error: %v", err)
			}
		}()
	}
	wg.Wait()

	if allowed.Load() != 5 {
		t.Errorf("Expected 5 reservations, got %d", allowed.Load())
	}
	if limited.Load() != 20 {
		t.Errorf("Expected 20 rate limited, got %d", limited.Load())
	}

	status := guard.GetUserRateLimitStatus(ctx, userID)
	if status.ExecutionsUsed != 5 || status.ExecutionsRemaining != 0 {
		t.Errorf("Unexpected status after reserve: %+v", status)
	}
}

func testCircuitBreaker(t *testing.T, store services.CounterStore) {
	ctx := context.Background()
	guard := services.NewGuard(store, 10, services.FailClosed)

	if err := guard.TripCircuitBreaker(ctx, "integration"); err != nil {
		t.Fatalf("Failed to trip breaker: %v", err)
	}
	if _, err := guard.ReserveExecution(ctx, "breaker-user"); !errors.Is(err, types.ErrCircuitBreakerTripped) {
		t.Errorf("Expected breaker error, got: %v", err)
	}

	if err := guard.ResetCircuitBreaker(ctx); err != nil {
		t.Fatalf("Failed to reset breaker: %v", err)
	}
	if !guard.CheckEmergencyCircuitBreaker(ctx) {
		t.Error("Expected breaker to be closed after reset")
	}
}

// testEventPurge removes only entries past their expiry
func testEventPurge(t *testing.T, db *gorm.DB) {
	ctx := context.Background()
	events := services.NewEventLog(db, time.Hour, nil)

	userID := "purge-user"
	now := time.Now().UTC()
	helpers.CreateTestEvent(t, db, userID, "rule_created", now.Add(-48*time.Hour), now.Add(-24*time.Hour))
	helpers.CreateTestEvent(t, db, userID, "rule_updated", now.Add(-47*time.Hour), now.Add(-23*time.Hour))
	helpers.CreateTestEvent(t, db, userID, "rule_deleted", now, now.Add(24*time.Hour))

	purged, err := events.PurgeExpired(ctx, now)
	if err != nil {
		t.Fatalf("Failed to purge: %v", err)
	}
	if purged != 2 {
		t.Errorf("Expected 2 purged, got %d", purged)
	}

	logs, err := events.LoadEventLogs(ctx, userID)
	if err != nil {
		t.Fatalf("Failed to load events: %v", err)
	}
	if len(logs) != 1 || logs[0].EventType != "rule_deleted" {
		t.Errorf("Expected only the unexpired event to remain, got %+v", logs)
	}
}

// testHealthCheck reports unhealthy while the upstreams are down
func testHealthCheck(t *testing.T, db *gorm.DB) {
	cfg := &config.Config{
		AuthzURL:         "http://localhost:9999", // Non-existent service
		EdgeFunctionsURL: "http://localhost:9998",
		ProtectionStore:  config.StoreDatabase,
	}

	result := services.HealthCheck(context.Background(), cfg, db, nil)

	if result.Database != "ok" {
		t.Errorf("Expected database to be ok, got: %s", result.Database)
	}
	if result.Authorizer != "unreachable" {
		t.Errorf("Expected authorizer to be unreachable, got: %s", result.Authorizer)
	}
	if result.Status != "unhealthy" {
		t.Errorf("Expected status to be unhealthy, got: %s", result.Status)
	}
}
