package services

import (
	"context"
	"fmt"
	"time"

	"github.com/localnerve/autogift/internal/config"
	"github.com/localnerve/autogift/internal/utils"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// HealthCheckResult represents the result of a health check
type HealthCheckResult struct {
	Status        string            `json:"status"`
	Database      string            `json:"database"`
	Redis         string            `json:"redis,omitempty"`
	Authorizer    string            `json:"authorizer"`
	EdgeFunctions string            `json:"edgeFunctions"`
	Details       map[string]string `json:"details,omitempty"`
	ErrorMessage  string            `json:"error,omitempty"`
}

func (r *HealthCheckResult) fail(component, message string, err error) {
	r.Status = "unhealthy"
	r.Details[component+"_error"] = err.Error()
	if r.ErrorMessage == "" {
		r.ErrorMessage = fmt.Sprintf("%s: %v", message, err)
	} else {
		r.ErrorMessage += fmt.Sprintf("; %s: %v", message, err)
	}
	log.Warn().Err(err).Str("component", component).Msg("Health check failed")
}

// HealthCheck checks the database, Redis when configured, the Authorizer and the edge function host.
// A nil rdb skips the Redis check.
func HealthCheck(ctx context.Context, cfg *config.Config, db *gorm.DB, rdb redis.UniversalClient) HealthCheckResult {
	result := HealthCheckResult{
		Status:  "healthy",
		Details: make(map[string]string),
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	// Check database connectivity
	sqlDB, err := db.DB()
	if err != nil {
		result.Database = "error"
		result.fail("database", "Database connection error", err)
	} else if err := sqlDB.PingContext(ctx); err != nil {
		result.Database = "unreachable"
		result.fail("database", "Database ping failed", err)
	} else {
		result.Database = "ok"
		result.Details["database_type"] = cfg.DBType
		result.Details["database_name"] = cfg.DBAppDatabase
	}

	if rdb != nil {
		if err := rdb.Ping(ctx).Err(); err != nil {
			result.Redis = "unreachable"
			result.fail("redis", "Redis ping failed", err)
		} else {
			result.Redis = "ok"
		}
	}

	if err := utils.PingAuthorizer(ctx, cfg.AuthzURL); err != nil {
		result.Authorizer = "unreachable"
		result.fail("authorizer", "Authorizer ping failed", err)
	} else {
		result.Authorizer = "ok"
		result.Details["authorizer_url"] = cfg.AuthzURL
	}

	if err := utils.PingEdgeFunctions(ctx, cfg.EdgeFunctionsURL); err != nil {
		result.EdgeFunctions = "unreachable"
		result.fail("edge_functions", "Edge functions ping failed", err)
	} else {
		result.EdgeFunctions = "ok"
	}

	result.Details["protection_store"] = cfg.ProtectionStore

	if result.Status == "healthy" {
		log.Debug().Msg("Health check passed - all systems operational")
	}

	return result
}
