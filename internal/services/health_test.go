package services

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/localnerve/autogift/internal/config"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
)

func TestHealthCheck(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer upstream.Close()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	cfg := &config.Config{
		DBType:           "sqlite",
		DBAppDatabase:    ":memory:",
		AuthzURL:         upstream.URL,
		EdgeFunctionsURL: upstream.URL,
		ProtectionStore:  config.StoreRedis,
	}

	result := HealthCheck(context.Background(), cfg, newTestDB(t), rdb)
	assert.Equal(t, "healthy", result.Status, result.ErrorMessage)
	assert.Equal(t, "ok", result.Database)
	assert.Equal(t, "ok", result.Redis)
	assert.Equal(t, "ok", result.Authorizer)
	assert.Equal(t, "ok", result.EdgeFunctions)
	assert.Equal(t, "redis", result.Details["protection_store"])
}

func TestHealthCheckUnhealthy(t *testing.T) {
	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	downURL := down.URL
	down.Close()

	cfg := &config.Config{
		DBType:           "sqlite",
		AuthzURL:         downURL,
		EdgeFunctionsURL: downURL,
		ProtectionStore:  config.StoreDatabase,
	}

	result := HealthCheck(context.Background(), cfg, newTestDB(t), nil)
	assert.Equal(t, "unhealthy", result.Status)
	assert.Equal(t, "ok", result.Database)
	assert.Empty(t, result.Redis, "redis is skipped without a client")
	assert.Equal(t, "unreachable", result.Authorizer)
	assert.Equal(t, "unreachable", result.EdgeFunctions)
	assert.Contains(t, result.Details, "authorizer_error")
	assert.Contains(t, result.Details, "edge_functions_error")
}
