package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/localnerve/autogift/internal/config"
	"github.com/localnerve/autogift/internal/services"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// HealthHandler serves the liveness endpoint
type HealthHandler struct {
	Cfg   *config.Config
	DB    *gorm.DB
	Redis redis.UniversalClient
}

// Health handles GET /healthz
// @Summary Service health
// @Tags Health
// @Produce json
// @Success 200 {object} services.HealthCheckResult
// @Failure 503 {object} services.HealthCheckResult
// @Router /healthz [get]
func (h *HealthHandler) Health(c *fiber.Ctx) error {
	result := services.HealthCheck(c.UserContext(), h.Cfg, h.DB, h.Redis)
	status := fiber.StatusOK
	if result.Status != "healthy" {
		status = fiber.StatusServiceUnavailable
	}
	return c.Status(status).JSON(result)
}
