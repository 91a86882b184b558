package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/localnerve/autogift/internal/services"
	"github.com/localnerve/autogift/internal/utils"
)

// ProtectionHandler reports and administers the execution guard
type ProtectionHandler struct {
	Guard *services.Guard
}

// ProtectionStatusResponse is a user's view of the guard
type ProtectionStatusResponse struct {
	services.RateLimitStatus
	CircuitBreakerOK bool   `json:"circuitBreakerOk"`
	CanExecute       bool   `json:"canExecute"`
	FailPolicy       string `json:"failPolicy"`
}

// CircuitBreakerRequest trips or resets the emergency breaker
type CircuitBreakerRequest struct {
	Tripped bool   `json:"tripped"`
	Reason  string `json:"reason"`
}

// GetStatus handles GET /api/autogift/protection/status
// @Summary Get execution quota and breaker state
// @Tags AutoGift
// @Produce json
// @Success 200 {object} ProtectionStatusResponse
// @Failure 403 {object} utils.ErrorResponseStruct
// @Router /autogift/protection/status [get]
func (h *ProtectionHandler) GetStatus(c *fiber.Ctx) error {
	userID, err := getUserID(c)
	if err != nil {
		return utils.ErrorResponse(c, err.Error(), fiber.StatusForbidden, "autogift.authorization.user")
	}

	ctx := c.UserContext()
	status := h.Guard.GetUserRateLimitStatus(ctx, userID)
	breakerOK := h.Guard.CheckEmergencyCircuitBreaker(ctx)

	return c.Status(fiber.StatusOK).JSON(ProtectionStatusResponse{
		RateLimitStatus:  status,
		CircuitBreakerOK: breakerOK,
		CanExecute:       breakerOK && status.ExecutionsRemaining > 0,
		FailPolicy:       string(h.Guard.Policy()),
	})
}

// SetCircuitBreaker handles POST /api/admin/protection/circuit-breaker
// @Summary Trip or reset the emergency circuit breaker
// @Tags Admin
// @Accept json
// @Produce json
// @Param body body CircuitBreakerRequest true "Breaker state"
// @Success 200 {object} utils.SuccessResponseStruct
// @Failure 400 {object} utils.ErrorResponseStruct
// @Failure 403 {object} utils.ErrorResponseStruct
// @Router /admin/protection/circuit-breaker [post]
func (h *ProtectionHandler) SetCircuitBreaker(c *fiber.Ctx) error {
	var req CircuitBreakerRequest
	if err := c.BodyParser(&req); err != nil {
		return badBody(c, err)
	}

	var err error
	if req.Tripped {
		reason := req.Reason
		if reason == "" {
			reason = "manual"
		}
		err = h.Guard.TripCircuitBreaker(c.UserContext(), reason)
	} else {
		err = h.Guard.ResetCircuitBreaker(c.UserContext())
	}
	if err != nil {
		return respondError(c, err, "setCircuitBreaker")
	}
	return utils.MutationSuccessResponse(c, 1)
}

// ResetMonthly handles POST /api/admin/protection/reset-monthly
// @Summary Clear every user's monthly execution counter
// @Tags Admin
// @Produce json
// @Success 200 {object} utils.SuccessResponseStruct
// @Failure 403 {object} utils.ErrorResponseStruct
// @Router /admin/protection/reset-monthly [post]
func (h *ProtectionHandler) ResetMonthly(c *fiber.Ctx) error {
	if err := h.Guard.ResetMonthlyTracking(c.UserContext()); err != nil {
		return respondError(c, err, "resetMonthly")
	}
	return utils.MutationSuccessResponse(c, 0)
}
