// executions.go
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

package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/localnerve/autogift/internal/services"
	"github.com/localnerve/autogift/internal/types"
	"github.com/localnerve/autogift/internal/utils"
)

// ExecutionHandler triggers and tracks automatic purchases
type ExecutionHandler struct {
	Executions *services.ExecutionService
}

// Execute handles POST /api/autogift/rules/:id/execute
// @Summary Execute a gift rule now
// @Description Reserves monthly quota, then asks fulfilment to place the order
// @Tags AutoGift
// @Produce json
// @Param id path string true "Rule ID"
// @Success 200 {object} models.AutoGiftExecution
// @Failure 400 {object} utils.ErrorResponseStruct
// @Failure 404 {object} utils.ErrorResponseStruct
// @Failure 429 {object} utils.RateLimitResponseStruct
// @Failure 502 {object} utils.ErrorResponseStruct
// @Failure 503 {object} utils.ErrorResponseStruct
// @Router /autogift/rules/{id}/execute [post]
func (h *ExecutionHandler) Execute(c *fiber.Ctx) error {
	userID, err := getUserID(c)
	if err != nil {
		return utils.ErrorResponse(c, err.Error(), fiber.StatusForbidden, "autogift.authorization.user")
	}

	exec, err := h.Executions.Execute(c.UserContext(), userID, c.Params("id"))
	if err != nil {
		var remote *types.RemoteCallError
		if exec != nil && errors.As(err, &remote) {
			return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
				"status":    fiber.StatusBadGateway,
				"message":   remote.Error(),
				"ok":        false,
				"type":      "remote",
				"url":       c.OriginalURL(),
				"execution": exec,
			})
		}
		return respondError(c, err, "execute")
	}
	return c.Status(fiber.StatusOK).JSON(exec)
}

// ListExecutions handles GET /api/autogift/executions
// @Summary List executions
// @Tags AutoGift
// @Produce json
// @Success 200 {array} models.AutoGiftExecution
// @Failure 403 {object} utils.ErrorResponseStruct
// @Router /autogift/executions [get]
func (h *ExecutionHandler) ListExecutions(c *fiber.Ctx) error {
	userID, err := getUserID(c)
	if err != nil {
		return utils.ErrorResponse(c, err.Error(), fiber.StatusForbidden, "autogift.authorization.user")
	}

	executions, err := h.Executions.ListExecutions(c.UserContext(), userID)
	if err != nil {
		return respondError(c, err, "listExecutions")
	}
	return c.Status(fiber.StatusOK).JSON(executions)
}

// Cancel handles POST /api/autogift/executions/:id/cancel
// @Summary Cancel a pending execution
// @Tags AutoGift
// @Produce json
// @Param id path string true "Execution ID"
// @Success 200 {object} models.AutoGiftExecution
// @Failure 404 {object} utils.ErrorResponseStruct
// @Failure 409 {object} utils.ErrorResponseStruct
// @Router /autogift/executions/{id}/cancel [post]
func (h *ExecutionHandler) Cancel(c *fiber.Ctx) error {
	userID, err := getUserID(c)
	if err != nil {
		return utils.ErrorResponse(c, err.Error(), fiber.StatusForbidden, "autogift.authorization.user")
	}

	exec, err := h.Executions.Cancel(c.UserContext(), userID, c.Params("id"))
	if err != nil {
		return respondError(c, err, "cancelExecution")
	}
	return c.Status(fiber.StatusOK).JSON(exec)
}
