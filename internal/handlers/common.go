// common.go
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
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/localnerve/autogift/internal/display"
	"github.com/localnerve/autogift/internal/middleware"
	"github.com/localnerve/autogift/internal/models"
	"github.com/localnerve/autogift/internal/types"
	"github.com/localnerve/autogift/internal/utils"
	"github.com/rs/zerolog/log"
)

// getUserID extracts the authenticated user ID from the context
func getUserID(c *fiber.Ctx) (string, error) {
	userID, ok := c.Locals(middleware.LocalUserID).(string)
	if !ok || userID == "" {
		return "", fmt.Errorf("user not found in context")
	}
	return userID, nil
}

// parseList extracts values from query parameters,
// supporting both repeated keys and comma-separated values.
func parseList(c *fiber.Ctx, name string) []string {
	seen := make(map[string]struct{})
	var values []string

	// Visit all query arguments to collect repeated parameters
	args := c.Context().QueryArgs()
	for key, value := range args.All() {
		if string(key) != name {
			continue
		}
		// Split by comma in case the value itself is comma-separated
		for _, v := range strings.Split(string(value), ",") {
			v = strings.TrimSpace(v)
			if v == "" {
				continue
			}
			if _, dup := seen[v]; !dup {
				seen[v] = struct{}{}
				values = append(values, v)
			}
		}
	}

	return values
}

// respondError maps service errors onto HTTP responses
func respondError(c *fiber.Ctx, err error, errorType string) error {
	var (
		verr   *types.ValidationError
		nferr  *types.NotFoundError
		rlerr  *types.RateLimitExceeded
		remote *types.RemoteCallError
		custom *types.CustomError
	)

	switch {
	case errors.As(err, &custom):
		return utils.ErrorResponse(c, custom.Message, custom.Code, custom.Type)
	case errors.As(err, &verr):
		return utils.ValidationErrorResponse(c, verr)
	case errors.As(err, &nferr):
		return utils.NotFoundResponse(c, nferr.Error())
	case errors.As(err, &rlerr):
		return utils.RateLimitResponse(c, rlerr)
	case errors.Is(err, types.ErrCircuitBreakerTripped):
		return utils.ErrorResponse(c, err.Error(), fiber.StatusServiceUnavailable, "circuitbreaker")
	case errors.Is(err, types.ErrProtectionUnavailable):
		return utils.ErrorResponse(c, err.Error(), fiber.StatusServiceUnavailable, "protection")
	case errors.Is(err, types.ErrInvalidTransition):
		return utils.ErrorResponse(c, err.Error(), fiber.StatusConflict, "transition")
	case errors.As(err, &remote):
		return utils.ErrorResponse(c, remote.Error(), fiber.StatusBadGateway, "remote")
	}

	log.Error().Err(err).Str("url", c.OriginalURL()).Str("type", errorType).Msg("request failed")
	return utils.ErrorResponse(c, err.Error(), fiber.StatusInternalServerError, errorType)
}

// ErrorHandler handles errors returned from middleware and handlers
func ErrorHandler(c *fiber.Ctx, err error) error {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		errorType := "unknown"
		if fe.Code == fiber.StatusNotFound {
			errorType = "notfound"
		}
		return utils.ErrorResponse(c, fe.Message, fe.Code, errorType)
	}
	return respondError(c, err, "unknown")
}

// RuleResponse is a rule with its human readable rendering
type RuleResponse struct {
	models.GiftRule
	Display display.RuleDisplay `json:"display"`
}

func newRuleResponse(rule *models.GiftRule) RuleResponse {
	return RuleResponse{GiftRule: *rule, Display: display.Describe(rule)}
}
