// rules.go
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
	"github.com/gofiber/fiber/v2"
	"github.com/localnerve/autogift/internal/models"
	"github.com/localnerve/autogift/internal/services"
	"github.com/localnerve/autogift/internal/types"
	"github.com/localnerve/autogift/internal/utils"
)

// RuleHandler serves gift settings and rules for the signed-in user
type RuleHandler struct {
	Rules    *services.RuleStore
	Notifier *services.Notifier
}

// SettingsRequest is the PATCH body for gift settings
type SettingsRequest struct {
	DefaultBudgetLimit     *types.FlexFloat64 `json:"default_budget_limit"`
	EmailNotifications     *bool              `json:"email_notifications"`
	PushNotifications      *bool              `json:"push_notifications"`
	NotificationDaysBefore *int               `json:"notification_days_before"`
	DefaultGiftSource      *models.GiftSource `json:"default_gift_source"`
	AutoApproveGifts       *bool              `json:"auto_approve_gifts"`
}

// CreateRuleRequest is the POST body for a new rule
type CreateRuleRequest struct {
	RecipientID           *string            `json:"recipient_id"`
	PendingRecipientEmail *string            `json:"pending_recipient_email"`
	DateType              string             `json:"date_type"`
	ScheduledDate         *types.FlexDate    `json:"scheduled_date" swaggertype:"string"`
	BudgetLimit           *types.FlexFloat64 `json:"budget_limit" swaggertype:"number"`
	GiftSource            models.GiftSource  `json:"gift_source"`
	SpecificProductID     *string            `json:"specific_product_id"`
	Notes                 string             `json:"notes"`
	IsActive              *bool              `json:"is_active"`
}

// UpdateRuleRequest is the PATCH body for a rule. An empty string clears a nullable field.
type UpdateRuleRequest struct {
	RecipientID           *string            `json:"recipient_id"`
	PendingRecipientEmail *string            `json:"pending_recipient_email"`
	DateType              *string            `json:"date_type"`
	ScheduledDate         *types.FlexDate    `json:"scheduled_date" swaggertype:"string"`
	BudgetLimit           *types.FlexFloat64 `json:"budget_limit" swaggertype:"number"`
	GiftSource            *models.GiftSource `json:"gift_source"`
	SpecificProductID     *string            `json:"specific_product_id"`
	Notes                 *string            `json:"notes"`
	IsActive              *bool              `json:"is_active"`
}

func badBody(c *fiber.Ctx, err error) error {
	return utils.ErrorResponse(c, "Invalid request body: "+err.Error(), fiber.StatusBadRequest, "validation")
}

// GetSettings handles GET /api/autogift/settings
// @Summary Get gift settings
// @Description Get the user's auto-gift defaults, creating them on first access
// @Tags AutoGift
// @Produce json
// @Success 200 {object} models.GiftSettings
// @Failure 403 {object} utils.ErrorResponseStruct
// @Failure 500 {object} utils.ErrorResponseStruct
// @Router /autogift/settings [get]
func (h *RuleHandler) GetSettings(c *fiber.Ctx) error {
	userID, err := getUserID(c)
	if err != nil {
		return utils.ErrorResponse(c, err.Error(), fiber.StatusForbidden, "autogift.authorization.user")
	}

	settings, err := h.Rules.GetSettings(c.UserContext(), userID)
	if err != nil {
		return respondError(c, err, "getSettings")
	}
	return c.Status(fiber.StatusOK).JSON(settings)
}

// UpdateSettings handles PATCH /api/autogift/settings
// @Summary Update gift settings
// @Tags AutoGift
// @Accept json
// @Produce json
// @Param body body SettingsRequest true "Fields to change"
// @Success 200 {object} models.GiftSettings
// @Failure 400 {object} utils.ErrorResponseStruct
// @Failure 403 {object} utils.ErrorResponseStruct
// @Router /autogift/settings [patch]
func (h *RuleHandler) UpdateSettings(c *fiber.Ctx) error {
	userID, err := getUserID(c)
	if err != nil {
		return utils.ErrorResponse(c, err.Error(), fiber.StatusForbidden, "autogift.authorization.user")
	}

	var req SettingsRequest
	if err := c.BodyParser(&req); err != nil {
		return badBody(c, err)
	}

	settings, err := h.Rules.UpdateSettings(c.UserContext(), userID, services.SettingsPatch{
		DefaultBudgetLimit:     req.DefaultBudgetLimit.Ptr(),
		EmailNotifications:     req.EmailNotifications,
		PushNotifications:      req.PushNotifications,
		NotificationDaysBefore: req.NotificationDaysBefore,
		DefaultGiftSource:      req.DefaultGiftSource,
		AutoApproveGifts:       req.AutoApproveGifts,
	})
	if err != nil {
		return respondError(c, err, "updateSettings")
	}
	return c.Status(fiber.StatusOK).JSON(settings)
}

// GetRules handles GET /api/autogift/rules
// @Summary List gift rules
// @Description List the user's rules newest first, each with display fields
// @Tags AutoGift
// @Produce json
// @Success 200 {array} RuleResponse
// @Failure 403 {object} utils.ErrorResponseStruct
// @Failure 500 {object} utils.ErrorResponseStruct
// @Router /autogift/rules [get]
func (h *RuleHandler) GetRules(c *fiber.Ctx) error {
	userID, err := getUserID(c)
	if err != nil {
		return utils.ErrorResponse(c, err.Error(), fiber.StatusForbidden, "autogift.authorization.user")
	}

	rules, err := h.Rules.GetUserRules(c.UserContext(), userID)
	if err != nil {
		return respondError(c, err, "getRules")
	}

	out := make([]RuleResponse, len(rules))
	for i := range rules {
		out[i] = newRuleResponse(&rules[i])
	}
	return c.Status(fiber.StatusOK).JSON(out)
}

// CreateRule handles POST /api/autogift/rules
// @Summary Create a gift rule
// @Description Exactly one of recipient_id and pending_recipient_email must be set
// @Tags AutoGift
// @Accept json
// @Produce json
// @Param body body CreateRuleRequest true "Rule"
// @Success 201 {object} RuleResponse
// @Failure 400 {object} utils.ErrorResponseStruct
// @Failure 403 {object} utils.ErrorResponseStruct
// @Router /autogift/rules [post]
func (h *RuleHandler) CreateRule(c *fiber.Ctx) error {
	userID, err := getUserID(c)
	if err != nil {
		return utils.ErrorResponse(c, err.Error(), fiber.StatusForbidden, "autogift.authorization.user")
	}

	var req CreateRuleRequest
	if err := c.BodyParser(&req); err != nil {
		return badBody(c, err)
	}

	rule, err := h.Rules.CreateRule(c.UserContext(), userID, services.RuleInput{
		RecipientID:           req.RecipientID,
		PendingRecipientEmail: req.PendingRecipientEmail,
		DateType:              req.DateType,
		ScheduledDate:         req.ScheduledDate.TimePtr(),
		BudgetLimit:           req.BudgetLimit.Ptr(),
		GiftSource:            req.GiftSource,
		SpecificProductID:     req.SpecificProductID,
		Notes:                 req.Notes,
		IsActive:              req.IsActive,
	})
	if err != nil {
		return respondError(c, err, "createRule")
	}

	if h.Notifier != nil {
		h.Notifier.SendRuleInvitation(c.UserContext(), userID, rule)
	}

	return c.Status(fiber.StatusCreated).JSON(newRuleResponse(rule))
}

// UpdateRule handles PATCH /api/autogift/rules/:id
// @Summary Update a gift rule
// @Tags AutoGift
// @Accept json
// @Produce json
// @Param id path string true "Rule ID"
// @Param body body UpdateRuleRequest true "Fields to change"
// @Success 200 {object} RuleResponse
// @Failure 400 {object} utils.ErrorResponseStruct
// @Failure 404 {object} utils.ErrorResponseStruct
// @Router /autogift/rules/{id} [patch]
func (h *RuleHandler) UpdateRule(c *fiber.Ctx) error {
	userID, err := getUserID(c)
	if err != nil {
		return utils.ErrorResponse(c, err.Error(), fiber.StatusForbidden, "autogift.authorization.user")
	}

	var req UpdateRuleRequest
	if err := c.BodyParser(&req); err != nil {
		return badBody(c, err)
	}

	rule, err := h.Rules.UpdateRule(c.UserContext(), userID, c.Params("id"), services.RulePatch{
		RecipientID:           req.RecipientID,
		PendingRecipientEmail: req.PendingRecipientEmail,
		DateType:              req.DateType,
		ScheduledDate:         req.ScheduledDate.TimePtr(),
		BudgetLimit:           req.BudgetLimit.Ptr(),
		GiftSource:            req.GiftSource,
		SpecificProductID:     req.SpecificProductID,
		Notes:                 req.Notes,
		IsActive:              req.IsActive,
	})
	if err != nil {
		return respondError(c, err, "updateRule")
	}
	return c.Status(fiber.StatusOK).JSON(newRuleResponse(rule))
}

// DeleteRule handles DELETE /api/autogift/rules/:id
// @Summary Delete a gift rule
// @Description Deleting a missing rule succeeds with zero affected rows
// @Tags AutoGift
// @Produce json
// @Param id path string true "Rule ID"
// @Success 200 {object} utils.SuccessResponseStruct
// @Failure 403 {object} utils.ErrorResponseStruct
// @Router /autogift/rules/{id} [delete]
func (h *RuleHandler) DeleteRule(c *fiber.Ctx) error {
	userID, err := getUserID(c)
	if err != nil {
		return utils.ErrorResponse(c, err.Error(), fiber.StatusForbidden, "autogift.authorization.user")
	}

	affected, err := h.Rules.DeleteRule(c.UserContext(), userID, c.Params("id"))
	if err != nil {
		return respondError(c, err, "deleteRule")
	}
	return utils.MutationSuccessResponse(c, affected)
}
