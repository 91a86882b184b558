// events.go
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
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/localnerve/autogift/internal/models"
	"github.com/localnerve/autogift/internal/services"
	"github.com/localnerve/autogift/internal/types"
	"github.com/localnerve/autogift/internal/utils"
)

const maxEventBatch = 100

// EventHandler exposes the user's auto-gift event trail
type EventHandler struct {
	Events *services.EventLog
}

// EventRequest is one event posted by a client
type EventRequest struct {
	EventType    string      `json:"event_type"`
	RuleID       *string     `json:"rule_id"`
	ExecutionID  *string     `json:"execution_id"`
	SetupToken   *string     `json:"setup_token"`
	EventData    models.JSON `json:"event_data" swaggertype:"object"`
	Metadata     models.JSON `json:"metadata" swaggertype:"object"`
	ErrorMessage *string     `json:"error_message"`
}

// EventsResponse is a filtered window of events
type EventsResponse struct {
	Events []models.AutoGiftEventLog `json:"events"`
	Total  int                       `json:"total"`
}

// GetEvents handles GET /api/autogift/events
// @Summary List recent events
// @Description The 50 most recent events, optionally filtered by type or view
// @Tags AutoGift
// @Produce json
// @Param type query string false "Comma-separated event types"
// @Param view query string false "setup, execution or errors"
// @Success 200 {object} EventsResponse
// @Failure 400 {object} utils.ErrorResponseStruct
// @Router /autogift/events [get]
func (h *EventHandler) GetEvents(c *fiber.Ctx) error {
	userID, err := getUserID(c)
	if err != nil {
		return utils.ErrorResponse(c, err.Error(), fiber.StatusForbidden, "autogift.authorization.user")
	}

	logs, err := h.Events.LoadEventLogs(c.UserContext(), userID)
	if err != nil {
		return respondError(c, err, "getEvents")
	}

	switch view := c.Query("view"); view {
	case "":
	case "setup":
		logs = logs.SetupFlow()
	case "execution":
		logs = logs.Execution()
	case "errors":
		logs = logs.Errors()
	default:
		return utils.ValidationErrorResponse(c, &types.ValidationError{
			Field:   "view",
			Message: fmt.Sprintf("unknown view %q", view),
		})
	}

	if eventTypes := parseList(c, "type"); len(eventTypes) > 0 {
		filtered := services.EventLogs{}
		for _, t := range eventTypes {
			filtered = append(filtered, logs.ByType(t)...)
		}
		logs = filtered
	}

	events := []models.AutoGiftEventLog(logs)
	if events == nil {
		events = []models.AutoGiftEventLog{}
	}
	return c.Status(fiber.StatusOK).JSON(EventsResponse{Events: events, Total: len(events)})
}

// GetSummary handles GET /api/autogift/events/summary
// @Summary Summarize recent events
// @Tags AutoGift
// @Produce json
// @Success 200 {object} services.EventSummary
// @Router /autogift/events/summary [get]
func (h *EventHandler) GetSummary(c *fiber.Ctx) error {
	userID, err := getUserID(c)
	if err != nil {
		return utils.ErrorResponse(c, err.Error(), fiber.StatusForbidden, "autogift.authorization.user")
	}

	logs, err := h.Events.LoadEventLogs(c.UserContext(), userID)
	if err != nil {
		return respondError(c, err, "getEventSummary")
	}
	return c.Status(fiber.StatusOK).JSON(logs.Summary())
}

// PostEvents handles POST /api/autogift/events
// @Summary Record events
// @Description Accepts a single event object or an array of events
// @Tags AutoGift
// @Accept json
// @Produce json
// @Param body body EventRequest true "Event or array of events"
// @Success 201 {object} utils.SuccessResponseStruct
// @Failure 400 {object} utils.ErrorResponseStruct
// @Router /autogift/events [post]
func (h *EventHandler) PostEvents(c *fiber.Ctx) error {
	userID, err := getUserID(c)
	if err != nil {
		return utils.ErrorResponse(c, err.Error(), fiber.StatusForbidden, "autogift.authorization.user")
	}

	var body types.FlexList[EventRequest]
	if err := c.BodyParser(&body); err != nil {
		return badBody(c, err)
	}

	requests := body.Slice()
	if len(requests) == 0 {
		return utils.ValidationErrorResponse(c, &types.ValidationError{Message: "at least one event is required"})
	}
	if len(requests) > maxEventBatch {
		return utils.ValidationErrorResponse(c, &types.ValidationError{
			Message: fmt.Sprintf("at most %d events per request", maxEventBatch),
		})
	}
	for i, req := range requests {
		if req.EventType == "" {
			return utils.ValidationErrorResponse(c, &types.ValidationError{
				Field:   fmt.Sprintf("[%d].event_type", i),
				Message: "is required",
			})
		}
	}

	var written int64
	for _, req := range requests {
		entry := &models.AutoGiftEventLog{
			UserID:       userID,
			EventType:    req.EventType,
			RuleID:       req.RuleID,
			ExecutionID:  req.ExecutionID,
			SetupToken:   req.SetupToken,
			EventData:    req.EventData,
			Metadata:     req.Metadata,
			ErrorMessage: req.ErrorMessage,
		}
		if err := h.Events.LogEvent(c.UserContext(), entry); err != nil {
			return respondError(c, err, "postEvents")
		}
		written++
	}

	return c.Status(fiber.StatusCreated).JSON(utils.SuccessResponseStruct{
		Message:      "Success",
		Ok:           true,
		Timestamp:    time.Now().UTC().Format(time.RFC3339),
		AffectedRows: written,
	})
}
