package utils

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/localnerve/autogift/internal/types"
)

func timestamp() string {
	return time.Now().UTC().Format(time.RFC3339)
}

// SuccessResponse sends a standard success response
func SuccessResponse(c *fiber.Ctx, data interface{}, status int) error {
	return c.Status(status).JSON(data)
}

// ErrorResponse sends a standard error response
func ErrorResponse(c *fiber.Ctx, message string, status int, errorType string) error {
	return c.Status(status).JSON(fiber.Map{
		"status":    status,
		"message":   message,
		"ok":        false,
		"timestamp": timestamp(),
		"url":       c.OriginalURL(),
		"type":      errorType,
	})
}

// ValidationErrorResponse sends a 400 naming the offending field
func ValidationErrorResponse(c *fiber.Ctx, verr *types.ValidationError) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"status":    fiber.StatusBadRequest,
		"message":   verr.Error(),
		"field":     verr.Field,
		"ok":        false,
		"timestamp": timestamp(),
		"url":       c.OriginalURL(),
		"type":      "validation",
	})
}

// NotFoundResponse sends a 404 not found response
func NotFoundResponse(c *fiber.Ctx, message string) error {
	return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
		"status":    fiber.StatusNotFound,
		"message":   message,
		"ok":        false,
		"timestamp": timestamp(),
		"url":       c.OriginalURL(),
		"type":      "notfound",
	})
}

// RateLimitResponse sends a 429 with the structured reset time
func RateLimitResponse(c *fiber.Ctx, rl *types.RateLimitExceeded) error {
	c.Set(fiber.HeaderRetryAfter, rl.ResetAt.UTC().Format(time.RFC1123))
	return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
		"status":    fiber.StatusTooManyRequests,
		"message":   rl.Error(),
		"ok":        false,
		"cap":       rl.Cap,
		"used":      rl.Used,
		"resetAt":   rl.ResetAt.UTC().Format(time.RFC3339),
		"timestamp": timestamp(),
		"url":       c.OriginalURL(),
		"type":      "ratelimit",
	})
}

// MutationSuccessResponse sends a success response for mutations that return no record
func MutationSuccessResponse(c *fiber.Ctx, affectedRows int64) error {
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"message":      "Success",
		"ok":           true,
		"timestamp":    timestamp(),
		"affectedRows": affectedRows,
	})
}

// ErrorResponseStruct defines the schema for error responses
type ErrorResponseStruct struct {
	Status    int    `json:"status"`
	Message   string `json:"message"`
	Ok        bool   `json:"ok"`
	Timestamp string `json:"timestamp"`
	URL       string `json:"url"`
	Type      string `json:"type,omitempty"`
	Field     string `json:"field,omitempty"`
}

// RateLimitResponseStruct defines the schema for 429 responses
type RateLimitResponseStruct struct {
	ErrorResponseStruct
	Cap     int    `json:"cap"`
	Used    int    `json:"used"`
	ResetAt string `json:"resetAt"`
}

// SuccessResponseStruct defines the schema for mutation success responses
type SuccessResponseStruct struct {
	Message      string `json:"message"`
	Ok           bool   `json:"ok"`
	Timestamp    string `json:"timestamp"`
	AffectedRows int64  `json:"affectedRows"`
}
