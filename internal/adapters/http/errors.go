package http

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/doteapp/dote/internal/core/domain"
)

// APIError is a structured error response.
type APIError struct {
	Status    int    `json:"status"`
	Code      string `json:"code"`    // bad_request, not_found, walk_too_short, ...
	Message   string `json:"message"` // Human-readable message
	Retryable bool   `json:"retryable,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// newError builds a JSON error response with a request ID.
func newError(c *fiber.Ctx, status int, code string, message string) error {
	reqID, _ := c.Locals("requestid").(string)
	return c.Status(status).JSON(APIError{
		Status:    status,
		Code:      code,
		Message:   message,
		RequestID: reqID,
	})
}

// errBadRequest returns a 400 error.
func errBadRequest(c *fiber.Ctx, msg string) error {
	return newError(c, 400, "bad_request", msg)
}

// errNotFound returns a 404 error.
func errNotFound(c *fiber.Ctx, msg string) error {
	return newError(c, 404, "not_found", msg)
}

// errInternal returns a 500 error.
func errInternal(c *fiber.Ctx, msg string) error {
	return newError(c, 500, "internal_error", msg)
}

// errUnauthorized returns a 401 error.
func errUnauthorized(c *fiber.Ctx, msg string) error {
	return newError(c, 401, "unauthorized", msg)
}

// errConflict returns a 409 error.
func errConflict(c *fiber.Ctx, msg string) error {
	return newError(c, 409, "conflict", msg)
}

// errUnprocessable returns a 422 error.
func errUnprocessable(c *fiber.Ctx, code, msg string) error {
	return newError(c, 422, code, msg)
}

// errUnavailable returns a retryable 503 error.
func errUnavailable(c *fiber.Ctx, msg string) error {
	reqID, _ := c.Locals("requestid").(string)
	return c.Status(503).JSON(APIError{
		Status:    503,
		Code:      "unavailable",
		Message:   msg,
		Retryable: true,
		RequestID: reqID,
	})
}

// writeDomainError maps a service error to its HTTP response. The order
// matters: the state errors are InputErrors too.
func writeDomainError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, domain.ErrSessionNotActive), errors.Is(err, domain.ErrWalkInProgress):
		return errConflict(c, err.Error())
	case errors.Is(err, domain.ErrWalkTooShort):
		return errUnprocessable(c, "walk_too_short", err.Error())
	case errors.Is(err, domain.ErrInvalidInput):
		return errUnprocessable(c, "invalid_input", err.Error())
	case errors.Is(err, domain.ErrNotFound):
		return errNotFound(c, err.Error())
	case errors.Is(err, domain.ErrPersistence):
		LoggerFromCtx(c.UserContext()).Error("persistence failure", "path", c.Path(), "error", err)
		return errUnavailable(c, "walk could not be saved, retry the request")
	default:
		LoggerFromCtx(c.UserContext()).Error("request failed", "path", c.Path(), "error", err)
		return errInternal(c, "internal error")
	}
}
