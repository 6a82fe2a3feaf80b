package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"popjoy/internal/domain"
	applog "popjoy/internal/log"
)

// Error codes returned in the "code" field of failed JSON responses.
const (
	CodeValidation   = "VALIDATION_ERROR"
	CodeNotFound     = "NOT_FOUND"
	CodeInsufficient = "INSUFFICIENT_INVENTORY"
	CodeEventClosed  = "EVENT_CLOSED"
	CodeUnitHeld     = "UNIT_ALLOCATED"
	CodeConflict     = "TRANSACTION_CONFLICT"
	CodeInternal     = "INTERNAL"
	CodeRateLimited  = "RATE_LIMITED"
)

const internalMessage = "Something went wrong. Please try again."

func fail(c *fiber.Ctx, status int, code, msg string, extra fiber.Map) error {
	body := fiber.Map{"success": false, "error": msg, "code": code}
	for k, v := range extra {
		body[k] = v
	}
	return c.Status(status).JSON(body)
}

// respond maps a service error to a status and JSON body and logs it. action
// names the failed operation in the log line.
func respond(c *fiber.Ctx, action string, err error) error {
	var ve *domain.ValidationError
	var short *domain.InsufficientInventoryError
	switch {
	case errors.As(err, &ve):
		applog.Security(c, "validation.fail", map[string]any{"action": action, "field": ve.Field})
		return fail(c, fiber.StatusBadRequest, CodeValidation, ve.Error(), fiber.Map{"field": ve.Field})
	case errors.As(err, &short):
		applog.Warn(c, action+".fail", err, map[string]any{"found": short.Found, "required": short.Required})
		return fail(c, fiber.StatusConflict, CodeInsufficient, short.Error(),
			fiber.Map{"found": short.Found, "required": short.Required})
	case domain.IsNotFound(err):
		return fail(c, fiber.StatusNotFound, CodeNotFound, notFoundMessage(err), nil)
	case errors.Is(err, domain.ErrEventClosed):
		applog.Warn(c, action+".fail", err, nil)
		return fail(c, fiber.StatusConflict, CodeEventClosed, err.Error(), nil)
	case errors.Is(err, domain.ErrUnitAllocated):
		applog.Warn(c, action+".fail", err, nil)
		return fail(c, fiber.StatusConflict, CodeUnitHeld, "unit has an open allocation; release it first", nil)
	case errors.Is(err, domain.ErrTransactionConflict):
		applog.Warn(c, action+".fail", err, nil)
		c.Set(fiber.HeaderRetryAfter, "1")
		return fail(c, fiber.StatusServiceUnavailable, CodeConflict, "the store is busy, retry the request", nil)
	}
	applog.Error(c, action+".fail", err, nil)
	return fail(c, fiber.StatusInternalServerError, CodeInternal, internalMessage, nil)
}

func isValidation(err error) bool { return errors.Is(err, domain.ErrInvalidInput) }

func notFoundMessage(err error) string {
	for _, e := range []error{domain.ErrEventNotFound, domain.ErrUnitNotFound, domain.ErrBatchNotFound,
		domain.ErrVariantNotFound, domain.ErrOwnerNotFound} {
		if errors.Is(err, e) {
			return e.Error()
		}
	}
	return domain.ErrNotFound.Error()
}

func badBody(c *fiber.Ctx, action string, err error) error {
	applog.Security(c, "validation.fail", map[string]any{"action": action, "field": "body", "reason": err.Error()})
	return fail(c, fiber.StatusBadRequest, CodeValidation, "malformed JSON body", nil)
}

// ErrorHandler is the app-wide fallback for errors no handler answered. It
// never leaks internal detail.
func ErrorHandler(c *fiber.Ctx, err error) error {
	var fe *fiber.Error
	if errors.As(err, &fe) && fe.Code < fiber.StatusInternalServerError {
		code := CodeValidation
		if fe.Code == fiber.StatusNotFound {
			code = CodeNotFound
		}
		return fail(c, fe.Code, code, fe.Message, nil)
	}
	applog.Error(c, "server.error", err, nil)
	return fail(c, fiber.StatusInternalServerError, CodeInternal, internalMessage, nil)
}
