package http

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/LerianStudio/lib-custody/custody"
)

// ErrorResponse is the structured error schema returned by every handler.
type ErrorResponse struct {
	Code    string `json:"code"`
	Title   string `json:"title"`
	Message string `json:"message"`
}

// OK sends an HTTP 200 OK response with a custom body.
func OK(c *fiber.Ctx, body any) error {
	return c.Status(fiber.StatusOK).JSON(body)
}

// Created sends an HTTP 201 Created response with a custom body.
func Created(c *fiber.Ctx, body any) error {
	return c.Status(fiber.StatusCreated).JSON(body)
}

// WriteError writes a structured error response.
func WriteError(c *fiber.Ctx, status int, code, title, message string) error {
	return c.Status(status).JSON(ErrorResponse{
		Code:    code,
		Title:   title,
		Message: message,
	})
}

// domainStatus maps a custody error code to an HTTP status.
func domainStatus(code custody.ErrorCode) int {
	switch code {
	case custody.ErrorUnauthorizedOwner, custody.ErrorUnauthorizedHeir:
		return fiber.StatusUnauthorized
	case custody.ErrorInvalidSuccessor, custody.ErrorInsufficientBalance:
		return fiber.StatusUnprocessableEntity
	case custody.ErrorOwnerStillActive, custody.ErrorReentrantCall:
		return fiber.StatusConflict
	case custody.ErrorTransferFailed:
		return fiber.StatusBadGateway
	case custody.ErrorInvalidCall, custody.ErrorInvalidInput:
		return fiber.StatusBadRequest
	default:
		return fiber.StatusInternalServerError
	}
}

// domainTitle maps a custody error code to a human-readable title.
func domainTitle(code custody.ErrorCode) string {
	switch code {
	case custody.ErrorUnauthorizedOwner, custody.ErrorUnauthorizedHeir:
		return "Unauthorized"
	case custody.ErrorInvalidSuccessor:
		return "Invalid Successor"
	case custody.ErrorInsufficientBalance:
		return "Insufficient Balance"
	case custody.ErrorOwnerStillActive:
		return "Owner Still Active"
	case custody.ErrorReentrantCall:
		return "Reentrant Call"
	case custody.ErrorTransferFailed:
		return "Transfer Failed"
	case custody.ErrorInvalidCall:
		return "Invalid Call"
	case custody.ErrorInvalidInput:
		return "Invalid Input"
	default:
		return "Internal Error"
	}
}

// writeDomainError maps a vault rejection onto the error schema. Unknown
// errors become a generic 500 without leaking internals.
func writeDomainError(c *fiber.Ctx, err error) error {
	var domainErr custody.DomainError
	if errors.As(err, &domainErr) {
		return WriteError(c, domainStatus(domainErr.Code), string(domainErr.Code),
			domainTitle(domainErr.Code), domainErr.Message)
	}

	return WriteError(c, fiber.StatusInternalServerError, "internal_error",
		"Internal Error", "internal server error")
}
