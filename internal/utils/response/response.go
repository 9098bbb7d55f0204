package response

import (
	"log"

	apperrors "ventureflow/internal/errors"

	"github.com/gofiber/fiber/v2"
)

func Success(c *fiber.Ctx, message string, data interface{}) error {
	return c.JSON(fiber.Map{
		"message": message,
		"data":    data,
	})
}

func Created(c *fiber.Ctx, message string, data interface{}) error {
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message": message,
		"data":    data,
	})
}

func Error(c *fiber.Ctx, status int, message string) error {
	return c.Status(status).JSON(fiber.Map{
		"error": message,
	})
}

func BadRequest(c *fiber.Ctx, message string) error {
	return Error(c, fiber.StatusBadRequest, message)
}

func ServerError(c *fiber.Ctx, message string) error {
	return Error(c, fiber.StatusInternalServerError, message)
}

func Unauthorized(c *fiber.Ctx) error {
	return Error(c, fiber.StatusUnauthorized, "Unauthorized")
}

// FromError writes err as a JSON error body. Domain errors keep their code and
// details; provider failures become 502 with a retriable flag; anything else is
// logged and hidden behind a 500.
func FromError(c *fiber.Ctx, err error) error {
	if pe, ok := apperrors.AsProviderError(err); ok {
		log.Printf("[http] %s %s: provider failure: %v", c.Method(), c.Path(), pe)
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"error":     "payment provider unavailable",
			"code":      "PROVIDER_ERROR",
			"provider":  pe.Provider,
			"retriable": pe.Retriable,
		})
	}

	de, ok := apperrors.As(err)
	if !ok {
		log.Printf("[http] %s %s: %v", c.Method(), c.Path(), err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "internal server error",
			"code":  apperrors.CodeInternal,
		})
	}

	status := StatusFor(de.Code)
	if status == fiber.StatusInternalServerError {
		log.Printf("[http] %s %s: %v", c.Method(), c.Path(), de)
	}

	body := fiber.Map{
		"error": de.Message,
		"code":  de.Code,
	}
	if len(de.Details) > 0 {
		body["details"] = de.Details
	}
	return c.Status(status).JSON(body)
}

// StatusFor maps a domain error code to its HTTP status.
func StatusFor(code string) int {
	switch code {
	case apperrors.CodeValidation, apperrors.CodeEncoding, apperrors.CodeSignatureMismatch:
		return fiber.StatusBadRequest
	case apperrors.CodeUnauthorized:
		return fiber.StatusUnauthorized
	case apperrors.CodeForbidden, apperrors.CodeFraudRejected:
		return fiber.StatusForbidden
	case apperrors.CodeNotFound:
		return fiber.StatusNotFound
	case apperrors.CodeStateConflict, apperrors.CodeStaleState:
		return fiber.StatusConflict
	case apperrors.CodeNotImplemented:
		return fiber.StatusNotImplemented
	default:
		return fiber.StatusInternalServerError
	}
}
