package serverutils

import (
	"errors"

	"github.com/gofiber/fiber/v2"
)

// ErrorHandlerMiddleware turns errors returned by handlers into the response envelope.
func ErrorHandlerMiddleware() fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		err := ctx.Next()
		if err == nil {
			return nil
		}

		var (
			httpErr  *HTTPError
			fiberErr *fiber.Error
			valErr   *ValidationError
		)
		switch {
		case errors.As(err, &valErr):
			res := ErrorResponse(fiber.StatusBadRequest, valErr.Error())
			res.Data = valErr.Fields
			return ctx.Status(fiber.StatusBadRequest).JSON(res)
		case errors.As(err, &httpErr):
			return ctx.Status(httpErr.Code).JSON(ErrorResponse(httpErr.Code, httpErr.Message))
		case errors.As(err, &fiberErr):
			return ctx.Status(fiberErr.Code).JSON(ErrorResponse(fiberErr.Code, fiberErr.Message))
		default:
			return ctx.Status(fiber.StatusInternalServerError).JSON(ErrorResponse(fiber.StatusInternalServerError, err.Error()))
		}
	}
}
