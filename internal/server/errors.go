package server

import (
	"context"
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/smartsearch/corporate-agent/internal/agent"
	errx "github.com/smartsearch/corporate-agent/internal/core/error"
	logx "github.com/smartsearch/corporate-agent/pkg/logger"
)

// errorHandler maps errors to a status and a safe message. Internal details
// are logged, never sent.
func errorHandler(c *fiber.Ctx, err error) error {
	status, message := classify(err)
	if status >= fiber.StatusInternalServerError {
		logx.Error().Err(err).Str("request_id", requestIDOf(c)).Str("path", c.Path()).Msg("Request failed")
	}
	return c.Status(status).JSON(ErrorResponse{Error: message, RequestID: requestIDOf(c)})
}

func classify(err error) (int, string) {
	var (
		fiberErr *fiber.Error
		verrs    validator.ValidationErrors
	)
	switch {
	case errors.As(err, &fiberErr):
		return fiberErr.Code, fiberErr.Message
	case errors.As(err, &verrs):
		return fiber.StatusBadRequest, validationMessage(verrs)
	case errors.Is(err, agent.ErrEmptyQuestion):
		return fiber.StatusBadRequest, err.Error()
	case errors.Is(err, errx.ErrSessionNotFound):
		return fiber.StatusNotFound, errx.ErrSessionNotFound.Error()
	case errors.Is(err, context.Canceled):
		return fiber.StatusServiceUnavailable, "request cancelled"
	}
	return errx.StatusOf(err), errx.MessageOf(err)
}

func validationMessage(verrs validator.ValidationErrors) string {
	if len(verrs) == 0 {
		return "invalid request"
	}
	fe := verrs[0]
	return "invalid field " + fe.Namespace() + ": failed " + fe.Tag()
}
