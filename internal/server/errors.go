package server

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/joseph-ayodele/fieldmedia/internal/common"
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Code    string `json:"code"`
	TraceID string `json:"trace_id,omitempty"`
}

// ErrorHandler maps AppError codes and fiber errors onto HTTP statuses.
func ErrorHandler(c *fiber.Ctx, err error) error {
	status := fiber.StatusInternalServerError
	code := common.CodeOf(err)
	message := "internal server error"

	var fe *fiber.Error
	if errors.As(err, &fe) {
		status = fe.Code
		message = fe.Message
		switch status {
		case fiber.StatusBadRequest, fiber.StatusRequestEntityTooLarge:
			code = common.CodeInvalidInput
		case fiber.StatusNotFound, fiber.StatusMethodNotAllowed:
			code = common.CodeNotFound
		}
	} else {
		switch code {
		case common.CodeInvalidInput:
			status = fiber.StatusBadRequest
		case common.CodeNotFound:
			status = fiber.StatusNotFound
		case common.CodeSourceMissing:
			// retryable: the original may reappear
			status = fiber.StatusServiceUnavailable
		case common.CodeQueueFull:
			status = fiber.StatusInsufficientStorage
		}
		if status != fiber.StatusInternalServerError {
			message = err.Error()
		}
	}

	logger := common.LoggerFromContext(c.UserContext(), nil)
	if status >= fiber.StatusInternalServerError {
		logger.Error("request failed", "path", c.Path(), "status", status, "error", err)
	} else {
		logger.Debug("request rejected", "path", c.Path(), "status", status, "error", err)
	}

	return c.Status(status).JSON(ErrorResponse{
		Success: false,
		Error:   message,
		Code:    code,
		TraceID: common.RequestIDFromContext(c.UserContext()),
	})
}

func badRequest(message string) error {
	return common.NewAppError(common.CodeInvalidInput, message, common.ErrInvalidInput)
}
