package api

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/papercomputeco/qagent/pkg/embeddings"
	"github.com/papercomputeco/qagent/pkg/generate"
	"github.com/papercomputeco/qagent/pkg/vector"
)

// noContextMessage is returned with 404 when generation finds nothing to
// ground test cases in.
const noContextMessage = "No relevant context found in knowledge base."

// statusFor maps a domain error to an HTTP status code.
func statusFor(err error) int {
	switch {
	case errors.Is(err, generate.ErrNoContext):
		return fiber.StatusNotFound
	case errors.Is(err, embeddings.ErrUnavailable):
		return fiber.StatusBadGateway
	case errors.Is(err, vector.ErrConnection):
		return fiber.StatusServiceUnavailable
	case errors.Is(err, vector.ErrDimensionMismatch), errors.Is(err, vector.ErrModelMismatch):
		return fiber.StatusConflict
	default:
		return fiber.StatusInternalServerError
	}
}

// writeError logs err and writes it as an ErrorResponse with the mapped
// status code.
func (s *Server) writeError(c *fiber.Ctx, err error) error {
	status := statusFor(err)
	if status >= fiber.StatusInternalServerError {
		s.logger.Error("request failed",
			"path", c.Path(),
			"status", status,
			"error", err,
		)
	}

	msg := err.Error()
	if errors.Is(err, generate.ErrNoContext) {
		msg = noContextMessage
	}
	return c.Status(status).JSON(ErrorResponse{Error: msg})
}

// parseBody decodes the JSON body into dst and validates it. On failure it
// has already written a 400 response and returns false.
func (s *Server) parseBody(c *fiber.Ctx, dst any) (bool, error) {
	if err := c.BodyParser(dst); err != nil {
		return false, c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
			Error: "invalid request body",
		})
	}

	if err := s.validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return false, c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: err.Error()})
		}

		fields := make(map[string]string, len(verrs))
		for _, e := range verrs {
			fields[e.Field()] = fmt.Sprintf("failed on '%s' tag", e.Tag())
		}
		return false, c.Status(fiber.StatusBadRequest).JSON(ValidationErrorResponse{
			Error:  "validation failed",
			Fields: fields,
		})
	}

	return true, nil
}
