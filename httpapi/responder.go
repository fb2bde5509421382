package httpapi

import (
	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/gofiber/fiber/v2"
	goerrors "github.com/goliatone/go-errors"
	auth "github.com/goliatone/go-fitauth"
)

// ErrorBody is the JSON payload for every error response
type ErrorBody struct {
	Error   string            `json:"error"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// Responder writes errors. Internal causes are logged and never sent.
type Responder struct {
	Logger auth.Logger
}

// Error translates err into a status code and body
func (r Responder) Error(c *fiber.Ctx, err error) error {
	status := auth.HTTPStatus(err)

	body := ErrorBody{
		Error:   auth.TextCodeInternal,
		Message: "internal server error",
	}

	var richErr *goerrors.Error
	if status < fiber.StatusInternalServerError && goerrors.As(err, &richErr) {
		body.Error = richErr.TextCode
		body.Message = richErr.Message
	} else {
		r.Logger.Error("request failed", "method", c.Method(), "path", c.Path(), "error", err)
	}

	if status == fiber.StatusUnauthorized {
		c.Set(fiber.HeaderWWWAuthenticate, "Bearer")
	}

	return c.Status(status).JSON(body)
}

// Validation answers 400 with per field messages
func (r Responder) Validation(c *fiber.Ctx, err error) error {
	body := ErrorBody{
		Error:   auth.TextCodeValidationFailed,
		Message: "validation failed",
		Fields:  map[string]string{},
	}

	if verrs, ok := err.(validation.Errors); ok {
		for field, ferr := range verrs {
			body.Fields[field] = ferr.Error()
		}
	} else {
		body.Message = err.Error()
	}

	return c.Status(fiber.StatusBadRequest).JSON(body)
}

// BadRequest answers 400 for bodies that can not be parsed
func (r Responder) BadRequest(c *fiber.Ctx, err error) error {
	r.Logger.Debug("unable to parse request body", "path", c.Path(), "error", err)
	return c.Status(fiber.StatusBadRequest).JSON(ErrorBody{
		Error:   auth.TextCodeValidationFailed,
		Message: "unable to parse request body",
	})
}
