package handler

import (
	"context"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
)

const defaultTimeout = 4 * time.Second

type base struct {
	validate *validator.Validate
	timeout  time.Duration
}

func newBase(validate *validator.Validate, timeout time.Duration) base {
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	return base{validate: validate, timeout: timeout}
}

func (b base) ctx(c *fiber.Ctx) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.UserContext(), b.timeout)
}

// parseBody decodes and validates the JSON body into dst. On failure it has
// already written the 400 response and returns ok == false.
func (b base) parseBody(c *fiber.Ctx, dst any) (bool, error) {
	if err := c.BodyParser(dst); err != nil {
		return false, badRequest(c, map[string]string{"_": "error parsing body"})
	}

	if err := b.validate.Struct(dst); err != nil {
		return false, validationFailed(c, err)
	}

	return true, nil
}

func paramID(c *fiber.Ctx, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Params(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}

	return id, true
}

func invalidParam(c *fiber.Ctx, name string) error {
	return badRequest(c, map[string]string{name: name + " is invalid"})
}
