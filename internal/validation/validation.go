package validation

import (
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
)

var validate = validator.New()

// Error carries per-field validation failures.
type Error struct {
	Details map[string]string
}

func (e *Error) Error() string {
	return "validation failed"
}

// Struct validates s against its `validate` tags.
func Struct(s any) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err
	}
	out := &Error{Details: make(map[string]string, len(verrs))}
	for _, fe := range verrs {
		out.Details[fe.Field()] = fmt.Sprintf("failed on '%s' tag", fe.Tag())
	}
	return out
}

// Bind parses the JSON body into dst and validates it.
func Bind(c *fiber.Ctx, dst any) error {
	if err := c.BodyParser(dst); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid request body")
	}
	return Struct(dst)
}
