package handlers

import (
	"errors"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/gofiber/fiber/v2"

	apperrors "github.com/empowerfin/auth-service/pkg/util/errorutil"
)

type validatable interface {
	Validate() error
}

type normalizable interface {
	Normalize()
}

// bind parses the JSON body into dst, normalizes it and validates it.
func bind(c *fiber.Ctx, dst validatable) error {
	if err := c.BodyParser(dst); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if n, ok := dst.(normalizable); ok {
		n.Normalize()
	}
	if err := dst.Validate(); err != nil {
		return validationError(err)
	}
	return nil
}

func validationError(err error) error {
	var fieldErrs validation.Errors
	if errors.As(err, &fieldErrs) {
		details := make(map[string]any, len(fieldErrs))
		for field, fieldErr := range fieldErrs {
			details[field] = fieldErr.Error()
		}
		return apperrors.NewValidationError("invalid payload", details)
	}
	return apperrors.NewValidationError(err.Error(), nil)
}
