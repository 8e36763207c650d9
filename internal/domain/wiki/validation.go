package wiki

import (
	"errors"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rotisserie/eris"

	"wikiloult/app/internal/domain/errs"
)

var pageNamePattern = regexp.MustCompile(`^[A-Za-z_]+$`)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "" || name == "-" {
			return field.Name
		}
		return name
	})

	if err := v.RegisterValidation("pagename", func(fl validator.FieldLevel) bool {
		return pageNamePattern.MatchString(fl.Field().String())
	}); err != nil {
		panic(err)
	}

	return v
}

type createFields struct {
	Name     string `json:"name" validate:"required,pagename"`
	Title    string `json:"title" validate:"required"`
	Markdown string `json:"content" validate:"required"`
}

type editFields struct {
	Name     string `json:"name" validate:"required"`
	Title    string `json:"title" validate:"required"`
	Markdown string `json:"content" validate:"required"`
}

// validateCreate checks a trimmed create request. Every failure matches
// errs.ErrInvalidName as well as errs.ErrValidation.
func validateCreate(fields createFields) error {
	return toValidationError(validate.Struct(fields), errs.NewInvalidNameError)
}

func validateEdit(fields editFields) error {
	return toValidationError(validate.Struct(fields), errs.NewValidationError)
}

func toValidationError(err error, build func(field, message string) *errs.ValidationError) error {
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return eris.Wrap(err, "validating page input")
	}

	first := fieldErrs[0]
	switch first.Tag() {
	case "required":
		return build(first.Field(), "must not be empty")
	case "pagename":
		return build(first.Field(), "must contain only letters and underscores")
	default:
		return build(first.Field(), "is invalid")
	}
}
