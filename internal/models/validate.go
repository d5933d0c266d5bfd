package models

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var imageURLPattern = regexp.MustCompile(`(?i)^https?://.+\.(jpg|jpeg|png|gif|webp|svg)$`)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		_ = validate.RegisterValidation("imageurl", func(fl validator.FieldLevel) bool {
			return imageURLPattern.MatchString(fl.Field().String())
		})
		_ = validate.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
			return strings.TrimSpace(fl.Field().String()) != ""
		})
	})
	return validate
}

var fieldMessages = map[string]string{
	"imageurl": "must be a valid image URL ending in .jpg, .png, .gif, etc.",
	"notblank": "is required",
	"required": "is required",
	"oneof":    "has an unsupported value",
	"max":      "is too long",
}

// Validate checks a submission before anything is stored or sent. The
// returned error is a ValidationFault naming the first offending field.
func Validate(v interface{}) error {
	err := getValidator().Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		msg, ok := fieldMessages[fe.Tag()]
		if !ok {
			msg = "is invalid"
		}
		return NewValidationError(fmt.Sprintf("%s %s", fe.Field(), msg))
	}
	return NewValidationError(err.Error())
}
