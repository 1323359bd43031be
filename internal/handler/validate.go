package handler

import (
	"errors"
	"fmt"
	"io"
	"reflect"
	"strings"
	"sync"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"qrattend/internal/apperr"
	"qrattend/internal/classes"
)

var (
	validatorsOnce sync.Once
	validatorsErr  error
)

func registerValidators() error {
	validatorsOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			validatorsErr = errors.New("unexpected validator engine")
			return
		}
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
		validatorsErr = v.RegisterValidation("classcode", func(fl validator.FieldLevel) bool {
			return classes.ValidCode(classes.NormalizeCode(fl.Field().String()))
		})
	})
	return validatorsErr
}

func bindError(err error) error {
	if errors.Is(err, io.EOF) {
		return apperr.Wrap(apperr.Validation, "Request body is required", errEmptyBody)
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return apperr.Wrap(apperr.Validation, fieldMessage(fe), err)
	}
	return apperr.Wrap(apperr.Validation, "Malformed request body", err)
}

func fieldMessage(fe validator.FieldError) string {
	field := lowerFirst(fe.Field())
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "email":
		return field + " must be a valid email"
	case "min":
		return fmt.Sprintf("%s must be at least %s characters", field, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, fe.Param())
	case "classcode":
		return field + " must be 2-20 letters, digits or dashes"
	default:
		return field + " is invalid"
	}
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}
