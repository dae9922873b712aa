package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"

	"relo/internal/apperr"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Decode reads a JSON body into dst and runs struct validation on it.
func Decode(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return apperr.Validation("invalid JSON body", err)
	}
	return Validate(dst)
}

// Validate runs the `validate` struct tags of v.
func Validate(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) {
		msgs := make([]string, 0, len(fieldErrs))
		for _, fe := range fieldErrs {
			msgs = append(msgs, fmt.Sprintf("%s failed %q", strings.ToLower(fe.Field()), fe.Tag()))
		}
		return apperr.Validation(strings.Join(msgs, "; "), err)
	}
	return apperr.Validation("invalid request", err)
}

// ValidateVar checks a single value against a validator tag, e.g. "uuid".
func ValidateVar(name string, v any, tag string) error {
	if err := validate.Var(v, tag); err != nil {
		return apperr.Validation(fmt.Sprintf("%s is invalid", name), err)
	}
	return nil
}
