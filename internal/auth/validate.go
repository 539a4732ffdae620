package auth

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/sumire/arena/internal/domain"
)

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	return v
}

// validateInput checks a request struct. Whitespace-only fields count as
// empty. The argument itself is not modified.
func (a *Actions) validateInput(in any) error {
	err := a.validate.Struct(trimmedCopy(in))
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return &domain.AuthError{
			Kind:    domain.KindValidation,
			Field:   fe.Field(),
			Message: fmt.Sprintf("failed on '%s' validation", fe.Tag()),
			Err:     domain.ErrInvalidInput,
		}
	}
	return domain.NewAuthError(domain.KindValidation, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err))
}

func trimmedCopy(in any) any {
	src := reflect.ValueOf(in)
	if src.Kind() != reflect.Struct {
		return in
	}
	dst := reflect.New(src.Type())
	dst.Elem().Set(src)
	for i := 0; i < src.NumField(); i++ {
		f := dst.Elem().Field(i)
		if f.Kind() == reflect.String && f.CanSet() {
			f.SetString(strings.TrimSpace(f.String()))
		}
	}
	return dst.Interface()
}
