package service

import (
	"errors"
	"math"
	"reflect"
	"strings"

	serrors "github.com/abgdnv/storekeeper/internal/errors"
	"github.com/go-playground/validator/v10"
	"github.com/go-playground/validator/v10/non-standard/validators"
)

// newValidator returns a validator that reports fields by their json names and
// knows the notblank and finite rules.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	// registration only fails for empty tags or nil funcs
	_ = v.RegisterValidation("notblank", validators.NotBlank)
	_ = v.RegisterValidation("finite", finite)
	return v
}

func finite(fl validator.FieldLevel) bool {
	f := fl.Field()
	switch f.Kind() {
	case reflect.Float32, reflect.Float64:
		return !math.IsNaN(f.Float()) && !math.IsInf(f.Float(), 0)
	default:
		return true
	}
}

// validateStruct runs v over s and converts rule failures to a *ValidationError.
func validateStruct(v *validator.Validate, s any) error {
	err := v.Struct(s)
	if err == nil {
		return nil
	}
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return err
	}
	fields := make(map[string]string, len(validationErrors))
	for _, fieldErr := range validationErrors {
		fields[fieldErr.Field()] = "failed on rule: " + fieldErr.Tag()
	}
	return &serrors.ValidationError{Fields: fields}
}
