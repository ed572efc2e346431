package configx

import (
	"reflect"

	"github.com/go-playground/validator/v10"

	"go.eggybyte.com/sysobs/core/errors"
)

// ValidatorOption customizes a validator built by NewValidator.
type ValidatorOption func(*validator.Validate)

// NewValidator returns a validator that reports struct fields by their env
// tag, so failures name the variable an operator has to fix.
func NewValidator(opts ...ValidatorOption) *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(envFieldName)
	for _, opt := range opts {
		opt(v)
	}
	return v
}

func envFieldName(f reflect.StructField) string {
	if name := f.Tag.Get("env"); name != "" && name != "-" {
		return name
	}
	return f.Name
}

// ValidateStruct checks target's validate tags. A nil v uses NewValidator.
func ValidateStruct(v *validator.Validate, target any) error {
	if v == nil {
		v = NewValidator()
	}
	if err := v.Struct(target); err != nil {
		return errors.Wrap(errors.CodeInvalidArgument, "configx.Validate", err)
	}
	return nil
}
