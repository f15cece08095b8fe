package core

import (
	"github.com/go-playground/validator/v10"

	"jobtrail/internal/types"
)

// Validator wraps go-playground/validator for request payload validation.
type Validator struct {
	validate *validator.Validate
}

// NewValidator creates a Validator with the domain's custom rules
// registered.
func NewValidator() *Validator {
	v := validator.New()

	// "quota_limit" accepts any value >= -1: a non-negative cap or the
	// unbounded sentinel.
	_ = v.RegisterValidation("quota_limit", func(fl validator.FieldLevel) bool {
		return fl.Field().Int() >= int64(types.Unlimited)
	})

	return &Validator{validate: v}
}

// ValidateStruct validates a decoded request payload against its tags,
// returning a field-keyed AppError on failure.
func (v *Validator) ValidateStruct(s any) error {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}

	details := map[string]any{}
	if verrs, ok := err.(validator.ValidationErrors); ok {
		for _, fe := range verrs {
			details[fe.Field()] = "failed rule: " + fe.Tag()
		}
	}
	return types.NewAppErrorWithDetails(types.ErrCodeValidationMissingField,
		"request validation failed", err, details)
}
