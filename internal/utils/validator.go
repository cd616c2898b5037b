package utils

import (
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/skillcert/proctor-engine/internal/models"
)

// Validator wraps go-playground struct validation with the engine's
// custom tags.
type Validator struct {
	validate *validator.Validate
}

func NewValidator() *Validator {
	v := validator.New()
	registerCustomValidators(v)
	return &Validator{validate: v}
}

// Validate validates struct tags on s.
func (v *Validator) Validate(s interface{}) error {
	return v.validate.Struct(s)
}

func registerCustomValidators(v *validator.Validate) {
	v.RegisterValidation("violation_kind", ValidateViolationKind)
	v.RegisterValidation("attempt_status", ValidateAttemptStatus)

	// Report json field names in validation errors.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
}

func ValidateViolationKind(fl validator.FieldLevel) bool {
	validKinds := []models.ViolationKind{
		models.ViolationNoFace,
		models.ViolationMultipleFaces,
		models.ViolationCellPhone,
	}

	value := fl.Field().String()
	for _, kind := range validKinds {
		if string(kind) == value {
			return true
		}
	}
	return false
}

func ValidateAttemptStatus(fl validator.FieldLevel) bool {
	validStatuses := []models.AttemptStatus{
		models.AttemptInProgress,
		models.AttemptSubmitted,
		models.AttemptExpired,
		models.AttemptTerminated,
	}

	value := fl.Field().String()
	for _, status := range validStatuses {
		if string(status) == value {
			return true
		}
	}
	return false
}
