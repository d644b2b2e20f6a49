package validator

import (
	"encoding/json"
	"reflect"
	"strings"

	"github.com/SAP-F-2025/form-exam-service/internal/models"
	"github.com/go-playground/validator/v10"
)

// Validator wraps go-playground/validator with the service's custom tags
type Validator struct {
	structValidator *validator.Validate
}

// New creates a validator with all custom tags registered
func New() *Validator {
	structValidator := validator.New(validator.WithRequiredStructEnabled())
	registerCustomValidators(structValidator)

	return &Validator{structValidator: structValidator}
}

// Validate validates struct tags and converts failures into ValidationErrors
func (v *Validator) Validate(s interface{}) error {
	err := v.structValidator.Struct(s)
	if err == nil {
		return nil
	}
	if converted := ToValidationErrors(err); len(converted) > 0 {
		return converted
	}
	return err
}

func registerCustomValidators(validate *validator.Validate) {
	validate.RegisterValidation("violation_type", validateViolationType)
	validate.RegisterValidation("session_status", validateSessionStatus)
	validate.RegisterValidation("json_value", validateJSONValue)

	// Report JSON field names instead of Go field names
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
}

func validateViolationType(fl validator.FieldLevel) bool {
	return models.ViolationType(fl.Field().String()).IsValid()
}

func validateSessionStatus(fl validator.FieldLevel) bool {
	switch models.SessionStatus(fl.Field().String()) {
	case models.SessionInProgress, models.SessionSubmitted, models.SessionViolated:
		return true
	}
	return false
}

// validateJSONValue accepts empty input or well-formed JSON
func validateJSONValue(fl validator.FieldLevel) bool {
	raw := fl.Field().Bytes()
	return len(raw) == 0 || json.Valid(raw)
}
