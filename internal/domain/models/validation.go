package models

import (
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

// validate is shared by every request and summary type in this package.
var validate *validator.Validate

func init() {
	validate = validator.New(validator.WithRequiredStructEnabled())

	_ = validate.RegisterValidation("nonblank", validateNonBlank)
	_ = validate.RegisterValidation("unnumbered", validateUnnumbered)
}

// ValidateStruct runs the struct tags of v.
func ValidateStruct(v any) error {
	return validate.Struct(v)
}

func validateNonBlank(fl validator.FieldLevel) bool {
	return strings.TrimSpace(fl.Field().String()) != ""
}

// numberedStep matches "Step 1", "step-2", "1.", "2)", "10 ..." and similar
// list prefixes.
var numberedStep = regexp.MustCompile(`^(step([\s:\-]|\d|$)|\d+[.):]|\d{2})`)

// IsNumberedStep reports whether a plan step carries a numbering or "Step" prefix.
func IsNumberedStep(step string) bool {
	return numberedStep.MatchString(strings.ToLower(strings.TrimSpace(step)))
}

func validateUnnumbered(fl validator.FieldLevel) bool {
	return !IsNumberedStep(fl.Field().String())
}
