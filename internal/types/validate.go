package types

import (
	"fmt"
	"regexp"

	"github.com/go-playground/validator/v10"
)

var (
	validate *validator.Validate

	// Section ids are path-like: lowercase letters, digits, dot, hyphen,
	// slash-separated. Matches what heading slugs produce.
	sectionRe = regexp.MustCompile(`^[a-z0-9.-]+(/[a-z0-9.-]+)*$`)
)

func init() {
	validate = validator.New()
	_ = validate.RegisterValidation("section", validateSection)
}

func validateSection(fl validator.FieldLevel) bool {
	return sectionRe.MatchString(fl.Field().String())
}

// ValidSection reports whether s is a well-formed section id.
func ValidSection(s string) bool {
	return sectionRe.MatchString(s)
}

// Validate checks the delta's schema. Threshold checks (confidence floor,
// evidence length) are the merger's job; this only covers structural shape.
func (d Delta) Validate() error {
	if err := validate.Struct(d); err != nil {
		return fmt.Errorf("delta %s: %w", d.ID, err)
	}
	return nil
}

// Validate checks the insight's schema.
func (in Insight) Validate() error {
	if err := validate.Struct(in); err != nil {
		return fmt.Errorf("insight %s: %w", in.ID, err)
	}
	return nil
}
