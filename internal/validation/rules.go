// Package validation provides custom validation rules for the application.
package validation

import (
	"strings"

	validation "github.com/jellydator/validation"

	apperrors "github.com/allisson/courier/internal/errors"
)

// WrapValidationError wraps validation errors as domain ErrInvalidInput
func WrapValidationError(err error) error {
	if err == nil {
		return nil
	}
	return apperrors.Wrap(apperrors.ErrInvalidInput, err.Error())
}

// NotBlank validates that a string is not empty after trimming whitespace
var NotBlank = validation.NewStringRuleWithError(
	func(s string) bool {
		return strings.TrimSpace(s) != ""
	},
	validation.NewError("validation_not_blank", "must not be blank"),
)

// NoWhitespace validates that string doesn't contain leading/trailing whitespace
var NoWhitespace = validation.NewStringRuleWithError(
	func(s string) bool {
		return s == strings.TrimSpace(s)
	},
	validation.NewError("validation_no_whitespace", "must not contain leading or trailing whitespace"),
)

// PositiveIDs validates that an int64 slice contains only positive identifiers
// and no duplicates.
type PositiveIDs struct{}

// Validate checks the slice for non-positive or duplicated ids.
func (p PositiveIDs) Validate(value interface{}) error {
	ids, ok := value.([]int64)
	if !ok {
		return validation.NewError("validation_positive_ids", "must be a list of integer ids")
	}

	seen := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		if id <= 0 {
			return validation.NewError("validation_positive_ids", "ids must be positive")
		}
		if _, dup := seen[id]; dup {
			return validation.NewError("validation_positive_ids", "ids must not repeat")
		}
		seen[id] = struct{}{}
	}

	return nil
}
