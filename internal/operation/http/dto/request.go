// Package dto provides data transfer objects for HTTP request and response handling.
package dto

import (
	validation "github.com/jellydator/validation"

	customValidation "github.com/allisson/courier/internal/validation"
)

// CancelOperationRequest represents the request body for cancelling an operation.
type CancelOperationRequest struct {
	Reason string `json:"reason"`
}

// Validate validates the cancel request.
func (r CancelOperationRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Reason, validation.Required, customValidation.NotBlank, validation.Length(1, 255)),
	)
}
