// Package dto provides data transfer objects for HTTP request and response handling.
package dto

import (
	"encoding/json"
	"time"

	"github.com/allisson/courier/internal/operation/domain"
)

// OperationResponse represents a tracked operation in API responses.
type OperationResponse struct {
	CorrelationID string          `json:"correlation_id"`
	OperationType string          `json:"operation_type"`
	UserID        int64           `json:"user_id"`
	ChatID        *int64          `json:"chat_id,omitempty"`
	Status        string          `json:"status"`
	Progress      int             `json:"progress"`
	StatusMessage *string         `json:"status_message,omitempty"`
	OperationData json.RawMessage `json:"operation_data,omitempty"`
	Result        json.RawMessage `json:"result,omitempty"`
	ErrorMessage  *string         `json:"error_message,omitempty"`
	ErrorCode     *string         `json:"error_code,omitempty"`
	CancelReason  *string         `json:"cancel_reason,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	StartedAt     *time.Time      `json:"started_at,omitempty"`
	CompletedAt   *time.Time      `json:"completed_at,omitempty"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// ToOperationResponse converts a domain operation to an API response.
func ToOperationResponse(op *domain.Operation) OperationResponse {
	return OperationResponse{
		CorrelationID: op.CorrelationID.String(),
		OperationType: op.OperationType,
		UserID:        op.UserID,
		ChatID:        op.ChatID,
		Status:        string(op.Status),
		Progress:      op.Progress,
		StatusMessage: op.StatusMessage,
		OperationData: op.OperationData,
		Result:        op.Result,
		ErrorMessage:  op.ErrorMessage,
		ErrorCode:     op.ErrorCode,
		CancelReason:  op.CancelReason,
		CreatedAt:     op.CreatedAt,
		StartedAt:     op.StartedAt,
		CompletedAt:   op.CompletedAt,
		UpdatedAt:     op.UpdatedAt,
	}
}

// ListOperationsResponse wraps an operation listing.
type ListOperationsResponse struct {
	Operations []OperationResponse `json:"operations"`
}

// ToListOperationsResponse converts domain operations to a list response.
func ToListOperationsResponse(ops []*domain.Operation) ListOperationsResponse {
	data := make([]OperationResponse, 0, len(ops))
	for _, op := range ops {
		data = append(data, ToOperationResponse(op))
	}
	return ListOperationsResponse{Operations: data}
}

// PagedOperationsResponse wraps a paginated operation listing.
type PagedOperationsResponse struct {
	Operations []OperationResponse `json:"operations"`
	Offset     int                 `json:"offset"`
	Limit      int                 `json:"limit"`
	Total      int                 `json:"total"`
}

// ToPagedOperationsResponse converts a page of domain operations to a response.
func ToPagedOperationsResponse(ops []*domain.Operation, offset, limit, total int) PagedOperationsResponse {
	data := make([]OperationResponse, 0, len(ops))
	for _, op := range ops {
		data = append(data, ToOperationResponse(op))
	}
	return PagedOperationsResponse{
		Operations: data,
		Offset:     offset,
		Limit:      limit,
		Total:      total,
	}
}
