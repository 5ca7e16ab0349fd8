package repository

import (
	"database/sql"
	"encoding/json"

	apperrors "github.com/allisson/courier/internal/errors"
	"github.com/allisson/courier/internal/operation/domain"
)

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanOperation reads one operation row. JSON columns come back as nullable
// byte slices and map to nil RawMessage when absent.
func scanOperation(row rowScanner) (*domain.Operation, error) {
	var op domain.Operation
	var operationData, result []byte

	err := row.Scan(
		&op.CorrelationID, &op.OperationType, &op.UserID, &op.ChatID, &op.Status, &op.Progress,
		&op.StatusMessage, &operationData, &result, &op.ErrorMessage, &op.ErrorCode,
		&op.CancelReason, &op.CreatedAt, &op.StartedAt, &op.CompletedAt, &op.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(operationData) > 0 {
		op.OperationData = json.RawMessage(operationData)
	}
	if len(result) > 0 {
		op.Result = json.RawMessage(result)
	}
	return &op, nil
}

func scanOperations(rows *sql.Rows) ([]*domain.Operation, error) {
	var operations []*domain.Operation
	for rows.Next() {
		op, err := scanOperation(rows)
		if err != nil {
			return nil, apperrors.Wrap(err, "failed to scan operation")
		}
		operations = append(operations, op)
	}

	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(err, "failed to iterate operations")
	}
	return operations, nil
}

// nullableJSON maps an empty RawMessage to NULL instead of an empty string,
// which JSON columns reject.
func nullableJSON(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return []byte(raw)
}
