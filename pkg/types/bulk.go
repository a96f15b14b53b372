package types

import (
	pkgerrors "github.com/angelmondragon/packfinderz-fulfillment/pkg/errors"
)

// BulkSuccess is one item a bulk operation applied.
type BulkSuccess struct {
	ID   string `json:"id"`
	Data any    `json:"data,omitempty"`
}

// BulkFailure is one item a bulk operation rejected.
type BulkFailure struct {
	ID    string         `json:"id"`
	Error string         `json:"error"`
	Code  pkgerrors.Code `json:"code"`
}

// BulkResult is the uniform response of bulk operations: each input lands in
// exactly one of Success or Failed.
type BulkResult struct {
	Success []BulkSuccess `json:"success"`
	Failed  []BulkFailure `json:"failed"`
}

func NewBulkResult() BulkResult {
	return BulkResult{Success: []BulkSuccess{}, Failed: []BulkFailure{}}
}

func (r *BulkResult) AddSuccess(id string, data any) {
	r.Success = append(r.Success, BulkSuccess{ID: id, Data: data})
}

// AddFailure records err under its typed code. Internal errors are reported
// with a generic message.
func (r *BulkResult) AddFailure(id string, err error) {
	code := pkgerrors.CodeOf(err)
	message := pkgerrors.MetadataFor(code).PublicMessage
	if typed := pkgerrors.As(err); typed != nil && pkgerrors.IsClientCode(code) {
		message = typed.Message()
	}
	r.Failed = append(r.Failed, BulkFailure{ID: id, Error: message, Code: code})
}

// Total is the number of items processed.
func (r BulkResult) Total() int {
	return len(r.Success) + len(r.Failed)
}
