// Package apperr holds the error taxonomy shared by the store, the service and the adapters.
package apperr

import (
	"errors"
	"sort"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrStorageUnavailable = errors.New("storage unavailable")
	ErrIndexMaintenance   = errors.New("index maintenance failure")
	ErrValidation         = errors.New("validation failed")
)

// ValidationError carries field-scoped validation failures keyed by the JSON field name.
type ValidationError struct {
	Fields validation.Errors
}

// NewValidation builds a ValidationError from a single field failure.
func NewValidation(field, msg string) *ValidationError {
	return &ValidationError{Fields: validation.Errors{field: errors.New(msg)}}
}

// AsValidation converts ozzo validation output into a ValidationError.
// Errors that are not field-scoped are returned unchanged.
func AsValidation(err error) error {
	if err == nil {
		return nil
	}
	var ve validation.Errors
	if errors.As(err, &ve) {
		return &ValidationError{Fields: ve}
	}
	return err
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k].Error())
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Is reports ErrValidation so callers can match without a type assertion.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// Merge adds the fields of other, keeping existing messages on collision.
func (e *ValidationError) Merge(other *ValidationError) {
	if other == nil {
		return
	}
	if e.Fields == nil {
		e.Fields = validation.Errors{}
	}
	for k, v := range other.Fields {
		if _, ok := e.Fields[k]; !ok {
			e.Fields[k] = v
		}
	}
}

// FieldMessages flattens the field errors for JSON responses.
func (e *ValidationError) FieldMessages() map[string]string {
	out := make(map[string]string, len(e.Fields))
	for k, v := range e.Fields {
		out[k] = v.Error()
	}
	return out
}
