package model

import (
	"errors"
	"fmt"
)

// ErrAssetMissing is wrapped by every ValidationError about a missing file.
var ErrAssetMissing = errors.New("asset missing")

// ValidationError rejects a submission before any job is created.
type ValidationError struct {
	Field  string `json:"field"`
	Name   string `json:"name,omitempty"`
	Reason string `json:"reason"`
	err    error
}

func (e *ValidationError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("%s %q: %s", e.Field, e.Name, e.Reason)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return e.err }

// MissingAsset reports that the named model file does not exist.
func MissingAsset(field, name string) *ValidationError {
	return &ValidationError{Field: field, Name: name, Reason: "not found", err: ErrAssetMissing}
}

// InvalidField reports a request value that cannot be rendered.
func InvalidField(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}
