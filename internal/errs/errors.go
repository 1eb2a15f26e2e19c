package errs

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	ErrNotFound               = errors.New("not found")
	ErrInsufficientInventory  = errors.New("insufficient inventory")
	ErrInvalidStateTransition = errors.New("invalid state transition")
	ErrAlreadyRefunded        = errors.New("already refunded")
)

// FieldError is one failed check on a field.
type FieldError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ValidationError collects field scoped failures. It is recoverable and is
// reported back to the caller with every field, code and message.
type ValidationError struct {
	Fields map[string][]FieldError `json:"fields"`
	cause  error
}

func NewValidationError(field, code, message string) *ValidationError {
	v := &ValidationError{}
	v.Add(field, code, message)
	return v
}

func (v *ValidationError) Add(field, code, message string) {
	if v.Fields == nil {
		v.Fields = make(map[string][]FieldError)
	}
	v.Fields[field] = append(v.Fields[field], FieldError{Code: code, Message: message})
}

// Merge appends every field error of other. A nil other is ignored.
func (v *ValidationError) Merge(other *ValidationError) {
	if other == nil {
		return
	}
	for field, list := range other.Fields {
		for _, fe := range list {
			v.Add(field, fe.Code, fe.Message)
		}
	}
	if v.cause == nil {
		v.cause = other.cause
	}
}

// WithCause keeps err reachable through errors.Is and errors.As.
func (v *ValidationError) WithCause(err error) *ValidationError {
	v.cause = err
	return v
}

func (v *ValidationError) Empty() bool { return len(v.Fields) == 0 }

// Has reports whether field failed with code.
func (v *ValidationError) Has(field, code string) bool {
	for _, fe := range v.Fields[field] {
		if fe.Code == code {
			return true
		}
	}
	return false
}

func (v *ValidationError) Unwrap() error { return v.cause }

func (v *ValidationError) Error() string {
	fields := make([]string, 0, len(v.Fields))
	for field := range v.Fields {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	parts := make([]string, 0, len(fields))
	for _, field := range fields {
		for _, fe := range v.Fields[field] {
			parts = append(parts, fmt.Sprintf("%s: %s (%s)", field, fe.Message, fe.Code))
		}
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// AsValidation returns the ValidationError inside err, if any.
func AsValidation(err error) (*ValidationError, bool) {
	var v *ValidationError
	if errors.As(err, &v) {
		return v, true
	}
	return nil, false
}

// IsValidation reports whether err carries field code.
func IsValidation(err error, field, code string) bool {
	v, ok := AsValidation(err)
	return ok && v.Has(field, code)
}
