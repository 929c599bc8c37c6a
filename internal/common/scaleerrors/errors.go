// Package scaleerrors contains the generic errors returned throughout the recipe, data and messaging code.
//
// Errors describing why a recipe definition, interface or piece of data is invalid are returned as *ErrValidation
// values carrying a machine-readable code, e.g. CIRCULAR_DEPENDENCY or PARAM_REQUIRED. Problems that are not fatal are
// returned alongside a nil error as a []Warning.
//
// If multiple errors occur in some function, that function should return an error of type multierror.Error from
// package github.com/hashicorp/go-multierror that encapsulates those individual errors.
package scaleerrors

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrAlreadyExists is a generic error to be returned whenever some resource already exists.
// Type and Message are optional and are omitted from the error message if not provided.
type ErrAlreadyExists struct {
	Type    string // Resource type, e.g., "job" or "recipe"
	Value   string // Resource name, e.g., "1234"
	Message string // An optional message to include in the error message
}

func (err *ErrAlreadyExists) Error() (s string) {
	if err.Type != "" {
		s = fmt.Sprintf("resource %q of type %q already exists", err.Value, err.Type)
	} else {
		s = fmt.Sprintf("resource %q already exists", err.Value)
	}
	if err.Message != "" {
		return s + fmt.Sprintf("; %s", err.Message)
	}
	return s
}

// ErrNotFound is a generic error to be returned whenever some resource isn't found.
// See ErrAlreadyExists for more info.
type ErrNotFound struct {
	Type    string
	Value   string
	Message string
}

func (err *ErrNotFound) Error() (s string) {
	if err.Type != "" {
		s = fmt.Sprintf("resource %q of type %q does not exist", err.Value, err.Type)
	} else {
		s = fmt.Sprintf("resource %q does not exist", err.Value)
	}
	if err.Message != "" {
		return s + fmt.Sprintf("; %s", err.Message)
	}
	return s
}

// ErrInvalidArgument is a generic error to be returned on invalid argument.
// Message is optional and is omitted from the error message if not provided.
type ErrInvalidArgument struct {
	Name    string      // Name of the field referred to, e.g., "batchSize"
	Value   interface{} // The invalid value that was provided
	Message string      // An optional message explaining why the value is invalid
}

func (err *ErrInvalidArgument) Error() string {
	if err.Message == "" {
		return fmt.Sprintf("value %q is invalid for field %q", err.Value, err.Name)
	}
	return fmt.Sprintf("value %q is invalid for field %q; %s", err.Value, err.Name, err.Message)
}

// Kinds of validation error.
const (
	KindDefinition = "definition"
	KindInterface  = "interface"
	KindData       = "data"
	KindFilter     = "filter"
	KindForced     = "forced_nodes"
)

// ErrValidation is returned when a recipe definition, interface, piece of data or data filter is invalid.
type ErrValidation struct {
	Kind    string // One of the Kind* constants
	Code    string // Machine-readable reason, e.g., "DUPLICATE_NODE"
	Message string
}

func (err *ErrValidation) Error() string {
	return fmt.Sprintf("invalid %s [%s]: %s", err.Kind, err.Code, err.Message)
}

// NewValidation returns an *ErrValidation annotated with a stack trace.
func NewValidation(kind, code, format string, args ...interface{}) error {
	return errors.WithStack(&ErrValidation{
		Kind:    kind,
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	})
}

// CodeOf returns the code of the first *ErrValidation in the chain of err, or the empty string if there is none.
func CodeOf(err error) string {
	var e *ErrValidation
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// Warning describes a problem that will probably not stop things from working but that an operator should be told
// about, e.g., a media type mismatch between two connected parameters.
type Warning struct {
	Code    string `json:"name"`
	Message string `json:"description"`
}

func (w Warning) String() string {
	return fmt.Sprintf("%s: %s", w.Code, w.Message)
}

// NewWarning returns a Warning with a formatted message.
func NewWarning(code, format string, args ...interface{}) Warning {
	return Warning{Code: code, Message: fmt.Sprintf(format, args...)}
}
