package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound            = errors.New("not found")
	ErrInvalidSchema       = errors.New("invalid json schema")
	ErrValidation          = errors.New("validation failed")
	ErrInvalidTransition   = errors.New("invalid job status transition")
	ErrDuplicateIdentifier = errors.New("duplicate identifier")
)

// Resource names used in error values.
const (
	ResourceService = "service"
	ResourceJob     = "job"
	ResourceJobSet  = "job set"
)

// Violation is a single failed constraint. Field is a slash-separated path
// into the offending document, empty for the document root.
type Violation struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (v Violation) String() string {
	if v.Field == "" {
		return v.Message
	}
	return v.Field + ": " + v.Message
}

type NotFoundError struct {
	Resource string
	ID       string
}

func NewNotFound(resource, id string) *NotFoundError {
	return &NotFoundError{Resource: resource, ID: id}
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Resource, e.ID)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// SchemaError reports that a schema document is not valid JSON Schema.
type SchemaError struct {
	Schema     string
	Violations []Violation
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("%s is not a valid json schema: %s", e.Schema, joinViolations(e.Violations))
}

func (e *SchemaError) Is(target error) bool { return target == ErrInvalidSchema }

// ValidationError carries every violation found in a payload.
type ValidationError struct {
	Violations []Violation
}

func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Violations: []Violation{{Field: field, Message: message}}}
}

func (e *ValidationError) Error() string {
	return "validation failed: " + joinViolations(e.Violations)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

type InvalidTransitionError struct {
	JobID string
	From  JobStatus
	To    JobStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("job %q cannot move from %s to %s", e.JobID, e.From, e.To)
}

func (e *InvalidTransitionError) Is(target error) bool { return target == ErrInvalidTransition }

type DuplicateIdentifierError struct {
	Resource string
	ID       string
}

func (e *DuplicateIdentifierError) Error() string {
	return fmt.Sprintf("a %s with id %q already exists", e.Resource, e.ID)
}

func (e *DuplicateIdentifierError) Is(target error) bool { return target == ErrDuplicateIdentifier }

func joinViolations(vs []Violation) string {
	parts := make([]string, 0, len(vs))
	for _, v := range vs {
		parts = append(parts, v.String())
	}
	return strings.Join(parts, "; ")
}
