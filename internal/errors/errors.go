// Package errors provides structured error types for brain.
package errors

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Code represents a unique error code.
type Code string

// Error codes for brain.
const (
	// Task errors
	CodeTaskNotFound    Code = "TASK_NOT_FOUND"
	CodeProjectNotFound Code = "PROJECT_NOT_FOUND"
	CodeInvalidTask     Code = "TASK_INVALID"

	// Indexer errors
	CodeIndexerUnavailable Code = "INDEXER_UNAVAILABLE"
	CodeIndexerFailed      Code = "INDEXER_FAILED"

	// Runner errors
	CodeRunnerBusy       Code = "RUNNER_BUSY"
	CodeSpawnFailed      Code = "SPAWN_FAILED"
	CodeWorktreeSetup    Code = "WORKTREE_SETUP_FAILED"
	CodeRunnerNotRunning Code = "RUNNER_NOT_RUNNING"

	// Validation errors
	CodeInvalidRequest Code = "INVALID_REQUEST"
	CodeMissingField   Code = "MISSING_FIELD"

	// Section errors
	CodeSectionNotFound Code = "SECTION_NOT_FOUND"
	CodeEntryNotFound   Code = "ENTRY_NOT_FOUND"

	// Storage errors
	CodeStorageFailed Code = "STORAGE_FAILED"
)

// Category groups error codes for HTTP status mapping.
type Category int

const (
	CategoryUnknown Category = iota
	CategoryNotFound
	CategoryBadRequest
	CategoryConflict
	CategoryInternal
	CategoryUnavailable
)

// codeCategories maps error codes to their categories.
var codeCategories = map[Code]Category{
	CodeTaskNotFound:       CategoryNotFound,
	CodeProjectNotFound:    CategoryNotFound,
	CodeInvalidTask:        CategoryBadRequest,
	CodeIndexerUnavailable: CategoryUnavailable,
	CodeIndexerFailed:      CategoryInternal,
	CodeRunnerBusy:         CategoryConflict,
	CodeSpawnFailed:        CategoryInternal,
	CodeWorktreeSetup:      CategoryInternal,
	CodeRunnerNotRunning:   CategoryConflict,
	CodeInvalidRequest:     CategoryBadRequest,
	CodeMissingField:       CategoryBadRequest,
	CodeSectionNotFound:    CategoryNotFound,
	CodeEntryNotFound:      CategoryNotFound,
	CodeStorageFailed:      CategoryInternal,
}

// HTTPStatus returns the HTTP status code for a category.
func (c Category) HTTPStatus() int {
	switch c {
	case CategoryNotFound:
		return 404
	case CategoryBadRequest:
		return 400
	case CategoryConflict:
		return 409
	case CategoryUnavailable:
		return 503
	default:
		return 500
	}
}

// BrainError is the structured error type for brain.
type BrainError struct {
	Code    Code   `json:"code"`
	What    string `json:"what"`
	Details any    `json:"details,omitempty"`
	Cause   error  `json:"-"`
}

// Error implements the error interface.
func (e *BrainError) Error() string {
	var b strings.Builder
	b.WriteString(e.What)
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

// Unwrap returns the underlying cause.
func (e *BrainError) Unwrap() error {
	return e.Cause
}

// Category returns the error category for HTTP status mapping.
func (e *BrainError) Category() Category {
	if cat, ok := codeCategories[e.Code]; ok {
		return cat
	}
	return CategoryUnknown
}

// HTTPStatus returns the appropriate HTTP status code for this error.
func (e *BrainError) HTTPStatus() int {
	return e.Category().HTTPStatus()
}

// MarshalJSON implements json.Marshaler.
func (e *BrainError) MarshalJSON() ([]byte, error) {
	type alias BrainError
	aux := struct {
		*alias
		CauseMsg string `json:"cause,omitempty"`
	}{
		alias: (*alias)(e),
	}
	if e.Cause != nil {
		aux.CauseMsg = e.Cause.Error()
	}
	return json.Marshal(aux)
}

// Is reports whether target is a BrainError with the same code.
func (e *BrainError) Is(target error) bool {
	t, ok := target.(*BrainError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// New creates a BrainError with a code and message.
func New(code Code, format string, args ...any) *BrainError {
	return &BrainError{Code: code, What: fmt.Sprintf(format, args...)}
}

// Wrap creates a BrainError wrapping a cause.
func Wrap(code Code, cause error, format string, args ...any) *BrainError {
	return &BrainError{Code: code, What: fmt.Sprintf(format, args...), Cause: cause}
}

// ErrTaskNotFound returns a not-found error for a task reference.
func ErrTaskNotFound(ref string) *BrainError {
	return New(CodeTaskNotFound, "task %q not found", ref)
}

// ErrProjectNotFound returns a not-found error for a project.
func ErrProjectNotFound(project string) *BrainError {
	return New(CodeProjectNotFound, "project %q not found", project)
}

// ErrIndexerUnavailable returns an error for a missing indexer binary.
func ErrIndexerUnavailable(cause error) *BrainError {
	return Wrap(CodeIndexerUnavailable, cause, "note indexer is not available")
}
