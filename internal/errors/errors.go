package errors

import (
	"errors"
	"fmt"
	"time"

	errbuilder "github.com/ZanzyTHEbar/errbuilder-go"
)

// ErrorCategory classifies engine failures for handling and logging.
//
// DegradedInput and Computation are absorbed inside the engine (zero
// defaults and neutral fallbacks); Training, Persistence and Schema are
// the only categories surfaced to callers.
type ErrorCategory string

const (
	CategoryDegradedInput ErrorCategory = "degraded_input"
	CategoryComputation   ErrorCategory = "computation"
	CategoryTraining      ErrorCategory = "training"
	CategoryPersistence   ErrorCategory = "persistence"
	CategorySchema        ErrorCategory = "schema_mismatch"
)

// AppError wraps an errbuilder error with the engine's failure category.
type AppError struct {
	*errbuilder.ErrBuilder
	Category  ErrorCategory `json:"category"`
	Timestamp time.Time     `json:"timestamp"`
}

// Error implements the error interface.
func (e *AppError) Error() string {
	codeStr := "ENGINE_ERROR"
	switch e.Category {
	case CategoryTraining:
		codeStr = "TRAINING_FAILURE"
	case CategoryPersistence:
		codeStr = "PERSISTENCE_FAILURE"
	case CategorySchema:
		codeStr = "SCHEMA_MISMATCH"
	case CategoryComputation:
		codeStr = "COMPUTATION_FAILURE"
	case CategoryDegradedInput:
		codeStr = "DEGRADED_INPUT"
	}

	return fmt.Sprintf("[%s] %s", codeStr, e.ErrBuilder.Msg)
}

// Unwrap returns the underlying cause.
func (e *AppError) Unwrap() error {
	return e.ErrBuilder.Unwrap()
}

// NewAppError creates an AppError from errbuilder with a category.
func NewAppError(builder *errbuilder.ErrBuilder, category ErrorCategory) *AppError {
	return &AppError{
		ErrBuilder: builder,
		Category:   category,
		Timestamp:  time.Now(),
	}
}

// NewTrainingError reports that a train or incremental-update operation
// could not proceed (no usable records, malformed target, member fit
// failure). The registry is left untouched by the failing operation.
func NewTrainingError(message string, cause error) *AppError {
	builder := errbuilder.New().
		WithCode(errbuilder.CodeInvalidArgument).
		WithMsg(message)

	if cause != nil {
		builder = builder.WithCause(cause)
	}

	return NewAppError(builder, CategoryTraining)
}

// NewPersistenceError reports an I/O or deserialization failure while
// persisting or restoring a model registry. No partial state is adopted.
func NewPersistenceError(message string, cause error) *AppError {
	builder := errbuilder.New().
		WithCode(errbuilder.CodeInternal).
		WithMsg(message)

	if cause != nil {
		builder = builder.WithCause(cause)
	}

	return NewAppError(builder, CategoryPersistence)
}

// NewSchemaMismatchError reports a feature-schema disagreement between a
// trained registry and an inference request (version or dimensionality).
func NewSchemaMismatchError(message string, details map[string]any) *AppError {
	builder := errbuilder.New().
		WithCode(errbuilder.CodeFailedPrecondition).
		WithMsg(message)

	if len(details) > 0 {
		errorMap := errbuilder.ErrorMap{}
		for key, value := range details {
			errorMap.Set(key, fmt.Errorf("%v", value))
		}
		builder = builder.WithDetails(errbuilder.NewErrDetails(errorMap))
	}

	return NewAppError(builder, CategorySchema)
}

// IsTrainingFailure reports whether err is a surfaced training failure.
func IsTrainingFailure(err error) bool {
	return hasCategory(err, CategoryTraining)
}

// IsPersistenceFailure reports whether err is a surfaced persistence failure.
func IsPersistenceFailure(err error) bool {
	return hasCategory(err, CategoryPersistence)
}

// IsSchemaMismatch reports whether err is a surfaced schema mismatch.
func IsSchemaMismatch(err error) bool {
	return hasCategory(err, CategorySchema)
}

func hasCategory(err error, category ErrorCategory) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Category == category
	}
	return false
}

// WrapError wraps an error with additional context.
func WrapError(err error, message string, args ...interface{}) error {
	if err == nil {
		return nil
	}

	contextMsg := fmt.Sprintf(message, args...)
	return fmt.Errorf("%s: %w", contextMsg, err)
}
