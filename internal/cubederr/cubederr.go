// Package cubederr defines the typed error kinds that flow out of the
// schema compiler, query compiler, and orchestrator.
package cubederr

import "fmt"

// Kind identifies which layer of the pipeline an error originated in,
// so callers (and the transport that serializes errors to clients) can
// react without string-matching messages.
type Kind string

const (
	// KindConfiguration marks missing or invalid global settings,
	// unrecoverable at startup.
	KindConfiguration Kind = "configuration_error"
	// KindModel marks cube/dimension/measure/relationship invariant
	// violations, or a reference to a non-existent cube. Batched at
	// schema compile time; a compile error leaves the previous schema
	// generation current.
	KindModel Kind = "model_error"
	// KindQuery marks a request malformed at the AST level.
	KindQuery Kind = "query_error"
	// KindExecution marks a backend failure, connection loss,
	// cancellation, or an unexpected error wrapped by the pipeline.
	KindExecution Kind = "execution_error"
	// KindValidation marks a semantic check between parse and execute
	// that is neither a model nor a query error.
	KindValidation Kind = "validation_error"
)

// Error is the typed envelope every public error from this module
// satisfies. Message is human-readable; Kind is machine-readable.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds an Error of the given kind with a formatted message.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap builds an Error of the given kind around an underlying cause.
func Wrap(kind Kind, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: cause}
}

func Configuration(format string, args ...any) *Error {
	return New(KindConfiguration, format, args...)
}

func Model(format string, args ...any) *Error {
	return New(KindModel, format, args...)
}

func Query(format string, args ...any) *Error {
	return New(KindQuery, format, args...)
}

func Execution(cause error, format string, args ...any) *Error {
	return Wrap(KindExecution, cause, format, args...)
}

func Validation(format string, args ...any) *Error {
	return New(KindValidation, format, args...)
}

// ModelProblem is one accumulated invariant violation from schema
// compilation, tagged with the cube it came from.
type ModelProblem struct {
	Cube    string
	Problem string
}

// ModelErrors aggregates every problem found while compiling a schema.
// Any non-empty ModelErrors aborts the compilation as a whole.
type ModelErrors struct {
	Problems []ModelProblem
}

func (e *ModelErrors) Error() string {
	if len(e.Problems) == 1 {
		return fmt.Sprintf("cube %q: %s", e.Problems[0].Cube, e.Problems[0].Problem)
	}
	return fmt.Sprintf("%d schema problems (first: cube %q: %s)", len(e.Problems), e.Problems[0].Cube, e.Problems[0].Problem)
}

func (e *ModelErrors) Kind() Kind { return KindModel }

// Add appends a problem and returns the receiver for chaining.
func (e *ModelErrors) Add(cube, problem string) *ModelErrors {
	e.Problems = append(e.Problems, ModelProblem{Cube: cube, Problem: problem})
	return e
}

func (e *ModelErrors) HasErrors() bool { return len(e.Problems) > 0 }
