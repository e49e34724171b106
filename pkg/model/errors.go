package model

import "fmt"

// Kind classifies a component failure. Every component returns a result or
// an *Error; only the orchestrator formats a user-visible message from it.
type Kind string

const (
	KindInputInvalid        Kind = "input_invalid"
	KindIntentUnsupported   Kind = "intent_unsupported"
	KindSQLInvariantFailed  Kind = "sql_invariant_failed"
	KindSQLUnsafe           Kind = "sql_unsafe"
	KindSQLTableForbidden   Kind = "sql_table_forbidden"
	KindSQLExecutionFailed  Kind = "sql_execution_failed"
	KindModelingFailed      Kind = "modeling_failed"
	KindCalculationOverflow Kind = "calculation_overflow"
	KindUpstreamTimeout     Kind = "upstream_timeout"
	KindInternal            Kind = "internal_error"
)

// Error is the structured failure shape carried across component boundaries.
// Fixes holds suggested SQL fragments fed back to the generator on a repair
// round.
type Error struct {
	Kind  Kind
	Msg   string
	Fixes []string
	Err   error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// Retryable reports whether the orchestrator's repair loops may recover from
// this failure. Only invariant and execution failures get a second attempt.
func (e *Error) Retryable() bool {
	return e.Kind == KindSQLInvariantFailed || e.Kind == KindSQLExecutionFailed
}

// NewError builds an *Error with a formatted message.
func NewError(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// WrapError attaches an underlying cause.
func WrapError(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...), Err: err}
}

// AsError extracts an *Error from err, or wraps it as KindInternal.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	if e, ok := err.(*Error); ok {
		return e
	}
	return &Error{Kind: KindInternal, Msg: err.Error(), Err: err}
}
