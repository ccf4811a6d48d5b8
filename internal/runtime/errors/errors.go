package errors

import (
	sterrors "errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrServiceRequired        = sterrors.New("docflow: service is required")
	ErrUnitRequired           = sterrors.New("docflow: compute unit is required")
	ErrInputQueueRequired     = sterrors.New("docflow: input queue is required")
	ErrMiddlewareNameRequired = sterrors.New("docflow: middleware name is required")
	ErrDuplicateMiddleware    = sterrors.New("docflow: middleware already registered")
	ErrPublisherRequired      = sterrors.New("docflow: publisher is required")
	ErrTopicRequired          = sterrors.New("docflow: topic is required")
	ErrStoreRequired          = sterrors.New("docflow: pointer store is required")
	ErrConfigRequired         = sterrors.New("docflow: config is required")
	ErrLoggerRequired         = sterrors.New("docflow: logger is required")
)

// Class tells the delivery harness what to do with a failed item.
type Class int

const (
	// ClassNone means there was no error.
	ClassNone Class = iota
	// ClassTransient failures are left unacknowledged so the substrate redelivers them.
	ClassTransient
	// ClassFatal failures are acknowledged and routed to the dead-letter destination.
	ClassFatal
)

func (c Class) String() string {
	switch c {
	case ClassNone:
		return "none"
	case ClassTransient:
		return "transient"
	case ClassFatal:
		return "fatal"
	default:
		return fmt.Sprintf("class(%d)", int(c))
	}
}

// ValidationError reports a malformed envelope. It is never retried.
type ValidationError struct {
	Field  string
	Reason string
	Cause  error
}

// NewValidationError builds a ValidationError for the given field.
func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

func (e *ValidationError) Error() string {
	var b strings.Builder
	b.WriteString("docflow: invalid event")
	if e.Field != "" {
		b.WriteString(": ")
		b.WriteString(e.Field)
	}
	if e.Reason != "" {
		b.WriteString(" ")
		b.WriteString(e.Reason)
	}
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

func (e *ValidationError) Unwrap() error { return e.Cause }

// ResolutionError reports a reference that cannot be resolved: a missing
// attribute path, an evicted pointer or an unsupported URL scheme.
type ResolutionError struct {
	Reference string
	Cause     error
}

func (e *ResolutionError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("docflow: cannot resolve %s: %v", e.Reference, e.Cause)
	}
	return fmt.Sprintf("docflow: cannot resolve %s", e.Reference)
}

func (e *ResolutionError) Unwrap() error { return e.Cause }

// TransientError marks a failure that may succeed on redelivery.
type TransientError struct {
	Cause error
}

func (e *TransientError) Error() string {
	if e.Cause == nil {
		return "docflow: transient failure"
	}
	return "docflow: transient failure: " + e.Cause.Error()
}

func (e *TransientError) Unwrap() error { return e.Cause }

// RetryAfterError is a transient failure asking for redelivery no sooner
// than Delay, for example when a downstream API is rate limiting.
type RetryAfterError struct {
	Delay time.Duration
	Cause error
}

func (e *RetryAfterError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("docflow: retry after %s", e.Delay)
	}
	return fmt.Sprintf("docflow: retry after %s: %v", e.Delay, e.Cause)
}

func (e *RetryAfterError) Unwrap() error { return e.Cause }

// RetryAfter returns a transient error redelivered after delay.
func RetryAfter(delay time.Duration, cause error) error {
	return &RetryAfterError{Delay: delay, Cause: cause}
}

// RetryDelay returns the delay requested by a RetryAfterError in err's chain.
func RetryDelay(err error) (time.Duration, bool) {
	var retry *RetryAfterError
	if sterrors.As(err, &retry) {
		return retry.Delay, true
	}
	return 0, false
}

// FatalError marks a failure that cannot succeed on redelivery.
type FatalError struct {
	Cause error
}

func (e *FatalError) Error() string {
	if e.Cause == nil {
		return "docflow: fatal failure"
	}
	return "docflow: fatal failure: " + e.Cause.Error()
}

func (e *FatalError) Unwrap() error { return e.Cause }

// ConditionEvaluationError should never be produced: the evaluator is total.
// Seeing one means a defect, so it is classified fatal.
type ConditionEvaluationError struct {
	Cause error
}

func (e *ConditionEvaluationError) Error() string {
	return fmt.Sprintf("docflow: condition evaluation failed: %v", e.Cause)
}

func (e *ConditionEvaluationError) Unwrap() error { return e.Cause }

// Transient wraps err so it is retried through substrate redelivery.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Cause: err}
}

// Fatal wraps err so it is dead-lettered without retry.
func Fatal(err error) error {
	if err == nil {
		return nil
	}
	return &FatalError{Cause: err}
}

// Classify maps an error onto the delivery class. The outermost explicit
// marker wins; unknown errors are treated as transient.
func Classify(err error) Class {
	if err == nil {
		return ClassNone
	}

	for current := err; current != nil; current = sterrors.Unwrap(current) {
		switch current.(type) {
		case *TransientError, *RetryAfterError:
			return ClassTransient
		case *FatalError, *ValidationError, *ResolutionError, *ConditionEvaluationError:
			return ClassFatal
		}
	}

	// errors.Join and friends hide their members from Unwrap() error.
	var (
		validation *ValidationError
		resolution *ResolutionError
		fatal      *FatalError
		condition  *ConditionEvaluationError
	)
	if sterrors.As(err, &fatal) || sterrors.As(err, &validation) || sterrors.As(err, &resolution) || sterrors.As(err, &condition) {
		return ClassFatal
	}

	// Timeouts, cancellations and unclassified errors are retried.
	return ClassTransient
}

// IsTransient reports whether err should be retried.
func IsTransient(err error) bool {
	return Classify(err) == ClassTransient
}

// IsFatal reports whether err should be dead-lettered.
func IsFatal(err error) bool {
	return Classify(err) == ClassFatal
}
