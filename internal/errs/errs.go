// Package errs defines the typed error kinds shared across the cognitive
// memory runtime.
package errs

import (
	"errors"
	"fmt"
)

// Sentinel kinds. Wrap with fmt.Errorf("...: %w", Kind) to attach context
// and unwrap with errors.Is/errors.As.
var (
	// NotFound indicates a referenced memory, embedding, or association id
	// is absent.
	NotFound = errors.New("not found")

	// InvariantViolated indicates a detected asymmetric association,
	// out-of-range strength, or index mismatch. Fatal to the current
	// operation, never to the process.
	InvariantViolated = errors.New("invariant violated")

	// PersistenceError indicates the underlying storage failed after
	// exhausting its retry budget.
	PersistenceError = errors.New("persistence error")

	// Backpressure indicates a bounded queue or cache is saturated.
	Backpressure = errors.New("backpressure")

	// FeedbackBatchError indicates a feedback batch failed twice as a
	// whole, after which its events are re-attempted one by one.
	FeedbackBatchError = errors.New("feedback batch error")
)

// NotFoundf wraps errs.NotFound with a formatted message.
func NotFoundf(format string, args ...interface{}) error {
	return fmt.Errorf(format+": %w", append(args, NotFound)...)
}

// InvariantViolatedf wraps errs.InvariantViolated with a formatted message.
func InvariantViolatedf(format string, args ...interface{}) error {
	return fmt.Errorf(format+": %w", append(args, InvariantViolated)...)
}

// PersistenceErrorf wraps errs.PersistenceError with a formatted message.
func PersistenceErrorf(format string, args ...interface{}) error {
	return fmt.Errorf(format+": %w", append(args, PersistenceError)...)
}

// Backpressuref wraps errs.Backpressure with a formatted message.
func Backpressuref(format string, args ...interface{}) error {
	return fmt.Errorf(format+": %w", append(args, Backpressure)...)
}
