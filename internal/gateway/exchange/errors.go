package exchange

import (
	"errors"
	"fmt"
)

// ErrNothingToReduce marks a reduce-only order the venue rejected because
// there is no exposure left to reduce. Callers holding a stale ledger entry
// treat it as "already closed".
var ErrNothingToReduce = errors.New("nothing to reduce")

// Kind classifies a venue failure for the retry policy.
type Kind int

const (
	// KindPermanent failures must not be retried: the same request would
	// fail the same way (rejected filters, bad signature, config mismatch).
	KindPermanent Kind = iota
	// KindTransient failures may succeed on a later attempt: network
	// errors, rate limits, venue unavailability, clock skew.
	KindTransient
)

func (k Kind) String() string {
	if k == KindTransient {
		return "transient"
	}
	return "permanent"
}

// Error wraps a venue failure with its classification. The adapter is the
// only place classification happens; everything above just asks IsTransient.
type Error struct {
	Op   string
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v (%s)", e.Op, e.Err, e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// Transient wraps err as a retryable failure. Returns nil for nil err.
func Transient(op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Op: op, Kind: KindTransient, Err: err}
}

// Permanent wraps err as a terminal failure. Returns nil for nil err.
func Permanent(op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Op: op, Kind: KindPermanent, Err: err}
}

// IsTransient reports whether err (anywhere in its chain) is a classified
// transient venue failure. Unclassified errors count as permanent.
func IsTransient(err error) bool {
	var ee *Error
	return errors.As(err, &ee) && ee.Kind == KindTransient
}
