package bindrt

import (
	"errors"
	"fmt"
)

// Rule is the error-signalling convention of a native function. The values match the
// error rules of a binding model.
type Rule string

const (
	// NonZeroIsError treats any non-zero return as a failure code.
	NonZeroIsError Rule = "nonZeroIsError"

	// NegativeIsError treats negative returns as failure codes; other values are results.
	NegativeIsError Rule = "negativeIsError"
)

// Failed reports whether code is a failure under rule. Unknown rules never fail.
func (r Rule) Failed(code int64) bool {
	switch r {
	case NonZeroIsError:
		return code != 0
	case NegativeIsError:
		return code < 0
	default:
		return false
	}
}

var (
	// ErrDisposed is returned by any use of a handle after Dispose.
	ErrDisposed = errors.New("handle already disposed")

	// ErrAdapterInvalid is returned when a callback adapter is looked up after invalidation.
	ErrAdapterInvalid = errors.New("callback adapter invalidated")

	// ErrRegistryClosed is returned by Register on a closed registry.
	ErrRegistryClosed = errors.New("adapter registry closed")
)

// NativeError is a classified failure from a native call.
type NativeError struct {
	Function string
	Rule     Rule
	Code     int64
}

func (e *NativeError) Error() string {
	return fmt.Sprintf("%s failed with code %d (%s)", e.Function, e.Code, e.Rule)
}

// Check classifies a native return code. It returns nil on success.
func Check(function string, rule Rule, code int64) error {
	if !rule.Failed(code) {
		return nil
	}
	return &NativeError{Function: function, Rule: rule, Code: code}
}

// IsNative reports whether err carries a native failure, returning it if so.
func IsNative(err error) (*NativeError, bool) {
	var ne *NativeError
	if errors.As(err, &ne) {
		return ne, true
	}
	return nil, false
}

// Tagged is the result of a call whose error policy returns instead of raising.
type Tagged[T any] struct {
	Value  T
	Failed bool
	Code   int64
}

// OK reports whether the call succeeded.
func (t Tagged[T]) OK() bool { return !t.Failed }

// Err converts a failed tagged result into a *NativeError for function.
func (t Tagged[T]) Err(function string, rule Rule) error {
	if !t.Failed {
		return nil
	}
	return &NativeError{Function: function, Rule: rule, Code: t.Code}
}

// Tag classifies code and pairs it with value. value is dropped on failure.
func Tag[T any](rule Rule, code int64, value T) Tagged[T] {
	if rule.Failed(code) {
		return Tagged[T]{Failed: true, Code: code}
	}
	return Tagged[T]{Value: value}
}
