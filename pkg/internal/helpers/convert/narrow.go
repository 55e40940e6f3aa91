// Package convert provides the numeric narrowing used to move OS counters into
// the fixed-width types declared by the metric instruments.
package convert

import (
	"errors"
	"fmt"
	"math"

	"golang.org/x/exp/constraints"
)

// ErrOutOfRange is returned when a value can't be represented in the target type.
var ErrOutOfRange = errors.New("value out of range")

// Int narrows or widens an integer value to the To type, failing instead of
// wrapping around when the value does not fit.
func Int[To, From constraints.Integer](v From) (To, error) {
	to := To(v)
	// round-trip and sign checks catch both truncation and sign flips
	if From(to) != v || (v < 0) != (to < 0) {
		return 0, fmt.Errorf("%w: %v does not fit in %T", ErrOutOfRange, v, to)
	}
	return to, nil
}

// Float validates a floating point counter. NaN and infinite values are not
// valid observations.
func Float[From constraints.Float](v From) (float64, error) {
	f := float64(v)
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%w: %v is not a finite number", ErrOutOfRange, v)
	}
	return f, nil
}
