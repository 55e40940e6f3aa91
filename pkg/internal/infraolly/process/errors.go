package process

import "errors"

var (
	// ErrProcessNotFound is returned when the target process can't be resolved at session start.
	ErrProcessNotFound = errors.New("process not found")
	// ErrIdentityUnavailable is returned when the identity attributes can't be built at session start.
	ErrIdentityUnavailable = errors.New("process identity unavailable")
	// ErrCoreCountUnavailable is returned when the physical core count can't be determined.
	ErrCoreCountUnavailable = errors.New("physical core count unavailable")
	// ErrTickReadFailure reports that the process could not be read during a sampling tick.
	ErrTickReadFailure = errors.New("process counters unreadable")
)
