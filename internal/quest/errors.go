package quest

import (
	"errors"
	"fmt"
)

// Sentinel errors for lifecycle operations. Every failed operation wraps
// exactly one of the first five; callers that only need the boolean view
// use OK.
var (
	ErrNotFound          = errors.New("quest not found")
	ErrInvalidState      = errors.New("invalid state transition")
	ErrGuardFailed       = errors.New("quest guard failed")
	ErrMissingDependency = errors.New("missing dependency")
	ErrNotSupported      = errors.New("operation not supported")

	ErrDuplicate = errors.New("quest id or number already exists")

	ErrTimerExpired = fmt.Errorf("%w: timer window elapsed", ErrGuardFailed)
	ErrTimerRunning = fmt.Errorf("%w: timer window still open", ErrGuardFailed)
)

// OK reports whether an operation succeeded.
func OK(err error) bool {
	return err == nil
}
