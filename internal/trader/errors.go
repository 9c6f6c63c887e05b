package trader

import "fmt"

// InvariantViolationError reports state-machine corruption, e.g. a fill
// observed while a position is already open. It must never occur in a
// correct run; the engine aborts the cycle, preserves state and logs loudly
// instead of silently correcting it.
type InvariantViolationError struct {
	Msg string
}

func (e *InvariantViolationError) Error() string {
	return "invariant violation: " + e.Msg
}

func invariantf(format string, args ...interface{}) error {
	return &InvariantViolationError{Msg: fmt.Sprintf(format, args...)}
}
