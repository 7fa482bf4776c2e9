package audit

import (
	"fmt"
)

// WriteError marks a failure inside the mandatory audit path. It is the
// degrade-closed policy: once a mutation has entered the engine, a failed
// audit write aborts the whole transaction, business mutation included.
// This is deliberately the opposite of the session-context middleware,
// which degrades open. Keep the two paths separate; do not unify them
// into a generic recovery.
type WriteError struct {
	Table  string
	Action Action
	Err    error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("audit write failed for %s on %s: %v", e.Action, e.Table, e.Err)
}

func (e *WriteError) Unwrap() error {
	return e.Err
}
