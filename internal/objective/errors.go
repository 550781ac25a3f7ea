package objective

import "errors"

var (
	// ErrInvalidState reports a coefficient set that must not be adopted.
	ErrInvalidState = errors.New("invalid coefficient state")
	// ErrNoPreviousVersion is returned by Rollback when there is no earlier
	// snapshot to restore.
	ErrNoPreviousVersion = errors.New("no previous coefficient version")
)
