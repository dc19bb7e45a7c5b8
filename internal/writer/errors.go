package writer

import (
	"errors"
	"fmt"
)

var (
	// ErrHandleClosed is returned when appending to a handle which has started rotating
	ErrHandleClosed = errors.New("writer handle is closed")
	ErrCacheClosed  = errors.New("writer cache is closed")
)

// RotationError is returned when a handle could not be finalized. The records appended to the handle
// have not been made visible, so this is fatal for the stage.
type RotationError struct {
	Partition string
	Path      string
	Reason    RotationReason
	Err       error
}

func NewRotationError(partition, path string, reason RotationReason, err error) *RotationError {
	return &RotationError{
		Partition: partition,
		Path:      path,
		Reason:    reason,
		Err:       err,
	}
}

func (e *RotationError) Error() string {
	return fmt.Sprintf("failed to rotate writer for partition %s (%s, rotating due to %s): %s", e.Partition, e.Path, e.Reason, e.Err)
}

func (e *RotationError) Unwrap() error {
	return e.Err
}

func IsRotationError(err error) bool {
	var rotationErr *RotationError
	return errors.As(err, &rotationErr)
}

// WriteError is returned when a record could not be written because the underlying store failed.
// The handle has been rotated; the record itself was not written and can be diverted.
type WriteError struct {
	Partition string
	Err       error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("failed to write record to partition %s: %s", e.Partition, e.Err)
}

func (e *WriteError) Unwrap() error {
	return e.Err
}
