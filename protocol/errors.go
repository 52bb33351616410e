package protocol

import "fmt"

// StatusError represents an error status reply from the device.
type StatusError struct {
	// Operation is the command that failed
	Operation string

	// Status is the error code from the reply
	Status Status

	// Context is the command-specific context byte
	Context byte
}

func (e *StatusError) Error() string {
	if e.Status == StatusErrState && e.Context >= BootErrBase {
		return fmt.Sprintf("%s failed: %s (%s)", e.Operation, e.Status, BootError(e.Context))
	}
	return fmt.Sprintf("%s failed: %s (context 0x%02X)", e.Operation, e.Status, e.Context)
}

// IsStatusError returns true if the error is a StatusError.
func IsStatusError(err error) bool {
	_, ok := err.(*StatusError)
	return ok
}
