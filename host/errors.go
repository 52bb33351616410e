package host

import (
	"fmt"
	"time"
)

// TimeoutError indicates that a command's status reply never arrived.
type TimeoutError struct {
	Operation string
	Timeout   time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s: no reply within %v", e.Operation, e.Timeout)
}

// VerifyError indicates that the image stored after an update does not
// match what was sent.
type VerifyError struct {
	ExpectedSize uint32
	StoredSize   uint32
	ExpectedCRC  uint32
	StoredCRC    uint32
}

func (e *VerifyError) Error() string {
	return fmt.Sprintf("stored image mismatch: size %d (sent %d), checksum 0x%08X (sent 0x%08X)",
		e.StoredSize, e.ExpectedSize, e.StoredCRC, e.ExpectedCRC)
}
