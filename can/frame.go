package can

import (
	"errors"
	"fmt"
	"time"
)

// MaxPayload is the classic CAN payload limit.
const MaxPayload = 8

// Frame is a classic CAN data frame with an 11-bit identifier.
type Frame struct {
	ID   uint16
	Len  uint8
	Data [MaxPayload]byte
}

// NewFrame builds a frame from a payload slice. Payloads longer than
// MaxPayload are truncated.
func NewFrame(id uint16, payload []byte) Frame {
	f := Frame{ID: id}
	n := copy(f.Data[:], payload)
	f.Len = uint8(n)
	return f
}

// Payload returns the valid portion of the frame data.
func (f Frame) Payload() []byte {
	return f.Data[:f.Len]
}

func (f Frame) String() string {
	return fmt.Sprintf("%03X#% X", f.ID, f.Data[:f.Len])
}

// Bus errors.
var (
	// ErrBusFull is returned by Send when the transmit queue has no slot.
	// Callers decide whether to retry within a budget or drop the frame.
	ErrBusFull = errors.New("can: transmit queue full")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("can: bus closed")
)

// Bus is a minimal CAN endpoint.
//
// Send queues one frame for transmission without blocking; it returns
// ErrBusFull when no transmit slot is free. Receive waits up to timeout for
// the next frame; a zero timeout polls. The ok result reports whether a
// frame arrived.
type Bus interface {
	Send(f Frame) error
	Receive(timeout time.Duration) (f Frame, ok bool, err error)
	Close() error
}
