package can

import (
	"sync"
	"time"
)

// pipeDepth is the per-direction queue depth of an in-memory pipe. It
// mirrors a small hardware mailbox: a sender that outruns the reader sees
// ErrBusFull rather than unbounded buffering.
const pipeDepth = 64

// PipeEnd is one endpoint of an in-memory CAN bus.
type PipeEnd struct {
	send chan<- Frame
	recv <-chan Frame

	mu     sync.Mutex
	closed chan struct{}
}

// Pipe returns a connected pair of in-memory bus endpoints. Frames sent on
// one end are received on the other, in order.
func Pipe() (*PipeEnd, *PipeEnd) {
	ab := make(chan Frame, pipeDepth)
	ba := make(chan Frame, pipeDepth)
	a := &PipeEnd{send: ab, recv: ba, closed: make(chan struct{})}
	b := &PipeEnd{send: ba, recv: ab, closed: make(chan struct{})}
	return a, b
}

// Send queues a frame for the peer. Returns ErrBusFull when the queue is
// full and ErrClosed after Close.
func (p *PipeEnd) Send(f Frame) error {
	select {
	case <-p.closed:
		return ErrClosed
	default:
	}

	select {
	case p.send <- f:
		return nil
	default:
		return ErrBusFull
	}
}

// Receive waits up to timeout for a frame from the peer. A zero timeout
// polls.
func (p *PipeEnd) Receive(timeout time.Duration) (Frame, bool, error) {
	select {
	case <-p.closed:
		return Frame{}, false, ErrClosed
	default:
	}

	if timeout <= 0 {
		select {
		case f := <-p.recv:
			return f, true, nil
		default:
			return Frame{}, false, nil
		}
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case f := <-p.recv:
		return f, true, nil
	case <-p.closed:
		return Frame{}, false, ErrClosed
	case <-timer.C:
		return Frame{}, false, nil
	}
}

// Close shuts down this endpoint. The peer keeps draining frames already
// queued.
func (p *PipeEnd) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	select {
	case <-p.closed:
		return nil
	default:
		close(p.closed)
	}
	return nil
}
