package can

import (
	"bufio"
	"fmt"
	"io"
	"time"
)

// slcan bitrate setup codes (Lawicel "Sn" command).
var slcanBitrates = map[int]byte{
	10000:   '0',
	20000:   '1',
	50000:   '2',
	100000:  '3',
	125000:  '4',
	250000:  '5',
	500000:  '6',
	800000:  '7',
	1000000: '8',
}

// slcanQueueDepth bounds the receive queue; frames beyond it are dropped,
// the adapter never blocks its reader on a slow consumer.
const slcanQueueDepth = 256

// SLCAN is a Bus over a serial CAN adapter speaking the Lawicel ASCII
// protocol ("slcan"). Data frames with 11-bit identifiers are encoded as
//
//	t<III><L><DD...>\r
//
// Extended and RTR frames from the adapter are ignored.
type SLCAN struct {
	port io.ReadWriteCloser
	recv chan Frame
	done chan struct{}
}

// OpenSLCAN configures the adapter on port for the given bitrate and opens
// the CAN channel. Supported bitrates are the standard Lawicel set
// (10k..1M); 500000 matches the bootloader's bus.
func OpenSLCAN(port io.ReadWriteCloser, bitrate int) (*SLCAN, error) {
	code, ok := slcanBitrates[bitrate]
	if !ok {
		return nil, fmt.Errorf("slcan: unsupported bitrate %d", bitrate)
	}

	// Terminate any partial command, close a previously open channel, then
	// set the bitrate and open.
	setup := []string{"\r\r\r", "C\r", "S" + string(code) + "\r", "O\r"}
	for _, cmd := range setup {
		if _, err := port.Write([]byte(cmd)); err != nil {
			return nil, fmt.Errorf("slcan: setup write: %w", err)
		}
	}

	s := &SLCAN{
		port: port,
		recv: make(chan Frame, slcanQueueDepth),
		done: make(chan struct{}),
	}
	go s.readLoop()
	return s, nil
}

// Send transmits one frame.
func (s *SLCAN) Send(f Frame) error {
	select {
	case <-s.done:
		return ErrClosed
	default:
	}

	if f.Len > MaxPayload {
		f.Len = MaxPayload
	}
	buf := make([]byte, 0, 6+2*int(f.Len))
	buf = append(buf, 't')
	buf = append(buf, hexNibble(byte(f.ID>>8)&0x07), hexNibble(byte(f.ID>>4)&0x0F), hexNibble(byte(f.ID)&0x0F))
	buf = append(buf, hexNibble(f.Len))
	for _, b := range f.Data[:f.Len] {
		buf = append(buf, hexNibble(b>>4), hexNibble(b&0x0F))
	}
	buf = append(buf, '\r')

	if _, err := s.port.Write(buf); err != nil {
		return fmt.Errorf("slcan: write: %w", err)
	}
	return nil
}

// Receive waits up to timeout for the next frame. A zero timeout polls.
func (s *SLCAN) Receive(timeout time.Duration) (Frame, bool, error) {
	if timeout <= 0 {
		select {
		case f := <-s.recv:
			return f, true, nil
		case <-s.done:
			return Frame{}, false, ErrClosed
		default:
			return Frame{}, false, nil
		}
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case f := <-s.recv:
		return f, true, nil
	case <-s.done:
		return Frame{}, false, ErrClosed
	case <-timer.C:
		return Frame{}, false, nil
	}
}

// Close closes the CAN channel and the underlying port.
func (s *SLCAN) Close() error {
	select {
	case <-s.done:
		return nil
	default:
		close(s.done)
	}
	_, _ = s.port.Write([]byte("C\r"))
	return s.port.Close()
}

// readLoop parses adapter output into frames until the port closes.
func (s *SLCAN) readLoop() {
	r := bufio.NewReader(s.port)
	var line []byte
	for {
		b, err := r.ReadByte()
		if err != nil {
			return
		}
		switch b {
		case '\r', '\a':
			if f, ok := parseSLCANFrame(line); ok {
				select {
				case s.recv <- f:
				default:
					// Queue full: drop, never stall the port.
				}
			}
			line = line[:0]
		default:
			if len(line) < 32 {
				line = append(line, b)
			}
		}
	}
}

// parseSLCANFrame decodes one "t..." line into a frame.
func parseSLCANFrame(line []byte) (Frame, bool) {
	if len(line) < 5 || line[0] != 't' {
		return Frame{}, false
	}

	id, ok := parseHex(line[1:4])
	if !ok {
		return Frame{}, false
	}
	dlc, ok := parseHex(line[4:5])
	if !ok || dlc > MaxPayload {
		return Frame{}, false
	}
	if len(line) < 5+2*int(dlc) {
		return Frame{}, false
	}

	f := Frame{ID: uint16(id), Len: uint8(dlc)}
	for i := 0; i < int(dlc); i++ {
		v, ok := parseHex(line[5+2*i : 7+2*i])
		if !ok {
			return Frame{}, false
		}
		f.Data[i] = byte(v)
	}
	return f, true
}

func hexNibble(v byte) byte {
	const digits = "0123456789ABCDEF"
	return digits[v&0x0F]
}

func parseHex(s []byte) (uint32, bool) {
	var v uint32
	for _, c := range s {
		v <<= 4
		switch {
		case c >= '0' && c <= '9':
			v |= uint32(c - '0')
		case c >= 'A' && c <= 'F':
			v |= uint32(c-'A') + 10
		case c >= 'a' && c <= 'f':
			v |= uint32(c-'a') + 10
		default:
			return 0, false
		}
	}
	return v, true
}
