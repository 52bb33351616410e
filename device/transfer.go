package device

import "github.com/rhytmics/canboot/protocol"

// Context bytes reported with generic errors during a transfer, identifying
// the flash operation that failed.
const (
	ctxEraseFailed   = 1
	ctxProgramFailed = 2
	ctxMetaFailed    = 3
)

// transfer is the update session state machine: Idle -> Receiving -> Idle.
// Success and every protocol failure return to Idle; there is no separate
// error state. The state is pure value data, so a superseding START needs
// no teardown.
type transfer struct {
	receiving bool
	expected  uint32
	received  uint32
	crc       protocol.CRC
	writeAddr uint32

	// staging accumulates sub-granularity bytes until a full program word
	// can be flushed.
	staging    [ProgramAlign]byte
	stagingLen int
}

// start handles a START command: bounds-check the declared size, erase the
// application region synchronously and reset the session. A START while
// receiving silently discards the prior session.
func (t *transfer) start(mgr *Manager, size uint32) protocol.StatusReply {
	if size == 0 || size > mgr.Layout().AppMaxSize() {
		return protocol.StatusReply{Status: protocol.StatusErrRange}
	}

	if err := mgr.EraseAppRegion(); err != nil {
		t.receiving = false
		return protocol.StatusReply{Status: protocol.StatusErrGeneric, Context: ctxEraseFailed}
	}

	t.receiving = true
	t.expected = size
	t.received = 0
	t.writeAddr = mgr.Layout().AppStart()
	t.stagingLen = 0
	t.crc.Reset()
	return protocol.StatusReply{Status: protocol.StatusOK}
}

// data handles a DATA command: push the chunk through the staging buffer,
// flushing one aligned program write each time it fills. The checksum
// covers exactly the accepted bytes, never the padding. A chunk that would
// exceed the declared size is rejected whole.
func (t *transfer) data(mgr *Manager, chunk []byte) protocol.StatusReply {
	if !t.receiving {
		return protocol.StatusReply{Status: protocol.StatusErrState}
	}
	if t.received+uint32(len(chunk)) > t.expected {
		return protocol.StatusReply{Status: protocol.StatusErrRange}
	}

	if err := t.push(mgr, chunk); err != nil {
		t.receiving = false
		return protocol.StatusReply{Status: protocol.StatusErrGeneric, Context: ctxProgramFailed}
	}

	t.crc.Update(chunk)
	t.received += uint32(len(chunk))
	return protocol.StatusReply{Status: protocol.StatusOK}
}

// finish handles an END command: verify the byte count and checksum against
// the host's values, flush the padded staging remainder and commit the
// metadata record. Metadata is written last; on any mismatch the image
// stays untrusted.
func (t *transfer) finish(mgr *Manager, hostCRC uint32, reserved uint32) protocol.StatusReply {
	if !t.receiving {
		return protocol.StatusReply{Status: protocol.StatusErrState}
	}
	t.receiving = false

	devCRC := t.crc.Sum()
	if hostCRC != devCRC || t.received != t.expected {
		return protocol.StatusReply{Status: protocol.StatusErrCRC}
	}

	if err := t.flushTail(mgr); err != nil {
		return protocol.StatusReply{Status: protocol.StatusErrGeneric, Context: ctxProgramFailed}
	}

	meta := protocol.Meta{
		Magic:    protocol.MetaMagic,
		Size:     t.received,
		CRC:      devCRC,
		Reserved: reserved,
	}
	if err := mgr.WriteMeta(meta); err != nil {
		return protocol.StatusReply{Status: protocol.StatusErrGeneric, Context: ctxMetaFailed}
	}

	return protocol.StatusReply{Status: protocol.StatusOK}
}

// push stages bytes, programming a full word each time the buffer fills.
func (t *transfer) push(mgr *Manager, data []byte) error {
	for _, b := range data {
		t.staging[t.stagingLen] = b
		t.stagingLen++
		if t.stagingLen == ProgramAlign {
			if err := mgr.ProgramBytes(t.writeAddr, t.staging[:]); err != nil {
				return err
			}
			t.writeAddr += ProgramAlign
			t.stagingLen = 0
		}
	}
	return nil
}

// flushTail programs the partial staging remainder padded with the erased
// byte value. Padding happens only here, never mid-stream.
func (t *transfer) flushTail(mgr *Manager) error {
	if t.stagingLen == 0 {
		return nil
	}
	if err := mgr.ProgramBytes(t.writeAddr, t.staging[:t.stagingLen]); err != nil {
		return err
	}
	t.writeAddr += ProgramAlign
	t.stagingLen = 0
	return nil
}
