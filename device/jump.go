package device

import (
	"encoding/binary"

	"github.com/rhytmics/canboot/protocol"
)

// Board abstracts the hardware operations the safe-jump executor needs.
// On real hardware both methods require raw register access unavailable to
// ordinary code; everything upstream of them is plain validation logic.
type Board interface {
	// Shutdown tears the peripherals down for handoff: disable interrupts,
	// de-initialize the bus controller, clocks and system tick, and mask
	// and clear every pending interrupt line.
	Shutdown()

	// Launch sets the machine stack pointer and vector-table base to the
	// application's declared values and transfers control to its reset
	// entry point. The transfer is one-way; Launch returning at all means
	// the application entry returned, which is itself a failure.
	Launch(stack, entry uint32)
}

// tryJump validates the stored application and, when every precondition
// holds, hands control to it via the board. The returned code is
// BootErrNone only if Launch was reached and, against expectation,
// returned BootErrReturned. Each precondition maps to its own code so the
// exact refusal is queryable afterwards.
func (d *Device) tryJump() protocol.BootError {
	if _, ok := d.mgr.AppValid(); !ok {
		return protocol.BootErrAppInvalid
	}

	layout := d.mgr.Layout()
	var vector [8]byte
	if err := d.flash.Read(layout.AppStart(), vector[:]); err != nil {
		return protocol.BootErrAppInvalid
	}
	stack := binary.LittleEndian.Uint32(vector[0:4])
	entry := binary.LittleEndian.Uint32(vector[4:8])

	if stack == 0xFFFFFFFF || entry == 0xFFFFFFFF {
		return protocol.BootErrVectorEmpty
	}
	if stack%4 != 0 {
		return protocol.BootErrStackAlign
	}
	if !layout.StackValid(stack) {
		return protocol.BootErrStackRange
	}
	if entry&1 == 0 || entry < layout.AppStart() || entry >= layout.AppEnd() {
		return protocol.BootErrEntryRange
	}

	d.blinkSync(jumpBlinkCount, jumpBlinkDelay)
	d.board.Shutdown()
	d.board.Launch(stack, entry)

	return protocol.BootErrReturned
}
