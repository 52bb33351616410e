package device

import "github.com/rhytmics/canboot/protocol"

// BridgeTransfer is the external transfer primitive for the diagnostic
// pass-through bridge to the secondary point-to-point bus. The bootloader
// only routes buffer and transfer commands to it; the bridge plays no part
// in the update state machine.
type BridgeTransfer interface {
	// Transfer writes tx to the 7-bit address, then reads len(rx) bytes
	// into rx. Either part may be empty.
	Transfer(addr7 byte, tx []byte, rx []byte) error

	// Probe reports whether a peripheral answers at the 7-bit address.
	Probe(addr7 byte) bool
}

// Default bridge scan range, matching the conventional usable 7-bit
// address window.
const (
	bridgeScanFirst = 0x08
	bridgeScanLast  = 0x77
)

// ctxNoBridge is the context byte reported with a state error when a bridge
// command arrives and no bridge is fitted.
const ctxNoBridge = 0xE0

// handleBridge routes the four bridge command codes. Replies follow the
// same one-status-per-command rule as the rest of the protocol; transfer
// reads and scan results go out as chunked informational frames.
func (d *Device) handleBridge(cmd byte, payload []byte) {
	if d.cfg.Bridge == nil {
		d.sendStatus(protocol.StatusErrState, ctxNoBridge)
		return
	}

	switch cmd {
	case protocol.CmdBridgeClear:
		d.bridgeTx = d.bridgeTx[:0]
		d.sendStatus(protocol.StatusOK, 0)

	case protocol.CmdBridgeAppend:
		data := payload[1:]
		if len(data) == 0 {
			d.sendStatus(protocol.StatusErrGeneric, 0)
			return
		}
		if len(d.bridgeTx)+len(data) > protocol.BridgeMaxTx {
			d.sendStatus(protocol.StatusErrRange, protocol.BridgeMaxTx)
			return
		}
		d.bridgeTx = append(d.bridgeTx, data...)
		d.sendStatus(protocol.StatusOK, byte(len(d.bridgeTx)))

	case protocol.CmdBridgeXfer:
		if len(payload) < 3 {
			d.sendStatus(protocol.StatusErrGeneric, 0)
			return
		}
		addr7 := payload[1] & 0x7F
		rxLen := payload[2]
		if rxLen > protocol.BridgeMaxRx {
			d.sendStatus(protocol.StatusErrRange, 0)
			return
		}
		rx := make([]byte, rxLen)
		err := d.cfg.Bridge.Transfer(addr7, d.bridgeTx, rx)
		d.bridgeTx = d.bridgeTx[:0]
		if err != nil {
			d.sendStatus(protocol.StatusErrGeneric, 0)
			return
		}
		d.sendChunked(protocol.FrameBridgeRxData, rx)

	case protocol.CmdBridgeScan:
		first, last := byte(bridgeScanFirst), byte(bridgeScanLast)
		if len(payload) >= 3 {
			first, last = payload[1], payload[2]
		}
		if first > 0x7F || last > 0x7F || first > last {
			d.sendStatus(protocol.StatusErrRange, 0)
			return
		}
		var found [16]byte
		for addr := first; ; addr++ {
			if d.cfg.Bridge.Probe(addr) {
				found[addr>>3] |= 1 << (addr & 0x07)
			}
			if addr == last || addr == 0x7F {
				break
			}
		}
		d.sendChunked(protocol.FrameBridgeScan, found[:])
	}
}
