package protocol

import "fmt"

// Version is the bootloader protocol version reported by PING and CHECK.
const Version = 2

// CAN identifier layout. The bootloader accepts commands on
// BaseCmdID+deviceID and replies on BaseStatusID+deviceID.
const (
	// BaseCmdID is the base of the command identifier range
	BaseCmdID = 0x600

	// BaseStatusID is the base of the status identifier range
	BaseStatusID = 0x580

	// MaxDeviceID is the highest valid device ID
	MaxDeviceID = 0x7F
)

// CmdID returns the command CAN identifier for a device.
func CmdID(deviceID byte) uint16 {
	return BaseCmdID + uint16(deviceID)
}

// StatusID returns the status CAN identifier for a device.
func StatusID(deviceID byte) uint16 {
	return BaseStatusID + uint16(deviceID)
}

// Command codes. The command code is the first payload byte of every
// command frame.
const (
	// CmdPing requests an identity reply; an optional second byte equal to
	// PingStayMarker keeps the device in the bootloader
	CmdPing = 0x01

	// CmdCheck queries stored image validity and metadata
	CmdCheck = 0x02

	// CmdStart begins an update: 4-byte image size, triggers the erase
	CmdStart = 0x10

	// CmdData streams up to MaxDataChunk image bytes
	CmdData = 0x20

	// CmdEnd finishes an update: 4-byte host CRC, commits metadata on match
	CmdEnd = 0x30

	// CmdBootApp requests an immediate jump to the application
	CmdBootApp = 0x40

	// CmdBootStatus queries the last boot failure code
	CmdBootStatus = 0x41

	// CmdBridgeClear resets the diagnostic bridge transmit buffer
	CmdBridgeClear = 0x50

	// CmdBridgeAppend appends bytes to the bridge transmit buffer
	CmdBridgeAppend = 0x51

	// CmdBridgeXfer runs a bridge write/read transaction
	CmdBridgeXfer = 0x52

	// CmdBridgeScan probes a bridge address range
	CmdBridgeScan = 0x53
)

// PingStayMarker is the optional PING payload byte that forces the device
// to stay in the bootloader.
const PingStayMarker = 0x42

// MaxDataChunk is the maximum number of image bytes per DATA frame
// (8-byte frame minus the command code).
const MaxDataChunk = 7

// Frame subtypes carried in the second byte of informational replies.
const (
	// FrameCheckSummary carries validity, update state and image size
	FrameCheckSummary = 0x20

	// FrameCheckCRC carries the stored CRC, device ID and protocol version
	FrameCheckCRC = 0x21

	// FrameBridgeScan carries the bridge scan address bitmap
	FrameBridgeScan = 0x60

	// FrameBridgeRxData carries bytes read by a bridge transaction
	FrameBridgeRxData = 0x61
)

// Bridge buffer limits. Append beyond BridgeMaxTx is a range error; a
// transaction may read at most BridgeMaxRx bytes.
const (
	BridgeMaxTx = 48
	BridgeMaxRx = 32
)

// Status is the result code carried in the first byte of a status reply.
type Status byte

// Status codes.
const (
	StatusOK         Status = 0x00
	StatusErrGeneric Status = 0x01
	StatusErrRange   Status = 0x02
	StatusErrState   Status = 0x03
	StatusErrCRC     Status = 0x04
)

// String returns a human-readable name for the status code.
func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusErrGeneric:
		return "generic error"
	case StatusErrRange:
		return "range error"
	case StatusErrState:
		return "state error"
	case StatusErrCRC:
		return "crc error"
	default:
		return fmt.Sprintf("unknown status 0x%02X", byte(s))
	}
}

// BootError identifies why the last jump to the application was refused or
// failed. Codes at or above BootErrBase travel in the context byte of state
// error replies and in BOOT_STATUS replies.
type BootError byte

// Boot error codes.
const (
	BootErrNone        BootError = 0x00
	BootErrAppInvalid  BootError = 0xE1
	BootErrVectorEmpty BootError = 0xE2
	BootErrStackAlign  BootError = 0xE3
	BootErrStackRange  BootError = 0xE4
	BootErrEntryRange  BootError = 0xE5
	BootErrReturned    BootError = 0xE6
)

// BootErrBase is the lowest context byte value that denotes a boot error.
const BootErrBase = 0xE0

// String returns a human-readable name for the boot error code.
func (e BootError) String() string {
	switch e {
	case BootErrNone:
		return "none"
	case BootErrAppInvalid:
		return "application invalid"
	case BootErrVectorEmpty:
		return "vector table empty"
	case BootErrStackAlign:
		return "stack pointer misaligned"
	case BootErrStackRange:
		return "stack pointer outside RAM"
	case BootErrEntryRange:
		return "entry address out of range"
	case BootErrReturned:
		return "application returned"
	default:
		return fmt.Sprintf("unknown boot error 0x%02X", byte(e))
	}
}
