package protocol

import (
	"encoding/binary"
	"fmt"
)

// BuildPingCmd constructs a PING command payload. With stay set, the payload
// carries the marker byte that forces the device to remain in the bootloader.
//
// Payload:
//
//	[0x01] or [0x01][0x42]
func BuildPingCmd(stay bool) []byte {
	if stay {
		return []byte{CmdPing, PingStayMarker}
	}
	return []byte{CmdPing}
}

// BuildCheckCmd constructs a CHECK command payload.
func BuildCheckCmd() []byte {
	return []byte{CmdCheck}
}

// BuildStartCmd constructs a START command payload with the declared image
// size in bytes.
//
// Payload:
//
//	[0x10][size(4, little-endian)]
func BuildStartCmd(size uint32) []byte {
	payload := make([]byte, 5)
	payload[0] = CmdStart
	binary.LittleEndian.PutUint32(payload[1:], size)
	return payload
}

// BuildDataCmd constructs a DATA command payload carrying one image chunk.
// The chunk must hold 1..MaxDataChunk bytes.
//
// Payload:
//
//	[0x20][chunk(1..7)]
func BuildDataCmd(chunk []byte) ([]byte, error) {
	if len(chunk) == 0 {
		return nil, fmt.Errorf("empty data chunk")
	}
	if len(chunk) > MaxDataChunk {
		return nil, fmt.Errorf("data chunk too long: got %d bytes, maximum is %d", len(chunk), MaxDataChunk)
	}
	payload := make([]byte, 1+len(chunk))
	payload[0] = CmdData
	copy(payload[1:], chunk)
	return payload, nil
}

// BuildEndCmd constructs an END command payload with the host-computed image
// checksum.
//
// Payload:
//
//	[0x30][crc32(4, little-endian)]
func BuildEndCmd(crc uint32) []byte {
	payload := make([]byte, 5)
	payload[0] = CmdEnd
	binary.LittleEndian.PutUint32(payload[1:], crc)
	return payload
}

// BuildBootAppCmd constructs a BOOT_APP command payload.
func BuildBootAppCmd() []byte {
	return []byte{CmdBootApp}
}

// BuildBootStatusCmd constructs a BOOT_STATUS command payload.
func BuildBootStatusCmd() []byte {
	return []byte{CmdBootStatus}
}

// BuildBridgeClearCmd constructs a bridge buffer reset payload.
func BuildBridgeClearCmd() []byte {
	return []byte{CmdBridgeClear}
}

// BuildBridgeAppendCmd constructs a bridge buffer append payload. The chunk
// must hold 1..MaxDataChunk bytes; the device enforces the BridgeMaxTx total.
func BuildBridgeAppendCmd(chunk []byte) ([]byte, error) {
	if len(chunk) == 0 {
		return nil, fmt.Errorf("empty bridge chunk")
	}
	if len(chunk) > MaxDataChunk {
		return nil, fmt.Errorf("bridge chunk too long: got %d bytes, maximum is %d", len(chunk), MaxDataChunk)
	}
	payload := make([]byte, 1+len(chunk))
	payload[0] = CmdBridgeAppend
	copy(payload[1:], chunk)
	return payload, nil
}

// BuildBridgeXferCmd constructs a bridge transaction payload: write the
// buffered bytes to the 7-bit address, then read rxLen bytes.
//
// Payload:
//
//	[0x52][addr7][rxLen]
func BuildBridgeXferCmd(addr7 byte, rxLen byte) ([]byte, error) {
	if addr7 > 0x7F {
		return nil, fmt.Errorf("bridge address out of range: 0x%02X", addr7)
	}
	if rxLen > BridgeMaxRx {
		return nil, fmt.Errorf("bridge read too long: got %d bytes, maximum is %d", rxLen, BridgeMaxRx)
	}
	return []byte{CmdBridgeXfer, addr7, rxLen}, nil
}

// BuildBridgeScanCmd constructs a bridge scan payload for the inclusive
// 7-bit address range first..last.
func BuildBridgeScanCmd(first, last byte) ([]byte, error) {
	if first > 0x7F || last > 0x7F || first > last {
		return nil, fmt.Errorf("invalid bridge scan range 0x%02X..0x%02X", first, last)
	}
	return []byte{CmdBridgeScan, first, last}, nil
}

// ParseStartCmd extracts the declared image size from a START payload.
func ParseStartCmd(payload []byte) (uint32, error) {
	if len(payload) < 5 {
		return 0, fmt.Errorf("start command too short: got %d bytes, expected 5", len(payload))
	}
	if payload[0] != CmdStart {
		return 0, fmt.Errorf("not a start command: 0x%02X", payload[0])
	}
	return binary.LittleEndian.Uint32(payload[1:5]), nil
}

// ParseEndCmd extracts the host checksum from an END payload.
func ParseEndCmd(payload []byte) (uint32, error) {
	if len(payload) < 5 {
		return 0, fmt.Errorf("end command too short: got %d bytes, expected 5", len(payload))
	}
	if payload[0] != CmdEnd {
		return 0, fmt.Errorf("not an end command: 0x%02X", payload[0])
	}
	return binary.LittleEndian.Uint32(payload[1:5]), nil
}
