// Package protocol implements the Rhytmics CAN bootloader wire protocol.
//
// # Protocol Overview
//
// The bootloader listens on a single 11-bit CAN identifier and replies on a
// separate status identifier. Both are derived from the device ID:
//
//	command ID = 0x600 + deviceID
//	status ID  = 0x580 + deviceID
//
// Every frame carries up to 8 payload bytes. The first payload byte of a
// command frame is the command code; multi-byte fields are little-endian.
//
//	PING:        [0x01][stay?]
//	CHECK:       [0x02]
//	START:       [0x10][size(4)]
//	DATA:        [0x20][chunk(1..7)]
//	END:         [0x30][crc32(4)]
//	BOOT_APP:    [0x40]
//	BOOT_STATUS: [0x41]
//
// Every command is answered with exactly one status reply:
//
//	[status][context][0][0][0][0][0][0]
//
// Informational commands additionally reply with one or more frames whose
// first byte is StatusOK and whose second byte is a frame subtype; responses
// longer than one frame are chunked with an offset/total header (see
// EncodeChunked).
//
// # Command Builders
//
// Hosts use the Build* functions to produce command payloads:
//
//	payload := protocol.BuildStartCmd(uint32(len(image)))
//	payload, err := protocol.BuildDataCmd(chunk)
//
// # Reply Codecs
//
// The device encodes replies with StatusReply.Encode, PingReply.Encode and
// friends; hosts parse them with the matching Parse* functions.
//
// # Image Checksum
//
// Image integrity uses a 32-bit CRC with polynomial 0x04C11DB7 fed MSB-first
// without bit reflection (see CRC). This is not the common reflected CRC-32;
// the device and all counterpart tooling depend on the exact variant.
package protocol
