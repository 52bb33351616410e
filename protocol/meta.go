package protocol

import (
	"encoding/binary"
	"fmt"
)

// Metadata record constants. The record is the sole trust anchor for "is
// there a valid application"; it is persisted in its own flash page and
// rewritten wholesale after every verified update.
const (
	// MetaMagic marks a committed metadata record
	MetaMagic = 0xB00710AD

	// MetaSize is the size of the encoded record in bytes
	MetaSize = 16
)

// Reserved-field device identity scheme. When the high 24 bits of the
// reserved word carry DeviceIDTag, the low 8 bits are the device identity
// byte. The downstream application reads this exact layout to recover its
// assigned identity.
const (
	DeviceIDTag     = 0xA5D10000
	deviceIDTagMask = 0xFFFFFF00
	deviceIDMask    = 0x000000FF
)

// Meta is the persisted application metadata record.
//
// Encoded layout (little-endian words):
//
//	[magic(4)][size(4)][crc32(4)][reserved(4)]
type Meta struct {
	Magic    uint32
	Size     uint32
	CRC      uint32
	Reserved uint32
}

// Encode returns the MetaSize-byte record image.
func (m Meta) Encode() []byte {
	buf := make([]byte, MetaSize)
	binary.LittleEndian.PutUint32(buf[0:], m.Magic)
	binary.LittleEndian.PutUint32(buf[4:], m.Size)
	binary.LittleEndian.PutUint32(buf[8:], m.CRC)
	binary.LittleEndian.PutUint32(buf[12:], m.Reserved)
	return buf
}

// DecodeMeta parses a record image.
func DecodeMeta(data []byte) (Meta, error) {
	if len(data) < MetaSize {
		return Meta{}, fmt.Errorf("metadata record too short: got %d bytes, expected %d", len(data), MetaSize)
	}
	return Meta{
		Magic:    binary.LittleEndian.Uint32(data[0:]),
		Size:     binary.LittleEndian.Uint32(data[4:]),
		CRC:      binary.LittleEndian.Uint32(data[8:]),
		Reserved: binary.LittleEndian.Uint32(data[12:]),
	}, nil
}

// EncodeDeviceID returns a reserved-field value tagging the device identity.
func EncodeDeviceID(id byte) uint32 {
	return DeviceIDTag | uint32(id)&deviceIDMask
}

// DeviceID returns the device identity encoded in the reserved field, if any.
func (m Meta) DeviceID() (byte, bool) {
	if m.Reserved&deviceIDTagMask != DeviceIDTag {
		return 0, false
	}
	return byte(m.Reserved & deviceIDMask), true
}
