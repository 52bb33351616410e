package protocol

import (
	"encoding/binary"
	"fmt"
)

// replyLen is the fixed payload length of every reply frame. The device
// always transmits full 8-byte frames with unused bytes zeroed.
const replyLen = 8

// StatusReply is the single mandatory reply to every command: a status code
// plus a command-specific context byte.
type StatusReply struct {
	Status  Status
	Context byte
}

// Encode returns the 8-byte reply payload.
//
//	[status][context][0][0][0][0][0][0]
func (r StatusReply) Encode() []byte {
	payload := make([]byte, replyLen)
	payload[0] = byte(r.Status)
	payload[1] = r.Context
	return payload
}

// IsStatusReply reports whether a payload received on the status identifier
// is a plain status reply rather than an informational frame. Status replies
// carry a code in the status range and zeros beyond the context byte;
// informational frames carry a subtype and data there.
func IsStatusReply(payload []byte) bool {
	if len(payload) < 2 {
		return false
	}
	if payload[0] > byte(StatusErrCRC) {
		return false
	}
	for _, b := range payload[2:] {
		if b != 0 {
			return false
		}
	}
	return true
}

// ParseStatusReply extracts a status reply from a payload.
func ParseStatusReply(payload []byte) (StatusReply, error) {
	if !IsStatusReply(payload) {
		return StatusReply{}, fmt.Errorf("not a status reply")
	}
	return StatusReply{Status: Status(payload[0]), Context: payload[1]}, nil
}

// pingReplyTrailer terminates the PONG frame; it lets hosts reject frames
// that merely happen to start with the right bytes.
const pingReplyTrailer = 0xA5

// PingReply is the identity frame sent after the status reply to PING.
type PingReply struct {
	DeviceID byte
	Version  byte
	Stay     bool
}

// Encode returns the 8-byte PONG payload.
//
//	['P']['O']['N']['G'][deviceID][version][stay][0xA5]
func (r PingReply) Encode() []byte {
	payload := []byte{'P', 'O', 'N', 'G', r.DeviceID, r.Version, 0, pingReplyTrailer}
	if r.Stay {
		payload[6] = 1
	}
	return payload
}

// ParsePingReply extracts a PingReply from a payload.
func ParsePingReply(payload []byte) (*PingReply, error) {
	if len(payload) < replyLen {
		return nil, fmt.Errorf("ping reply too short: got %d bytes, expected %d", len(payload), replyLen)
	}
	if payload[0] != 'P' || payload[1] != 'O' || payload[2] != 'N' || payload[3] != 'G' {
		return nil, fmt.Errorf("not a ping reply")
	}
	if payload[7] != pingReplyTrailer {
		return nil, fmt.Errorf("bad ping reply trailer: 0x%02X", payload[7])
	}
	return &PingReply{
		DeviceID: payload[4],
		Version:  payload[5],
		Stay:     payload[6] != 0,
	}, nil
}

// Announcement flag bits.
const (
	// AnnounceAppValid is set when a valid application image is stored
	AnnounceAppValid = 1 << 0

	// AnnounceBridgeReady is set when the diagnostic bridge is fitted
	AnnounceBridgeReady = 1 << 1

	// AnnounceForcedStay is set when the build forces the bootloader to stay
	AnnounceForcedStay = 1 << 2
)

// Announcement is the unsolicited frame the device sends once at startup.
type Announcement struct {
	DeviceID   byte
	Version    byte
	Flags      byte
	ResetCause byte
}

// Encode returns the 8-byte startup payload.
//
//	['B']['L']['S']['T'][deviceID][version][flags][resetCause]
func (a Announcement) Encode() []byte {
	return []byte{'B', 'L', 'S', 'T', a.DeviceID, a.Version, a.Flags, a.ResetCause}
}

// ParseAnnouncement extracts an Announcement from a payload.
func ParseAnnouncement(payload []byte) (*Announcement, error) {
	if len(payload) < replyLen {
		return nil, fmt.Errorf("announcement too short: got %d bytes, expected %d", len(payload), replyLen)
	}
	if payload[0] != 'B' || payload[1] != 'L' || payload[2] != 'S' || payload[3] != 'T' {
		return nil, fmt.Errorf("not a startup announcement")
	}
	return &Announcement{
		DeviceID:   payload[4],
		Version:    payload[5],
		Flags:      payload[6],
		ResetCause: payload[7],
	}, nil
}

// CheckInfo describes the stored application image as reported by CHECK.
// It spans two frames on the wire: a summary frame and a CRC frame.
type CheckInfo struct {
	Valid    bool
	Updating bool
	Size     uint32
	CRC      uint32
	DeviceID byte
	Version  byte
}

// EncodeSummary returns the first CHECK reply frame.
//
//	[OK][0x20][valid][updating][size(4)]
func (c CheckInfo) EncodeSummary() []byte {
	payload := make([]byte, replyLen)
	payload[0] = byte(StatusOK)
	payload[1] = FrameCheckSummary
	if c.Valid {
		payload[2] = 1
	}
	if c.Updating {
		payload[3] = 1
	}
	binary.LittleEndian.PutUint32(payload[4:], c.Size)
	return payload
}

// EncodeCRC returns the second CHECK reply frame.
//
//	[OK][0x21][crc(4)][deviceID][version]
func (c CheckInfo) EncodeCRC() []byte {
	payload := make([]byte, replyLen)
	payload[0] = byte(StatusOK)
	payload[1] = FrameCheckCRC
	binary.LittleEndian.PutUint32(payload[2:], c.CRC)
	payload[6] = c.DeviceID
	payload[7] = c.Version
	return payload
}

// IsInfoFrame reports whether a payload is an informational frame of the
// given subtype.
func IsInfoFrame(payload []byte, subtype byte) bool {
	return len(payload) >= 2 && payload[0] == byte(StatusOK) && payload[1] == subtype
}

// ParseCheckSummary merges the summary frame into info.
func ParseCheckSummary(payload []byte, info *CheckInfo) error {
	if len(payload) < replyLen || !IsInfoFrame(payload, FrameCheckSummary) {
		return fmt.Errorf("not a check summary frame")
	}
	info.Valid = payload[2] != 0
	info.Updating = payload[3] != 0
	info.Size = binary.LittleEndian.Uint32(payload[4:])
	return nil
}

// ParseCheckCRC merges the CRC frame into info.
func ParseCheckCRC(payload []byte, info *CheckInfo) error {
	if len(payload) < replyLen || !IsInfoFrame(payload, FrameCheckCRC) {
		return fmt.Errorf("not a check crc frame")
	}
	info.CRC = binary.LittleEndian.Uint32(payload[2:])
	info.DeviceID = payload[6]
	info.Version = payload[7]
	return nil
}

// chunkDataLen is the number of data bytes per chunked reply frame.
const chunkDataLen = 4

// MaxChunkedLen is the longest response EncodeChunked can carry; the total
// length travels in a single byte.
const MaxChunkedLen = 255

// EncodeChunked splits data into informational frames with an offset/total
// header, four data bytes per frame:
//
//	[OK][subtype][offset][total][data(0..4)][0...]
//
// Zero-length data yields a single frame with total 0.
func EncodeChunked(subtype byte, data []byte) ([][]byte, error) {
	if len(data) > MaxChunkedLen {
		return nil, fmt.Errorf("chunked response too long: got %d bytes, maximum is %d", len(data), MaxChunkedLen)
	}

	head := func(off int) []byte {
		payload := make([]byte, replyLen)
		payload[0] = byte(StatusOK)
		payload[1] = subtype
		payload[2] = byte(off)
		payload[3] = byte(len(data))
		return payload
	}

	if len(data) == 0 {
		return [][]byte{head(0)}, nil
	}

	var frames [][]byte
	for off := 0; off < len(data); off += chunkDataLen {
		payload := head(off)
		copy(payload[4:], data[off:])
		frames = append(frames, payload)
	}
	return frames, nil
}

// ChunkAssembler reassembles a chunked response on the host side. Frames may
// repeat; total length must stay consistent across frames.
type ChunkAssembler struct {
	subtype byte
	started bool
	total   int
	buf     []byte
	seen    []bool
	got     int
}

// NewChunkAssembler returns an assembler for the given frame subtype.
func NewChunkAssembler(subtype byte) *ChunkAssembler {
	return &ChunkAssembler{subtype: subtype}
}

// Feed consumes one payload. Frames of other subtypes are ignored. It
// reports whether the full response has been assembled.
func (a *ChunkAssembler) Feed(payload []byte) (bool, error) {
	if len(payload) < replyLen || !IsInfoFrame(payload, a.subtype) {
		return false, nil
	}

	off := int(payload[2])
	total := int(payload[3])

	if !a.started {
		a.started = true
		a.total = total
		a.buf = make([]byte, total)
		a.seen = make([]bool, total)
	} else if total != a.total {
		return false, fmt.Errorf("inconsistent chunk total: got %d, expected %d", total, a.total)
	}

	if a.total == 0 {
		return true, nil
	}
	if off >= a.total {
		return false, fmt.Errorf("chunk offset %d beyond total %d", off, a.total)
	}

	n := a.total - off
	if n > chunkDataLen {
		n = chunkDataLen
	}
	for i := 0; i < n; i++ {
		if !a.seen[off+i] {
			a.seen[off+i] = true
			a.got++
		}
		a.buf[off+i] = payload[4+i]
	}

	return a.got == a.total, nil
}

// Bytes returns the assembled response. Valid once Feed has reported done.
func (a *ChunkAssembler) Bytes() []byte {
	return a.buf
}
