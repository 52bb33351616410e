package protocol

import (
	"bytes"
	"testing"
)

func TestStatusReplyRoundTrip(t *testing.T) {
	r := StatusReply{Status: StatusErrRange, Context: 0x30}
	payload := r.Encode()
	if len(payload) != 8 {
		t.Fatalf("payload length = %d, want 8", len(payload))
	}

	got, err := ParseStatusReply(payload)
	if err != nil {
		t.Fatalf("ParseStatusReply() error: %v", err)
	}
	if got != r {
		t.Errorf("ParseStatusReply() = %+v, want %+v", got, r)
	}
}

func TestIsStatusReply(t *testing.T) {
	tests := []struct {
		name    string
		payload []byte
		want    bool
	}{
		{"ok reply", StatusReply{Status: StatusOK}.Encode(), true},
		{"crc error", StatusReply{Status: StatusErrCRC, Context: 0x02}.Encode(), true},
		{"ping reply", PingReply{DeviceID: 5, Version: 2}.Encode(), false},
		{"check summary", CheckInfo{Valid: true, Size: 64}.EncodeSummary(), false},
		{"too short", []byte{0x00}, false},
		{"trailing data", []byte{0x00, 0x01, 0x02, 0, 0, 0, 0, 0}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsStatusReply(tt.payload); got != tt.want {
				t.Errorf("IsStatusReply(% X) = %v, want %v", tt.payload, got, tt.want)
			}
		})
	}
}

func TestPingReplyRoundTrip(t *testing.T) {
	r := PingReply{DeviceID: 0x05, Version: 2, Stay: true}
	got, err := ParsePingReply(r.Encode())
	if err != nil {
		t.Fatalf("ParsePingReply() error: %v", err)
	}
	if *got != r {
		t.Errorf("ParsePingReply() = %+v, want %+v", *got, r)
	}

	bad := r.Encode()
	bad[7] = 0x00
	if _, err := ParsePingReply(bad); err == nil {
		t.Error("ParsePingReply accepted a bad trailer")
	}
}

func TestAnnouncementRoundTrip(t *testing.T) {
	a := Announcement{
		DeviceID:   0x05,
		Version:    2,
		Flags:      AnnounceAppValid | AnnounceBridgeReady,
		ResetCause: 0x0C,
	}
	got, err := ParseAnnouncement(a.Encode())
	if err != nil {
		t.Fatalf("ParseAnnouncement() error: %v", err)
	}
	if *got != a {
		t.Errorf("ParseAnnouncement() = %+v, want %+v", *got, a)
	}
}

func TestCheckInfoRoundTrip(t *testing.T) {
	want := CheckInfo{
		Valid:    true,
		Updating: false,
		Size:     0x00013400,
		CRC:      0xFC891918,
		DeviceID: 0x05,
		Version:  2,
	}

	var got CheckInfo
	if err := ParseCheckSummary(want.EncodeSummary(), &got); err != nil {
		t.Fatalf("ParseCheckSummary() error: %v", err)
	}
	if err := ParseCheckCRC(want.EncodeCRC(), &got); err != nil {
		t.Fatalf("ParseCheckCRC() error: %v", err)
	}
	if got != want {
		t.Errorf("check info = %+v, want %+v", got, want)
	}

	if err := ParseCheckSummary(want.EncodeCRC(), &got); err == nil {
		t.Error("ParseCheckSummary accepted a crc frame")
	}
}

func TestEncodeChunked(t *testing.T) {
	data := counting(11)
	frames, err := EncodeChunked(FrameBridgeRxData, data)
	if err != nil {
		t.Fatalf("EncodeChunked() error: %v", err)
	}
	if len(frames) != 3 {
		t.Fatalf("frame count = %d, want 3", len(frames))
	}

	for i, f := range frames {
		if len(f) != 8 {
			t.Fatalf("frame %d length = %d, want 8", i, len(f))
		}
		if f[0] != byte(StatusOK) || f[1] != FrameBridgeRxData {
			t.Errorf("frame %d header = % X", i, f[:2])
		}
		if f[3] != 11 {
			t.Errorf("frame %d total = %d, want 11", i, f[3])
		}
	}
	if frames[2][2] != 8 {
		t.Errorf("last frame offset = %d, want 8", frames[2][2])
	}

	if _, err := EncodeChunked(FrameBridgeRxData, make([]byte, 256)); err == nil {
		t.Error("EncodeChunked accepted an oversize response")
	}
}

func TestChunkAssembler(t *testing.T) {
	data := counting(13)
	frames, err := EncodeChunked(FrameBridgeScan, data)
	if err != nil {
		t.Fatalf("EncodeChunked() error: %v", err)
	}

	a := NewChunkAssembler(FrameBridgeScan)

	// Interleave a status reply and a foreign subtype; both must be ignored.
	done, err := a.Feed(StatusReply{Status: StatusOK}.Encode())
	if err != nil || done {
		t.Fatalf("Feed(status) = (%v, %v)", done, err)
	}
	done, err = a.Feed(CheckInfo{}.EncodeSummary())
	if err != nil || done {
		t.Fatalf("Feed(foreign) = (%v, %v)", done, err)
	}

	for i, f := range frames {
		done, err = a.Feed(f)
		if err != nil {
			t.Fatalf("Feed(frame %d) error: %v", i, err)
		}
		if done != (i == len(frames)-1) {
			t.Fatalf("Feed(frame %d) done = %v", i, done)
		}
	}

	if !bytes.Equal(a.Bytes(), data) {
		t.Errorf("assembled = % X, want % X", a.Bytes(), data)
	}
}

func TestChunkAssemblerEmpty(t *testing.T) {
	frames, err := EncodeChunked(FrameBridgeRxData, nil)
	if err != nil {
		t.Fatalf("EncodeChunked() error: %v", err)
	}
	if len(frames) != 1 {
		t.Fatalf("frame count = %d, want 1", len(frames))
	}

	a := NewChunkAssembler(FrameBridgeRxData)
	done, err := a.Feed(frames[0])
	if err != nil {
		t.Fatalf("Feed() error: %v", err)
	}
	if !done {
		t.Fatal("empty response not done after one frame")
	}
	if len(a.Bytes()) != 0 {
		t.Errorf("assembled length = %d, want 0", len(a.Bytes()))
	}
}

func TestChunkAssemblerInconsistentTotal(t *testing.T) {
	a := NewChunkAssembler(FrameBridgeRxData)
	f1 := []byte{byte(StatusOK), FrameBridgeRxData, 0, 8, 1, 2, 3, 4}
	f2 := []byte{byte(StatusOK), FrameBridgeRxData, 4, 9, 5, 6, 7, 8}
	if _, err := a.Feed(f1); err != nil {
		t.Fatalf("Feed(f1) error: %v", err)
	}
	if _, err := a.Feed(f2); err == nil {
		t.Error("Feed accepted an inconsistent total")
	}
}
