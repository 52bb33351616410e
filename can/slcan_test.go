package can

import (
	"bytes"
	"io"
	"strings"
	"sync"
	"testing"
	"time"
)

// mockPort is an in-memory serial port: writes are captured, reads are fed
// by the test through an io.Pipe.
type mockPort struct {
	mu  sync.Mutex
	out bytes.Buffer

	rd *io.PipeReader
	wr *io.PipeWriter
}

func newMockPort() *mockPort {
	rd, wr := io.Pipe()
	return &mockPort{rd: rd, wr: wr}
}

func (p *mockPort) Read(b []byte) (int, error) {
	return p.rd.Read(b)
}

func (p *mockPort) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.out.Write(b)
}

func (p *mockPort) Close() error {
	p.wr.Close()
	return p.rd.Close()
}

func (p *mockPort) feed(s string) {
	go func() { _, _ = io.WriteString(p.wr, s) }()
}

func (p *mockPort) written() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.out.String()
}

func TestSLCANSetupAndSend(t *testing.T) {
	port := newMockPort()
	bus, err := OpenSLCAN(port, 500000)
	if err != nil {
		t.Fatalf("OpenSLCAN() error: %v", err)
	}

	f := NewFrame(0x605, []byte{0x10, 0x34, 0x12, 0x00, 0x00})
	if err := bus.Send(f); err != nil {
		t.Fatalf("Send() error: %v", err)
	}

	got := port.written()
	for _, want := range []string{"C\r", "S6\r", "O\r"} {
		if !strings.Contains(got, want) {
			t.Errorf("setup sequence missing %q in %q", want, got)
		}
	}
	if !strings.HasSuffix(got, "t60551034120000\r") {
		t.Errorf("encoded frame = %q, want suffix %q", got, "t60551034120000\r")
	}

	bus.Close()
}

func TestSLCANReceive(t *testing.T) {
	port := newMockPort()
	bus, err := OpenSLCAN(port, 500000)
	if err != nil {
		t.Fatalf("OpenSLCAN() error: %v", err)
	}
	defer bus.Close()

	// An OK ack, an extended frame (ignored), then a status frame.
	port.feed("\rT1234567828899\rt58580001000000000000\r")

	f, ok, err := bus.Receive(time.Second)
	if err != nil {
		t.Fatalf("Receive() error: %v", err)
	}
	if !ok {
		t.Fatal("Receive() timed out")
	}
	if f.ID != 0x585 {
		t.Errorf("ID = 0x%03X, want 0x585", f.ID)
	}
	if f.Len != 8 {
		t.Errorf("Len = %d, want 8", f.Len)
	}
	want := []byte{0x00, 0x01, 0, 0, 0, 0, 0, 0}
	if !bytes.Equal(f.Payload(), want) {
		t.Errorf("payload = % X, want % X", f.Payload(), want)
	}
}

func TestSLCANUnsupportedBitrate(t *testing.T) {
	if _, err := OpenSLCAN(newMockPort(), 333333); err == nil {
		t.Error("OpenSLCAN accepted an unsupported bitrate")
	}
}

func TestParseSLCANFrame(t *testing.T) {
	tests := []struct {
		name string
		line string
		ok   bool
	}{
		{"valid", "t6052AB42", true},
		{"lowercase hex", "t6052ab42", true},
		{"short dlc", "t6", false},
		{"truncated data", "t60540102", false},
		{"oversize dlc", "t605F", false},
		{"not a data frame", "r6050", false},
		{"garbage", "zz", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ok := parseSLCANFrame([]byte(tt.line))
			if ok != tt.ok {
				t.Errorf("parseSLCANFrame(%q) ok = %v, want %v", tt.line, ok, tt.ok)
			}
		})
	}

	f, ok := parseSLCANFrame([]byte("t6052AB42"))
	if !ok {
		t.Fatal("parseSLCANFrame failed")
	}
	if f.ID != 0x605 || f.Len != 2 || f.Data[0] != 0xAB || f.Data[1] != 0x42 {
		t.Errorf("parsed frame = %v", f)
	}
}
