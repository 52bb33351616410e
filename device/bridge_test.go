package device

import (
	"bytes"
	"testing"

	"github.com/rhytmics/canboot/protocol"
)

// fakeBridge records the last transaction and answers reads and probes
// from canned data.
type fakeBridge struct {
	lastAddr byte
	lastTx   []byte
	rxData   []byte
	present  map[byte]bool
}

func (b *fakeBridge) Transfer(addr7 byte, tx, rx []byte) error {
	b.lastAddr = addr7
	b.lastTx = append([]byte(nil), tx...)
	copy(rx, b.rxData)
	return nil
}

func (b *fakeBridge) Probe(addr7 byte) bool {
	return b.present[addr7]
}

// collectChunked drains informational frames from the harness until the
// chunked response of the given subtype is complete.
func collectChunked(t *testing.T, h *harness, subtype byte) []byte {
	t.Helper()
	asm := protocol.NewChunkAssembler(subtype)
	for i := 0; i < 64; i++ {
		done, err := asm.Feed(h.recv(t).Payload())
		if err != nil {
			t.Fatalf("Feed failed: %v", err)
		}
		if done {
			return asm.Bytes()
		}
	}
	t.Fatal("chunked response never completed")
	return nil
}

func TestBridgeRequiresFittedBridge(t *testing.T) {
	h := newHarness(t)

	r := h.command(t, protocol.BuildBridgeClearCmd())
	if r.Status != protocol.StatusErrState || r.Context != ctxNoBridge {
		t.Fatalf("got %v context 0x%02X", r.Status, r.Context)
	}
}

func TestBridgeTransaction(t *testing.T) {
	bridge := &fakeBridge{rxData: []byte{0xCA, 0xFE, 0x01, 0x02, 0x03, 0x04}}
	h := newHarness(t, WithBridge(bridge))

	h.expectOK(t, protocol.BuildBridgeClearCmd())

	chunk, _ := protocol.BuildBridgeAppendCmd([]byte{0x10, 0x20, 0x30})
	r := h.command(t, chunk)
	if r.Status != protocol.StatusOK || r.Context != 3 {
		t.Fatalf("append: got %v context %d", r.Status, r.Context)
	}
	chunk, _ = protocol.BuildBridgeAppendCmd([]byte{0x40})
	r = h.command(t, chunk)
	if r.Status != protocol.StatusOK || r.Context != 4 {
		t.Fatalf("append: got %v context %d", r.Status, r.Context)
	}

	xfer, _ := protocol.BuildBridgeXferCmd(0x42, 6)
	h.send(t, xfer)
	h.dev.Poll(0)
	rx := collectChunked(t, h, protocol.FrameBridgeRxData)

	if bridge.lastAddr != 0x42 {
		t.Fatalf("transferred to 0x%02X", bridge.lastAddr)
	}
	if !bytes.Equal(bridge.lastTx, []byte{0x10, 0x20, 0x30, 0x40}) {
		t.Fatalf("wrote % X", bridge.lastTx)
	}
	if !bytes.Equal(rx, bridge.rxData) {
		t.Fatalf("read % X, expected % X", rx, bridge.rxData)
	}

	// The transaction consumes the buffer.
	xfer, _ = protocol.BuildBridgeXferCmd(0x42, 0)
	h.send(t, xfer)
	h.dev.Poll(0)
	collectChunked(t, h, protocol.FrameBridgeRxData)
	if len(bridge.lastTx) != 0 {
		t.Fatalf("buffer not consumed: wrote % X", bridge.lastTx)
	}
}

func TestBridgeAppendOverflow(t *testing.T) {
	h := newHarness(t, WithBridge(&fakeBridge{}))

	filled := 0
	for filled+protocol.MaxDataChunk <= protocol.BridgeMaxTx {
		chunk, _ := protocol.BuildBridgeAppendCmd(testImage(protocol.MaxDataChunk))
		h.expectOK(t, chunk)
		filled += protocol.MaxDataChunk
	}

	over, _ := protocol.BuildBridgeAppendCmd(testImage(protocol.MaxDataChunk))
	r := h.command(t, over)
	if r.Status != protocol.StatusErrRange || r.Context != protocol.BridgeMaxTx {
		t.Fatalf("got %v context %d", r.Status, r.Context)
	}
}

func TestBridgeScan(t *testing.T) {
	bridge := &fakeBridge{present: map[byte]bool{0x1C: true, 0x50: true}}
	h := newHarness(t, WithBridge(bridge))

	cmd, _ := protocol.BuildBridgeScanCmd(0x08, 0x77)
	h.send(t, cmd)
	h.dev.Poll(0)
	bitmap := collectChunked(t, h, protocol.FrameBridgeScan)

	if len(bitmap) != 16 {
		t.Fatalf("bitmap is %d bytes", len(bitmap))
	}
	for addr := 0; addr < 128; addr++ {
		got := bitmap[addr>>3]&(1<<(addr&0x07)) != 0
		if got != bridge.present[byte(addr)] {
			t.Fatalf("address 0x%02X: bit=%v", addr, got)
		}
	}
}
