package host

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rhytmics/canboot/can"
	"github.com/rhytmics/canboot/device"
	"github.com/rhytmics/canboot/protocol"
)

const testDeviceID = 0x05

// scriptBus is a can.Bus whose handler turns each sent command into zero
// or more queued reply payloads on the device's status identifier.
type scriptBus struct {
	handler func(can.Frame) [][]byte
	sent    []can.Frame
	queue   []can.Frame
}

func (b *scriptBus) Send(f can.Frame) error {
	b.sent = append(b.sent, f)
	if b.handler != nil {
		for _, payload := range b.handler(f) {
			b.queue = append(b.queue, can.NewFrame(protocol.StatusID(testDeviceID), payload))
		}
	}
	return nil
}

func (b *scriptBus) Receive(timeout time.Duration) (can.Frame, bool, error) {
	if len(b.queue) == 0 {
		return can.Frame{}, false, nil
	}
	f := b.queue[0]
	b.queue = b.queue[1:]
	return f, true, nil
}

func (b *scriptBus) Close() error { return nil }

func TestPing(t *testing.T) {
	bus := &scriptBus{
		handler: func(f can.Frame) [][]byte {
			if f.Payload()[0] != protocol.CmdPing {
				return nil
			}
			return [][]byte{
				protocol.StatusReply{Status: protocol.StatusOK, Context: protocol.CmdPing}.Encode(),
				protocol.PingReply{DeviceID: testDeviceID, Version: protocol.Version, Stay: true}.Encode(),
			}
		},
	}
	client := New(bus, testDeviceID, WithTimeout(100*time.Millisecond))

	reply, err := client.Ping(context.Background(), true)
	if err != nil {
		t.Fatalf("Ping failed: %v", err)
	}
	if reply.DeviceID != testDeviceID || reply.Version != protocol.Version || !reply.Stay {
		t.Fatalf("got %+v", reply)
	}

	if len(bus.sent) != 1 || bus.sent[0].ID != protocol.CmdID(testDeviceID) {
		t.Fatalf("sent %d frames, first ID 0x%03X", len(bus.sent), bus.sent[0].ID)
	}
	if !bytes.Equal(bus.sent[0].Payload(), protocol.BuildPingCmd(true)) {
		t.Fatalf("sent % X", bus.sent[0].Payload())
	}
}

func TestRefusedCommandSurfacesStatus(t *testing.T) {
	bus := &scriptBus{
		handler: func(f can.Frame) [][]byte {
			return [][]byte{
				protocol.StatusReply{Status: protocol.StatusErrRange}.Encode(),
			}
		},
	}
	client := New(bus, testDeviceID, WithTimeout(100*time.Millisecond))

	err := client.Update(context.Background(), make([]byte, 16))
	var se *protocol.StatusError
	if !errors.As(err, &se) {
		t.Fatalf("got %v, expected a status error", err)
	}
	if se.Status != protocol.StatusErrRange {
		t.Fatalf("got status %v", se.Status)
	}
}

func TestTimeoutRetries(t *testing.T) {
	bus := &scriptBus{}
	client := New(bus, testDeviceID,
		WithTimeout(20*time.Millisecond),
		WithRetries(2),
	)

	_, err := client.Ping(context.Background(), false)
	var te *TimeoutError
	if !errors.As(err, &te) {
		t.Fatalf("got %v, expected a timeout", err)
	}
	if len(bus.sent) != 3 {
		t.Fatalf("sent %d times, expected 3 attempts", len(bus.sent))
	}
}

func TestBridgeTransfer(t *testing.T) {
	rxData := []byte{0xCA, 0xFE, 0x01, 0x02, 0x03}
	var appended []byte
	bus := &scriptBus{}
	bus.handler = func(f can.Frame) [][]byte {
		p := f.Payload()
		switch p[0] {
		case protocol.CmdBridgeClear:
			appended = nil
			return [][]byte{protocol.StatusReply{Status: protocol.StatusOK}.Encode()}
		case protocol.CmdBridgeAppend:
			appended = append(appended, p[1:]...)
			return [][]byte{protocol.StatusReply{Status: protocol.StatusOK, Context: byte(len(appended))}.Encode()}
		case protocol.CmdBridgeXfer:
			frames, _ := protocol.EncodeChunked(protocol.FrameBridgeRxData, rxData[:p[2]])
			return frames
		}
		return nil
	}
	client := New(bus, testDeviceID, WithTimeout(100*time.Millisecond))

	tx := []byte{1, 2, 3, 4, 5, 6, 7, 8, 9}
	rx, err := client.BridgeTransfer(context.Background(), 0x42, tx, byte(len(rxData)))
	if err != nil {
		t.Fatalf("BridgeTransfer failed: %v", err)
	}
	if !bytes.Equal(rx, rxData) {
		t.Fatalf("read % X, expected % X", rx, rxData)
	}
	if !bytes.Equal(appended, tx) {
		t.Fatalf("device buffered % X", appended)
	}
}

func TestBridgeScanDecodesBitmap(t *testing.T) {
	var bitmap [16]byte
	for _, addr := range []byte{0x1C, 0x50} {
		bitmap[addr>>3] |= 1 << (addr & 0x07)
	}
	bus := &scriptBus{
		handler: func(f can.Frame) [][]byte {
			frames, _ := protocol.EncodeChunked(protocol.FrameBridgeScan, bitmap[:])
			return frames
		},
	}
	client := New(bus, testDeviceID, WithTimeout(100*time.Millisecond))

	found, err := client.BridgeScan(context.Background(), 0x08, 0x77)
	if err != nil {
		t.Fatalf("BridgeScan failed: %v", err)
	}
	if !bytes.Equal(found, []byte{0x1C, 0x50}) {
		t.Fatalf("found % X", found)
	}
}

// idleBoard is a Board whose handoff does nothing and returns, as a
// simulated device has nothing to jump to.
type idleBoard struct{}

func (idleBoard) Shutdown()                  {}
func (idleBoard) Launch(stack, entry uint32) {}

func TestUpdateAgainstSimulatedDevice(t *testing.T) {
	devEnd, hostEnd := can.Pipe()
	defer devEnd.Close()
	defer hostEnd.Close()

	flash := device.NewMemFlash(device.DefaultLayout())
	dev, err := device.New(flash, devEnd, idleBoard{})
	if err != nil {
		t.Fatalf("device.New failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		dev.Run(ctx)
		close(done)
	}()
	defer func() { cancel(); <-done }()

	var progress []string
	client := New(hostEnd, testDeviceID,
		WithTimeout(2*time.Second),
		WithProgressCallback(func(p Progress) {
			if n := len(progress); n == 0 || progress[n-1] != p.Phase {
				progress = append(progress, p.Phase)
			}
		}),
	)

	reply, err := client.Ping(ctx, true)
	if err != nil {
		t.Fatalf("Ping failed: %v", err)
	}
	if reply.DeviceID != testDeviceID || !reply.Stay {
		t.Fatalf("identity %+v", reply)
	}

	img := make([]byte, 303)
	for i := range img {
		img[i] = byte(i * 31)
	}
	if err := client.Update(ctx, img); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	want := []string{PhaseStarting, PhaseTransferring, PhaseVerifying, PhaseComplete}
	if len(progress) != len(want) {
		t.Fatalf("phases %v", progress)
	}
	for i, phase := range want {
		if progress[i] != phase {
			t.Fatalf("phases %v", progress)
		}
	}

	info, err := client.Check(ctx)
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if !info.Valid || info.Size != uint32(len(img)) || info.CRC != protocol.Checksum(img) {
		t.Fatalf("stored image %+v", info)
	}

	code, err := client.BootStatus(ctx)
	if err != nil {
		t.Fatalf("BootStatus failed: %v", err)
	}
	if code != protocol.BootErrNone {
		t.Fatalf("boot status %v", code)
	}
}
