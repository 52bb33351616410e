package device

import (
	"context"
	"fmt"
	"time"

	"github.com/rhytmics/canboot/can"
	"github.com/rhytmics/canboot/protocol"
)

// pollInterval is how long one Run iteration waits for a bus frame. It
// paces the loop without adding meaningful command latency.
const pollInterval = time.Millisecond

// Device is the bootloader: it owns the transfer session, the boot
// decision state and the LED queue, and drives them from a single
// goroutine. All mutable state lives in this one value; there are no
// package-level variables.
type Device struct {
	bus   can.Bus
	flash Flash
	board Board
	mgr   *Manager
	cfg   Config

	cmdID    uint16
	statusID uint16

	xfer        transfer
	stay        bool
	lastBootErr protocol.BootError
	bootRequest bool

	led      blinkQueue
	bridgeTx []byte
}

// New creates a Device over the given flash, bus and board.
func New(flash Flash, bus can.Bus, board Board, opts ...Option) (*Device, error) {
	if flash == nil || bus == nil || board == nil {
		panic("flash, bus and board must not be nil")
	}

	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.DeviceID > protocol.MaxDeviceID {
		return nil, fmt.Errorf("device ID 0x%02X out of range", cfg.DeviceID)
	}

	mgr, err := NewManager(flash, cfg.Layout)
	if err != nil {
		return nil, err
	}

	return &Device{
		bus:      bus,
		flash:    flash,
		board:    board,
		mgr:      mgr,
		cfg:      cfg,
		cmdID:    protocol.CmdID(cfg.DeviceID),
		statusID: protocol.StatusID(cfg.DeviceID),
	}, nil
}

// Manager returns the flash manager, primarily for inspection in tests and
// tooling.
func (d *Device) Manager() *Manager {
	return d.mgr
}

// StayRequested reports the sticky stay flag.
func (d *Device) StayRequested() bool {
	return d.stay
}

// ForceStay sets the sticky stay flag unconditionally.
func (d *Device) ForceStay() {
	d.stay = true
}

// LastBootError returns the failure code of the most recent jump attempt.
func (d *Device) LastBootError() protocol.BootError {
	return d.lastBootErr
}

// Start performs the power-on sequence: consume the cross-reset stay
// signal, stamp the device identity into stored metadata if missing, queue
// the startup blink and announce on the bus.
func (d *Device) Start() {
	if d.cfg.StaySlot.Consume() {
		d.stay = true
	}
	d.ensureMetaDeviceID()
	d.led.enqueue(startBlinkCount, startBlinkDelay, true, d.now())
	d.sendAnnouncement()
}

// Run services the bus until ctx is done: the autorun window first when a
// valid application is stored, then the unbounded command loop. It returns
// only on context cancellation; a successful jump never returns.
func (d *Device) Run(ctx context.Context) error {
	d.Start()

	if _, ok := d.mgr.AppValid(); ok {
		start := d.now()
		for d.now()-start < d.cfg.AutorunWindow {
			if err := ctx.Err(); err != nil {
				return err
			}
			if d.Poll(pollInterval) {
				// Host interaction implies intent to keep control.
				d.stay = true
			}
			if d.stay {
				break
			}
		}

		if !d.stay && !d.cfg.ForceStay {
			if code := d.tryJump(); code != protocol.BootErrNone {
				d.lastBootErr = code
			}
		}
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		d.Poll(pollInterval)
	}
}

// Poll runs one loop iteration: receive and dispatch at most one command,
// service the LED queue and execute a pending boot request. It reports
// whether a command was dispatched.
func (d *Device) Poll(wait time.Duration) bool {
	handled := false
	f, ok, err := d.bus.Receive(wait)
	if err == nil && ok && f.ID == d.cmdID && f.Len > 0 {
		d.dispatch(f.Payload())
		handled = true
	}

	d.led.service(d.cfg.LED, d.now())

	if d.bootRequest {
		d.bootRequest = false
		if code := d.tryJump(); code != protocol.BootErrNone {
			d.lastBootErr = code
			d.sendStatus(protocol.StatusErrState, byte(code))
		}
	}

	return handled
}

// dispatch handles one command payload. Every path sends exactly one
// status reply; informational commands send their extra frames as well.
func (d *Device) dispatch(payload []byte) {
	cmd := payload[0]

	switch cmd {
	case protocol.CmdPing:
		if len(payload) > 1 && payload[1] == protocol.PingStayMarker {
			d.stay = true
		}
		d.sendStatus(protocol.StatusOK, 0x01)
		d.sendFrame(protocol.PingReply{
			DeviceID: d.cfg.DeviceID,
			Version:  protocol.Version,
			Stay:     d.stay,
		}.Encode())
		d.led.enqueue(pingBlinkCount, pingBlinkDelay, true, d.now())
		return

	case protocol.CmdCheck:
		d.sendCheckInfo()

	case protocol.CmdStart:
		size, err := protocol.ParseStartCmd(payload)
		if err != nil {
			d.sendStatus(protocol.StatusErrGeneric, 0)
			break
		}
		d.sendReply(d.xfer.start(d.mgr, size))

	case protocol.CmdData:
		d.sendReply(d.xfer.data(d.mgr, payload[1:]))

	case protocol.CmdEnd:
		if !d.xfer.receiving {
			d.sendStatus(protocol.StatusErrState, 0)
			break
		}
		hostCRC, err := protocol.ParseEndCmd(payload)
		if err != nil {
			d.xfer.receiving = false
			d.sendStatus(protocol.StatusErrGeneric, 0)
			break
		}
		d.sendReply(d.xfer.finish(d.mgr, hostCRC, protocol.EncodeDeviceID(d.cfg.DeviceID)))

	case protocol.CmdBootApp:
		d.lastBootErr = protocol.BootErrNone
		d.bootRequest = true
		d.sendStatus(protocol.StatusOK, protocol.CmdBootApp)

	case protocol.CmdBootStatus:
		d.sendStatus(protocol.StatusOK, byte(d.lastBootErr))

	case protocol.CmdBridgeClear, protocol.CmdBridgeAppend, protocol.CmdBridgeXfer, protocol.CmdBridgeScan:
		d.handleBridge(cmd, payload)

	default:
		d.sendStatus(protocol.StatusErrGeneric, 0xFF)
	}

	d.led.enqueue(activityBlinkCount, activityBlinkDelay, false, d.now())
}

// ensureMetaDeviceID rewrites the metadata reserved field when a valid
// image is stored without this device's identity, so the application can
// always recover its assigned ID.
func (d *Device) ensureMetaDeviceID() {
	meta, ok := d.mgr.AppValid()
	if !ok {
		return
	}
	if id, has := meta.DeviceID(); has && id == d.cfg.DeviceID {
		return
	}
	meta.Reserved = protocol.EncodeDeviceID(d.cfg.DeviceID)
	_ = d.mgr.WriteMeta(meta)
}

// sendAnnouncement emits the one-time startup frame.
func (d *Device) sendAnnouncement() {
	var flags byte
	if _, ok := d.mgr.AppValid(); ok {
		flags |= protocol.AnnounceAppValid
	}
	if d.cfg.Bridge != nil {
		flags |= protocol.AnnounceBridgeReady
	}
	if d.cfg.ForceStay {
		flags |= protocol.AnnounceForcedStay
	}
	d.sendFrame(protocol.Announcement{
		DeviceID:   d.cfg.DeviceID,
		Version:    protocol.Version,
		Flags:      flags,
		ResetCause: d.cfg.ResetCause,
	}.Encode())
}

// sendCheckInfo emits the two CHECK reply frames.
func (d *Device) sendCheckInfo() {
	info := protocol.CheckInfo{
		Updating: d.xfer.receiving,
		DeviceID: d.cfg.DeviceID,
		Version:  protocol.Version,
	}
	if meta, ok := d.mgr.AppValid(); ok {
		info.Valid = true
		info.Size = meta.Size
		info.CRC = meta.CRC
	}
	d.sendFrame(info.EncodeSummary())
	d.sendFrame(info.EncodeCRC())
}

func (d *Device) sendReply(r protocol.StatusReply) {
	d.sendFrame(r.Encode())
}

func (d *Device) sendStatus(status protocol.Status, context byte) {
	d.sendFrame(protocol.StatusReply{Status: status, Context: context}.Encode())
}

// sendChunked emits a chunked informational response.
func (d *Device) sendChunked(subtype byte, data []byte) {
	frames, err := protocol.EncodeChunked(subtype, data)
	if err != nil {
		d.sendStatus(protocol.StatusErrGeneric, 0)
		return
	}
	for _, payload := range frames {
		d.sendFrame(payload)
	}
}

// sendFrame transmits one reply frame, busy-waiting for a transmit slot
// within the send budget and dropping the reply on expiry rather than
// stalling the loop.
func (d *Device) sendFrame(payload []byte) {
	f := can.NewFrame(d.statusID, payload)
	start := d.now()
	for {
		err := d.bus.Send(f)
		if err != can.ErrBusFull {
			return
		}
		if d.now()-start > d.cfg.SendBudget {
			return
		}
	}
}

// blinkSync plays a blocking blink pattern; used only on the jump path
// where the loop is about to end anyway.
func (d *Device) blinkSync(count int, delayMS uint32) {
	for i := 0; i < count; i++ {
		d.sleepMS(delayMS)
		d.cfg.LED.Toggle()
		d.sleepMS(delayMS)
		d.cfg.LED.Toggle()
	}
	d.cfg.LED.Set(false)
}

// sleepMS waits against the monotonic tick.
func (d *Device) sleepMS(ms uint32) {
	start := d.now()
	for d.now()-start < ms {
		time.Sleep(time.Millisecond)
	}
}

func (d *Device) now() uint32 {
	return d.cfg.Clock()
}
