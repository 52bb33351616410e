package host

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rhytmics/canboot/can"
	"github.com/rhytmics/canboot/protocol"
)

// receiveSlice bounds each blocking bus read so context cancellation stays
// responsive while waiting for a reply.
const receiveSlice = 20 * time.Millisecond

// Client drives one bootloader device over a CAN bus. It owns no
// goroutines; every operation runs the bus from the calling goroutine.
//
// Client is not safe for concurrent use.
type Client struct {
	bus      can.Bus
	config   Config
	deviceID byte
	cmdID    uint16
	statusID uint16
}

// New creates a new Client for the device with the given ID.
//
// Example:
//
//	client := host.New(bus, 0x05,
//	    host.WithProgressCallback(progressFunc),
//	    host.WithTimeout(2*time.Second),
//	)
func New(bus can.Bus, deviceID byte, opts ...Option) *Client {
	if bus == nil {
		panic("bus cannot be nil")
	}
	if deviceID > protocol.MaxDeviceID {
		panic(fmt.Sprintf("device ID 0x%02X out of range", deviceID))
	}

	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	return &Client{
		bus:      bus,
		config:   cfg,
		deviceID: deviceID,
		cmdID:    protocol.CmdID(deviceID),
		statusID: protocol.StatusID(deviceID),
	}
}

// Ping checks that the device answers and returns its identity. With stay
// set, the device is told to remain in the bootloader.
func (c *Client) Ping(ctx context.Context, stay bool) (*protocol.PingReply, error) {
	var reply *protocol.PingReply
	err := c.withRetry("ping", func() error {
		if _, err := c.transactOnce(ctx, "ping", protocol.BuildPingCmd(stay)); err != nil {
			return err
		}
		payload, err := c.waitFrame(ctx, "ping", func(p []byte) bool {
			_, err := protocol.ParsePingReply(p)
			return err == nil
		})
		if err != nil {
			return err
		}
		reply, err = protocol.ParsePingReply(payload)
		return err
	})
	return reply, err
}

// Check queries the stored application image.
func (c *Client) Check(ctx context.Context) (*protocol.CheckInfo, error) {
	var info protocol.CheckInfo
	err := c.withRetry("check", func() error {
		if err := c.send("check", protocol.BuildCheckCmd()); err != nil {
			return err
		}
		payload, err := c.waitFrame(ctx, "check", func(p []byte) bool {
			return protocol.IsInfoFrame(p, protocol.FrameCheckSummary)
		})
		if err != nil {
			return err
		}
		if err := protocol.ParseCheckSummary(payload, &info); err != nil {
			return err
		}
		payload, err = c.waitFrame(ctx, "check", func(p []byte) bool {
			return protocol.IsInfoFrame(p, protocol.FrameCheckCRC)
		})
		if err != nil {
			return err
		}
		return protocol.ParseCheckCRC(payload, &info)
	})
	if err != nil {
		return nil, err
	}
	return &info, nil
}

// Update transfers a complete application image:
//  1. START with the image size (the device erases synchronously)
//  2. DATA commands of at most seven bytes, each acknowledged
//  3. END with the image checksum
//  4. optional CHECK read-back of the committed metadata
//
// The operation can be cancelled via context.
func (c *Client) Update(ctx context.Context, image []byte) error {
	if len(image) == 0 {
		return fmt.Errorf("image cannot be empty")
	}

	startTime := time.Now()
	crc := protocol.Checksum(image)

	c.reportProgress(Progress{Phase: PhaseStarting, TotalBytes: len(image)})
	c.logDebug("starting update", "bytes", len(image), "checksum", fmt.Sprintf("0x%08X", crc))

	// START is idempotent, so a lost reply is safe to retry.
	if _, err := c.transact(ctx, "start update", protocol.BuildStartCmd(uint32(len(image)))); err != nil {
		return err
	}

	sent := 0
	for sent < len(image) {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("cancelled: %w", err)
		}

		end := sent + protocol.MaxDataChunk
		if end > len(image) {
			end = len(image)
		}
		cmd, err := protocol.BuildDataCmd(image[sent:end])
		if err != nil {
			return err
		}

		// A DATA retransmit after a lost reply would double-apply the
		// chunk, so chunks get a single attempt; END detects the gap.
		if _, err := c.transactOnce(ctx, "send data", cmd); err != nil {
			return err
		}
		sent = end

		if c.config.ChunkDelay > 0 {
			time.Sleep(c.config.ChunkDelay)
		}

		c.reportProgress(Progress{
			Phase:       PhaseTransferring,
			BytesSent:   sent,
			TotalBytes:  len(image),
			Percentage:  float64(sent) / float64(len(image)) * 90,
			ElapsedTime: time.Since(startTime),
		})
	}

	c.reportProgress(Progress{
		Phase:       PhaseVerifying,
		BytesSent:   sent,
		TotalBytes:  len(image),
		Percentage:  95,
		ElapsedTime: time.Since(startTime),
	})

	if _, err := c.transactOnce(ctx, "finish update", protocol.BuildEndCmd(crc)); err != nil {
		return err
	}

	if c.config.VerifyAfterUpdate {
		info, err := c.Check(ctx)
		if err != nil {
			return fmt.Errorf("read back stored image: %w", err)
		}
		if !info.Valid || info.Size != uint32(len(image)) || info.CRC != crc {
			return &VerifyError{
				ExpectedSize: uint32(len(image)),
				StoredSize:   info.Size,
				ExpectedCRC:  crc,
				StoredCRC:    info.CRC,
			}
		}
	}

	c.reportProgress(Progress{
		Phase:       PhaseComplete,
		BytesSent:   sent,
		TotalBytes:  len(image),
		Percentage:  100,
		ElapsedTime: time.Since(startTime),
	})
	c.logInfo("update complete",
		"bytes", len(image),
		"elapsed", time.Since(startTime).String(),
	)

	return nil
}

// BootApp asks the device to validate the stored image and hand control to
// it. A failed jump is reported in a follow-up frame, which BootApp waits
// for and returns as a *protocol.StatusError; a device that jumped goes
// silent instead, so a nil return after the wait means the application is
// running.
func (c *Client) BootApp(ctx context.Context) error {
	if _, err := c.transact(ctx, "boot application", protocol.BuildBootAppCmd()); err != nil {
		return err
	}

	raw, err := c.waitFrame(ctx, "boot application", protocol.IsStatusReply)
	if err != nil {
		var te *TimeoutError
		if errors.As(err, &te) {
			return nil
		}
		return err
	}
	reply, err := protocol.ParseStatusReply(raw)
	if err != nil || reply.Status == protocol.StatusOK {
		return nil
	}
	return &protocol.StatusError{
		Operation: "boot application",
		Status:    reply.Status,
		Context:   reply.Context,
	}
}

// BootStatus returns the failure code of the device's most recent boot
// attempt. BootErrNone means no attempt failed.
func (c *Client) BootStatus(ctx context.Context) (protocol.BootError, error) {
	reply, err := c.transact(ctx, "boot status", protocol.BuildBootStatusCmd())
	if err != nil {
		return protocol.BootErrNone, err
	}
	return protocol.BootError(reply.Context), nil
}

// BridgeTransfer runs one bridge transaction: write tx to the 7-bit
// address, then read rxLen bytes.
func (c *Client) BridgeTransfer(ctx context.Context, addr7 byte, tx []byte, rxLen byte) ([]byte, error) {
	if len(tx) > protocol.BridgeMaxTx {
		return nil, fmt.Errorf("bridge write too long: got %d bytes, maximum is %d", len(tx), protocol.BridgeMaxTx)
	}

	if _, err := c.transact(ctx, "bridge clear", protocol.BuildBridgeClearCmd()); err != nil {
		return nil, err
	}

	for off := 0; off < len(tx); off += protocol.MaxDataChunk {
		end := off + protocol.MaxDataChunk
		if end > len(tx) {
			end = len(tx)
		}
		cmd, err := protocol.BuildBridgeAppendCmd(tx[off:end])
		if err != nil {
			return nil, err
		}
		if _, err := c.transactOnce(ctx, "bridge append", cmd); err != nil {
			return nil, err
		}
	}

	cmd, err := protocol.BuildBridgeXferCmd(addr7, rxLen)
	if err != nil {
		return nil, err
	}
	if err := c.send("bridge transfer", cmd); err != nil {
		return nil, err
	}
	return c.collectChunked(ctx, "bridge transfer", protocol.FrameBridgeRxData)
}

// BridgeScan probes the inclusive 7-bit address range and returns the
// addresses that answered.
func (c *Client) BridgeScan(ctx context.Context, first, last byte) ([]byte, error) {
	cmd, err := protocol.BuildBridgeScanCmd(first, last)
	if err != nil {
		return nil, err
	}
	if err := c.send("bridge scan", cmd); err != nil {
		return nil, err
	}

	bitmap, err := c.collectChunked(ctx, "bridge scan", protocol.FrameBridgeScan)
	if err != nil {
		return nil, err
	}

	var found []byte
	for addr := 0; addr < len(bitmap)*8 && addr < 0x80; addr++ {
		if bitmap[addr>>3]&(1<<(addr&0x07)) != 0 {
			found = append(found, byte(addr))
		}
	}
	return found, nil
}

// transact sends a command and waits for its status reply, retrying on
// timeout. A non-OK status is returned as a *protocol.StatusError.
func (c *Client) transact(ctx context.Context, op string, payload []byte) (protocol.StatusReply, error) {
	var reply protocol.StatusReply
	err := c.withRetry(op, func() error {
		var err error
		reply, err = c.transactOnce(ctx, op, payload)
		return err
	})
	return reply, err
}

// transactOnce sends a command and waits for exactly one status reply.
func (c *Client) transactOnce(ctx context.Context, op string, payload []byte) (protocol.StatusReply, error) {
	if err := c.send(op, payload); err != nil {
		return protocol.StatusReply{}, err
	}

	raw, err := c.waitFrame(ctx, op, protocol.IsStatusReply)
	if err != nil {
		return protocol.StatusReply{}, err
	}
	reply, err := protocol.ParseStatusReply(raw)
	if err != nil {
		return protocol.StatusReply{}, err
	}

	if reply.Status != protocol.StatusOK {
		return reply, &protocol.StatusError{
			Operation: op,
			Status:    reply.Status,
			Context:   reply.Context,
		}
	}
	return reply, nil
}

// withRetry runs fn up to Retries+1 times, retrying only on timeouts.
func (c *Client) withRetry(op string, fn func() error) error {
	var lastErr error
	for attempt := 0; attempt <= c.config.Retries; attempt++ {
		if attempt > 0 {
			c.logDebug("retrying", "operation", op, "attempt", attempt)
		}
		lastErr = fn()
		var te *TimeoutError
		if lastErr == nil || !errors.As(lastErr, &te) {
			return lastErr
		}
	}
	return lastErr
}

// send queues one command frame, waiting out transient bus backpressure up
// to the command timeout. Replies still queued from earlier commands are
// discarded first so they cannot be mistaken for this command's reply.
func (c *Client) send(op string, payload []byte) error {
	for {
		if _, ok, err := c.bus.Receive(0); err != nil || !ok {
			break
		}
	}

	f := can.NewFrame(c.cmdID, payload)
	deadline := time.Now().Add(c.config.Timeout)
	for {
		err := c.bus.Send(f)
		if err != can.ErrBusFull {
			return err
		}
		if time.Now().After(deadline) {
			return &TimeoutError{Operation: op, Timeout: c.config.Timeout}
		}
		time.Sleep(time.Millisecond)
	}
}

// waitFrame receives until a frame on the device's status identifier
// satisfies accept. Frames that do not, including replies to earlier
// commands, are discarded.
func (c *Client) waitFrame(ctx context.Context, op string, accept func([]byte) bool) ([]byte, error) {
	deadline := time.Now().Add(c.config.Timeout)
	for {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("cancelled: %w", err)
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, &TimeoutError{Operation: op, Timeout: c.config.Timeout}
		}
		if remaining > receiveSlice {
			remaining = receiveSlice
		}

		f, ok, err := c.bus.Receive(remaining)
		if err != nil {
			return nil, err
		}
		if !ok || f.ID != c.statusID {
			continue
		}
		if payload := f.Payload(); accept(payload) {
			return payload, nil
		}
	}
}

// collectChunked reassembles a chunked informational response.
func (c *Client) collectChunked(ctx context.Context, op string, subtype byte) ([]byte, error) {
	asm := protocol.NewChunkAssembler(subtype)
	for {
		payload, err := c.waitFrame(ctx, op, func(p []byte) bool {
			return protocol.IsInfoFrame(p, subtype)
		})
		if err != nil {
			return nil, err
		}
		done, err := asm.Feed(payload)
		if err != nil {
			return nil, err
		}
		if done {
			return asm.Bytes(), nil
		}
	}
}

func (c *Client) reportProgress(p Progress) {
	if c.config.ProgressCallback != nil {
		c.config.ProgressCallback(p)
	}
}

func (c *Client) logDebug(msg string, keysAndValues ...interface{}) {
	if c.config.Logger != nil {
		c.config.Logger.Debug(msg, keysAndValues...)
	}
}

func (c *Client) logInfo(msg string, keysAndValues ...interface{}) {
	if c.config.Logger != nil {
		c.config.Logger.Info(msg, keysAndValues...)
	}
}
