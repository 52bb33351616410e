package device

import "time"

// Clock returns a monotonic millisecond tick. All bootloader timing (the
// autorun window, blink scheduling, send budgets) is measured against it,
// never against wall-clock time.
type Clock func() uint32

// monotonicClock ticks from process start.
func monotonicClock() Clock {
	start := time.Now()
	return func() uint32 {
		return uint32(time.Since(start) / time.Millisecond)
	}
}

// Config holds the device configuration.
type Config struct {
	// DeviceID selects the CAN identifiers (0..MaxDeviceID)
	DeviceID byte

	// Layout is the flash and RAM memory map
	Layout Layout

	// AutorunWindow is how long to service the bus before auto-booting a
	// valid application, in milliseconds
	AutorunWindow uint32

	// ForceStay, when set, never auto-boots (build-configuration override)
	ForceStay bool

	// SendBudget bounds the busy-wait for a free transmit slot, in
	// milliseconds; on expiry the reply is dropped rather than hanging
	SendBudget uint32

	// Clock supplies the monotonic millisecond tick
	Clock Clock

	// LED is the activity indicator (optional)
	LED Blinker

	// Bridge is the diagnostic pass-through transfer primitive (optional)
	Bridge BridgeTransfer

	// StaySlot is the cross-reset stay signal (optional)
	StaySlot StaySlot

	// ResetCause is the reset-cause byte reported in the startup
	// announcement
	ResetCause byte
}

// defaultConfig returns the production defaults.
func defaultConfig() Config {
	return Config{
		DeviceID:      0x05,
		Layout:        DefaultLayout(),
		AutorunWindow: 3000,
		SendBudget:    20,
		Clock:         monotonicClock(),
		LED:           nullBlinker{},
		StaySlot:      nullStaySlot{},
	}
}

// Option is a functional option for configuring a Device.
type Option func(*Config)

// WithDeviceID sets the device ID the CAN identifiers derive from.
func WithDeviceID(id byte) Option {
	return func(c *Config) {
		c.DeviceID = id
	}
}

// WithLayout sets the flash and RAM memory map.
func WithLayout(layout Layout) Option {
	return func(c *Config) {
		c.Layout = layout
	}
}

// WithAutorunWindow sets the autorun wait in milliseconds.
func WithAutorunWindow(ms uint32) Option {
	return func(c *Config) {
		c.AutorunWindow = ms
	}
}

// WithForceStay prevents any autonomous jump to the application.
func WithForceStay(force bool) Option {
	return func(c *Config) {
		c.ForceStay = force
	}
}

// WithClock sets the monotonic millisecond tick source.
func WithClock(clock Clock) Option {
	return func(c *Config) {
		if clock != nil {
			c.Clock = clock
		}
	}
}

// WithLED sets the activity indicator.
func WithLED(led Blinker) Option {
	return func(c *Config) {
		if led != nil {
			c.LED = led
		}
	}
}

// WithBridge fits the diagnostic pass-through bridge.
func WithBridge(bridge BridgeTransfer) Option {
	return func(c *Config) {
		c.Bridge = bridge
	}
}

// WithStaySlot sets the cross-reset stay signal source.
func WithStaySlot(slot StaySlot) Option {
	return func(c *Config) {
		if slot != nil {
			c.StaySlot = slot
		}
	}
}

// WithResetCause sets the reset-cause byte for the startup announcement.
func WithResetCause(cause byte) Option {
	return func(c *Config) {
		c.ResetCause = cause
	}
}
