package host

import "time"

// Update phases reported to the progress callback.
const (
	// PhaseStarting covers the START command and the device-side erase
	PhaseStarting = "starting"

	// PhaseTransferring covers the DATA stream
	PhaseTransferring = "transferring"

	// PhaseVerifying covers the END exchange and the optional read-back check
	PhaseVerifying = "verifying"

	// PhaseComplete is reported once after a successful update
	PhaseComplete = "complete"
)

// Progress contains information about an update in flight. Passed to
// ProgressCallback during Update.
type Progress struct {
	// Phase is the current update phase
	Phase string

	// BytesSent is the number of image bytes acknowledged so far
	BytesSent int

	// TotalBytes is the image size
	TotalBytes int

	// Percentage is the completion percentage (0.0 to 100.0)
	Percentage float64

	// ElapsedTime is the time elapsed since the update started
	ElapsedTime time.Duration
}

// ProgressCallback is called periodically during Update to report progress.
// Implementations should return quickly to avoid stalling the transfer.
type ProgressCallback func(Progress)

// Logger is an optional logging interface that can be provided to the
// client. This allows integration with any logging framework.
//
// Example with standard log package:
//
//	type StdLogger struct{}
//	func (l *StdLogger) Debug(msg string, kv ...interface{}) { log.Println(msg, kv) }
//	func (l *StdLogger) Info(msg string, kv ...interface{})  { log.Println(msg, kv) }
//	func (l *StdLogger) Error(msg string, kv ...interface{}) { log.Println(msg, kv) }
type Logger interface {
	// Debug logs a debug message with optional key-value pairs
	Debug(msg string, keysAndValues ...interface{})

	// Info logs an info message with optional key-value pairs
	Info(msg string, keysAndValues ...interface{})

	// Error logs an error message with optional key-value pairs
	Error(msg string, keysAndValues ...interface{})
}
