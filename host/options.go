package host

import "time"

// Config holds the client configuration.
type Config struct {
	// ProgressCallback is called during Update to report progress (optional)
	ProgressCallback ProgressCallback

	// Logger is used for logging operations (optional)
	Logger Logger

	// Timeout is how long to wait for each command's status reply
	Timeout time.Duration

	// ChunkDelay is an optional pause between DATA commands, for buses or
	// adapters that drop frames under sustained load
	ChunkDelay time.Duration

	// Retries is the number of retry attempts for timed-out commands
	Retries int

	// VerifyAfterUpdate enables a CHECK read-back after a successful END
	VerifyAfterUpdate bool
}

// defaultConfig returns the default configuration.
func defaultConfig() Config {
	return Config{
		Timeout:           time.Second,
		Retries:           3,
		VerifyAfterUpdate: true,
	}
}

// Option is a functional option for configuring the Client.
type Option func(*Config)

// WithProgressCallback sets a callback function to track update progress.
//
// Example:
//
//	client := host.New(bus, 0x05,
//	    host.WithProgressCallback(func(p host.Progress) {
//	        fmt.Printf("%.1f%% complete\n", p.Percentage)
//	    }),
//	)
func WithProgressCallback(callback ProgressCallback) Option {
	return func(c *Config) {
		c.ProgressCallback = callback
	}
}

// WithLogger sets a logger for the client operations.
func WithLogger(logger Logger) Option {
	return func(c *Config) {
		c.Logger = logger
	}
}

// WithTimeout sets how long to wait for each command's status reply.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Config) {
		if timeout > 0 {
			c.Timeout = timeout
		}
	}
}

// WithChunkDelay sets a pause between DATA commands.
func WithChunkDelay(delay time.Duration) Option {
	return func(c *Config) {
		c.ChunkDelay = delay
	}
}

// WithRetries sets the number of retry attempts for timed-out commands.
func WithRetries(retries int) Option {
	return func(c *Config) {
		if retries >= 0 {
			c.Retries = retries
		}
	}
}

// WithVerifyAfterUpdate controls the CHECK read-back after a successful
// transfer.
func WithVerifyAfterUpdate(verify bool) Option {
	return func(c *Config) {
		c.VerifyAfterUpdate = verify
	}
}
