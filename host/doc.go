// Package host provides a high-level API for talking to the CAN bootloader
// from the host side.
//
// # Overview
//
// This package orchestrates the complete firmware update sequence:
//   - Discovering and identifying devices with PING
//   - Querying the stored image with CHECK
//   - Transferring an image with START / DATA / END and checksum verification
//   - Requesting an application boot and querying the outcome
//   - Driving the diagnostic pass-through bridge
//
// # Basic Usage
//
// The simplest way to update a device:
//
//	bus, err := can.OpenSLCAN(port, 500000)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	img, err := image.Load("firmware.bin", layout)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	client := host.New(bus, 0x05)
//	if err := client.Update(context.Background(), img.Data); err != nil {
//	    log.Fatal(err)
//	}
//	if err := client.BootApp(context.Background()); err != nil {
//	    log.Fatal(err)
//	}
//
// # Progress Tracking
//
// Track transfer progress with a callback:
//
//	client := host.New(bus, 0x05,
//	    host.WithProgressCallback(func(p host.Progress) {
//	        fmt.Printf("[%s] %.1f%%\n", p.Phase, p.Percentage)
//	    }),
//	)
//
// # Error Handling
//
// Commands refused by the device surface as *protocol.StatusError; replies
// that never arrive surface as *TimeoutError. A successful transfer whose
// stored image does not match what was sent surfaces as *VerifyError.
package host
