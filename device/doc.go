// Package device implements the device side of the Rhytmics CAN bootloader:
// the flash manager, the update transfer state machine, the boot arbiter and
// the safe-jump executor, driven by a single-threaded poll loop.
//
// The core is hardware-independent. A port supplies three small interfaces:
//
//   - Flash: erase/program/read of the on-chip flash array
//   - can.Bus: the CAN endpoint the protocol runs over
//   - Board: peripheral teardown and the one-way transfer of control
//
// plus optional collaborators (Blinker, BridgeTransfer, StaySlot, Clock).
// MemFlash provides a faithful in-memory flash for tests and simulation.
//
// # Execution model
//
// Everything runs on one goroutine: Run polls the bus, dispatches at most
// one command per iteration and services the LED queue. Flash operations
// block the loop for their duration. There is no cancellation primitive for
// an in-flight transfer; a new START supersedes the old session.
//
//	flash := device.NewMemFlash(device.DefaultLayout())
//	dev, err := device.New(flash, bus, board, device.WithDeviceID(0x05))
//	if err != nil {
//		return err
//	}
//	dev.Run(ctx)
package device
