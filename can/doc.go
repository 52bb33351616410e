// Package can provides the CAN transport used by the bootloader protocol:
// a frame value type, a minimal Bus interface, an in-memory connected pair
// for tests and simulation, and an SLCAN (Lawicel ASCII) adapter for real
// serial CAN interfaces.
//
// The bootloader protocol only needs classic data frames with 11-bit
// identifiers and up to 8 payload bytes, so that is all Bus models.
package can
