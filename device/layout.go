package device

import "fmt"

// ProgramAlign is the flash program granularity in bytes: the hardware
// accepts writes only as aligned double-words.
const ProgramAlign = 8

// ErasedByte is the value of every flash byte after an erase.
const ErasedByte = 0xFF

// Range is an address range, inclusive of both ends.
type Range struct {
	Start uint32
	End   uint32
}

// Contains reports whether addr lies in the range.
func (r Range) Contains(addr uint32) bool {
	return addr >= r.Start && addr <= r.End
}

// Layout describes the flash geometry and memory map the bootloader
// operates in. The metadata record occupies the last flash page; the
// application region runs from the end of the bootloader to the metadata
// page.
type Layout struct {
	// FlashBase is the base address of the flash array
	FlashBase uint32

	// FlashSize is the total flash size in bytes
	FlashSize uint32

	// PageSize is the erase page size in bytes
	PageSize uint32

	// BootSize is the flash reserved for the bootloader itself, from
	// FlashBase
	BootSize uint32

	// RAM lists the address ranges a valid application stack pointer may
	// point into
	RAM []Range
}

// DefaultLayout returns the layout of the production board: 128 KiB flash
// in 2 KiB pages at 0x08000000, 16 KiB bootloader, metadata in the last
// page, SRAM1 and SRAM2 stack ranges.
func DefaultLayout() Layout {
	return Layout{
		FlashBase: 0x08000000,
		FlashSize: 128 * 1024,
		PageSize:  2 * 1024,
		BootSize:  16 * 1024,
		RAM: []Range{
			{Start: 0x20000000, End: 0x2000C000},
			{Start: 0x10000000, End: 0x10004000},
		},
	}
}

// AppStart returns the first address of the application region.
func (l Layout) AppStart() uint32 {
	return l.FlashBase + l.BootSize
}

// AppEnd returns the address just past the application region.
func (l Layout) AppEnd() uint32 {
	return l.MetaAddr()
}

// AppMaxSize returns the capacity of the application region in bytes.
func (l Layout) AppMaxSize() uint32 {
	return l.AppEnd() - l.AppStart()
}

// MetaAddr returns the address of the metadata record (start of the last
// flash page).
func (l Layout) MetaAddr() uint32 {
	return l.FlashBase + l.FlashSize - l.PageSize
}

// StackValid reports whether addr is acceptable as an application initial
// stack pointer.
func (l Layout) StackValid(addr uint32) bool {
	for _, r := range l.RAM {
		if r.Contains(addr) {
			return true
		}
	}
	return false
}

// Validate checks the layout for internal consistency.
func (l Layout) Validate() error {
	if l.PageSize == 0 || l.PageSize%ProgramAlign != 0 {
		return fmt.Errorf("page size %d is not a positive multiple of %d", l.PageSize, ProgramAlign)
	}
	if l.FlashSize == 0 || l.FlashSize%l.PageSize != 0 {
		return fmt.Errorf("flash size %d is not a positive multiple of the page size", l.FlashSize)
	}
	if l.BootSize%l.PageSize != 0 {
		return fmt.Errorf("bootloader size %d is not page aligned", l.BootSize)
	}
	if l.BootSize+l.PageSize >= l.FlashSize {
		return fmt.Errorf("no room for an application region")
	}
	return nil
}
