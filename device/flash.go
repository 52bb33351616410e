package device

import (
	"errors"
	"fmt"
)

// Flash access errors.
var (
	// ErrFlashLocked is returned when erase or program is attempted
	// outside an Unlock/Lock bracket.
	ErrFlashLocked = errors.New("flash: locked")

	// ErrFlashBounds is returned for accesses outside the flash array.
	ErrFlashBounds = errors.New("flash: address out of bounds")

	// ErrFlashAlign is returned for writes violating the program
	// granularity.
	ErrFlashAlign = errors.New("flash: bad alignment")
)

// Flash is the on-chip flash array. Erase and Program are only legal
// between Unlock and Lock; the bracketing guarantees flash cannot be
// modified outside an explicit operation. Addresses are absolute.
type Flash interface {
	// Unlock enables erase and program operations.
	Unlock()

	// Lock disables erase and program operations.
	Lock()

	// ErasePages erases count pages starting at the page containing addr,
	// setting every byte to ErasedByte. addr must be page aligned.
	ErasePages(addr uint32, count uint32) error

	// Program writes data at addr. addr must be ProgramAlign aligned and
	// len(data) a multiple of ProgramAlign. Programming can only clear
	// bits; programming over already-programmed bytes yields the AND of
	// both values, as the hardware does.
	Program(addr uint32, data []byte) error

	// Read copies len(p) bytes starting at addr into p.
	Read(addr uint32, p []byte) error
}

// MemFlash is an in-memory Flash with hardware-faithful semantics: pages
// come up erased, programming clears bits only, and erase/program outside
// an unlock bracket fail. It also counts operations and supports fault
// injection, for tests.
type MemFlash struct {
	base     uint32
	pageSize uint32
	mem      []byte
	unlocked bool

	// FailErase and FailProgram, when non-nil, are returned by the next
	// matching operation (fault injection).
	FailErase   error
	FailProgram error

	// EraseCount and ProgramCount tally successful operations.
	EraseCount   int
	ProgramCount int
}

// NewMemFlash returns an erased in-memory flash with the given geometry.
func NewMemFlash(layout Layout) *MemFlash {
	f := &MemFlash{
		base:     layout.FlashBase,
		pageSize: layout.PageSize,
		mem:      make([]byte, layout.FlashSize),
	}
	for i := range f.mem {
		f.mem[i] = ErasedByte
	}
	return f
}

// Unlock enables erase and program.
func (f *MemFlash) Unlock() { f.unlocked = true }

// Lock disables erase and program.
func (f *MemFlash) Lock() { f.unlocked = false }

// ErasePages implements Flash.
func (f *MemFlash) ErasePages(addr uint32, count uint32) error {
	if !f.unlocked {
		return ErrFlashLocked
	}
	if f.FailErase != nil {
		err := f.FailErase
		f.FailErase = nil
		return err
	}
	if addr < f.base || (addr-f.base)%f.pageSize != 0 {
		return fmt.Errorf("%w: erase at 0x%08X", ErrFlashAlign, addr)
	}
	off := addr - f.base
	if off >= uint32(len(f.mem)) || count > (uint32(len(f.mem))-off)/f.pageSize {
		return fmt.Errorf("%w: erase 0x%08X+%d pages", ErrFlashBounds, addr, count)
	}
	end := off + count*f.pageSize
	for i := off; i < end; i++ {
		f.mem[i] = ErasedByte
	}
	f.EraseCount++
	return nil
}

// Program implements Flash.
func (f *MemFlash) Program(addr uint32, data []byte) error {
	if !f.unlocked {
		return ErrFlashLocked
	}
	if f.FailProgram != nil {
		err := f.FailProgram
		f.FailProgram = nil
		return err
	}
	if addr%ProgramAlign != 0 || len(data)%ProgramAlign != 0 {
		return fmt.Errorf("%w: program at 0x%08X length %d", ErrFlashAlign, addr, len(data))
	}
	if addr < f.base {
		return fmt.Errorf("%w: program at 0x%08X", ErrFlashBounds, addr)
	}
	// Subtract rather than add so the check cannot wrap for addresses
	// near the top of the 32-bit space.
	off := addr - f.base
	if off >= uint32(len(f.mem)) || uint32(len(data)) > uint32(len(f.mem))-off {
		return fmt.Errorf("%w: program 0x%08X+%d", ErrFlashBounds, addr, len(data))
	}
	for i, b := range data {
		f.mem[off+uint32(i)] &= b
	}
	f.ProgramCount++
	return nil
}

// Read implements Flash. Reads need no unlock.
func (f *MemFlash) Read(addr uint32, p []byte) error {
	if addr < f.base {
		return fmt.Errorf("%w: read at 0x%08X", ErrFlashBounds, addr)
	}
	off := addr - f.base
	if off >= uint32(len(f.mem)) || uint32(len(p)) > uint32(len(f.mem))-off {
		return fmt.Errorf("%w: read 0x%08X+%d", ErrFlashBounds, addr, len(p))
	}
	copy(p, f.mem[off:])
	return nil
}
