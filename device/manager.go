package device

import (
	"fmt"

	"github.com/rhytmics/canboot/protocol"
)

// Manager drives the flash array according to the bootloader memory map:
// erasing and programming the application region, and reading, writing and
// validating the metadata record. Every erase/program call is bracketed by
// an Unlock/Lock pair.
type Manager struct {
	flash  Flash
	layout Layout
}

// NewManager returns a Manager for the given flash and layout.
func NewManager(flash Flash, layout Layout) (*Manager, error) {
	if err := layout.Validate(); err != nil {
		return nil, fmt.Errorf("invalid layout: %w", err)
	}
	return &Manager{flash: flash, layout: layout}, nil
}

// Layout returns the memory map the manager operates in.
func (m *Manager) Layout() Layout {
	return m.layout
}

// EraseAppRegion erases every page spanning the application area in one
// operation.
func (m *Manager) EraseAppRegion() error {
	pages := m.layout.AppMaxSize() / m.layout.PageSize
	m.flash.Unlock()
	err := m.flash.ErasePages(m.layout.AppStart(), pages)
	m.flash.Lock()
	if err != nil {
		return fmt.Errorf("erase app region: %w", err)
	}
	return nil
}

// ProgramBytes writes data at addr in ProgramAlign chunks. A trailing
// partial chunk is padded with the erased byte value. addr must be aligned.
func (m *Manager) ProgramBytes(addr uint32, data []byte) error {
	m.flash.Unlock()
	defer m.flash.Lock()

	for len(data) > 0 {
		var word [ProgramAlign]byte
		n := copy(word[:], data)
		for i := n; i < ProgramAlign; i++ {
			word[i] = ErasedByte
		}
		if err := m.flash.Program(addr, word[:]); err != nil {
			return fmt.Errorf("program at 0x%08X: %w", addr, err)
		}
		addr += ProgramAlign
		data = data[n:]
	}
	return nil
}

// ReadMeta reads the stored metadata record without validating it.
func (m *Manager) ReadMeta() (protocol.Meta, error) {
	buf := make([]byte, protocol.MetaSize)
	if err := m.flash.Read(m.layout.MetaAddr(), buf); err != nil {
		return protocol.Meta{}, fmt.Errorf("read metadata: %w", err)
	}
	return protocol.DecodeMeta(buf)
}

// WriteMeta erases the metadata page and programs the record. The record is
// written only after an image has been fully received and verified; a power
// loss mid-write leaves the magic/CRC combination invalid, so validation
// reports "no application" rather than trusting a torn record.
func (m *Manager) WriteMeta(meta protocol.Meta) error {
	m.flash.Unlock()
	err := m.flash.ErasePages(m.layout.MetaAddr(), 1)
	m.flash.Lock()
	if err != nil {
		return fmt.Errorf("erase metadata page: %w", err)
	}
	return m.ProgramBytes(m.layout.MetaAddr(), meta.Encode())
}

// crcReadChunk is the buffer size used when recomputing the image CRC.
const crcReadChunk = 256

// ComputeAppCRC computes the image checksum over the first size bytes of
// the application region.
func (m *Manager) ComputeAppCRC(size uint32) (uint32, error) {
	crc := protocol.NewCRC()
	buf := make([]byte, crcReadChunk)
	addr := m.layout.AppStart()
	for size > 0 {
		n := uint32(len(buf))
		if size < n {
			n = size
		}
		if err := m.flash.Read(addr, buf[:n]); err != nil {
			return 0, fmt.Errorf("read app region: %w", err)
		}
		crc.Update(buf[:n])
		addr += n
		size -= n
	}
	return crc.Sum(), nil
}

// AppValid reports whether a valid application is stored, returning its
// metadata when it is. Valid requires the magic constant, a size within the
// region's capacity and a full CRC recomputation matching the stored value;
// a magic match alone is never sufficient.
func (m *Manager) AppValid() (protocol.Meta, bool) {
	meta, err := m.ReadMeta()
	if err != nil {
		return protocol.Meta{}, false
	}
	if meta.Magic != protocol.MetaMagic {
		return protocol.Meta{}, false
	}
	if meta.Size == 0 || meta.Size > m.layout.AppMaxSize() {
		return protocol.Meta{}, false
	}
	crc, err := m.ComputeAppCRC(meta.Size)
	if err != nil || crc != meta.CRC {
		return protocol.Meta{}, false
	}
	return meta, true
}
