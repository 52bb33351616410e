package device

// StaySlot is the cross-reset "stay in bootloader" signal: a word the
// application plants in memory that survives a soft reset. Consume has
// read-once-then-clear semantics; the slot is the only state shared across
// the reset boundary and it is never read twice.
type StaySlot interface {
	// Consume reports whether the signal was armed, clearing it either way.
	Consume() bool
}

// StayMagic is the value an application writes into the slot to request
// the bootloader to stay after the next reset.
const StayMagic = 0xB007B007

// MemStaySlot is an in-memory StaySlot for simulation and tests.
type MemStaySlot struct {
	word uint32
}

// Arm plants the stay signal.
func (s *MemStaySlot) Arm() {
	s.word = StayMagic
}

// Consume implements StaySlot.
func (s *MemStaySlot) Consume() bool {
	armed := s.word == StayMagic
	s.word = 0
	return armed
}

// nullStaySlot is used when the port provides no slot.
type nullStaySlot struct{}

func (nullStaySlot) Consume() bool { return false }
