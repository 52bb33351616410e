package protocol

// Image checksum parameters. The algorithm is a 32-bit CRC with generator
// polynomial 0x04C11DB7 fed MSB-first without bit reflection: each input
// byte is XORed into the top byte of the accumulator, which is then shifted
// left eight times with the polynomial folded in whenever the vacated top
// bit was set. The externally visible value is the one's complement of the
// final accumulator.
//
// This is deliberately not the common reflected CRC-32 (hash/crc32); the
// device, the metadata record and the host tooling all depend on this exact
// bit ordering.
const (
	crcPoly = 0x04C11DB7
	crcInit = 0xFFFFFFFF
)

// CRC is a streaming accumulator for the bootloader image checksum.
// The zero value is not ready for use; call Reset or use NewCRC.
type CRC struct {
	acc uint32
}

// NewCRC returns a CRC in its initial (all-ones) state.
func NewCRC() *CRC {
	c := &CRC{}
	c.Reset()
	return c
}

// Reset returns the accumulator to its initial state.
func (c *CRC) Reset() {
	c.acc = crcInit
}

// Update feeds data into the accumulator.
func (c *CRC) Update(data []byte) {
	acc := c.acc
	for _, b := range data {
		acc ^= uint32(b) << 24
		for i := 0; i < 8; i++ {
			if acc&0x80000000 != 0 {
				acc = acc<<1 ^ crcPoly
			} else {
				acc <<= 1
			}
		}
	}
	c.acc = acc
}

// Sum returns the checksum of the bytes fed so far. It does not alter the
// accumulator; more data may be fed afterwards.
func (c *CRC) Sum() uint32 {
	return ^c.acc
}

// Checksum computes the checksum of data in one call.
func Checksum(data []byte) uint32 {
	c := NewCRC()
	c.Update(data)
	return c.Sum()
}
