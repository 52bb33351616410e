package image

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/marcinbor85/gohex"

	"github.com/rhytmics/canboot/protocol"
)

// erasedByte fills gaps between Intel HEX segments; it matches the value
// flash holds after an erase, so filled bytes program as no-ops.
const erasedByte = 0xFF

// Image is a loaded application image, contiguous from the application
// base address.
type Image struct {
	// Base is the flash address the image is linked for
	Base uint32

	// Data is the image content, transferred byte for byte
	Data []byte
}

// Checksum returns the image checksum the END command carries.
func (img *Image) Checksum() uint32 {
	return protocol.Checksum(img.Data)
}

// Load reads an image file, picking the format from the extension: .hex is
// parsed as Intel HEX, everything else is taken as raw binary. base is the
// application region start address and maxSize its capacity.
//
// Example:
//
//	img, err := image.Load("firmware.bin", 0x08004000, 110*1024)
func Load(path string, base, maxSize uint32) (*Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer func() { _ = f.Close() }()

	if strings.EqualFold(filepath.Ext(path), ".hex") {
		return LoadHex(f, base, maxSize)
	}
	return LoadBin(f, base, maxSize)
}

// LoadBin reads a raw binary image from r.
func LoadBin(r io.Reader, base, maxSize uint32) (*Image, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read image: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("image is empty")
	}
	if uint32(len(data)) > maxSize {
		return nil, fmt.Errorf("image is %d bytes, region holds %d", len(data), maxSize)
	}
	return &Image{Base: base, Data: data}, nil
}

// LoadHex parses an Intel HEX image from r and flattens it into one
// contiguous run starting at base. The image must start exactly at base;
// gaps between segments are filled with the erased flash value.
func LoadHex(r io.Reader, base, maxSize uint32) (*Image, error) {
	mem := gohex.NewMemory()
	if err := mem.ParseIntelHex(r); err != nil {
		return nil, fmt.Errorf("failed to parse hex file: %w", err)
	}

	segments := mem.GetDataSegments()
	if len(segments) == 0 {
		return nil, fmt.Errorf("image is empty")
	}
	sort.Slice(segments, func(i, j int) bool {
		return segments[i].Address < segments[j].Address
	})

	if first := segments[0].Address; first != base {
		return nil, fmt.Errorf("image starts at 0x%08X, expected the application base 0x%08X", first, base)
	}

	var data []byte
	next := base
	for _, seg := range segments {
		if seg.Address < next {
			return nil, fmt.Errorf("overlapping segment at 0x%08X", seg.Address)
		}
		for next < seg.Address {
			data = append(data, erasedByte)
			next++
		}
		data = append(data, seg.Data...)
		next += uint32(len(seg.Data))
		if next-base > maxSize {
			return nil, fmt.Errorf("image is %d bytes, region holds %d", next-base, maxSize)
		}
	}

	return &Image{Base: base, Data: data}, nil
}
