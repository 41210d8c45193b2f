// Package inesload parses iNES/NES 2.0 ROM images into a normalized
// cartridge.Description. Binary header decoding is kept out of
// internal/cartridge entirely: this package is the only place that
// understands file bytes, and it hands off to the cartridge package
// purely through that normalized value.
package inesload

import (
	"encoding/binary"
	"errors"
	"io"
	"os"

	"github.com/nesgo/core/internal/cartridge"
)

// header is the 16-byte iNES file header.
type header struct {
	Magic      [4]uint8
	PRGROMSize uint8 // in 16KB units
	CHRROMSize uint8 // in 8KB units
	Flags6     uint8
	Flags7     uint8
	Flags8     uint8 // PRG-RAM size (iNES), or mapper/submapper high bits (NES 2.0)
	Flags9     uint8 // TV system (iNES), or PRG/CHR ROM size MSB (NES 2.0)
	Flags10    uint8
	Padding    [5]uint8
}

// isNES20 reports whether the header uses the NES 2.0 format, identified
// by bits 2-3 of byte 7 being 0b10.
func (h header) isNES20() bool {
	return h.Flags7&0x0C == 0x08
}

// ParseFile opens filename and parses it as an iNES/NES 2.0 ROM image.
func ParseFile(filename string) (cartridge.Description, error) {
	file, err := os.Open(filename)
	if err != nil {
		return cartridge.Description{}, err
	}
	defer file.Close()

	return Parse(file)
}

// Parse decodes an iNES/NES 2.0 ROM image from r into a normalized
// cartridge.Description, ready for cartridge.NewFromDescription.
func Parse(r io.Reader) (cartridge.Description, error) {
	var h header
	if err := binary.Read(r, binary.LittleEndian, &h); err != nil {
		return cartridge.Description{}, err
	}

	if string(h.Magic[:]) != "NES\x1A" {
		return cartridge.Description{}, errors.New("invalid iNES file")
	}
	if h.PRGROMSize == 0 {
		return cartridge.Description{}, errors.New("invalid ROM: PRG ROM size cannot be zero")
	}

	desc := cartridge.Description{
		Mapper:  (h.Flags6 >> 4) | (h.Flags7 & 0xF0),
		Battery: h.Flags6&0x02 != 0,
	}

	if h.isNES20() {
		// NES 2.0 extends the mapper number into bits 8-11 of byte 8;
		// every board this core implements fits in the base 8 bits, so
		// only submapper is decoded here.
		desc.Submapper = h.Flags8 >> 4
	}

	switch {
	case h.Flags6&0x08 != 0:
		desc.Mirror = cartridge.MirrorFourScreen
	case h.Flags6&0x01 != 0:
		desc.Mirror = cartridge.MirrorVertical
	default:
		desc.Mirror = cartridge.MirrorHorizontal
	}

	if h.Flags9&0x01 != 0 {
		desc.Region = cartridge.RegionPAL
	} else {
		desc.Region = cartridge.RegionNTSC
	}

	if h.Flags6&0x04 != 0 {
		trainer := make([]uint8, 512)
		if _, err := io.ReadFull(r, trainer); err != nil {
			return cartridge.Description{}, err
		}
	}

	prgSize := int(h.PRGROMSize) * 16384
	desc.PRG = make([]uint8, prgSize)
	if _, err := io.ReadFull(r, desc.PRG); err != nil {
		return cartridge.Description{}, err
	}

	chrSize := int(h.CHRROMSize) * 8192
	if chrSize > 0 {
		chr := make([]uint8, chrSize)
		if _, err := io.ReadFull(r, chr); err != nil {
			return cartridge.Description{}, err
		}
		desc.CHR = chr
	} else {
		desc.CHRRAMSize = 8192
	}

	return desc, nil
}
