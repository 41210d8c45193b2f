package graphics

// nesPalette is the host-owned translation table from the PPU's 6-bit
// palette index to a packed 0x00RRGGBB color. The core never performs
// this translation itself (see SPEC_FULL.md's CARTRIDGE DESCRIPTION /
// AMBIENT STACK notes on the PPU emitting indices, not RGB).
var nesPalette = [64]uint32{
	0x666666, 0x002A88, 0x1412A7, 0x3B00A4, 0x5C007E, 0x6E0040, 0x6C0600, 0x561D00,
	0x333500, 0x0B4800, 0x005200, 0x004F08, 0x00404D, 0x000000, 0x000000, 0x000000,
	0xADADAD, 0x155FD9, 0x4240FF, 0x7527FE, 0xA01ACC, 0xB71E7B, 0xB53120, 0x994E00,
	0x6B6D00, 0x388700, 0x0C9300, 0x008F32, 0x007C8D, 0x000000, 0x000000, 0x000000,
	0xFFFEFF, 0x64B0FF, 0x9290FF, 0xC676FF, 0xF36AFF, 0xFE6ECC, 0xFE8170, 0xEA9E22,
	0xBCBE00, 0x88D800, 0x5CE430, 0x45E082, 0x48CDDE, 0x4F4F4F, 0x000000, 0x000000,
	0xFFFEFF, 0xC0DFFF, 0xD3D2FF, 0xE8C8FF, 0xFBC2FF, 0xFEC4EA, 0xFECCC5, 0xF7D8A5,
	0xE4E594, 0xCFF29B, 0xBEFBB3, 0xB8F8D8, 0xB8F8F8, 0x000000, 0x000000, 0x000000,
}

// PaletteToRGB converts a 6-bit NES palette index into a packed RGB
// value, clamping out-of-range indices to black.
func PaletteToRGB(index uint8) uint32 {
	if index >= 64 {
		return 0
	}
	return nesPalette[index]
}

// TranslateFrame converts a PPU palette-index framebuffer into an RGB
// framebuffer the backends and VideoProcessor operate on.
func TranslateFrame(indices [256 * 240]uint8) []uint32 {
	out := make([]uint32, len(indices))
	for i, idx := range indices {
		out[i] = PaletteToRGB(idx)
	}
	return out
}
