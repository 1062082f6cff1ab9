package zstring

import "encoding/binary"

// FindAbbreviation resolves an abbreviation reference: z is the
// triggering Z-character (1, 2 or 3) and x is the Z-character that
// follows it, together indexing the 32-entry-per-z abbreviation table
// at abbreviationTableBase. Abbreviation strings are themselves plain
// Z-strings and are decoded recursively; the format forbids nesting, so
// there is no recursion-depth guard here.
func FindAbbreviation(version uint8, abbreviationTableBase uint16, memory []uint8, alphabets *Alphabets, z uint8, x uint8) string {
	abbrIx := 32*(z-1) + x
	addr := uint32(abbreviationTableBase) + 2*uint32(abbrIx)
	strAddr := 2 * uint32(binary.BigEndian.Uint16(memory[addr:addr+2]))

	str, _ := Decode(memory, strAddr, version, alphabets, abbreviationTableBase)
	return str
}
