package zstring

var a0Default = [26]byte{'a', 'b', 'c', 'd', 'e', 'f', 'g', 'h', 'i', 'j', 'k', 'l', 'm', 'n', 'o', 'p', 'q', 'r', 's', 't', 'u', 'v', 'w', 'x', 'y', 'z'}
var a1Default = [26]byte{'A', 'B', 'C', 'D', 'E', 'F', 'G', 'H', 'I', 'J', 'K', 'L', 'M', 'N', 'O', 'P', 'Q', 'R', 'S', 'T', 'U', 'V', 'W', 'X', 'Y', 'Z'}

// a2V1/a2V2Default are indexed by zchr-6 just like A0/A1: position 0 is
// never read because zchr 6 in alphabet 2 is always the 10-bit ZSCII
// escape, never a literal. It is still present to keep indexing uniform.
var a2V1 = [26]byte{0, '0', '1', '2', '3', '4', '5', '6', '7', '8', '9', '.', ',', '!', '?', '_', '#', '\'', '"', '/', '\\', '<', '-', ':', '(', ')'}
var a2V2Default = [26]byte{0, '\n', '0', '1', '2', '3', '4', '5', '6', '7', '8', '9', '.', ',', '!', '?', '_', '#', '\'', '"', '/', '\\', '-', ':', '(', ')'}

// Alphabets holds the three 26-entry Z-character tables used by a
// story's version. Versions 1-4 always use the built-in defaults;
// version 5+ may override all three from a table pointed to by the
// header's alphabet-table-base field.
type Alphabets struct {
	A0 [26]byte
	A1 [26]byte
	A2 [26]byte
}

var defaultAlphabetsV1 = Alphabets{A0: a0Default, A1: a1Default, A2: a2V1}

// LoadAlphabets builds the alphabet set for version, reading a custom
// table out of memory at alphabetTableBase when the version and header
// call for one (v5+, non-zero base).
func LoadAlphabets(version uint8, memory []uint8, alphabetTableBase uint16) *Alphabets {
	a := &Alphabets{A0: a0Default, A1: a1Default}
	if version == 1 {
		a.A2 = a2V1
	} else {
		a.A2 = a2V2Default
	}

	if version >= 5 && alphabetTableBase != 0 && int(alphabetTableBase)+78 <= len(memory) {
		base := uint32(alphabetTableBase)
		copy(a.A0[:], memory[base:base+26])
		copy(a.A1[:], memory[base+26:base+52])
		copy(a.A2[:], memory[base+52:base+78])
	}

	return a
}

func indexOf(table [26]byte, c byte) int {
	for i, v := range table {
		if v == c {
			return i
		}
	}
	return -1
}
