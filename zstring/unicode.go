package zstring

import "encoding/binary"

// DefaultUnicodeTranslationTable is the Z-machine standard's default
// extra character set for ZSCII codes 155-223, used whenever a story
// does not supply its own Unicode translation table via the header
// extension table.
var DefaultUnicodeTranslationTable = map[rune]uint8{
	'ä': 155, 'ö': 156, 'ü': 157, 'Ä': 158, 'Ö': 159, 'Ü': 160, 'ß': 161,
	'»': 162, '«': 163, 'ë': 164, 'ï': 165, 'ÿ': 166, 'Ë': 167, 'Ï': 168,
	'á': 169, 'é': 170, 'í': 171, 'ó': 172, 'ú': 173, 'ý': 174, 'Á': 175,
	'É': 176, 'Í': 177, 'Ó': 178, 'Ú': 179, 'Ý': 180, 'à': 181, 'è': 182,
	'ì': 183, 'ò': 184, 'ù': 185, 'À': 186, 'È': 187, 'Ì': 188, 'Ò': 189,
	'Ù': 190, 'â': 191, 'ê': 192, 'î': 193, 'ô': 194, 'û': 195, 'Â': 196,
	'Ê': 197, 'Î': 198, 'Ô': 199, 'Û': 200, 'å': 201, 'Å': 202, 'ø': 203,
	'Ø': 204, 'ã': 205, 'ñ': 206, 'õ': 207, 'Ã': 208, 'Ñ': 209, 'Õ': 210,
	'æ': 211, 'Æ': 212, 'ç': 213, 'Ç': 214, 'þ': 215, 'ð': 216, 'Þ': 217,
	'Ð': 218, '£': 219, 'œ': 220, 'Œ': 221, '¡': 222, '¿': 223,
}

// unicodeToZscii finds the ZSCII code for r, consulting memory's header
// extension table for a custom translation table first. memory may be
// nil, in which case only the default table is used.
func unicodeToZscii(r rune, memory []uint8) (uint8, bool) {
	if r < 128 {
		return uint8(r), true
	}
	table := unicodeTableFor(memory)
	zchr, ok := table[r]
	return zchr, ok
}

// zsciiToRune is the inverse of unicodeToZscii, used when decoding the
// 10-bit ZSCII escape sequence embedded in a Z-string.
func zsciiToRune(code uint8, memory []uint8) rune {
	if code < 128 {
		return rune(code)
	}
	table := unicodeTableFor(memory)
	for r, c := range table {
		if c == code {
			return r
		}
	}
	return rune(code)
}

func unicodeTableFor(memory []uint8) map[rune]uint8 {
	if len(memory) <= 0x38 {
		return DefaultUnicodeTranslationTable
	}

	extBase := binary.BigEndian.Uint16(memory[0x36:0x38])
	if extBase == 0 || int(extBase)+8 > len(memory) {
		return DefaultUnicodeTranslationTable
	}

	numWords := binary.BigEndian.Uint16(memory[extBase:])
	if numWords < 3 {
		return DefaultUnicodeTranslationTable
	}

	unicodeBase := binary.BigEndian.Uint16(memory[extBase+6:])
	if unicodeBase == 0 {
		return DefaultUnicodeTranslationTable
	}

	return parseUnicodeTranslationTable(memory, unicodeBase)
}

func parseUnicodeTranslationTable(memory []uint8, base uint16) map[rune]uint8 {
	if int(base) >= len(memory) {
		return DefaultUnicodeTranslationTable
	}
	count := memory[base]
	start := uint32(base) + 1
	table := make(map[rune]uint8, count)
	for i := uint32(0); i < uint32(count) && start+i*2+2 <= uint32(len(memory)); i++ {
		r := rune(binary.BigEndian.Uint16(memory[start+i*2 : start+i*2+2]))
		table[r] = uint8(155 + i)
	}
	return table
}
