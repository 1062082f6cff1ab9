// Package zstring implements Z-character decoding/encoding and the
// ZSCII character set: the 5-bit-per-character packed text format used
// throughout a story's dictionary, object names, abbreviations and
// printed strings.
package zstring

import "encoding/binary"

// Decode reads a packed Z-string starting at addr and returns the
// decoded text plus the number of bytes consumed (always a multiple of
// 2, since Z-strings are built from 16-bit words). memory is the full
// story image (or, in tests, a standalone buffer containing just the
// string); abbreviationsBase is the header's abbreviation-table-base,
// needed to resolve abbreviation references in v2+ strings, and may be
// 0 when decoding text that is known not to reference abbreviations.
func Decode(memory []uint8, addr uint32, version uint8, alphabets *Alphabets, abbreviationsBase uint16) (string, uint32) {
	zchars, bytesRead := readZCharacters(memory, addr)

	var out []rune
	lockedAlphabet := 0
	oneShot := -1

	for i := 0; i < len(zchars); i++ {
		zchr := zchars[i]

		alphabet := lockedAlphabet
		if oneShot >= 0 {
			alphabet = oneShot
		}

		switch zchr {
		case 0:
			out = append(out, ' ')
			oneShot = -1

		case 1:
			if version == 1 {
				out = append(out, '\n')
				oneShot = -1
				break
			}
			if i+1 < len(zchars) {
				out = append(out, []rune(FindAbbreviation(version, abbreviationsBase, memory, alphabets, zchr, zchars[i+1]))...)
			}
			oneShot = -1
			i++

		case 2, 3:
			if version <= 2 {
				if zchr == 2 {
					oneShot = (lockedAlphabet + 1) % 3
				} else {
					oneShot = (lockedAlphabet + 2) % 3
				}
				continue
			}
			if i+1 < len(zchars) {
				out = append(out, []rune(FindAbbreviation(version, abbreviationsBase, memory, alphabets, zchr, zchars[i+1]))...)
			}
			oneShot = -1
			i++

		case 4, 5:
			if version <= 2 {
				if zchr == 4 {
					lockedAlphabet = (lockedAlphabet + 1) % 3
				} else {
					lockedAlphabet = (lockedAlphabet + 2) % 3
				}
				oneShot = -1
				continue
			}
			if zchr == 4 {
				oneShot = 1
			} else {
				oneShot = 2
			}
			continue

		case 6:
			if alphabet == 2 {
				if i+2 < len(zchars) {
					code := zchars[i+1]<<5 | zchars[i+2]
					out = append(out, zsciiToRune(code, memory))
				}
				oneShot = -1
				i += 2
				break
			}
			out = append(out, alphabetRune(alphabets, alphabet, zchr))
			oneShot = -1

		default:
			out = append(out, alphabetRune(alphabets, alphabet, zchr))
			oneShot = -1
		}
	}

	return string(out), bytesRead
}

func alphabetRune(alphabets *Alphabets, alphabet int, zchr uint8) rune {
	switch alphabet {
	case 0:
		return rune(alphabets.A0[zchr-6])
	case 1:
		return rune(alphabets.A1[zchr-6])
	default:
		return rune(alphabets.A2[zchr-6])
	}
}

// readZCharacters unpacks 16-bit words starting at addr into a stream
// of 5-bit Z-characters, stopping once a word with its top bit set has
// been consumed.
func readZCharacters(memory []uint8, addr uint32) ([]uint8, uint32) {
	var zchars []uint8
	bytesRead := uint32(0)
	ptr := addr

	for {
		word := binary.BigEndian.Uint16(memory[ptr : ptr+2])
		bytesRead += 2
		ptr += 2

		zchars = append(zchars, uint8((word>>10)&0b11111), uint8((word>>5)&0b11111), uint8(word&0b11111))

		if word&0x8000 != 0 || int(ptr)+2 > len(memory) {
			break
		}
	}

	return zchars, bytesRead
}

// Encode packs text into a fixed-width Z-string suitable for dictionary
// lookup keys: 2 words (6 Z-characters) for versions 1-3, 3 words (9
// Z-characters) for version 4+, padded with Z-char 5 and truncated if
// too long.
func Encode(text []rune, version uint8, alphabets *Alphabets) []uint8 {
	numZchars := 6
	if version >= 4 {
		numZchars = 9
	}

	var zchars []uint8
	for _, r := range text {
		if len(zchars) >= numZchars {
			break
		}

		if r == ' ' {
			zchars = append(zchars, 0)
			continue
		}
		if idx := indexOf(alphabets.A0, byte(r)); idx >= 0 {
			zchars = append(zchars, uint8(idx+6))
			continue
		}
		if idx := indexOf(alphabets.A1, byte(r)); idx >= 0 {
			zchars = append(zchars, shiftCode(version, 1)...)
			zchars = append(zchars, uint8(idx+6))
			continue
		}
		if idx := indexOf(alphabets.A2, byte(r)); idx >= 1 {
			zchars = append(zchars, shiftCode(version, 2)...)
			zchars = append(zchars, uint8(idx+6))
			continue
		}

		code, _ := unicodeToZscii(r, nil)
		zchars = append(zchars, shiftCode(version, 2)...)
		zchars = append(zchars, 6, code>>5, code&0b11111)
	}

	for len(zchars) < numZchars {
		zchars = append(zchars, 5)
	}
	zchars = zchars[:numZchars]

	return packZCharacters(zchars)
}

func shiftCode(version uint8, targetAlphabet int) []uint8 {
	if version <= 2 {
		if targetAlphabet == 1 {
			return []uint8{2}
		}
		return []uint8{3}
	}
	if targetAlphabet == 1 {
		return []uint8{4}
	}
	return []uint8{5}
}

func packZCharacters(zchars []uint8) []uint8 {
	var out []uint8
	for i := 0; i < len(zchars); i += 3 {
		word := uint16(zchars[i])<<10 | uint16(zchars[i+1])<<5 | uint16(zchars[i+2])
		if i+3 >= len(zchars) {
			word |= 0x8000
		}
		out = append(out, uint8(word>>8), uint8(word))
	}
	return out
}
