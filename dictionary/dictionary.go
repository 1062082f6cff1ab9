// Package dictionary parses a Z-machine dictionary table (the word
// separators, entry layout and sorted word list used by tokenisation
// and the `sread`/`tokenise` opcodes) and implements word lookup.
package dictionary

import (
	"bytes"
	"encoding/binary"

	"github.com/ifzcore/goz/zstring"
)

// Header describes the fixed fields at the start of a dictionary:
// the word-separator table and the shape of each entry.
type Header struct {
	Separators  []uint8
	EntryLength uint8
	// Count is the raw signed entry count from the header. A negative
	// count means the entries are NOT sorted (a custom dictionary
	// built at runtime via the TOKENISE opcode with a non-standard
	// table) and must be searched linearly rather than by binary
	// search.
	Count int16
}

// Entry is one decoded dictionary word.
type Entry struct {
	Address     uint16
	EncodedWord []uint8
	DecodedWord string
	Data        []uint8
}

// Dictionary is a parsed dictionary table, ready for Lookup/Iterate.
type Dictionary struct {
	Header  Header
	entries []Entry
}

// Parse reads a dictionary table out of memory starting at baseAddress.
func Parse(memory []uint8, baseAddress uint32, version uint8, alphabets *zstring.Alphabets, abbreviationBase uint16) *Dictionary {
	numInputCodes := memory[baseAddress]

	header := Header{
		Separators:  memory[baseAddress+1 : baseAddress+1+uint32(numInputCodes)],
		EntryLength: memory[baseAddress+1+uint32(numInputCodes)],
		Count:       int16(binary.BigEndian.Uint16(memory[baseAddress+2+uint32(numInputCodes) : baseAddress+4+uint32(numInputCodes)])),
	}

	count := int(header.Count)
	if count < 0 {
		count = -count
	}

	entryPtr := baseAddress + 4 + uint32(numInputCodes)
	entries := make([]Entry, count)

	encodedWordLength := 4
	if version > 3 {
		encodedWordLength = 6
	}

	for ix := 0; ix < count; ix++ {
		encodedWord := memory[entryPtr : entryPtr+uint32(encodedWordLength)]
		decodedWord, _ := zstring.Decode(memory, entryPtr, version, alphabets, abbreviationBase)
		entries[ix] = Entry{
			Address:     uint16(entryPtr),
			EncodedWord: append([]uint8(nil), encodedWord...),
			DecodedWord: decodedWord,
			Data:        memory[entryPtr+uint32(encodedWordLength) : entryPtr+uint32(header.EntryLength)],
		}

		entryPtr += uint32(header.EntryLength)
	}

	return &Dictionary{Header: header, entries: entries}
}

// Lookup finds the dictionary address of the entry whose encoded word
// matches zstr exactly, or 0 if absent. Sorted dictionaries (Count >=
// 0, the normal case) use binary search per the Z-machine standard's
// requirement that entries are stored in ascending order; dictionaries
// with a negative header count are unsorted and fall back to a linear
// scan.
func (d *Dictionary) Lookup(zstr []uint8) uint16 {
	if d.Header.Count < 0 {
		for _, entry := range d.entries {
			if bytes.Equal(entry.EncodedWord, zstr) {
				return entry.Address
			}
		}
		return 0
	}

	lo, hi := 0, len(d.entries)-1
	for lo <= hi {
		mid := (lo + hi) / 2
		cmp := bytes.Compare(d.entries[mid].EncodedWord, zstr)
		switch {
		case cmp == 0:
			return d.entries[mid].Address
		case cmp < 0:
			lo = mid + 1
		default:
			hi = mid - 1
		}
	}
	return 0
}

// Separators returns the dictionary's word-separator characters.
func (d *Dictionary) Separators() []uint8 {
	return d.Header.Separators
}

// Iterate calls fn for every entry, in table order.
func (d *Dictionary) Iterate(fn func(Entry)) {
	for _, e := range d.entries {
		fn(e)
	}
}
