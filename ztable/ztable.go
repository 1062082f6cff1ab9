// Package ztable implements the table-manipulation VAR opcodes:
// print_table, scan_table and copy_table.
package ztable

import (
	"strings"

	"github.com/ifzcore/goz/zcore"
)

// PrintTable renders a width x height grid of ZSCII bytes starting at
// addr, with skip extra bytes of padding between the end of one row
// and the start of the next, joining rows with newlines.
func PrintTable(memory *zcore.Memory, addr uint32, width uint16, height uint16, skip uint16) string {
	if height == 0 {
		height = 1
	}

	s := strings.Builder{}
	stride := uint32(width) + uint32(skip)

	for row := uint16(0); row < height; row++ {
		if row != 0 {
			s.WriteByte('\n')
		}
		rowBase := addr + uint32(row)*stride
		for col := uint16(0); col < width; col++ {
			b := memory.MustByte(rowBase + uint32(col))
			s.WriteByte(b)
		}
	}

	return s.String()
}

// ScanTable searches length entries of the given form (bit 7: word- vs
// byte-sized, bits 0-6: field size in bytes) starting at addr for test,
// returning the address of the first match or 0.
func ScanTable(memory *zcore.Memory, test uint16, addr uint32, length uint16, form uint16) uint32 {
	ptr := addr
	fieldSize := form & 0b0111_1111
	checkWord := form&0b1000_0000 != 0
	if fieldSize == 0 {
		return 0
	}

	for i := uint16(0); i < length; i++ {
		if checkWord {
			if w, err := memory.Word(ptr); err == nil && w == test {
				return ptr
			}
		} else {
			if b, err := memory.Byte(ptr); err == nil && uint16(b) == test {
				return ptr
			}
		}
		ptr += uint32(fieldSize)
	}

	return 0
}

// CopyTable copies size bytes from first to second. A non-negative size
// copies through a temporary buffer, so the destination sees only the
// pre-copy source bytes even when the regions overlap; a negative size
// copies forwards byte by byte, so an overlapping destination ahead of
// the source picks up bytes already overwritten. second == 0
// zero-fills the first table instead of copying.
func CopyTable(memory *zcore.Memory, first uint16, second uint16, size int16) error {
	sizeAbs := uint16(size)
	if size < 0 {
		sizeAbs = uint16(-size)
	}

	switch {
	case second == 0:
		for i := uint16(0); i < sizeAbs; i++ {
			if err := memory.WriteByte(uint32(first)+uint32(i), 0); err != nil {
				return err
			}
		}
	case size >= 0:
		tmp := make([]uint8, sizeAbs)
		for i := uint16(0); i < sizeAbs; i++ {
			b, err := memory.Byte(uint32(first) + uint32(i))
			if err != nil {
				return err
			}
			tmp[i] = b
		}
		for i := uint16(0); i < sizeAbs; i++ {
			if err := memory.WriteByte(uint32(second)+uint32(i), tmp[i]); err != nil {
				return err
			}
		}
	default:
		for i := uint16(0); i < sizeAbs; i++ {
			b, err := memory.Byte(uint32(first) + uint32(i))
			if err != nil {
				return err
			}
			if err := memory.WriteByte(uint32(second)+uint32(i), b); err != nil {
				return err
			}
		}
	}

	return nil
}
