// Package zbit provides a small bit-addressable view over a single byte,
// used for packed fields in object attributes and branch bytes.
package zbit

// Field is a byte viewed as 8 individually addressable bits, numbered
// 7 (most significant) down to 0 (least significant).
type Field uint8

// Bit reports whether bit i (0-7) is set.
func (f Field) Bit(i uint) bool {
	return (uint8(f)>>i)&1 == 1
}

// Bits returns the unsigned integer formed by bits hi down to lo,
// inclusive, right-aligned. hi must be >= lo.
func (f Field) Bits(hi, lo uint) uint8 {
	width := hi - lo + 1
	mask := uint8(1<<width) - 1
	return (uint8(f) >> lo) & mask
}
