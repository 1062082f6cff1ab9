// Package zcore implements the Z-machine memory image: a flat byte
// array partitioned into dynamic, static and high regions, with typed
// big-endian accessors and version-dependent packed addressing.
package zcore

import "encoding/binary"

// ErrorKind classifies a memory-access fault.
type ErrorKind int

const (
	// AddressError is a read or write outside the image.
	AddressError ErrorKind = iota
	// ProtectionError is a write outside the dynamic region.
	ProtectionError
	// FormatError is a malformed or unsupported story file header.
	FormatError
)

func (k ErrorKind) String() string {
	switch k {
	case AddressError:
		return "address error"
	case ProtectionError:
		return "protection error"
	case FormatError:
		return "format error"
	default:
		return "unknown memory error"
	}
}

// Error reports a memory-image fault with the kind and a human
// readable description.
type Error struct {
	Kind ErrorKind
	Msg  string
}

func (e *Error) Error() string { return e.Msg }

func newError(kind ErrorKind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// Header offsets, per the Z-machine standard (spec.md §3).
const (
	offVersion          = 0x00
	offFlags1           = 0x01
	offReleaseNumber    = 0x02
	offHighMemBase      = 0x04
	offInitialPC        = 0x06
	offDictionaryBase   = 0x08
	offObjectTableBase  = 0x0A
	offGlobalVarBase    = 0x0C
	offStaticMemBase    = 0x0E
	offAbbreviationBase = 0x18
	offFileLength       = 0x1A
	offChecksum         = 0x1C
	offInterpNumber     = 0x1E
	offInterpVersion    = 0x1F
	offScreenHeightLn   = 0x20
	offScreenWidthCh    = 0x21
	offScreenWidthUnits = 0x22
	offScreenHeightUn   = 0x24
	offFontHeight       = 0x26
	offFontWidth        = 0x27
	offDefaultBg        = 0x2C
	offDefaultFg        = 0x2D
	offTerminatingChars = 0x2E
	offStandardRevision = 0x32
	offAlphabetTable    = 0x34
	offHeaderExtension  = 0x36
)

// HeaderSize is the fixed length of the Z-machine header.
const HeaderSize = 0x40

// Memory is a Z-machine story-file image with version-aware accessors.
// The numeric fields are header values cached by LoadMemory; the
// underlying byte slice remains the source of truth. WriteByte and
// WriteWord do not refresh the cached fields.
type Memory struct {
	bytes []uint8

	Version             uint8
	Flags1              uint8
	ReleaseNumber       uint16
	HighMemBase         uint16
	InitialPC           uint16
	DictionaryBase      uint16
	ObjectTableBase     uint16
	GlobalVariableBase  uint16
	StaticMemoryBase    uint16
	AbbreviationsBase   uint16
	FileChecksum        uint16
	InterpreterNumber   uint8
	InterpreterVersion  uint8
	TerminatingCharBase uint16
	AlphabetTableBase   uint16
	HeaderExtensionBase uint16
	UnicodeTableBase    uint16
	StatusBarTimeBased  bool
}

// LoadMemory parses the header of story and returns a Memory, or a
// *Error of kind FormatError if the header is malformed or the version
// is unsupported.
func LoadMemory(story []uint8) (*Memory, error) {
	if len(story) < HeaderSize {
		return nil, newError(FormatError, "story file shorter than header")
	}

	version := story[offVersion]
	if version < 1 || version > 5 {
		return nil, newError(FormatError, "unsupported Z-machine version (only 1-5 are supported)")
	}

	m := &Memory{
		bytes:               story,
		Version:             version,
		Flags1:              story[offFlags1],
		StatusBarTimeBased:  story[offFlags1]&0b0000_0010 != 0,
		ReleaseNumber:       binary.BigEndian.Uint16(story[offReleaseNumber:]),
		HighMemBase:         binary.BigEndian.Uint16(story[offHighMemBase:]),
		InitialPC:           binary.BigEndian.Uint16(story[offInitialPC:]),
		DictionaryBase:      binary.BigEndian.Uint16(story[offDictionaryBase:]),
		ObjectTableBase:     binary.BigEndian.Uint16(story[offObjectTableBase:]),
		GlobalVariableBase:  binary.BigEndian.Uint16(story[offGlobalVarBase:]),
		StaticMemoryBase:    binary.BigEndian.Uint16(story[offStaticMemBase:]),
		AbbreviationsBase:   binary.BigEndian.Uint16(story[offAbbreviationBase:]),
		FileChecksum:        binary.BigEndian.Uint16(story[offChecksum:]),
		InterpreterNumber:   story[offInterpNumber],
		InterpreterVersion:  story[offInterpVersion],
		HeaderExtensionBase: binary.BigEndian.Uint16(story[offHeaderExtension:]),
	}

	if int(m.StaticMemoryBase) > len(story) {
		return nil, newError(FormatError, "static memory base beyond end of file")
	}

	if version >= 5 {
		m.TerminatingCharBase = binary.BigEndian.Uint16(story[offTerminatingChars:])
		m.AlphabetTableBase = binary.BigEndian.Uint16(story[offAlphabetTable:])
	}

	if m.HeaderExtensionBase != 0 && int(m.HeaderExtensionBase)+8 <= len(story) {
		// Word 3 of the header extension table (two bytes past the
		// word-count word, then skip words 1-2) is the Unicode
		// translation table address.
		numWords := binary.BigEndian.Uint16(story[m.HeaderExtensionBase:])
		if numWords >= 3 {
			m.UnicodeTableBase = binary.BigEndian.Uint16(story[m.HeaderExtensionBase+6:])
		}
	}

	return m, nil
}

// ApplyInterpreterIdentity stamps interpreter/screen-geometry header
// fields that a host is expected to advertise before execution starts.
func (m *Memory) ApplyInterpreterIdentity(interpreterNumber, interpreterVersion, screenHeightLines, screenWidthChars uint8) {
	m.bytes[offInterpNumber] = interpreterNumber
	m.bytes[offInterpVersion] = interpreterVersion
	m.InterpreterNumber = interpreterNumber
	m.InterpreterVersion = interpreterVersion

	m.bytes[offScreenHeightLn] = screenHeightLines
	m.bytes[offScreenWidthCh] = screenWidthChars
	binary.BigEndian.PutUint16(m.bytes[offScreenWidthUnits:], uint16(screenWidthChars))
	binary.BigEndian.PutUint16(m.bytes[offScreenHeightUn:], uint16(screenHeightLines))
	m.bytes[offFontHeight] = 1
	m.bytes[offFontWidth] = 1

	m.bytes[offStandardRevision] = 0x01
	m.bytes[offStandardRevision+1] = 0x02

	if m.Version <= 3 {
		m.bytes[offFlags1] |= 0b0010_0000 // split-screen available
	} else {
		// colours (0x01), bold (0x04), italic (0x08), split screen (0x20)
		m.bytes[offFlags1] |= 0b0010_1101
	}
	m.Flags1 = m.bytes[offFlags1]
}

// SetDefaultColours stamps the default foreground/background colour
// numbers into the header.
func (m *Memory) SetDefaultColours(foreground, background uint8) {
	m.bytes[offDefaultFg] = foreground
	m.bytes[offDefaultBg] = background
}

// FileLength returns the story's declared length in bytes, expanding
// the header's packed file-length word by the version's unit size.
func (m *Memory) FileLength() uint32 {
	divisor := uint32(2)
	if m.Version >= 4 {
		divisor = 4
	}
	return uint32(binary.BigEndian.Uint16(m.bytes[offFileLength:])) * divisor
}

// Len is the total size of the loaded image in bytes.
func (m *Memory) Len() uint32 {
	return uint32(len(m.bytes))
}

func (m *Memory) checkRead(addr uint32, width uint32) error {
	if addr+width > uint32(len(m.bytes)) {
		return newError(AddressError, "read beyond end of memory image")
	}
	return nil
}

func (m *Memory) checkWrite(addr uint32, width uint32) error {
	if err := m.checkRead(addr, width); err != nil {
		return err
	}
	if addr+width > uint32(m.StaticMemoryBase) {
		return newError(ProtectionError, "write outside dynamic memory")
	}
	return nil
}

// Byte reads an unsigned byte at addr.
func (m *Memory) Byte(addr uint32) (uint8, error) {
	if err := m.checkRead(addr, 1); err != nil {
		return 0, err
	}
	return m.bytes[addr], nil
}

// MustByte reads a byte without bounds checking, for call sites that
// have already validated the address range (e.g. iterating a slice
// whose bounds were checked once up front).
func (m *Memory) MustByte(addr uint32) uint8 {
	return m.bytes[addr]
}

// Word reads a big-endian unsigned 16-bit value at addr.
func (m *Memory) Word(addr uint32) (uint16, error) {
	if err := m.checkRead(addr, 2); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(m.bytes[addr : addr+2]), nil
}

// SignedWord reads a big-endian signed 16-bit value at addr.
func (m *Memory) SignedWord(addr uint32) (int16, error) {
	w, err := m.Word(addr)
	return int16(w), err
}

// WriteByte writes v at addr; fails if addr is outside the dynamic region.
func (m *Memory) WriteByte(addr uint32, v uint8) error {
	if err := m.checkWrite(addr, 1); err != nil {
		return err
	}
	m.bytes[addr] = v
	return nil
}

// WriteWord writes the big-endian 16-bit value v at addr; fails if addr
// is outside the dynamic region.
func (m *Memory) WriteWord(addr uint32, v uint16) error {
	if err := m.checkWrite(addr, 2); err != nil {
		return err
	}
	binary.BigEndian.PutUint16(m.bytes[addr:addr+2], v)
	return nil
}

// Slice returns the raw bytes in [start, end). The caller is
// responsible for keeping the range within bounds; used internally by
// decoders that have already range-checked against Len().
func (m *Memory) Slice(start, end uint32) []uint8 {
	return m.bytes[start:end]
}

// Bytes returns the whole underlying image, for packages (zstring,
// zobject, dictionary) that index raw story memory directly rather than
// going through the checked accessors above. Object/property/string
// data always lives in dynamic or static memory by construction, so
// these packages do not need the read/write region checks Byte/WriteByte
// perform for opcode-driven general memory access.
func (m *Memory) Bytes() []uint8 {
	return m.bytes
}

// Dynamic returns the writable prefix of the image (bytes [0, StaticMemoryBase)).
func (m *Memory) Dynamic() []uint8 {
	return m.bytes[:m.StaticMemoryBase]
}

// RestoreDynamic overwrites the dynamic region with snapshot, which
// must be exactly len(m.Dynamic()) bytes (as produced by a prior
// Dynamic() copy).
func (m *Memory) RestoreDynamic(snapshot []uint8) error {
	if len(snapshot) != int(m.StaticMemoryBase) {
		return newError(FormatError, "dynamic memory snapshot size mismatch")
	}
	copy(m.bytes[:m.StaticMemoryBase], snapshot)
	return nil
}

// PackedRoutineAddress expands a packed routine address per the
// version's multiplier (spec.md §4.1; v6-8 addressing is out of scope).
func (m *Memory) PackedRoutineAddress(packed uint32) uint32 {
	return m.packedAddress(packed)
}

// PackedStringAddress expands a packed string address. For versions
// 1-5 this is identical to PackedRoutineAddress.
func (m *Memory) PackedStringAddress(packed uint32) uint32 {
	return m.packedAddress(packed)
}

func (m *Memory) packedAddress(packed uint32) uint32 {
	if m.Version < 4 {
		return 2 * packed
	}
	return 4 * packed
}

// Checksum sums every byte from offset 0x40 to the end of the declared
// file length, modulo 65536, for the `verify` opcode.
func (m *Memory) Checksum() uint16 {
	length := m.FileLength()
	if length > uint32(len(m.bytes)) {
		length = uint32(len(m.bytes))
	}
	var sum uint16
	for i := uint32(HeaderSize); i < length; i++ {
		sum += uint16(m.bytes[i])
	}
	return sum
}
