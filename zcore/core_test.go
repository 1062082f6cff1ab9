package zcore

import "testing"

func minimalHeader(version uint8) []uint8 {
	b := make([]uint8, 0x40+16)
	b[offVersion] = version
	// static memory base just past the header, dynamic region is tiny
	b[offStaticMemBase] = 0x00
	b[offStaticMemBase+1] = 0x40
	b[offHighMemBase] = 0x00
	b[offHighMemBase+1] = 0x40
	return b
}

func TestLoadMemoryRejectsUnsupportedVersion(t *testing.T) {
	b := minimalHeader(6)
	if _, err := LoadMemory(b); err == nil {
		t.Fatal("expected error loading v6 story")
	} else if zerr, ok := err.(*Error); !ok || zerr.Kind != FormatError {
		t.Fatalf("expected FormatError, got %v", err)
	}
}

func TestLoadMemoryRejectsShortHeader(t *testing.T) {
	if _, err := LoadMemory(make([]uint8, 10)); err == nil {
		t.Fatal("expected error loading truncated header")
	}
}

func TestByteWordRoundTrip(t *testing.T) {
	b := minimalHeader(3)
	m, err := LoadMemory(b)
	if err != nil {
		t.Fatalf("LoadMemory: %v", err)
	}

	if err := m.WriteByte(0x10, 0x42); err != nil {
		t.Fatalf("WriteByte: %v", err)
	}
	got, err := m.Byte(0x10)
	if err != nil || got != 0x42 {
		t.Fatalf("Byte = %v, %v, want 0x42, nil", got, err)
	}

	if err := m.WriteWord(0x12, 0xBEEF); err != nil {
		t.Fatalf("WriteWord: %v", err)
	}
	w, err := m.Word(0x12)
	if err != nil || w != 0xBEEF {
		t.Fatalf("Word = %v, %v, want 0xBEEF, nil", w, err)
	}
}

func TestWriteOutsideDynamicFails(t *testing.T) {
	b := minimalHeader(3)
	m, err := LoadMemory(b)
	if err != nil {
		t.Fatalf("LoadMemory: %v", err)
	}

	err = m.WriteByte(uint32(m.StaticMemoryBase), 0xFF)
	if err == nil {
		t.Fatal("expected protection error writing at static base")
	}
	if zerr, ok := err.(*Error); !ok || zerr.Kind != ProtectionError {
		t.Fatalf("expected ProtectionError, got %v", err)
	}
}

func TestReadOutsideImageFails(t *testing.T) {
	b := minimalHeader(3)
	m, err := LoadMemory(b)
	if err != nil {
		t.Fatalf("LoadMemory: %v", err)
	}

	_, err = m.Byte(m.Len())
	if err == nil {
		t.Fatal("expected address error reading past end of image")
	}
	if zerr, ok := err.(*Error); !ok || zerr.Kind != AddressError {
		t.Fatalf("expected AddressError, got %v", err)
	}
}

func TestPackedAddress(t *testing.T) {
	v3 := minimalHeader(3)
	m3, _ := LoadMemory(v3)
	if got := m3.PackedRoutineAddress(100); got != 200 {
		t.Errorf("v3 packed(100) = %d, want 200", got)
	}

	v5 := minimalHeader(5)
	m5, _ := LoadMemory(v5)
	if got := m5.PackedStringAddress(100); got != 400 {
		t.Errorf("v5 packed(100) = %d, want 400", got)
	}
}

func TestFileLength(t *testing.T) {
	b := minimalHeader(3)
	binaryPutUint16(b, offFileLength, 10)
	m, err := LoadMemory(b)
	if err != nil {
		t.Fatalf("LoadMemory: %v", err)
	}
	if got := m.FileLength(); got != 20 {
		t.Errorf("FileLength (v3, unit=2) = %d, want 20", got)
	}
}

func binaryPutUint16(b []uint8, offset int, v uint16) {
	b[offset] = uint8(v >> 8)
	b[offset+1] = uint8(v)
}
