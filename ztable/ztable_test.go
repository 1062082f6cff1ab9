package ztable_test

import (
	"testing"

	"github.com/ifzcore/goz/zcore"
	"github.com/ifzcore/goz/ztable"
)

func newMemory(t *testing.T, dynamicSize int) *zcore.Memory {
	t.Helper()
	b := make([]uint8, zcore.HeaderSize+dynamicSize)
	b[0x00] = 3
	b[0x0e] = uint8(len(b) >> 8)
	b[0x0f] = uint8(len(b))
	m, err := zcore.LoadMemory(b)
	if err != nil {
		t.Fatalf("LoadMemory: %v", err)
	}
	return m
}

func TestPrintTable(t *testing.T) {
	m := newMemory(t, 16)
	data := []byte("ABCDEF")
	for i, c := range data {
		m.WriteByte(uint32(zcore.HeaderSize+i), c)
	}

	got := ztable.PrintTable(m, zcore.HeaderSize, 3, 2, 0)
	if got != "ABC\nDEF" {
		t.Errorf("PrintTable = %q, want %q", got, "ABC\nDEF")
	}
}

func TestScanTableByte(t *testing.T) {
	m := newMemory(t, 16)
	values := []byte{1, 2, 3, 42, 5}
	for i, v := range values {
		m.WriteByte(uint32(zcore.HeaderSize+i), v)
	}

	addr := ztable.ScanTable(m, 42, zcore.HeaderSize, uint16(len(values)), 1)
	if addr != zcore.HeaderSize+3 {
		t.Errorf("ScanTable = %d, want %d", addr, zcore.HeaderSize+3)
	}

	if addr := ztable.ScanTable(m, 99, zcore.HeaderSize, uint16(len(values)), 1); addr != 0 {
		t.Errorf("ScanTable for missing value = %d, want 0", addr)
	}
}

func TestCopyTableZerosWhenSecondIsZero(t *testing.T) {
	m := newMemory(t, 16)
	for i := 0; i < 4; i++ {
		m.WriteByte(uint32(zcore.HeaderSize+i), 0xFF)
	}

	if err := ztable.CopyTable(m, zcore.HeaderSize, 0, 4); err != nil {
		t.Fatalf("CopyTable: %v", err)
	}

	for i := 0; i < 4; i++ {
		b, _ := m.Byte(uint32(zcore.HeaderSize + i))
		if b != 0 {
			t.Errorf("byte %d = %d, want 0", i, b)
		}
	}
}

func TestCopyTableCopiesBytes(t *testing.T) {
	m := newMemory(t, 16)
	src := []byte{1, 2, 3, 4}
	for i, v := range src {
		m.WriteByte(uint32(zcore.HeaderSize+i), v)
	}

	dst := uint32(zcore.HeaderSize + 8)
	if err := ztable.CopyTable(m, zcore.HeaderSize, uint16(dst), int16(len(src))); err != nil {
		t.Fatalf("CopyTable: %v", err)
	}

	for i, want := range src {
		got, _ := m.Byte(dst + uint32(i))
		if got != want {
			t.Errorf("byte %d = %d, want %d", i, got, want)
		}
	}
}
