package zobject_test

import (
	"os"
	"testing"

	"github.com/ifzcore/goz/zcore"
	"github.com/ifzcore/goz/zobject"
	"github.com/ifzcore/goz/zstring"
)

func TestZerothObjectRetrieval(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Errorf("retrieving object with id 0 should panic")
		}
	}()

	memory := make([]uint8, zcore.HeaderSize)
	zobject.GetObject(0, 0, memory, 1, zstring.LoadAlphabets(1, memory, 0), 0)
}

func loadZork1(t *testing.T) (*zcore.Memory, []uint8, *zstring.Alphabets) {
	t.Helper()
	romFileBytes, err := os.ReadFile("../zork1.z1")
	if err != nil {
		t.Skipf("test story file missing: %v", err)
	}
	m, err := zcore.LoadMemory(romFileBytes)
	if err != nil {
		t.Fatalf("LoadMemory: %v", err)
	}
	return m, romFileBytes, zstring.LoadAlphabets(m.Version, romFileBytes, m.AlphabetTableBase)
}

func TestZork1V1ObjectRetrieval(t *testing.T) {
	m, bytes, alphabets := loadZork1(t)

	obj := zobject.GetObject(0x23, m.ObjectTableBase, bytes, m.Version, alphabets, m.AbbreviationsBase)

	if obj.Name != "West of House" {
		t.Errorf("incorrect name %s", obj.Name)
	}
	if obj.Parent != 117 {
		t.Errorf("incorrect parent %d", obj.Parent)
	}
	if obj.Child != 252 {
		t.Errorf("incorrect child %d", obj.Child)
	}
	if obj.Sibling != 101 {
		t.Errorf("incorrect sibling %d", obj.Sibling)
	}
	if obj.PropertyPointer != 0x0c79 {
		t.Errorf("incorrect property pointer %x", obj.PropertyPointer)
	}
}

func TestZork1V1PropertyRetrieval(t *testing.T) {
	m, bytes, alphabets := loadZork1(t)

	obj := zobject.GetObject(1, m.ObjectTableBase, bytes, m.Version, alphabets, m.AbbreviationsBase) // Damp Cave

	prop6 := obj.GetProperty(6, bytes, m.Version, m.ObjectTableBase)
	if prop6.Length != 1 {
		t.Errorf("incorrect property length %d", prop6.Length)
	}
	if prop6.Data[0] != 0x85 {
		t.Errorf("incorrect property data %x", prop6.Data[0])
	}

	prop11 := obj.GetProperty(11, bytes, m.Version, m.ObjectTableBase)
	if prop11.Length != 2 {
		t.Errorf("incorrect property length %d", prop11.Length)
	}
	if prop11.Data[0] != 0x88 || prop11.Data[1] != 0xe5 {
		t.Errorf("incorrect property data %x%x", prop11.Data[0], prop11.Data[1])
	}

	// Non-existent property falls back to the property-defaults table.
	prop9 := obj.GetProperty(9, bytes, m.Version, m.ObjectTableBase)
	if prop9.Data[0] != 0x00 || prop9.Data[1] != 0x05 {
		t.Errorf("incorrect default property data %x%x", prop9.Data[0], prop9.Data[1])
	}
}

func TestAttributesV1(t *testing.T) {
	m, bytes, alphabets := loadZork1(t)

	forest := zobject.GetObject(4, m.ObjectTableBase, bytes, m.Version, alphabets, m.AbbreviationsBase) // Forest

	if forest.TestAttribute(1) || forest.TestAttribute(4) || forest.TestAttribute(10) {
		t.Error("forest should not have attributes 1,4,10 set")
	}
	if !(forest.TestAttribute(2) && forest.TestAttribute(3) && forest.TestAttribute(19)) {
		t.Error("forest should have attributes 2,3,19 set")
	}

	if err := forest.SetAttribute(10, bytes, m.Version); err != nil {
		t.Fatalf("SetAttribute: %v", err)
	}
	if !forest.TestAttribute(10) {
		t.Error("setting attribute 10 didn't work")
	}

	if err := forest.ClearAttribute(10, bytes, m.Version); err != nil {
		t.Fatalf("ClearAttribute: %v", err)
	}
	if forest.TestAttribute(10) {
		t.Error("clearing attribute 10 didn't work")
	}
}
