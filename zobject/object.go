// Package zobject implements the Z-machine object tree: fixed-width
// object records, attribute bit flags, parent/sibling/child links and
// the property tables attached to each object.
package zobject

import (
	"encoding/binary"
	"fmt"

	"github.com/ifzcore/goz/zbit"
	"github.com/ifzcore/goz/zstring"
)

// Object is a decoded view over one object-tree record. Attributes is
// the raw attribute bytes (4 bytes / 32 flags for v1-3, 6 bytes / 48
// flags for v4-5); Test/Set/ClearAttribute interpret it bit-by-bit
// rather than caching individual flags.
type Object struct {
	BaseAddress     uint32
	Id              uint16
	Name            string
	Attributes      [6]uint8
	Parent          uint16 // uint8 on v1-3
	Sibling         uint16 // uint8 on v1-3
	Child           uint16 // uint8 on v1-3
	PropertyPointer uint16
}

// GetObject decodes the object record for objId out of the object
// table at objectTableBase. It panics if asked for object 0, which is
// not a valid object id (the parent/sibling/child value 0 means "no
// object", not "object zero").
func GetObject(objId uint16, objectTableBase uint16, memory []uint8, version uint8, alphabets *zstring.Alphabets, abbreviationTableBase uint16) Object {
	if objId == 0 {
		panic("can't get object 0, it doesn't exist")
	}

	if version >= 4 {
		objectBase := uint32(objectTableBase) + 63*2 + uint32(objId-1)*14
		propertyPtr := binary.BigEndian.Uint16(memory[objectBase+12 : objectBase+14])
		name, _ := zstring.Decode(memory, uint32(propertyPtr)+1, version, alphabets, abbreviationTableBase)

		var attrs [6]uint8
		copy(attrs[:], memory[objectBase:objectBase+6])

		return Object{
			Id:              objId,
			Name:            name,
			Attributes:      attrs,
			Parent:          binary.BigEndian.Uint16(memory[objectBase+6 : objectBase+8]),
			Sibling:         binary.BigEndian.Uint16(memory[objectBase+8 : objectBase+10]),
			Child:           binary.BigEndian.Uint16(memory[objectBase+10 : objectBase+12]),
			PropertyPointer: propertyPtr,
			BaseAddress:     objectBase,
		}
	}

	objectBase := uint32(objectTableBase) + 31*2 + uint32(objId-1)*9
	propertyPtr := binary.BigEndian.Uint16(memory[objectBase+7 : objectBase+9])
	name, _ := zstring.Decode(memory, uint32(propertyPtr)+1, version, alphabets, abbreviationTableBase)

	var attrs [6]uint8
	copy(attrs[:4], memory[objectBase:objectBase+4])

	return Object{
		Id:              objId,
		Name:            name,
		Attributes:      attrs,
		Parent:          uint16(memory[objectBase+4]),
		Sibling:         uint16(memory[objectBase+5]),
		Child:           uint16(memory[objectBase+6]),
		PropertyPointer: propertyPtr,
		BaseAddress:     objectBase,
	}
}

// attributeBitPosition returns the byte offset and within-byte bit
// index (7 = most significant) for attribute.
func attributeBitPosition(attribute uint16) (byteIndex uint32, bit uint) {
	return uint32(attribute / 8), 7 - uint(attribute%8)
}

// TestAttribute reports whether attribute is set.
func (o *Object) TestAttribute(attribute uint16) bool {
	byteIndex, bit := attributeBitPosition(attribute)
	if byteIndex >= uint32(len(o.Attributes)) {
		return false
	}
	return zbit.Field(o.Attributes[byteIndex]).Bit(bit)
}

// SetAttribute sets attribute both in the cached Object and in memory.
func (o *Object) SetAttribute(attribute uint16, memory []uint8, version uint8) error {
	byteIndex, bit := attributeBitPosition(attribute)
	if byteIndex >= uint32(len(o.Attributes)) {
		return fmt.Errorf("attribute %d out of range for object %d", attribute, o.Id)
	}
	o.Attributes[byteIndex] |= 1 << bit
	memory[o.BaseAddress+byteIndex] = o.Attributes[byteIndex]
	return nil
}

// ClearAttribute clears attribute both in the cached Object and in memory.
func (o *Object) ClearAttribute(attribute uint16, memory []uint8, version uint8) error {
	byteIndex, bit := attributeBitPosition(attribute)
	if byteIndex >= uint32(len(o.Attributes)) {
		return fmt.Errorf("attribute %d out of range for object %d", attribute, o.Id)
	}
	o.Attributes[byteIndex] &^= 1 << bit
	memory[o.BaseAddress+byteIndex] = o.Attributes[byteIndex]
	return nil
}

// SetParent updates the object's parent link.
func (o *Object) SetParent(parent uint16, version uint8, memory []uint8) {
	if version >= 4 {
		binary.BigEndian.PutUint16(memory[o.BaseAddress+6:o.BaseAddress+8], parent)
	} else {
		memory[o.BaseAddress+4] = uint8(parent)
	}
	o.Parent = parent
}

// SetSibling updates the object's sibling link.
func (o *Object) SetSibling(sibling uint16, version uint8, memory []uint8) {
	if version >= 4 {
		binary.BigEndian.PutUint16(memory[o.BaseAddress+8:o.BaseAddress+10], sibling)
	} else {
		memory[o.BaseAddress+5] = uint8(sibling)
	}
	o.Sibling = sibling
}

// SetChild updates the object's child link.
func (o *Object) SetChild(child uint16, version uint8, memory []uint8) {
	if version >= 4 {
		binary.BigEndian.PutUint16(memory[o.BaseAddress+10:o.BaseAddress+12], child)
	} else {
		memory[o.BaseAddress+6] = uint8(child)
	}
	o.Child = child
}

// Unlink splices o out of its parent's child chain, per the sibling
// linked-list structure: if o is the first child, the parent's child
// pointer moves to o's sibling; otherwise the preceding sibling's
// sibling pointer is spliced to skip o.
func Unlink(o *Object, objectTableBase uint16, memory []uint8, version uint8, alphabets *zstring.Alphabets, abbreviationTableBase uint16) {
	if o.Parent == 0 {
		return
	}

	parent := GetObject(o.Parent, objectTableBase, memory, version, alphabets, abbreviationTableBase)
	if parent.Child == o.Id {
		parent.SetChild(o.Sibling, version, memory)
	} else {
		sibling := GetObject(parent.Child, objectTableBase, memory, version, alphabets, abbreviationTableBase)
		for sibling.Sibling != o.Id {
			sibling = GetObject(sibling.Sibling, objectTableBase, memory, version, alphabets, abbreviationTableBase)
		}
		sibling.SetSibling(o.Sibling, version, memory)
	}

	o.SetParent(0, version, memory)
	o.SetSibling(0, version, memory)
}

// Insert makes o the first child of newParent, pushing newParent's
// previous first child down to be o's sibling.
func Insert(o *Object, newParent uint16, objectTableBase uint16, memory []uint8, version uint8, alphabets *zstring.Alphabets, abbreviationTableBase uint16) {
	parent := GetObject(newParent, objectTableBase, memory, version, alphabets, abbreviationTableBase)
	o.SetSibling(parent.Child, version, memory)
	o.SetParent(newParent, version, memory)
	parent.SetChild(o.Id, version, memory)
}
