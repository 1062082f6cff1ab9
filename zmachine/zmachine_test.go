package zmachine_test

import (
	"encoding/binary"
	"testing"

	"github.com/ifzcore/goz/zmachine"
)

// Header field offsets, per the Z-machine standard - duplicated from
// zcore's unexported constants since this is an external test package.
const (
	hdrVersion       = 0x00
	hdrInitialPC     = 0x06
	hdrDictionary    = 0x08
	hdrObjectTable   = 0x0A
	hdrGlobalVars    = 0x0C
	hdrStaticMemBase = 0x0E
	hdrHighMemBase   = 0x04
	hdrAbbreviations = 0x18
	hdrFileLength    = 0x1A
	hdrChecksum      = 0x1C

	dictionaryBase  = 0x40
	objectTableBase = 0x50
	globalsBase     = 0x90
	codeBase        = 0xCE
)

// storyBuilder assembles a minimal, valid story file byte by byte - a
// trivial dictionary and an (unused) object table region, a global
// variable block, and whatever code a test appends - enough to drive
// LoadRom without needing a real game file on disk.
type storyBuilder struct {
	version uint8
	code    []uint8
}

func newStory(version uint8) *storyBuilder {
	return &storyBuilder{version: version}
}

// append adds bytes to the code region and returns the address of the
// first one.
func (b *storyBuilder) append(bytes ...uint8) uint32 {
	addr := uint32(codeBase) + uint32(len(b.code))
	b.code = append(b.code, bytes...)
	return addr
}

// alignTo pads the code region with zero bytes (never executed, since
// every test quits or throws before falling into them) until the next
// address is a multiple of n, the packed-address granularity for this
// story's version.
func (b *storyBuilder) alignTo(n uint32) {
	for (uint32(codeBase)+uint32(len(b.code)))%n != 0 {
		b.code = append(b.code, 0)
	}
}

func (b *storyBuilder) divisor() uint32 {
	if b.version >= 4 {
		return 4
	}
	return 2
}

// alignForRoutine pads to this story's packed-address granularity and
// returns the address the next append will land a routine at.
func (b *storyBuilder) alignForRoutine() uint32 {
	b.alignTo(b.divisor())
	return uint32(codeBase) + uint32(len(b.code))
}

func (b *storyBuilder) packed(routineAddr uint32) uint16 {
	return uint16(routineAddr / b.divisor())
}

// patchWord overwrites the two bytes at addr (which must already have
// been appended) with value, big-endian - used to back-patch a packed
// routine address once the routine's final location is known.
func (b *storyBuilder) patchWord(addr uint32, value uint16) {
	offset := addr - codeBase
	binary.BigEndian.PutUint16(b.code[offset:offset+2], value)
}

func (b *storyBuilder) build(t *testing.T) []uint8 {
	t.Helper()

	total := codeBase + len(b.code)
	if total%2 == 1 {
		total++
	}
	story := make([]uint8, total)

	story[hdrVersion] = b.version
	binary.BigEndian.PutUint16(story[hdrDictionary:], dictionaryBase)
	binary.BigEndian.PutUint16(story[hdrObjectTable:], objectTableBase)
	binary.BigEndian.PutUint16(story[hdrGlobalVars:], globalsBase)
	binary.BigEndian.PutUint16(story[hdrStaticMemBase:], uint16(total))
	binary.BigEndian.PutUint16(story[hdrHighMemBase:], uint16(total))
	binary.BigEndian.PutUint16(story[hdrInitialPC:], codeBase)
	binary.BigEndian.PutUint16(story[hdrAbbreviations:], 0)

	// A dictionary with no separators and no entries: just its 4-byte header.
	story[dictionaryBase] = 0
	story[dictionaryBase+1] = 7
	binary.BigEndian.PutUint16(story[dictionaryBase+2:], 0)

	copy(story[codeBase:], b.code)

	divisor := uint16(2)
	if b.version >= 4 {
		divisor = 4
	}
	binary.BigEndian.PutUint16(story[hdrFileLength:], uint16(total)/divisor)

	var checksum uint16
	for i := 0x40; i < total; i++ {
		checksum += uint16(story[i])
	}
	binary.BigEndian.PutUint16(story[hdrChecksum:], checksum)

	return story
}

func loadTestStory(t *testing.T, story []uint8) *zmachine.ZMachine {
	t.Helper()
	input := make(chan zmachine.InputResponse)
	saveRestore := make(chan zmachine.SaveRestoreResponse)
	output := make(chan any, 64)
	return zmachine.LoadRom(story, input, saveRestore, output)
}

func globalAddr(z *zmachine.ZMachine, variable uint16) uint32 {
	return uint32(z.Core.GlobalVariableBase) + 2*uint32(variable-16)
}

func globalWord(t *testing.T, z *zmachine.ZMachine, variable uint16) uint16 {
	t.Helper()
	v, err := z.Core.Word(globalAddr(z, variable))
	if err != nil {
		t.Fatalf("reading global %d: %v", variable, err)
	}
	return v
}

func step(t *testing.T, z *zmachine.ZMachine) bool {
	t.Helper()
	cont, fault := z.Step()
	if fault != nil {
		t.Fatalf("unexpected fault: %s (pc=0x%x)", fault.Message, fault.PC)
	}
	return cont
}

// add (2OP:20), long form, two small-constant operands, result stored
// to global 16; then quit.
func TestArithmeticStoresAndQuits(t *testing.T) {
	b := newStory(3)
	b.append(0x14, 0x05, 0x07, 0x10) // add 5 7 -> store var16
	b.append(0xBA)                   // quit

	z := loadTestStory(t, b.build(t))

	if !step(t, z) {
		t.Fatal("add should not halt execution")
	}
	if got := globalWord(t, z, 16); got != 12 {
		t.Errorf("global16 = %d, want 12", got)
	}
	if cont := step(t, z); cont {
		t.Error("quit should report cont=false")
	}
}

// jz (1OP:0) with a single-byte forward branch that skips a "store 99"
// instruction, landing on a "store 1" instruction instead.
func TestBranchSkipsOverInstruction(t *testing.T) {
	b := newStory(3)
	b.append(0x90, 0x00, 0xC5) // jz 0 ?(+5): branch on true, single byte, offset 5
	b.append(0x0D, 0x10, 0x63) // store var16, 99 (skipped)
	b.append(0x0D, 0x10, 0x01) // store var16, 1 (branch target)
	b.append(0xBA)             // quit

	z := loadTestStory(t, b.build(t))

	step(t, z) // jz
	step(t, z) // store var16, 1 (the skipped instruction never runs)
	if got := globalWord(t, z, 16); got != 1 {
		t.Errorf("global16 = %d, want 1 (branch should have skipped the store-99 instruction)", got)
	}
	if cont := step(t, z); cont {
		t.Error("quit should report cont=false")
	}
}

// call_vs (VAR:0) into a routine that immediately rtrue's, confirming
// the call stack push/pop round trip and that the result lands in the
// caller's store destination.
func TestCallAndReturn(t *testing.T) {
	b := newStory(3)
	callAddr := b.append(0xE0, 0x3F, 0x00, 0x00, 0x10, 0xB4) // call routine -> store var16; nop
	b.append(0xBA)                                           // quit

	routineAddr := b.alignForRoutine()
	b.append(0x00, 0xB0) // 0 locals; rtrue

	b.patchWord(callAddr+2, b.packed(routineAddr))

	z := loadTestStory(t, b.build(t))

	step(t, z) // call
	step(t, z) // rtrue
	if got := globalWord(t, z, 16); got != 1 {
		t.Errorf("global16 = %d, want 1 (rtrue's result)", got)
	}
	step(t, z) // nop
	if cont := step(t, z); cont {
		t.Error("quit should report cont=false")
	}
}

// Division by zero must surface as a Fault returned from Step, not a
// panic that escapes the recover boundary.
func TestDivisionByZeroFaultsCleanly(t *testing.T) {
	b := newStory(3)
	b.append(0x17, 0x0A, 0x00, 0x00) // div 10 0 -> store (never reached)

	z := loadTestStory(t, b.build(t))

	cont, fault := z.Step()
	if fault == nil {
		t.Fatal("expected a fault dividing by zero")
	}
	if cont {
		t.Error("a faulted Step should report cont=false")
	}
	if fault.Kind != zmachine.FaultInternal {
		t.Errorf("fault kind = %v, want FaultInternal", fault.Kind)
	}
}

// ExportSaveState/ImportSaveState must round-trip dynamic memory
// through the Quetzal (IFZS) encoding.
func TestQuetzalSaveRestoreRoundTrip(t *testing.T) {
	b := newStory(3)
	b.append(0xBA) // quit; never actually run

	z := loadTestStory(t, b.build(t))

	if err := z.Core.WriteWord(globalAddr(z, 16), 42); err != nil {
		t.Fatalf("WriteWord: %v", err)
	}

	saved := z.ExportSaveState()

	if err := z.Core.WriteWord(globalAddr(z, 16), 99); err != nil {
		t.Fatalf("WriteWord: %v", err)
	}

	if !z.ImportSaveState(saved) {
		t.Fatal("ImportSaveState rejected a save it just produced")
	}
	if got := globalWord(t, z, 16); got != 42 {
		t.Errorf("global16 after restore = %d, want 42", got)
	}
}

// catch/throw (v5+): a routine A catches its own stack depth, calls a
// nested routine B, and B throws straight back past A - A's own call
// instruction (in main) receives the thrown value exactly as though A
// itself had returned it.
func TestCatchThrowUnwindsPastIntermediateFrame(t *testing.T) {
	b := newStory(5)

	callAAddr := b.append(0xE0, 0x3F, 0x00, 0x00, 0x10) // call A -> store var16
	b.append(0xBA)                                      // quit

	aStart := b.alignForRoutine()
	callBAddr := aStart + 3 // locals byte + catch opcode + catch store byte
	b.append(
		0x00,       // 0 locals
		0xB9, 0x12, // catch -> store var18
		0xE0, 0x3F, 0x00, 0x00, 0x11, // call B -> store var17 (never written: B throws instead)
	)

	bStart := b.alignForRoutine()
	b.append(
		0x00,       // 0 locals
		0x1C, 0x2A, 0x01, // throw 42 ?(depth=1), both small constants, long form
	)

	b.patchWord(callAAddr+2, b.packed(aStart))
	b.patchWord(callBAddr+2, b.packed(bStart))

	z := loadTestStory(t, b.build(t))

	step(t, z) // call A
	step(t, z) // catch (in A)
	step(t, z) // call B (in A)
	step(t, z) // throw (in B) - unwinds A and B, delivers 42 to main's call-A

	if got := globalWord(t, z, 18); got != 1 {
		t.Errorf("global18 (catch depth) = %d, want 1", got)
	}
	if got := globalWord(t, z, 16); got != 42 {
		t.Errorf("global16 (thrown value) = %d, want 42", got)
	}
	if cont := step(t, z); cont {
		t.Error("quit should report cont=false")
	}
}
