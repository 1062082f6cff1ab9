// Package zmachine implements the Z-machine CPU: instruction decode and
// dispatch, the call stack, object/property/dictionary/string glue, the
// (version <= 5) screen model, undo and Quetzal save/restore, and the
// narrow channel protocol an IO host (terminal, test harness, ...) uses
// to drive it.
package zmachine

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/ifzcore/goz/dictionary"
	"github.com/ifzcore/goz/zcore"
	"github.com/ifzcore/goz/zstring"
)

// StatusBar is sent to the output channel with the v1-3 status line at
// the start of every SREAD and on show_status.
type StatusBar struct {
	PlaceName   string
	Score       int
	Moves       int
	IsTimeBased bool
}

// Quit is sent once, as the last message, when the interpreter loop
// exits for any reason (the QUIT opcode or a fault).
type Quit bool

// Restart is sent by the RESTART opcode; the host is expected to
// reload the original story bytes and call LoadRom again.
type Restart bool

// EraseWindowRequest mirrors the erase_window opcode's window argument:
// -2 clears both windows keeping the split, -1 unsplits and clears
// both, 0 clears the lower window, 1 clears the upper window.
type EraseWindowRequest int

// EraseLineRequest is sent by erase_line; the host clears from the
// current cursor position to the end of the active window's line.
type EraseLineRequest bool

// RuntimeError reports a fault that stopped the interpreter.
type RuntimeError string

// Warning reports a non-fatal story-file problem that the interpreter
// recovered from (e.g. a stack underflow) - logged, not fatal.
type Warning string

// InputRequest is sent when SREAD needs a line of text from the host.
// ValidTerminators lists the ASCII/ZSCII codes (always including '\n')
// that may end input, per the v5+ custom terminator table.
type InputRequest struct {
	ValidTerminators []uint8
}

// InputResponse is the host's reply to InputRequest (SREAD) or to
// WaitForCharacter (READ_CHAR). TerminatingKey is the ZSCII code of the
// key that ended input; Text is empty for a bare READ_CHAR response.
type InputResponse struct {
	Text           string
	TerminatingKey uint8
}

// SoundEffectRequest is sent by the SOUND_EFFECT opcode.
type SoundEffectRequest struct {
	SoundNumber uint16
	Effect      uint16
	Routine     uint16
}

// StateChangeRequest announces a change in what the interpreter is
// waiting for, distinct from the InputRequest/InputResponse payload
// itself, so a host can update UI chrome (e.g. a cursor) promptly.
type StateChangeRequest int

const (
	WaitForInput StateChangeRequest = iota
	WaitForCharacter
	Running
)

type MemoryStreamData struct {
	baseAddress uint32
	ptr         uint32
}

// Streams tracks which of the four Z-machine output streams are active.
type Streams struct {
	Screen           bool
	Transcript       bool
	Memory           bool
	MemoryStreamData []MemoryStreamData
	CommandScript    bool
}

// FaultKind classifies why Step stopped the interpreter.
type FaultKind int

const (
	// FaultInternal is raised by the opcode handlers (and for any other
	// panic recovered in Step): an opcode this core doesn't implement,
	// or a condition a handler rejects, such as division by zero, a
	// missing local variable or an invalid throw target.
	FaultInternal FaultKind = iota
	// FaultStoryFile is a memory access the story file caused that
	// zcore rejected (e.g. an out-of-bounds memory reference).
	FaultStoryFile
)

// Fault is raised by a panic inside Step's opcode dispatch and
// recovered at the top of Step, so a single recover point replaces
// explicit error checking in every one of the ~80 opcode handlers.
type Fault struct {
	Kind    FaultKind
	Message string
	PC      uint32
}

func (f *Fault) Error() string {
	return f.Message
}

// ZMachine is one running story's interpreter state.
type ZMachine struct {
	callStack   CallStack
	Core        *zcore.Memory
	dictionary  *dictionary.Dictionary
	screenModel ScreenModel
	streams     Streams
	rng         *rand.Rand
	Alphabets   *zstring.Alphabets

	outputChannel      chan<- any
	inputChannel       <-chan InputResponse
	saveRestoreChannel <-chan SaveRestoreResponse

	UndoStates InMemorySaveStateCache

	// originalDynamicMemory is a snapshot of dynamic memory taken right
	// after load, before any instruction runs. Quetzal's CMem chunk
	// stores a save as a diff against this, not against the static story
	// file on disk (which doesn't change), so it has to be captured once
	// up front rather than recomputed at save time.
	originalDynamicMemory []uint8

	currentInstructionPC uint32
	warned               map[string]bool
	opcodeCounts         map[string]int
}

// Version is a convenience accessor used throughout opcode decode/dispatch.
func (z *ZMachine) Version() uint8 {
	return z.Core.Version
}

// warnOnce reports a non-fatal story-file problem to the output channel,
// once per key, so a tight loop that repeatedly hits the same harmless
// bug doesn't flood the host with identical warnings.
func (z *ZMachine) warnOnce(key string, format string, args ...any) {
	if z.warned == nil {
		z.warned = make(map[string]bool)
	}
	if z.warned[key] {
		return
	}
	z.warned[key] = true
	z.outputChannel <- Warning(fmt.Sprintf(format, args...))
}

// raise aborts the current Step with a story-file fault.
func (z *ZMachine) raise(err error) {
	panic(&Fault{Kind: FaultStoryFile, Message: err.Error(), PC: z.currentInstructionPC})
}

// fail aborts the current Step with an interpreter fault.
func (z *ZMachine) fail(format string, args ...any) {
	panic(&Fault{Kind: FaultInternal, Message: fmt.Sprintf(format, args...), PC: z.currentInstructionPC})
}

func (z *ZMachine) mustByte(addr uint32) uint8 {
	b, err := z.Core.Byte(addr)
	if err != nil {
		z.raise(err)
	}
	return b
}

func (z *ZMachine) mustWord(addr uint32) uint16 {
	w, err := z.Core.Word(addr)
	if err != nil {
		z.raise(err)
	}
	return w
}

func (z *ZMachine) mustWriteByte(addr uint32, v uint8) {
	if err := z.Core.WriteByte(addr, v); err != nil {
		z.raise(err)
	}
}

func (z *ZMachine) mustWriteWord(addr uint32, v uint16) {
	if err := z.Core.WriteWord(addr, v); err != nil {
		z.raise(err)
	}
}

func (z *ZMachine) packedAddress(originalAddress uint32, isZString bool) uint32 {
	if isZString {
		return z.Core.PackedStringAddress(originalAddress)
	}
	return z.Core.PackedRoutineAddress(originalAddress)
}

func (z *ZMachine) readIncPC(frame *CallStackFrame) uint8 {
	v := z.mustByte(frame.pc)
	frame.pc++
	return v
}

func (z *ZMachine) readHalfWordIncPC(frame *CallStackFrame) uint16 {
	v := z.mustWord(frame.pc)
	frame.pc += 2
	return v
}

func (z *ZMachine) readVariable(variable uint8, indirect bool) uint16 {
	currentCallFrame := z.callStack.peek()

	switch {
	case variable == 0: // Magic stack variable
		// "In the seven opcodes that take indirect variable references
		// (inc, dec, inc_chk, dec_chk, load, store, pull), an indirect
		// reference to the stack pointer does not push or pull the top
		// item of the stack - it is read or written in place."
		if indirect {
			return currentCallFrame.peek(z)
		}
		return currentCallFrame.pop(z)
	case variable < 16: // Routine local variables
		if variable-1 >= uint8(len(currentCallFrame.locals)) {
			z.fail("access to non-existent local variable %d (pc=0x%x)", variable, z.currentInstructionPC)
		}
		return currentCallFrame.locals[variable-1]
	default: // Global variables
		return z.mustWord(uint32(z.Core.GlobalVariableBase + 2*(uint16(variable)-16)))
	}
}

func (z *ZMachine) writeVariable(variable uint8, value uint16, indirect bool) {
	currentCallFrame := z.callStack.peek()

	switch {
	case variable == 0: // Magic stack variable
		if indirect {
			_ = currentCallFrame.pop(z)
		}
		currentCallFrame.push(value)
	case variable < 16: // Routine local variables
		if variable-1 >= uint8(len(currentCallFrame.locals)) {
			z.fail("write to non-existent local variable %d (pc=0x%x)", variable, z.currentInstructionPC)
		}
		currentCallFrame.locals[variable-1] = value
	default: // Global variables
		z.mustWriteWord(uint32(z.Core.GlobalVariableBase+2*(uint16(variable)-16)), value)
	}
}

// LoadRom parses a story file and constructs an interpreter ready to
// Run. It panics if the story's header is malformed or its version is
// unsupported - a condition the host is expected to have already
// screened for (e.g. cmd/gametest's version-floor check) before calling
// LoadRom on untrusted input.
func LoadRom(storyFile []uint8, inputChannel <-chan InputResponse, saveRestoreChannel <-chan SaveRestoreResponse, outputChannel chan<- any) *ZMachine {
	core, err := zcore.LoadMemory(storyFile)
	if err != nil {
		panic(err)
	}

	machine := ZMachine{
		Core:               core,
		inputChannel:       inputChannel,
		saveRestoreChannel: saveRestoreChannel,
		outputChannel:      outputChannel,
		streams: Streams{
			Screen: true,
		},
		rng: rand.New(rand.NewSource(time.Now().UnixNano())),
	}

	machine.Alphabets = zstring.LoadAlphabets(core.Version, core.Bytes(), core.AlphabetTableBase)
	machine.dictionary = dictionary.Parse(core.Bytes(), uint32(core.DictionaryBase), core.Version, machine.Alphabets, core.AbbreviationsBase)

	core.ApplyInterpreterIdentity(6, 1, 24, 80)
	core.SetDefaultColours(9, 2) // white on black
	machine.screenModel = newScreenModel(Color{255, 255, 255}, Color{0, 0, 0})

	machine.callStack.push(CallStackFrame{
		pc:     uint32(core.InitialPC),
		locals: make([]uint16, 0),
	})

	machine.originalDynamicMemory = append([]uint8(nil), core.Dynamic()...)

	return &machine
}
