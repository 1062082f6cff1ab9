package zmachine

import (
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ifzcore/goz/dictionary"
	"github.com/ifzcore/goz/zbit"
	"github.com/ifzcore/goz/zobject"
	"github.com/ifzcore/goz/zstring"
	"github.com/ifzcore/goz/ztable"
)

// Run drives the interpreter to completion, publishing the initial
// screen model and then a Quit message once the story quits, restarts,
// or a fault stops it.
func (z *ZMachine) Run() {
	z.outputChannel <- z.screenModel

	for {
		cont, fault := z.Step()
		if fault != nil {
			z.outputChannel <- RuntimeError(fault.Message)
			break
		}
		if !cont {
			break
		}
	}

	z.outputChannel <- Quit(true)
}

// Step executes exactly one instruction. A panic raised anywhere during
// decode or dispatch - a *Fault from one of the must* helpers, or any
// other runtime panic (an unimplemented opcode, an invariant violation
// in zobject/dictionary) - is recovered here and turned into a Fault,
// so none of the opcode handlers below need their own error handling.
func (z *ZMachine) Step() (cont bool, fault *Fault) {
	defer func() {
		if r := recover(); r != nil {
			if f, ok := r.(*Fault); ok {
				fault = f
				return
			}
			fault = &Fault{Kind: FaultInternal, Message: formatRecovered(r), PC: z.currentInstructionPC}
		}
	}()

	cont = z.stepUnsafe()
	return cont, nil
}

func formatRecovered(r any) string {
	if err, ok := r.(error); ok {
		return err.Error()
	}
	if s, ok := r.(string); ok {
		return s
	}
	return "unexpected interpreter panic"
}

func (z *ZMachine) decodeStringAt(addr uint32) (string, uint32) {
	return zstring.Decode(z.Core.Bytes(), addr, z.Core.Version, z.Alphabets, z.Core.AbbreviationsBase)
}

// getObject is the single entry point every opcode handler uses to
// resolve an object id, so object-0 and out-of-range accesses are all
// funnelled through the same fault path.
func (z *ZMachine) getObject(objId uint16) zobject.Object {
	return zobject.GetObject(objId, z.Core.ObjectTableBase, z.Core.Bytes(), z.Core.Version, z.Alphabets, z.Core.AbbreviationsBase)
}

func (z *ZMachine) setAttribute(obj *zobject.Object, attr uint16) {
	if err := obj.SetAttribute(attr, z.Core.Bytes(), z.Core.Version); err != nil {
		z.fail("%v", err)
	}
}

func (z *ZMachine) clearAttribute(obj *zobject.Object, attr uint16) {
	if err := obj.ClearAttribute(attr, z.Core.Bytes(), z.Core.Version); err != nil {
		z.fail("%v", err)
	}
}

func (z *ZMachine) updateStatusBar() {
	location := z.getObject(z.readVariable(16, false))
	z.outputChannel <- StatusBar{
		PlaceName:   location.Name,
		Score:       int(int16(z.readVariable(17, false))),
		Moves:       int(z.readVariable(18, false)),
		IsTimeBased: z.Core.StatusBarTimeBased,
	}
}

func (z *ZMachine) call(opcode *Opcode, routineType RoutineType) {
	routineAddress := z.packedAddress(uint32(opcode.operands[0].Value(z)), false)

	// A call to address 0 makes no call at all: it immediately "returns"
	// false (0) if the caller wants the result stored.
	if routineAddress == 0 {
		if routineType == function {
			z.writeVariable(z.readIncPC(z.callStack.peek()), 0, false)
		}
		return
	}

	localVariableCount := z.mustByte(routineAddress)
	routineAddress++

	locals := make([]uint16, localVariableCount)
	for i := 0; i < int(localVariableCount); i++ {
		if i+1 < len(opcode.operands) {
			locals[i] = opcode.operands[i+1].Value(z)
		} else if z.Core.Version < 5 {
			locals[i] = z.mustWord(routineAddress)
		}

		if z.Core.Version < 5 {
			routineAddress += 2
		}
	}

	z.callStack.push(CallStackFrame{
		pc:              routineAddress,
		locals:          locals,
		routineStack:    make([]uint16, 0),
		routineType:     routineType,
		numValuesPassed: len(opcode.operands) - 1,
	})
}

func (z *ZMachine) handleBranch(frame *CallStackFrame, result bool) {
	branchArg1 := z.readIncPC(frame)

	field := zbit.Field(branchArg1)
	branchReversed := !field.Bit(7)
	singleByte := field.Bit(6)
	offset := int32(field.Bits(5, 0))

	if !singleByte {
		offset = int32(int16((uint16(branchArg1&0b11_1111)<<8|uint16(z.readIncPC(frame)))<<2) >> 2)
	}

	if result != branchReversed {
		switch offset {
		case 0:
			z.retValue(0)
		case 1:
			z.retValue(1)
		default:
			frame.pc = uint32(int32(frame.pc) + offset - 2)
		}
	}
}

func (z *ZMachine) retValue(val uint16) {
	oldFrame, ok := z.callStack.pop()
	if !ok {
		z.fail("return with no active routine (pc=0x%x)", z.currentInstructionPC)
	}

	// The main routine returning has no caller to deliver a value to;
	// no valid story file does this (it quits instead), so it's treated
	// as an interpreter fault rather than silently stopping.
	newFrame := z.callStack.peek()
	if newFrame == nil {
		z.fail("return from the main routine (pc=0x%x)", z.currentInstructionPC)
	}

	if oldFrame.routineType == function {
		destination := z.readIncPC(newFrame)
		z.writeVariable(destination, val, false)
	}
}

// throwTo implements the throw half of catch/throw: it unwinds every
// frame above depth (the frame catch was called from) and delivers
// value to depth's caller exactly as if depth's routine had returned
// value normally.
func (z *ZMachine) throwTo(depth uint16, value uint16) {
	if int(depth) >= len(z.callStack.frames) {
		z.fail("throw: invalid target frame %d (pc=0x%x)", depth, z.currentInstructionPC)
	}

	thrownType := z.callStack.frames[depth].routineType
	z.callStack.frames = z.callStack.frames[:depth]

	newFrame := z.callStack.peek()
	if newFrame == nil {
		z.fail("throw: unwound past the main routine (pc=0x%x)", z.currentInstructionPC)
	}

	if thrownType == function {
		destination := z.readIncPC(newFrame)
		z.writeVariable(destination, value, false)
	}
}

func (z *ZMachine) removeObject(objId uint16) {
	object := z.getObject(objId)
	zobject.Unlink(&object, z.Core.ObjectTableBase, z.Core.Bytes(), z.Core.Version, z.Alphabets, z.Core.AbbreviationsBase)
}

func (z *ZMachine) moveObject(objId uint16, newParent uint16) {
	object := z.getObject(objId)
	if object.Parent == newParent {
		return
	}

	zobject.Unlink(&object, z.Core.ObjectTableBase, z.Core.Bytes(), z.Core.Version, z.Alphabets, z.Core.AbbreviationsBase)
	zobject.Insert(&object, newParent, z.Core.ObjectTableBase, z.Core.Bytes(), z.Core.Version, z.Alphabets, z.Core.AbbreviationsBase)
}

func (z *ZMachine) appendText(s string) {
	if z.streams.Memory {
		currentMemoryStream := &z.streams.MemoryStreamData[len(z.streams.MemoryStreamData)-1]
		for _, r := range s {
			z.mustWriteByte(currentMemoryStream.ptr, uint8(r))
			currentMemoryStream.ptr++
		}
		// 7.1.2.2: while stream 3 is selected, no text reaches any other
		// stream, even if it remains selected.
		return
	}

	if z.streams.Screen {
		z.outputChannel <- s

		if !z.screenModel.LowerWindowActive {
			lines := strings.Split(s, "\n")
			z.screenModel.UpperWindowCursorY += len(lines) - 1
			if len(lines) > 1 {
				z.screenModel.UpperWindowCursorX = len(lines[len(lines)-1])
			} else {
				z.screenModel.UpperWindowCursorX += len(lines[0])
			}
			z.outputChannel <- z.screenModel
		}
	}

	if z.streams.Transcript {
		z.warnOnce("transcript_unsupported", "transcript output stream is not supported")
	}

	if z.streams.CommandScript {
		z.warnOnce("command_script_unsupported", "command-script output stream is not supported")
	}
}

type tokenisedWord struct {
	bytes             []uint8
	startingLocation  uint32
	dictionaryAddress uint16
}

func (z *ZMachine) tokeniseSingleWord(bytes []uint8, wordStartPtr uint32, d *dictionary.Dictionary) tokenisedWord {
	chars := make([]rune, len(bytes))
	for i, b := range bytes {
		chars[i] = rune(b)
	}
	encoded := zstring.Encode(chars, z.Core.Version, z.Alphabets)
	return tokenisedWord{
		bytes:             bytes,
		startingLocation:  wordStartPtr,
		dictionaryAddress: d.Lookup(encoded),
	}
}

// tokenise splits the text at baddr1 into words using d's separator
// table, looks each one up in d, and writes the parse buffer at baddr2
// per the Z-machine standard's sread/tokenise layout.
func (z *ZMachine) tokenise(baddr1 uint32, baddr2 uint32, d *dictionary.Dictionary) {
	words := make([]tokenisedWord, 0)
	startingLocation := baddr1 + 1 // skip the max-length byte
	chrCount := uint32(0)
	if z.Core.Version >= 5 {
		chrCount = uint32(z.mustByte(startingLocation))
		startingLocation++
	}
	currentLocation := startingLocation

	separators := d.Separators()

	flush := func(end uint32) {
		if end > startingLocation {
			words = append(words, z.tokeniseSingleWord(z.Core.Slice(startingLocation, end), startingLocation, d))
		}
	}

	for {
		done := (z.Core.Version < 5 && currentLocation >= z.Core.Len()) ||
			(z.Core.Version >= 5 && currentLocation-(baddr1+2) >= chrCount)
		if done {
			flush(currentLocation)
			break
		}

		chr := z.mustByte(currentLocation)
		if z.Core.Version < 5 && chr == 0 {
			flush(currentLocation)
			break
		}

		isSeparator := false
		for _, sep := range separators {
			if chr == sep {
				isSeparator = true
				break
			}
		}

		if chr == ' ' {
			flush(currentLocation)
			startingLocation = currentLocation + 1
		} else if isSeparator {
			flush(currentLocation)
			words = append(words, z.tokeniseSingleWord(z.Core.Slice(currentLocation, currentLocation+1), currentLocation, d))
			startingLocation = currentLocation + 1
		}

		currentLocation++
	}

	maxWords := z.mustByte(baddr2)
	if int(maxWords) < len(words) {
		words = words[:maxWords]
	}

	parseBufferPtr := baddr2 + 1
	z.mustWriteByte(parseBufferPtr, uint8(len(words)))
	parseBufferPtr++
	for _, word := range words {
		z.mustWriteWord(parseBufferPtr, word.dictionaryAddress)
		z.mustWriteByte(parseBufferPtr+2, uint8(len(word.bytes)))
		z.mustWriteByte(parseBufferPtr+3, uint8(word.startingLocation-baddr1))
		parseBufferPtr += 4
	}
}

func (z *ZMachine) read(opcode *Opcode) {
	if z.Core.Version <= 3 {
		z.updateStatusBar()
	}

	validTerminators := []uint8{'\n'}
	if z.Core.Version >= 5 && z.Core.TerminatingCharBase != 0 {
		ptr := uint32(z.Core.TerminatingCharBase)
		for {
			b := z.mustByte(ptr)
			if b == 0 {
				break
			} else if (b >= 129 && b <= 154) || (b >= 252 && b <= 254) {
				validTerminators = append(validTerminators, b)
			} else if b == 255 {
				validTerminators = []uint8{'\n', 129, 130, 131, 132, 133, 134, 135, 136, 137, 138, 139, 140, 141, 142, 143, 144, 145, 146, 147, 148, 149, 150, 151, 152, 153, 154, 252, 253, 254}
				break
			}
			ptr++
		}
	}

	z.outputChannel <- InputRequest{ValidTerminators: validTerminators}
	response, ok := <-z.inputChannel
	if !ok {
		z.callStack.peek().pc = z.currentInstructionPC
		z.fail("input channel closed during read (pc=0x%x)", z.currentInstructionPC)
	}

	textBufferPtr := uint32(opcode.operands[0].Value(z))
	parseBufferPtr := uint32(0)
	if len(opcode.operands) > 1 {
		parseBufferPtr = uint32(opcode.operands[1].Value(z))
	}

	rawTextBytes := []byte(strings.ToLower(response.Text))
	textStart := textBufferPtr
	bufferSize := z.mustByte(textBufferPtr)
	textBufferPtr++

	if z.Core.Version >= 5 {
		existingBytes := z.mustByte(textBufferPtr)
		textBufferPtr += 1 + uint32(existingBytes)
	}

	ix := 0
	for ix < int(bufferSize) && ix < len(rawTextBytes) {
		chr := rawTextBytes[ix]
		if (chr >= 32 && chr <= 126) || (chr >= 155 && chr <= 251) {
			z.mustWriteByte(textBufferPtr+uint32(ix), chr)
		} else {
			z.mustWriteByte(textBufferPtr+uint32(ix), ' ')
		}
		ix++
	}
	z.mustWriteByte(textBufferPtr+uint32(ix), 0)

	if z.Core.Version >= 5 {
		z.mustWriteByte(textStart+1, uint8(ix))
	}

	if parseBufferPtr != 0 {
		z.tokenise(textStart, parseBufferPtr, z.dictionary)
	}

	if z.Core.Version >= 5 {
		z.writeVariable(z.readIncPC(z.callStack.peek()), uint16(response.TerminatingKey), false)
	}
}

// stepUnsafe decodes and executes one instruction. It is never called
// directly - Step wraps it with the recover boundary that turns panics
// into Faults.
func (z *ZMachine) stepUnsafe() bool {
	frame := z.callStack.peek()
	z.currentInstructionPC = frame.pc

	opcode := ParseOpcode(z)
	frame = z.callStack.peek()
	z.recordOpcode(&opcode)

	switch opcode.operandCount {
	case OP0:
		return z.execOP0(&opcode, frame)
	case OP1:
		z.execOP1(&opcode, frame)
	case OP2:
		z.execOP2(&opcode, frame)
	case VAR:
		if opcode.opcodeForm == extForm {
			z.execEXT(&opcode, frame)
		} else {
			z.execVAR(&opcode, frame)
		}
	}

	return true
}

var operandCountNames = map[OperandCount]string{
	OP0: "OP0",
	OP1: "OP1",
	OP2: "OP2",
	VAR: "VAR",
}

// recordOpcode tallies which opcodes a run actually dispatched, for a
// host (cmd/gametest) that wants per-run coverage rather than just
// pass/fail.
func (z *ZMachine) recordOpcode(opcode *Opcode) {
	if z.opcodeCounts == nil {
		z.opcodeCounts = make(map[string]int)
	}

	form := operandCountNames[opcode.operandCount]
	if opcode.opcodeForm == extForm {
		form = "EXT"
	}
	z.opcodeCounts[fmt.Sprintf("%s:%d", form, opcode.opcodeNumber)]++
}

// OpcodeCoverage returns how many times each opcode (keyed by
// "form:number", e.g. "VAR:0") has been dispatched so far.
func (z *ZMachine) OpcodeCoverage() map[string]int {
	coverage := make(map[string]int, len(z.opcodeCounts))
	for k, v := range z.opcodeCounts {
		coverage[k] = v
	}
	return coverage
}

func (z *ZMachine) execOP0(opcode *Opcode, frame *CallStackFrame) bool {
	switch opcode.opcodeNumber {
	case 0: // rtrue
		z.retValue(1)
	case 1: // rfalse
		z.retValue(0)
	case 2: // print
		text, bytesRead := z.decodeStringAt(frame.pc)
		frame.pc += bytesRead
		z.appendText(text)
	case 3: // print_ret
		text, bytesRead := z.decodeStringAt(frame.pc)
		frame.pc += bytesRead
		z.appendText(text)
		z.appendText("\n")
		z.retValue(1)
	case 4: // nop
	case 5: // save (v1-4, branches on success)
		z.legacySaveRestore(frame, true)
	case 6: // restore (v1-4, branches on success)
		z.legacySaveRestore(frame, false)
	case 7: // restart
		z.outputChannel <- Restart(true)
		return false
	case 8: // ret_popped
		z.retValue(frame.pop(z))
	case 9: // pop (v1-4) / catch (v5+)
		if z.Core.Version >= 5 {
			depth := uint16(len(z.callStack.frames) - 1)
			z.writeVariable(z.readIncPC(frame), depth, false)
		} else {
			frame.pop(z)
		}
	case 10: // quit
		return false
	case 11: // new_line
		z.appendText("\n")
	case 12: // show_status (v3 only)
		if z.Core.Version == 3 {
			z.updateStatusBar()
		}
	case 13: // verify
		z.handleBranch(frame, z.Core.Checksum() == z.Core.FileChecksum)
	case 15: // piracy
		z.handleBranch(frame, true) // interpreters are asked to be gullible
	default:
		z.fail("unimplemented 0OP opcode 0x%x at 0x%x", opcode.opcodeByte, z.currentInstructionPC)
	}

	return true
}

func (z *ZMachine) legacySaveRestore(frame *CallStackFrame, save bool) {
	if save {
		z.outputChannel <- Save{Address: 0, NumBytes: 0}
	} else {
		z.outputChannel <- Restore{Address: 0, NumBytes: 0}
	}

	response := <-z.saveRestoreChannel
	switch r := response.(type) {
	case SaveResponse:
		z.handleBranch(frame, r.Success)
	case RestoreResponse:
		if r.Success && z.ImportSaveState(r.Data) {
			frame = z.callStack.peek()
			z.handleBranch(frame, true)
		} else {
			z.handleBranch(frame, false)
		}
	}
}

func (z *ZMachine) execOP1(opcode *Opcode, frame *CallStackFrame) {
	switch opcode.opcodeNumber {
	case 0: // jz
		z.handleBranch(frame, opcode.operands[0].Value(z) == 0)
	case 1: // get_sibling
		sibling := z.getObject(opcode.operands[0].Value(z)).Sibling
		z.writeVariable(z.readIncPC(frame), sibling, false)
		z.handleBranch(frame, sibling != 0)
	case 2: // get_child
		child := z.getObject(opcode.operands[0].Value(z)).Child
		z.writeVariable(z.readIncPC(frame), child, false)
		z.handleBranch(frame, child != 0)
	case 3: // get_parent
		z.writeVariable(z.readIncPC(frame), z.getObject(opcode.operands[0].Value(z)).Parent, false)
	case 4: // get_prop_len
		addr := opcode.operands[0].Value(z)
		z.writeVariable(z.readIncPC(frame), zobject.GetPropertyLength(z.Core.Bytes(), uint32(addr), z.Core.Version), false)
	case 5: // inc
		variable := uint8(opcode.operands[0].Value(z))
		z.writeVariable(variable, z.readVariable(variable, true)+1, true)
	case 6: // dec
		variable := uint8(opcode.operands[0].Value(z))
		z.writeVariable(variable, z.readVariable(variable, true)-1, true)
	case 7: // print_addr
		str, _ := z.decodeStringAt(uint32(opcode.operands[0].Value(z)))
		z.appendText(str)
	case 8: // call_1s
		z.call(opcode, function)
	case 9: // remove_obj
		z.removeObject(opcode.operands[0].Value(z))
	case 10: // print_obj
		z.appendText(z.getObject(opcode.operands[0].Value(z)).Name)
	case 11: // ret
		z.retValue(opcode.operands[0].Value(z))
	case 12: // jump
		offset := int16(opcode.operands[0].Value(z))
		frame.pc = uint32(int32(frame.pc) + int32(offset) - 2)
	case 13: // print_paddr
		addr := z.packedAddress(uint32(opcode.operands[0].Value(z)), true)
		str, _ := z.decodeStringAt(addr)
		z.appendText(str)
	case 14: // load
		z.writeVariable(z.readIncPC(frame), z.readVariable(uint8(opcode.operands[0].Value(z)), true), false)
	case 15: // not (v1-4) / call_1n (v5+)
		if z.Core.Version < 5 {
			z.writeVariable(z.readIncPC(frame), ^opcode.operands[0].Value(z), false)
		} else {
			z.call(opcode, procedure)
		}
	default:
		z.fail("unimplemented 1OP opcode 0x%x at 0x%x", opcode.opcodeByte, z.currentInstructionPC)
	}
}

func (z *ZMachine) execOP2(opcode *Opcode, frame *CallStackFrame) {
	switch opcode.opcodeNumber {
	case 1: // je
		a := opcode.operands[0].Value(z)
		branch := false
		for _, b := range opcode.operands[1:] {
			if a == b.Value(z) {
				branch = true
			}
		}
		z.handleBranch(frame, branch)
	case 2: // jl
		z.handleBranch(frame, int16(opcode.operands[0].Value(z)) < int16(opcode.operands[1].Value(z)))
	case 3: // jg
		z.handleBranch(frame, int16(opcode.operands[0].Value(z)) > int16(opcode.operands[1].Value(z)))
	case 4: // dec_chk
		variable := uint8(opcode.operands[0].Value(z))
		newValue := int16(z.readVariable(variable, true)) - 1
		z.writeVariable(variable, uint16(newValue), true)
		z.handleBranch(frame, newValue < int16(opcode.operands[1].Value(z)))
	case 5: // inc_chk
		variable := uint8(opcode.operands[0].Value(z))
		newValue := int16(z.readVariable(variable, true)) + 1
		z.writeVariable(variable, uint16(newValue), true)
		z.handleBranch(frame, newValue > int16(opcode.operands[1].Value(z)))
	case 6: // jin
		z.handleBranch(frame, z.getObject(opcode.operands[0].Value(z)).Parent == opcode.operands[1].Value(z))
	case 7: // test
		bitmap := opcode.operands[0].Value(z)
		flags := opcode.operands[1].Value(z)
		z.handleBranch(frame, bitmap&flags == flags)
	case 8: // or
		z.writeVariable(z.readIncPC(frame), opcode.operands[0].Value(z)|opcode.operands[1].Value(z), false)
	case 9: // and
		z.writeVariable(z.readIncPC(frame), opcode.operands[0].Value(z)&opcode.operands[1].Value(z), false)
	case 10: // test_attr
		obj := z.getObject(opcode.operands[0].Value(z))
		z.handleBranch(frame, obj.TestAttribute(opcode.operands[1].Value(z)))
	case 11: // set_attr
		obj := z.getObject(opcode.operands[0].Value(z))
		z.setAttribute(&obj, opcode.operands[1].Value(z))
	case 12: // clear_attr
		obj := z.getObject(opcode.operands[0].Value(z))
		z.clearAttribute(&obj, opcode.operands[1].Value(z))
	case 13: // store
		z.writeVariable(uint8(opcode.operands[0].Value(z)), opcode.operands[1].Value(z), true)
	case 14: // insert_obj
		z.moveObject(opcode.operands[0].Value(z), opcode.operands[1].Value(z))
	case 15: // loadw
		z.writeVariable(z.readIncPC(frame), z.mustWord(uint32(opcode.operands[0].Value(z)+2*opcode.operands[1].Value(z))), false)
	case 16: // loadb
		z.writeVariable(z.readIncPC(frame), uint16(z.mustByte(uint32(opcode.operands[0].Value(z)+opcode.operands[1].Value(z)))), false)
	case 17: // get_prop
		obj := z.getObject(opcode.operands[0].Value(z))
		prop := obj.GetProperty(uint8(opcode.operands[1].Value(z)), z.Core.Bytes(), z.Core.Version, z.Core.ObjectTableBase)

		value := uint16(prop.Data[0])
		if len(prop.Data) == 2 {
			value = binary.BigEndian.Uint16(prop.Data)
		} else if len(prop.Data) > 2 {
			z.fail("get_prop on property longer than 2 bytes (object %d, prop %d)", obj.Id, prop.Id)
		}
		z.writeVariable(z.readIncPC(frame), value, false)
	case 18: // get_prop_addr
		obj := z.getObject(opcode.operands[0].Value(z))
		prop := obj.GetProperty(uint8(opcode.operands[1].Value(z)), z.Core.Bytes(), z.Core.Version, z.Core.ObjectTableBase)
		z.writeVariable(z.readIncPC(frame), uint16(prop.DataAddress), false)
	case 19: // get_next_prop
		obj := z.getObject(opcode.operands[0].Value(z))
		next := obj.GetNextProperty(uint8(opcode.operands[1].Value(z)), z.Core.Bytes(), z.Core.Version, z.Core.ObjectTableBase)
		z.writeVariable(z.readIncPC(frame), uint16(next), false)
	case 20: // add
		z.writeVariable(z.readIncPC(frame), opcode.operands[0].Value(z)+opcode.operands[1].Value(z), false)
	case 21: // sub
		z.writeVariable(z.readIncPC(frame), opcode.operands[0].Value(z)-opcode.operands[1].Value(z), false)
	case 22: // mul
		z.writeVariable(z.readIncPC(frame), opcode.operands[0].Value(z)*opcode.operands[1].Value(z), false)
	case 23: // div
		numerator := int16(opcode.operands[0].Value(z))
		denominator := int16(opcode.operands[1].Value(z))
		if denominator == 0 {
			z.fail("division by zero (pc=0x%x)", z.currentInstructionPC)
		}
		z.writeVariable(z.readIncPC(frame), uint16(numerator/denominator), false)
	case 24: // mod
		numerator := int16(opcode.operands[0].Value(z))
		denominator := int16(opcode.operands[1].Value(z))
		if denominator == 0 {
			z.fail("modulo by zero (pc=0x%x)", z.currentInstructionPC)
		}
		z.writeVariable(z.readIncPC(frame), uint16(numerator%denominator), false)
	case 25: // call_2s
		if z.Core.Version < 4 {
			z.fail("call_2s requires v4+ (pc=0x%x)", z.currentInstructionPC)
		}
		z.call(opcode, function)
	case 26: // call_2n
		if z.Core.Version < 5 {
			z.fail("call_2n requires v5+ (pc=0x%x)", z.currentInstructionPC)
		}
		z.call(opcode, procedure)
	case 27: // set_colour
		if z.Core.Version < 5 {
			z.fail("set_colour requires v5+ (pc=0x%x)", z.currentInstructionPC)
		}
		fg := z.screenModel.NewZMachineColor(opcode.operands[0].Value(z), true)
		bg := z.screenModel.NewZMachineColor(opcode.operands[1].Value(z), false)
		if z.screenModel.LowerWindowActive {
			z.screenModel.LowerWindowForeground, z.screenModel.LowerWindowBackground = fg, bg
		} else {
			z.screenModel.UpperWindowForeground, z.screenModel.UpperWindowBackground = fg, bg
		}
		z.outputChannel <- z.screenModel
	case 28: // throw
		if z.Core.Version < 5 {
			z.fail("throw requires v5+ (pc=0x%x)", z.currentInstructionPC)
		}
		z.throwTo(opcode.operands[1].Value(z), opcode.operands[0].Value(z))
	default:
		z.fail("unimplemented 2OP opcode 0x%x at 0x%x", opcode.opcodeByte, z.currentInstructionPC)
	}
}

func (z *ZMachine) execEXT(opcode *Opcode, frame *CallStackFrame) {
	switch opcode.opcodeByte {
	case 0x00: // save (v5+, full save only; a 3rd operand names the save file)
		filename := ""
		if len(opcode.operands) > 2 {
			filename = z.readSaveFilename(uint32(opcode.operands[2].Value(z)))
		}
		z.outputChannel <- Save{Address: 0, NumBytes: 0, Filename: filename}
		response := <-z.saveRestoreChannel
		result := uint16(0)
		if r, ok := response.(SaveResponse); ok && r.Success {
			result = r.Result
		}
		z.writeVariable(z.readIncPC(frame), result, false)
	case 0x01: // restore (v5+, full restore only; a 3rd operand names the save file)
		filename := ""
		if len(opcode.operands) > 2 {
			filename = z.readSaveFilename(uint32(opcode.operands[2].Value(z)))
		}
		z.outputChannel <- Restore{Address: 0, NumBytes: 0, Filename: filename}
		response := <-z.saveRestoreChannel
		result := uint16(0)
		if r, ok := response.(RestoreResponse); ok && r.Success && z.ImportSaveState(r.Data) {
			result = r.Result
			frame = z.callStack.peek()
		}
		z.writeVariable(z.readIncPC(frame), result, false)
	case 0x02: // log_shift
		num := opcode.operands[0].Value(z)
		places := int16(opcode.operands[1].Value(z))
		var result uint16
		if places >= 0 {
			result = num << uint16(places)
		} else {
			result = num >> uint16(-places)
		}
		z.writeVariable(z.readIncPC(frame), result, false)
	case 0x03: // art_shift
		num := int16(opcode.operands[0].Value(z))
		places := int16(opcode.operands[1].Value(z))
		var result int16
		if places >= 0 {
			result = num << uint16(places)
		} else {
			result = num >> uint16(-places)
		}
		z.writeVariable(z.readIncPC(frame), uint16(result), false)
	case 0x04: // set_font
		font := opcode.operands[0].Value(z)
		previous := uint16(z.screenModel.CurrentFont)
		switch Font(font) {
		case 0: // query current font without changing it
		case FontNormal, FontPicture, FontCharGraphs, FontFixedPitch:
			z.screenModel.CurrentFont = Font(font)
			z.outputChannel <- z.screenModel
		default:
			previous = 0 // 0 signals the requested font isn't available
		}
		z.writeVariable(z.readIncPC(frame), previous, false)
	case 0x09: // save_undo
		z.saveUndo()
		z.writeVariable(z.readIncPC(frame), 1, false)
	case 0x0a: // restore_undo
		response := z.restoreUndo()
		frame = z.callStack.peek()
		z.writeVariable(z.readIncPC(frame), response, false)
	case 0x0b: // print_unicode
		z.appendText(string(rune(opcode.operands[0].Value(z))))
	case 0x0c: // check_unicode
		chr := opcode.operands[0].Value(z)
		result := uint16(0)
		if chr != 0 {
			result = 0b11 // this core can both print and (trivially) accept any code point
		}
		z.writeVariable(z.readIncPC(frame), result, false)
	case 0x0d: // set_true_colour
		scale := func(v uint16) int { return int(v) * 255 / 31 }
		fgWord := opcode.operands[0].Value(z)
		bgWord := opcode.operands[1].Value(z)
		fg := Color{scale(fgWord & 0x1f), scale((fgWord >> 5) & 0x1f), scale((fgWord >> 10) & 0x1f)}
		bg := Color{scale(bgWord & 0x1f), scale((bgWord >> 5) & 0x1f), scale((bgWord >> 10) & 0x1f)}
		if z.screenModel.LowerWindowActive {
			z.screenModel.LowerWindowForeground, z.screenModel.LowerWindowBackground = fg, bg
		} else {
			z.screenModel.UpperWindowForeground, z.screenModel.UpperWindowBackground = fg, bg
		}
		z.outputChannel <- z.screenModel
	default:
		z.fail("unimplemented EXT opcode 0x%x at 0x%x", opcode.opcodeByte, z.currentInstructionPC)
	}
}

func (z *ZMachine) execVAR(opcode *Opcode, frame *CallStackFrame) {
	switch opcode.opcodeNumber {
	case 0: // call / call_vs
		z.call(opcode, function)
	case 1: // storew
		addr := opcode.operands[0].Value(z) + 2*opcode.operands[1].Value(z)
		z.mustWriteWord(uint32(addr), opcode.operands[2].Value(z))
	case 2: // storeb
		addr := opcode.operands[0].Value(z) + opcode.operands[1].Value(z)
		z.mustWriteByte(uint32(addr), uint8(opcode.operands[2].Value(z)))
	case 3: // put_prop
		obj := z.getObject(opcode.operands[0].Value(z))
		obj.SetProperty(uint8(opcode.operands[1].Value(z)), opcode.operands[2].Value(z), z.Core.Bytes(), z.Core.Version, z.Core.ObjectTableBase)
	case 4: // sread / aread
		z.read(opcode)
	case 5: // print_char
		chr := uint8(opcode.operands[0].Value(z))
		if chr != 0 {
			z.appendText(string(chr))
		}
	case 6: // print_num
		z.appendText(strconv.Itoa(int(int16(opcode.operands[0].Value(z)))))
	case 7: // random
		n := int16(opcode.operands[0].Value(z))
		result := uint16(0)
		switch {
		case n < 0:
			z.rng.Seed(int64(n))
		case n == 0:
			z.rng.Seed(time.Now().UnixNano())
		default:
			result = uint16(z.rng.Int31n(int32(n)))
		}
		z.writeVariable(z.readIncPC(frame), result, false)
	case 8: // push
		frame.push(opcode.operands[0].Value(z))
	case 9: // pull
		z.writeVariable(uint8(opcode.operands[0].Value(z)), frame.pop(z), true)
	case 10: // split_window
		if z.Core.Version < 3 {
			z.fail("split_window requires v3+ (pc=0x%x)", z.currentInstructionPC)
		}
		z.screenModel.UpperWindowHeight = int(opcode.operands[0].Value(z))
		z.outputChannel <- z.screenModel
	case 11: // set_window
		if z.Core.Version < 3 {
			z.fail("set_window requires v3+ (pc=0x%x)", z.currentInstructionPC)
		}
		z.screenModel.LowerWindowActive = opcode.operands[0].Value(z) == 0
		z.outputChannel <- z.screenModel
	case 12: // call_vs2
		z.call(opcode, function)
	case 13: // erase_window
		window := int16(opcode.operands[0].Value(z))
		if window == -1 {
			z.screenModel.LowerWindowActive = true
			z.screenModel.UpperWindowHeight = 0
			z.outputChannel <- z.screenModel
		}
		z.outputChannel <- EraseWindowRequest(window)
	case 14: // erase_line (v4+)
		z.outputChannel <- EraseLineRequest(true)
	case 15: // set_cursor
		line := opcode.operands[0].Value(z)
		col := opcode.operands[1].Value(z)
		if !z.screenModel.LowerWindowActive {
			z.screenModel.UpperWindowCursorX = int(col)
			z.screenModel.UpperWindowCursorY = int(line)
			z.outputChannel <- z.screenModel
		}
	case 16: // get_cursor
		addr := uint32(opcode.operands[0].Value(z))
		z.mustWriteWord(addr, uint16(z.screenModel.UpperWindowCursorY))
		z.mustWriteWord(addr+2, uint16(z.screenModel.UpperWindowCursorX))
	case 17: // set_text_style
		if z.Core.Version < 4 {
			z.fail("set_text_style requires v4+ (pc=0x%x)", z.currentInstructionPC)
		}
		mask := TextStyle(opcode.operands[0].Value(z))
		if z.screenModel.LowerWindowActive {
			z.screenModel.LowerWindowTextStyle = mask
		} else {
			z.screenModel.UpperWindowTextStyle = mask
		}
		z.outputChannel <- z.screenModel
	case 18: // buffer_mode
		// This core streams text directly; there is no internal line
		// buffer to flush, so the opcode is a deliberate no-op.
	case 19: // output_stream
		stream := int16(opcode.operands[0].Value(z))
		switch stream {
		case 1, -1:
			z.streams.Screen = stream > 0
		case 2, -2:
			z.streams.Transcript = stream > 0
		case 3:
			base := uint32(opcode.operands[1].Value(z))
			z.streams.Memory = true
			z.streams.MemoryStreamData = append(z.streams.MemoryStreamData, MemoryStreamData{baseAddress: base, ptr: base + 2})
		case -3:
			if z.streams.Memory {
				current := z.streams.MemoryStreamData[len(z.streams.MemoryStreamData)-1]
				z.mustWriteWord(current.baseAddress, uint16(current.ptr-current.baseAddress-2))
				z.streams.MemoryStreamData = z.streams.MemoryStreamData[:len(z.streams.MemoryStreamData)-1]
				if len(z.streams.MemoryStreamData) == 0 {
					z.streams.Memory = false
				}
			}
		case 4, -4:
			z.streams.CommandScript = stream > 0
		}
	case 20: // input_stream
		// Replaying a command script as keyboard input isn't supported by
		// this IO host; selecting stream 0 (keyboard) is always a no-op,
		// and there's no stream 1 source to switch to.
	case 21: // sound_effect
		soundNumber := opcode.operands[0].Value(z)
		effect := uint16(0)
		if len(opcode.operands) > 1 {
			effect = opcode.operands[1].Value(z)
		}
		routine := uint16(0)
		if len(opcode.operands) > 3 {
			routine = opcode.operands[3].Value(z)
		}
		z.outputChannel <- SoundEffectRequest{SoundNumber: soundNumber, Effect: effect, Routine: routine}
	case 22: // read_char
		z.outputChannel <- StateChangeRequest(WaitForCharacter)
		response := <-z.inputChannel
		key := response.TerminatingKey
		if key == 0 && len(response.Text) > 0 {
			key = response.Text[0]
		}
		z.writeVariable(z.readIncPC(frame), uint16(key), false)
	case 23: // scan_table
		test := opcode.operands[0].Value(z)
		tableAddress := opcode.operands[1].Value(z)
		length := opcode.operands[2].Value(z)
		form := uint16(0x82)
		if len(opcode.operands) == 4 {
			form = opcode.operands[3].Value(z)
		}
		result := ztable.ScanTable(z.Core, test, uint32(tableAddress), length, form)
		z.writeVariable(z.readIncPC(frame), uint16(result), false)
		z.handleBranch(frame, result != 0)
	case 24: // not (VAR form, v5+)
		z.writeVariable(z.readIncPC(frame), ^opcode.operands[0].Value(z), false)
	case 25: // call_vn
		z.call(opcode, procedure)
	case 26: // call_vn2
		z.call(opcode, procedure)
	case 27: // tokenise
		text := opcode.operands[0].Value(z)
		parseBuffer := opcode.operands[1].Value(z)
		dictionaryToUse := z.dictionary
		if len(opcode.operands) > 2 {
			dictionaryAddress := opcode.operands[2].Value(z)
			dictionaryToUse = dictionary.Parse(z.Core.Bytes(), uint32(dictionaryAddress), z.Core.Version, z.Alphabets, z.Core.AbbreviationsBase)
		}
		z.tokenise(uint32(text), uint32(parseBuffer), dictionaryToUse)
	case 28: // encode_text
		zsciiText := opcode.operands[0].Value(z)
		length := opcode.operands[1].Value(z)
		from := opcode.operands[2].Value(z)
		codedBuf := opcode.operands[3].Value(z)
		chars := make([]rune, length)
		for i := uint16(0); i < length; i++ {
			chars[i] = rune(z.mustByte(uint32(zsciiText) + uint32(from) + uint32(i)))
		}
		encoded := zstring.Encode(chars, z.Core.Version, z.Alphabets)
		for i, b := range encoded {
			z.mustWriteByte(uint32(codedBuf)+uint32(i), b)
		}
	case 29: // copy_table
		if err := ztable.CopyTable(z.Core, opcode.operands[0].Value(z), opcode.operands[1].Value(z), int16(opcode.operands[2].Value(z))); err != nil {
			z.raise(err)
		}
	case 30: // print_table
		addr := opcode.operands[0].Value(z)
		width := opcode.operands[1].Value(z)
		height := uint16(1)
		skip := uint16(0)
		if len(opcode.operands) > 2 {
			height = opcode.operands[2].Value(z)
			if len(opcode.operands) > 3 {
				skip = opcode.operands[3].Value(z)
			}
		}
		z.appendText(ztable.PrintTable(z.Core, uint32(addr), width, height, skip))
	case 31: // check_arg_count
		z.handleBranch(frame, opcode.operands[0].Value(z) <= uint16(frame.numValuesPassed))
	default:
		z.fail("unimplemented VAR opcode 0x%x at 0x%x", opcode.opcodeByte, z.currentInstructionPC)
	}
}
