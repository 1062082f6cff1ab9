package zmachine

// Save is sent by the SAVE opcode (both the legacy v1-4 branch form and
// the v5+ store form). Address/NumBytes are non-zero only for an
// auxiliary (partial-memory) save, which this core doesn't implement -
// a host only ever sees Address==0, NumBytes==0 requests.
type Save struct {
	Prompt   bool
	Filename string
	Address  uint32 // 0 means full save
	NumBytes uint32 // 0 means full save
}

type Restore struct {
	Prompt   bool
	Filename string
	Address  uint32 // 0 means full restore
	NumBytes uint32 // 0 means full restore
}

type SaveRestoreResponse interface {
	isSaveRestoreResponse()
}

type SaveResponse struct {
	Success bool
	Result  uint16 // 0 = failure, 1 = success
	Data    []byte // the Quetzal bytes the host wrote to disk
}

func (SaveResponse) isSaveRestoreResponse() {}

type RestoreResponse struct {
	Success bool
	Result  uint16 // 0 = failure, 2 = success
	Data    []byte // Quetzal bytes read back from disk
}

func (RestoreResponse) isSaveRestoreResponse() {}

// SaveState is an in-memory snapshot of everything save/restore and
// undo need to reconstruct execution: the writable memory region and
// the full call stack. It deliberately excludes static/high memory,
// which a story file never modifies.
type SaveState struct {
	staticMemoryBase uint16
	dynamicMemory    []uint8
	callStack        CallStack
}

// InMemorySaveStateCache backs SAVE_UNDO/RESTORE_UNDO: unlike a real
// save/restore round trip through the host and disk, undo never leaves
// the process, so it skips Quetzal encoding entirely and just keeps
// snapshots on a stack.
type InMemorySaveStateCache struct {
	saveStates []SaveState
}

func (z *ZMachine) captureState() SaveState {
	dynamicMemory := make([]uint8, z.Core.StaticMemoryBase)
	copy(dynamicMemory, z.Core.Dynamic())

	return SaveState{
		staticMemoryBase: z.Core.StaticMemoryBase,
		dynamicMemory:    dynamicMemory,
		callStack:        z.callStack.copy(),
	}
}

func (z *ZMachine) applyState(state SaveState) bool {
	if state.staticMemoryBase != z.Core.StaticMemoryBase {
		return false
	}

	if err := z.Core.RestoreDynamic(state.dynamicMemory); err != nil {
		return false
	}
	z.callStack = state.callStack.copy()
	return true
}

func (z *ZMachine) saveUndo() {
	z.UndoStates.saveStates = append(z.UndoStates.saveStates, z.captureState())
}

func (z *ZMachine) restoreUndo() uint16 {
	if len(z.UndoStates.saveStates) == 0 {
		return 0
	}

	state := z.UndoStates.saveStates[len(z.UndoStates.saveStates)-1]
	z.UndoStates.saveStates = z.UndoStates.saveStates[:len(z.UndoStates.saveStates)-1]

	if !z.applyState(state) {
		return 0
	}
	return 2
}

// readSaveFilename reads a length-prefixed ASCII string (not a
// Z-string), the format the v5+ SAVE/RESTORE table-of-bytes name
// argument uses.
func (z *ZMachine) readSaveFilename(address uint32) string {
	if address == 0 {
		return ""
	}

	length := z.mustByte(address)
	if length == 0 {
		return ""
	}

	bytes := make([]byte, length)
	for i := uint8(0); i < length; i++ {
		bytes[i] = z.mustByte(address + 1 + uint32(i))
	}
	return string(bytes)
}

// ExportSaveState serializes the current machine state to Quetzal
// (IFZS), the standard interchange format every other Z-machine
// interpreter reads and writes.
func (z *ZMachine) ExportSaveState() []byte {
	return z.encodeQuetzal()
}

// ImportSaveState restores from Quetzal bytes previously produced by
// ExportSaveState, as long as they match the currently loaded story by
// release/serial/checksum. Each Stks frame is read as this core writes
// it: its PC is that frame's own resume point, and the IFhd PC is not
// used.
func (z *ZMachine) ImportSaveState(data []byte) bool {
	state, ok := z.decodeQuetzal(data)
	if !ok {
		return false
	}
	return z.applyState(state)
}
