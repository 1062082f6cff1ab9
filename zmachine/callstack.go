package zmachine

// RoutineType records how a called routine's result is handled: a normal
// call stores its return value (function), a "call_*n" variant discards
// it (procedure), and interrupt routines (the read-timeout callback) are
// invoked by the interpreter itself rather than by a CALL opcode.
type RoutineType int

const (
	function RoutineType = iota
	procedure
	interrupt
)

type CallStackFrame struct {
	pc              uint32
	routineStack    []uint16
	locals          []uint16
	routineType     RoutineType // v3+ only
	numValuesPassed int         // v5+ only, used by CHECK_ARG_COUNT
	framePointer    uint32      // not set by this core; catch/throw use the frame's index in CallStack
}

func (f *CallStackFrame) push(i uint16) {
	f.routineStack = append(f.routineStack, i)
}

// pop discards the top of this frame's evaluation stack. Popping an
// empty stack is a story-file bug rather than an interpreter bug - it's
// reported once as a warning and treated as though a zero were there,
// so that story files which rely on this (several widely played ones
// do, in early interrupt/redraw paths) keep running.
func (f *CallStackFrame) pop(z *ZMachine) uint16 {
	if len(f.routineStack) == 0 {
		z.warnOnce("stack_underflow_pop", "attempt to pop from empty routine stack (PC = %x)", z.currentInstructionPC)
		return 0
	}
	i := f.routineStack[len(f.routineStack)-1]
	f.routineStack = f.routineStack[:len(f.routineStack)-1]
	return i
}

func (f *CallStackFrame) peek(z *ZMachine) uint16 {
	if len(f.routineStack) == 0 {
		z.warnOnce("stack_underflow_peek", "attempt to peek from empty routine stack (PC = %x)", z.currentInstructionPC)
		return 0
	}
	return f.routineStack[len(f.routineStack)-1]
}

// CallStack is the stack of routine activations, main routine at index
// 0 through to the currently executing routine at the end.
type CallStack struct {
	frames []CallStackFrame
}

func (s *CallStack) push(frame CallStackFrame) {
	s.frames = append(s.frames, frame)
}

// pop discards and returns the top frame. ok is false only when the
// stack is already empty; retValue turns that into a Fault, and detects
// a return from the main routine separately, once the pop leaves no
// caller frame.
func (s *CallStack) pop() (CallStackFrame, bool) {
	if len(s.frames) == 0 {
		return CallStackFrame{}, false
	}
	stackSize := len(s.frames)
	frame := s.frames[stackSize-1]
	s.frames = s.frames[:stackSize-1]

	return frame, true
}

// peek returns the currently executing frame, or nil if the stack has
// been fully unwound - which should never happen in normal execution,
// since the main routine's frame is never popped while running.
func (s *CallStack) peek() *CallStackFrame {
	if len(s.frames) == 0 {
		return nil
	}
	return &s.frames[len(s.frames)-1]
}

// copy deep-copies the call stack, used for undo/save snapshots.
func (s *CallStack) copy() CallStack {
	callStack := CallStack{
		frames: make([]CallStackFrame, len(s.frames)),
	}

	for fx, frame := range s.frames {
		copiedFrame := CallStackFrame{
			pc:              frame.pc,
			routineType:     frame.routineType,
			numValuesPassed: frame.numValuesPassed,
			framePointer:    frame.framePointer,
			routineStack:    make([]uint16, len(frame.routineStack)),
			locals:          make([]uint16, len(frame.locals)),
		}

		copy(copiedFrame.routineStack, frame.routineStack)
		copy(copiedFrame.locals, frame.locals)

		callStack.frames[fx] = copiedFrame
	}

	return callStack
}
