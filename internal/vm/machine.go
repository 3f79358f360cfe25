// Package vm implements the Z-Machine executor: the call stack, the
// fetch/decode/dispatch loop, output stream routing, and the suspendable
// input state machine that lets a host drive the interpreter one line (or
// one keystroke) at a time instead of blocking inside it.
package vm

import (
	"fmt"
	"math/rand"

	"github.com/gozork/zvm/internal/dictionary"
	"github.com/gozork/zvm/internal/host"
	"github.com/gozork/zvm/internal/zcore"
	"github.com/gozork/zvm/internal/zobject"
	"github.com/gozork/zvm/internal/zstring"
)

// State is the executor's run state, the explicit state machine called for
// by this repo's design notes in place of blocking I/O or exceptions.
type State int

const (
	Running State = iota
	WaitingForLine
	WaitingForChar
	Halted
)

// RuntimeError is a fatal, non-recoverable condition the executor cannot
// continue past (§7): invalid addresses, divide-by-zero, or an invalid throw
// target. Unknown or unimplemented opcodes are not fatal: they are logged
// once as a warning and skipped.
type RuntimeError struct {
	Message string
	PC      uint32
}

func (e *RuntimeError) Error() string {
	return fmt.Sprintf("zmachine runtime error at 0x%04x: %s", e.PC, e.Message)
}

// Machine is one running Z-Machine: its memory, call stack, decoded output
// streams and the host collaborators it suspends to for screen/input/
// storage/logging.
type Machine struct {
	Mem        *zcore.Memory
	Alphabets  *zstring.Alphabets
	Unicode    *zstring.UnicodeTable
	Dict       *dictionary.Dictionary
	Screen     host.Screen
	Input      host.Input
	Storage    host.Storage
	Logger     host.Logger
	Caps       host.Capabilities

	Stack CallStack
	PC    uint32
	State State

	rng *rand.Rand

	undo         []host.Snapshot
	undoCapacity int

	streams       streamState
	currentWindow host.Window
	pending       *pendingInput

	loggedWarnings map[string]bool
}

// pendingInput captures what sread/read_char were waiting for, so Resume
// can finish the opcode once the host supplies a line or keystroke.
type pendingInput struct {
	char        bool
	textBuffer  uint32
	parseBuffer uint32
	maxLen      uint8
	resultVar   uint8

	// timeoutDeciseconds and timeoutRoutine are sread/read_char's optional
	// trailing operands (§4.9): a non-zero routine address the host invokes
	// via Timeout when the timer it is told about (timeoutDeciseconds)
	// fires.
	timeoutDeciseconds uint16
	timeoutRoutine     uint16
}

// streamState tracks which of the four output streams (1 screen, 2
// transcript, 3 memory, 4 command script) are active and, for stream 3,
// the stack of memory targets it is redirecting into.
type streamState struct {
	screen      bool
	transcript  bool
	commandLog  bool
	memoryStack []uint32
}

// Config bundles the options New needs beyond the raw story bytes.
type Config struct {
	StrictWrites bool
	UndoCapacity int
	Caps         host.Capabilities
	Seed         int64
}

// New loads storyBytes and returns a ready-to-run Machine. The caller is
// expected to wire Screen/Input/Storage/Logger before calling Run/Resume;
// a nil Logger is replaced with host.NopLogger.
func New(storyBytes []uint8, cfg Config, screen host.Screen, input host.Input, storage host.Storage, logger host.Logger) (*Machine, error) {
	mem, err := zcore.Load(storyBytes, zcore.Config{StrictWrites: cfg.StrictWrites})
	if err != nil {
		return nil, err
	}
	mem.Renegotiate(uint8(cfg.Caps.Rows), uint8(cfg.Caps.Cols))

	alphabets := zstring.LoadAlphabets(mem, mem.Version, uint32(mem.AlternativeCharSetBaseAddress))
	unicode := zstring.LoadUnicodeTable(mem, uint32(mem.UnicodeExtensionTableBaseAddress))
	dict := dictionary.Parse(mem, mem.Version, alphabets, uint32(mem.AbbreviationTableBase), uint32(mem.DictionaryBase))

	if logger == nil {
		logger = host.NopLogger{}
	}

	capacity := cfg.UndoCapacity
	if capacity <= 0 {
		capacity = 10
	}

	m := &Machine{
		Mem: mem, Alphabets: alphabets, Unicode: unicode, Dict: dict,
		Screen: screen, Input: input, Storage: storage, Logger: logger, Caps: cfg.Caps,
		rng: rand.New(rand.NewSource(cfg.Seed)),
		undoCapacity: capacity,
		streams:      streamState{screen: true},
		loggedWarnings: make(map[string]bool),
	}

	m.resetToEntry()
	return m, nil
}

// resetToEntry points PC at the story's first instruction and pushes the
// implicit outermost call frame, used both at load and by `restart`.
func (m *Machine) resetToEntry() {
	m.Stack = CallStack{}
	m.Stack.push(newFrame(0, nil, false, 0, 0))
	if m.Mem.Version == 6 {
		m.PC = m.Mem.PackedAddress(m.Mem.FirstInstruction, false)
	} else {
		m.PC = uint32(m.Mem.FirstInstruction)
	}
	m.State = Running
}

// showStatus renders the v1-3 status line: the current location's short
// name on the left, and either a score/moves or hours:minutes pair on the
// right depending on the story's StatusBarTimeBased flag.
func (m *Machine) showStatus() {
	locObj := m.readVariable(16)
	var place string
	if locObj != 0 {
		obj := zobject.Get(m.Mem, m.Mem.Version, uint32(m.Mem.ObjectTableBase), m.Alphabets, uint32(m.Mem.AbbreviationTableBase), locObj)
		place = obj.ShortName
	}
	a := int16(m.readVariable(17))
	b := int16(m.readVariable(18))
	var right string
	if m.Mem.StatusBarTimeBased {
		right = fmt.Sprintf("Time: %d:%02d", a, b)
	} else {
		right = fmt.Sprintf("Score: %d  Moves: %d", a, b)
	}
	m.Screen.SetStatusBar(place, right)
}

func (m *Machine) warnOnce(key, format string, args ...any) {
	if m.loggedWarnings[key] {
		return
	}
	m.loggedWarnings[key] = true
	m.Logger.Log(host.LevelWarn, format, args...)
}

// readVariable resolves variable number 0 (top of stack, popping it), 1-15
// (current frame's locals) or 16-255 (globals), per §4.5.
func (m *Machine) readVariable(varNum uint8) uint16 {
	if varNum == 0 {
		frame, _ := m.Stack.top()
		v, ok := frame.pop()
		if !ok {
			m.warnOnce("stack-underflow", "stack underflow reading variable 0")
		}
		return v
	}
	if varNum <= 15 {
		frame, _ := m.Stack.top()
		idx := int(varNum) - 1
		if idx >= len(frame.Locals) {
			return 0
		}
		return frame.Locals[idx]
	}
	addr := uint32(m.Mem.GlobalVariableBase) + uint32(varNum-16)*2
	return m.Mem.ReadWord(addr)
}

// writeVariable is readVariable's dual: pushes onto the stack for variable
// 0, writes a local for 1-15, or a global otherwise.
func (m *Machine) writeVariable(varNum uint8, value uint16) {
	if varNum == 0 {
		frame, _ := m.Stack.top()
		frame.push(value)
		return
	}
	if varNum <= 15 {
		frame, _ := m.Stack.top()
		idx := int(varNum) - 1
		if idx < len(frame.Locals) {
			frame.Locals[idx] = value
		}
		return
	}
	addr := uint32(m.Mem.GlobalVariableBase) + uint32(varNum-16)*2
	if err := m.Mem.WriteWord(addr, value); err != nil {
		m.warnOnce("global-write", "write to global variable failed: %v", err)
	}
}

// resolveOperand turns a decoded Operand into its runtime value.
func (m *Machine) resolveOperand(o Operand) uint16 {
	switch o.Type {
	case LargeConstant, SmallConstant:
		return o.Value
	case VariableOperand:
		return m.readVariable(uint8(o.Value))
	default:
		return 0
	}
}

// resolveVariableRef resolves an operand that itself denotes a variable
// number (the target of inc/dec/inc_chk/dec_chk/load/store/pull), per the
// Standard's special case: when that operand is itself variable-typed and
// names variable 0 (the stack), it is peeked rather than popped, since
// popping would consume the very value the opcode is about to act on by
// variable-number rather than by value.
func (m *Machine) resolveVariableRef(o Operand) uint8 {
	if o.Type == VariableOperand && o.Value == 0 {
		frame, _ := m.Stack.top()
		v, _ := frame.peek()
		return uint8(v)
	}
	return uint8(m.resolveOperand(o))
}

func (m *Machine) operandValues(ops []Operand) []uint16 {
	values := make([]uint16, len(ops))
	for i, o := range ops {
		values[i] = m.resolveOperand(o)
	}
	return values
}

// doBranch applies an instruction's branch outcome (condition) following
// the spec's rfalse(0)/rtrue(1) special offsets and the signed 14-bit
// offset otherwise.
func (m *Machine) doBranch(inst Instruction, condition bool) {
	if condition != inst.BranchOnTrue {
		return
	}
	switch inst.BranchOffset {
	case 0:
		m.doReturn(0)
	case 1:
		m.doReturn(1)
	default:
		m.PC = uint32(int64(m.PC) + int64(inst.BranchOffset) - 2)
	}
}

// call invokes a routine at packedAddr with the given arguments, pushing a
// new frame. address 0 is the Z-Machine's documented no-op call: it
// returns false immediately without pushing a frame, per §4.5. A packed
// address that fails §3.1's high-memory/alignment/header checks is a fatal
// invalid-address condition (§7), not a no-op.
func (m *Machine) call(packedAddr uint16, args []uint16, storesResult bool, resultVar uint8, returnPC uint32) *RuntimeError {
	if packedAddr == 0 {
		if storesResult {
			m.writeVariable(resultVar, 0)
		}
		return nil
	}

	addr, err := m.Mem.UnpackRoutine(packedAddr)
	if err != nil {
		m.State = Halted
		return &RuntimeError{Message: err.Error(), PC: m.PC}
	}
	numLocals := m.Mem.ReadByte(addr)
	addr++

	locals := make([]uint16, numLocals)
	if m.Mem.Version <= 4 {
		for i := uint8(0); i < numLocals; i++ {
			locals[i] = m.Mem.ReadWord(addr)
			addr += 2
		}
	}
	for i := range locals {
		if i < len(args) {
			locals[i] = args[i]
		}
	}

	frame := newFrame(returnPC, locals, storesResult, resultVar, uint8(len(args)))
	m.Stack.push(frame)
	m.PC = addr
	return nil
}

// doReturn pops the current frame, storing value in the caller's result
// variable if the call expected one, and resumes execution at the saved
// return address.
func (m *Machine) doReturn(value uint16) {
	frame, ok := m.Stack.pop()
	if !ok {
		m.State = Halted
		return
	}
	if m.Stack.depth() == 0 {
		m.State = Halted
		return
	}
	if frame.ResultSink != nil {
		*frame.ResultSink = value
	} else if frame.StoresResult {
		m.writeVariable(frame.ResultVar, value)
	}
	m.PC = frame.ReturnPC
}

// appendText routes decoded text through the active output streams,
// per §4.9: stream 3 (memory) suppresses 1, 2 and 4 while active, matching
// the Z-Machine Standard's note that only one stream receives text at a
// time whenever a memory redirection is in effect.
func (m *Machine) appendText(text string) {
	if len(m.streams.memoryStack) > 0 {
		target := m.streams.memoryStack[len(m.streams.memoryStack)-1]
		m.writeToMemoryStream(target, text)
		return
	}
	if m.streams.screen {
		m.Screen.Print(m.currentWindow, text)
	}
	if m.streams.transcript {
		// Transcript output has no dedicated host method in this contract;
		// it is modeled as a second Print to the lower window's logical
		// stream by convention, left to Screen implementations that care.
		m.Screen.Print(host.LowerWindow, text)
	}
}

func (m *Machine) writeToMemoryStream(target uint32, text string) {
	lengthAddr := target
	writeAddr := target + 2
	length := m.Mem.ReadWord(lengthAddr)
	for _, r := range text {
		if err := m.Mem.WriteByte(writeAddr+uint32(length), uint8(r)); err != nil {
			m.warnOnce("stream3-write", "stream 3 write failed: %v", err)
			return
		}
		length++
	}
	if err := m.Mem.WriteWord(lengthAddr, length); err != nil {
		m.warnOnce("stream3-length", "stream 3 length write failed: %v", err)
	}
}

// Resume delivers a line of input (WaitingForLine) or a single keystroke
// (WaitingForChar) back into the machine, completing the sread/read_char
// opcode that suspended it. It is the host's half of the suspend/resume
// contract in §4.9.
func (m *Machine) Resume(line string, char rune) {
	if m.pending == nil || m.State == Running || m.State == Halted {
		return
	}
	p := m.pending
	m.pending = nil
	m.State = Running

	if p.char {
		code, _ := m.Unicode.UnicodeToZscii(char)
		m.writeVariable(p.resultVar, uint16(code))
		return
	}

	m.completeSread(p, line)
}

// CancelInput is the host's `cancel_input` call (§5): while suspended, it
// resumes the machine as though the pending read produced nothing — a zero
// key code for read_char, an empty line for sread — without the host ever
// supplying real input.
func (m *Machine) CancelInput() {
	if m.pending == nil || m.State == Running || m.State == Halted {
		return
	}
	p := m.pending
	m.pending = nil
	m.State = Running

	if p.char {
		m.writeVariable(p.resultVar, 0)
		return
	}
	m.completeSread(p, "")
}

// Timeout is the host's notification that the deci-second timer it was
// told about (via the pending sread/read_char's timeout operands) has
// fired (§4.9, §5). It runs the timeout routine to completion on a child
// frame whose return value never touches any Z-Machine-visible variable,
// then cancels the pending input if the routine returned non-zero.
// Reports whether the input was cancelled.
func (m *Machine) Timeout() bool {
	if m.pending == nil || m.pending.timeoutRoutine == 0 {
		return false
	}

	// Step is a no-op unless the machine is Running, but a pending sread/
	// read_char leaves it WaitingForLine/WaitingForChar; Running has to be
	// restored for the timeout routine's own instructions to actually
	// execute, then the original suspended state restored afterward unless
	// the routine cancels the read outright.
	suspended := m.State
	m.State = Running

	var result uint16
	depthBefore := m.Stack.depth()
	if err := m.call(m.pending.timeoutRoutine, nil, false, 0, m.PC); err != nil {
		m.warnOnce("timeout-routine", "timeout routine call failed: %v", err)
		m.State = suspended
		return false
	}
	if top, ok := m.Stack.top(); ok {
		top.ResultSink = &result
	}
	for m.Stack.depth() > depthBefore {
		if err := m.Step(); err != nil {
			return false
		}
	}

	if result != 0 {
		m.CancelInput()
		return true
	}
	m.State = suspended
	return false
}

func (m *Machine) completeSread(p *pendingInput, line string) {
	if m.Mem.Version <= 4 {
		for i, r := range []byte(line) {
			if i >= int(p.maxLen) {
				break
			}
			m.Mem.WriteByte(p.textBuffer+1+uint32(i), r)
		}
		m.Mem.WriteByte(p.textBuffer+1+uint32(len(line)), 0)
	} else {
		m.Mem.WriteByte(p.textBuffer+1, uint8(len(line)))
		for i, r := range []byte(line) {
			m.Mem.WriteByte(p.textBuffer+2+uint32(i), r)
		}
	}

	if p.parseBuffer != 0 {
		m.tokenizeInto(line, p.parseBuffer, m.Dict, false)
	}
	if p.resultVar != 0 || m.Mem.Version >= 5 {
		// aread (v5+) stores a terminator code; 13 (newline) covers the
		// common case of input ended by Enter.
		m.writeVariable(p.resultVar, 13)
	}
}

// tokenizeInto runs the dictionary's tokenizer over line and writes the
// parse buffer in the version-specific wire format (§4.4). dict lets the
// tokenise opcode substitute a story-supplied alternate dictionary in
// place of the game's own; when preserveExisting is set, entries for
// unrecognised words (dict address 0) are left untouched instead of being
// zeroed, so repeated tokenise calls into the same buffer can accumulate.
func (m *Machine) tokenizeInto(line string, parseBuffer uint32, dict *dictionary.Dictionary, preserveExisting bool) {
	maxWords := m.Mem.ReadByte(parseBuffer)
	tokens := dict.Tokenize(line)
	if len(tokens) > int(maxWords) {
		tokens = tokens[:maxWords]
	}
	m.Mem.WriteByte(parseBuffer+1, uint8(len(tokens)))
	for i, tok := range tokens {
		entryAddr := parseBuffer + 2 + uint32(i)*4
		if preserveExisting && tok.Entry == 0 {
			continue
		}
		m.Mem.WriteWord(entryAddr, uint16(tok.Entry))
		m.Mem.WriteByte(entryAddr+2, uint8(tok.Length))
		m.Mem.WriteByte(entryAddr+3, uint8(tok.Start+1))
	}
}

// Step decodes and executes a single instruction, returning a non-nil
// *RuntimeError on a fatal condition. It is a no-op once the machine is
// suspended (WaitingForLine/WaitingForChar) or Halted; the host must call
// Resume or stop calling Step in those states.
func (m *Machine) Step() (stepErr *RuntimeError) {
	if m.State != Running {
		return nil
	}

	// An out-of-bounds memory access (a corrupt story, a bad packed
	// address that slipped past validation, a malformed property chain)
	// surfaces as a Go slice panic from deep inside Decode/execute. §7
	// treats invalid-address conditions as fatal-but-recoverable, not a
	// process crash, so Step converts any such panic into a RuntimeError
	// rather than letting it unwind into the host.
	defer func() {
		if r := recover(); r != nil {
			m.State = Halted
			stepErr = &RuntimeError{Message: fmt.Sprintf("invalid memory access: %v", r), PC: m.PC}
		}
	}()

	inst, err := Decode(m.Mem, m.PC, m.Mem.Version, m.Alphabets, uint32(m.Mem.AbbreviationTableBase))
	if err != nil {
		m.State = Halted
		return &RuntimeError{Message: err.Error(), PC: m.PC}
	}
	m.PC += inst.Length

	return m.execute(inst)
}

// Run steps the machine until it suspends for input, halts, or hits a
// runtime error.
func (m *Machine) Run() *RuntimeError {
	for m.State == Running {
		if err := m.Step(); err != nil {
			return err
		}
	}
	return nil
}
