package vm

import "github.com/gozork/zvm/internal/host"

// Snapshot format ("GOZM"): magic(4) + staticMemoryBase(2) + pc(4) +
// dynamicMemory(staticMemoryBase bytes) + frameCount(2) + frames.
//
// Only the dynamic memory region is captured; static memory never changes
// during a session, so restoring it is redundant and would bloat every
// save file with the story's text and code.
const snapshotMagic = "GOZM"

// Snapshot captures everything needed to resume execution later: the
// dynamic memory region, the call stack and the program counter. It is
// used both for the named save/restore opcodes (via host.Storage) and for
// the in-memory save_undo/restore_undo ring.
func (m *Machine) Snapshot() host.Snapshot {
	staticBase := uint32(m.Mem.StaticMemoryBase)
	dynamic := make([]uint8, staticBase)
	copy(dynamic, m.Mem.ReadSlice(0, staticBase))

	frameData := serializeCallStack(m.Stack)

	data := make([]byte, 0, 4+2+4+len(dynamic)+2+len(frameData))
	data = append(data, snapshotMagic...)
	data = append(data, byte(staticBase>>8), byte(staticBase))
	data = append(data, byte(m.PC>>24), byte(m.PC>>16), byte(m.PC>>8), byte(m.PC))
	data = append(data, dynamic...)
	data = append(data, byte(len(m.Stack.frames)>>8), byte(len(m.Stack.frames)))
	data = append(data, frameData...)
	return host.Snapshot(data)
}

// Restore applies a previously captured Snapshot. It rejects snapshots
// taken against a different story (detected via a mismatched static
// memory base) rather than risk corrupting memory with an incompatible
// layout.
func (m *Machine) Restore(snap host.Snapshot) error {
	data := []byte(snap)
	if len(data) < len(snapshotMagic)+2+4+2 || string(data[:len(snapshotMagic)]) != snapshotMagic {
		return &RuntimeError{Message: "restore: not a recognised save file"}
	}
	offset := len(snapshotMagic)

	staticBase := uint32(data[offset])<<8 | uint32(data[offset+1])
	offset += 2
	if staticBase != uint32(m.Mem.StaticMemoryBase) {
		return &RuntimeError{Message: "restore: save file is for a different story"}
	}

	pc := uint32(data[offset])<<24 | uint32(data[offset+1])<<16 | uint32(data[offset+2])<<8 | uint32(data[offset+3])
	offset += 4

	if len(data) < offset+int(staticBase)+2 {
		return &RuntimeError{Message: "restore: truncated save file"}
	}
	copy(m.Mem.ReadSlice(0, staticBase), data[offset:offset+int(staticBase)])
	offset += int(staticBase)

	frameCount := int(data[offset])<<8 | int(data[offset+1])
	offset += 2

	frames, ok := deserializeCallStack(data[offset:], frameCount)
	if !ok {
		return &RuntimeError{Message: "restore: malformed call stack"}
	}

	m.Stack = CallStack{frames: frames}
	m.PC = pc
	m.State = Running
	m.Mem.Renegotiate(uint8(m.Caps.Rows), uint8(m.Caps.Cols))
	return nil
}

// pushUndo appends the current state to the undo ring, evicting the
// oldest entry once undoCapacity is exceeded.
func (m *Machine) pushUndo() {
	m.undo = append(m.undo, m.Snapshot())
	if len(m.undo) > m.undoCapacity {
		m.undo = m.undo[len(m.undo)-m.undoCapacity:]
	}
}

// popUndo restores the most recently pushed undo snapshot, reporting
// false (per restore_undo's "0" result) if the ring is empty or the
// snapshot cannot be applied.
func (m *Machine) popUndo() bool {
	n := len(m.undo)
	if n == 0 {
		return false
	}
	snap := m.undo[n-1]
	m.undo = m.undo[:n-1]
	return m.Restore(snap) == nil
}

// Frame format: returnPC(4) + storesResult(1) + resultVar(1) + numArgs(1) +
// localsCount(2) + locals + stackSize(2) + evalStack.
func serializeFrame(f *Frame) []byte {
	size := 4 + 1 + 1 + 1 + 2 + len(f.Locals)*2 + 2 + len(f.EvalStack)*2
	data := make([]byte, size)
	offset := 0

	data[offset] = byte(f.ReturnPC >> 24)
	data[offset+1] = byte(f.ReturnPC >> 16)
	data[offset+2] = byte(f.ReturnPC >> 8)
	data[offset+3] = byte(f.ReturnPC)
	offset += 4

	if f.StoresResult {
		data[offset] = 1
	}
	offset++

	data[offset] = f.ResultVar
	offset++

	data[offset] = f.NumArgs
	offset++

	data[offset] = byte(len(f.Locals) >> 8)
	data[offset+1] = byte(len(f.Locals))
	offset += 2
	for _, v := range f.Locals {
		data[offset] = byte(v >> 8)
		data[offset+1] = byte(v)
		offset += 2
	}

	data[offset] = byte(len(f.EvalStack) >> 8)
	data[offset+1] = byte(len(f.EvalStack))
	offset += 2
	for _, v := range f.EvalStack {
		data[offset] = byte(v >> 8)
		data[offset+1] = byte(v)
		offset += 2
	}

	return data
}

func deserializeFrame(data []byte) (*Frame, int, bool) {
	if len(data) < 9 {
		return nil, 0, false
	}
	offset := 0

	returnPC := uint32(data[0])<<24 | uint32(data[1])<<16 | uint32(data[2])<<8 | uint32(data[3])
	offset += 4

	storesResult := data[offset] != 0
	offset++

	resultVar := data[offset]
	offset++

	numArgs := data[offset]
	offset++

	localCount := int(data[offset])<<8 | int(data[offset+1])
	offset += 2
	if offset+localCount*2 > len(data) {
		return nil, 0, false
	}
	locals := make([]uint16, localCount)
	for i := range locals {
		locals[i] = uint16(data[offset])<<8 | uint16(data[offset+1])
		offset += 2
	}

	if offset+2 > len(data) {
		return nil, 0, false
	}
	stackSize := int(data[offset])<<8 | int(data[offset+1])
	offset += 2
	if offset+stackSize*2 > len(data) {
		return nil, 0, false
	}
	evalStack := make([]uint16, stackSize)
	for i := range evalStack {
		evalStack[i] = uint16(data[offset])<<8 | uint16(data[offset+1])
		offset += 2
	}

	return &Frame{
		ReturnPC: returnPC, Locals: locals, EvalStack: evalStack,
		StoresResult: storesResult, ResultVar: resultVar, NumArgs: numArgs,
	}, offset, true
}

func serializeCallStack(s CallStack) []byte {
	var out []byte
	for _, f := range s.frames {
		out = append(out, serializeFrame(f)...)
	}
	return out
}

func deserializeCallStack(data []byte, frameCount int) ([]*Frame, bool) {
	frames := make([]*Frame, 0, frameCount)
	offset := 0
	for i := 0; i < frameCount; i++ {
		f, n, ok := deserializeFrame(data[offset:])
		if !ok {
			return nil, false
		}
		frames = append(frames, f)
		offset += n
	}
	return frames, true
}
