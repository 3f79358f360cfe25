package vm

import (
	"math/rand"
	"time"

	"github.com/gozork/zvm/internal/dictionary"
	"github.com/gozork/zvm/internal/host"
	"github.com/gozork/zvm/internal/zobject"
	"github.com/gozork/zvm/internal/zstring"
	"github.com/gozork/zvm/internal/ztable"
)

func signed(v uint16) int16  { return int16(v) }
func unsigned(v int16) uint16 { return uint16(v) }

// execute dispatches a decoded instruction by operand count and opcode
// number, the table-driven structure the Z-Machine Standard itself uses to
// describe opcodes (0OP/1OP/2OP/VAR/EXT namespaces, each independently
// numbered).
func (m *Machine) execute(inst Instruction) *RuntimeError {
	ops := m.operandValues(inst.Operands)
	version := m.Mem.Version
	objBase := uint32(m.Mem.ObjectTableBase)

	switch inst.Count {
	case OP0:
		return m.exec0OP(inst, version)
	case OP1:
		return m.exec1OP(inst, ops, objBase)
	case OP2:
		return m.exec2OP(inst, ops, objBase)
	case VAR:
		return m.execVAR(inst, ops, objBase)
	case EXT:
		return m.execEXT(inst, ops)
	}
	return m.fatal(inst, "unknown operand count category")
}

func (m *Machine) fatal(inst Instruction, msg string) *RuntimeError {
	m.State = Halted
	return &RuntimeError{Message: msg, PC: m.PC}
}

func (m *Machine) exec0OP(inst Instruction, version uint8) *RuntimeError {
	switch inst.Opcode {
	case 0x00: // rtrue
		m.doReturn(1)
	case 0x01: // rfalse
		m.doReturn(0)
	case 0x02: // print
		m.appendText(inst.Text)
	case 0x03: // print_ret
		m.appendText(inst.Text)
		m.appendText("\n")
		m.doReturn(1)
	case 0x04: // nop
	case 0x05: // save
		snap := m.Snapshot()
		ok := m.Storage != nil && m.Storage.Save("save", snap) == nil
		if version <= 3 {
			m.doBranch(inst, ok)
		} else if inst.Stores {
			v := uint16(0)
			if ok {
				v = 1
			}
			m.writeVariable(inst.StoreVar, v)
		}
	case 0x06: // restore
		ok := false
		if m.Storage != nil {
			if snap, err := m.Storage.Restore("save"); err == nil {
				ok = m.Restore(snap) == nil
			}
		}
		if version <= 3 {
			m.doBranch(inst, ok)
		} else if inst.Stores {
			v := uint16(0)
			if ok {
				v = 2
			}
			m.writeVariable(inst.StoreVar, v)
		}
	case 0x07: // restart
		m.resetToEntry()
		m.Mem.Renegotiate(uint8(m.Caps.Rows), uint8(m.Caps.Cols))
	case 0x08: // ret_popped
		frame, _ := m.Stack.top()
		v, _ := frame.pop()
		m.doReturn(v)
	case 0x09: // pop (v1-4) / catch (v5+)
		if version >= 5 && inst.Stores {
			m.writeVariable(inst.StoreVar, uint16(m.Stack.depth()))
		} else {
			frame, _ := m.Stack.top()
			frame.pop()
		}
	case 0x0a: // quit
		m.State = Halted
	case 0x0b: // new_line
		m.appendText("\n")
	case 0x0c: // show_status
		m.showStatus()
	case 0x0d: // verify
		m.doBranch(inst, m.Mem.Checksum() == m.Mem.FileChecksum)
	case 0x0f: // piracy
		m.doBranch(inst, true)
	default:
		m.warnOnce("unknown-0op", "unimplemented 0OP opcode %d", inst.Opcode)
	}
	return nil
}

func (m *Machine) exec1OP(inst Instruction, ops []uint16, objBase uint32) *RuntimeError {
	a := ops[0]
	version := m.Mem.Version

	switch inst.Opcode {
	case 0x00: // jz
		m.doBranch(inst, a == 0)
	case 0x01: // get_sibling
		obj := zobject.Get(m.Mem, version, objBase, m.Alphabets, uint32(m.Mem.AbbreviationTableBase), a)
		m.writeVariable(inst.StoreVar, obj.Sibling)
		m.doBranch(inst, obj.Sibling != 0)
	case 0x02: // get_child
		obj := zobject.Get(m.Mem, version, objBase, m.Alphabets, uint32(m.Mem.AbbreviationTableBase), a)
		m.writeVariable(inst.StoreVar, obj.Child)
		m.doBranch(inst, obj.Child != 0)
	case 0x03: // get_parent
		obj := zobject.Get(m.Mem, version, objBase, m.Alphabets, uint32(m.Mem.AbbreviationTableBase), a)
		m.writeVariable(inst.StoreVar, obj.Parent)
	case 0x04: // get_prop_len
		m.writeVariable(inst.StoreVar, uint16(zobject.GetPropertyLength(m.Mem, version, uint32(a))))
	case 0x05: // inc
		varNum := m.resolveVariableRef(inst.Operands[0])
		v := m.readVariable(varNum)
		m.writeVariable(varNum, unsigned(signed(v)+1))
	case 0x06: // dec
		varNum := m.resolveVariableRef(inst.Operands[0])
		v := m.readVariable(varNum)
		m.writeVariable(varNum, unsigned(signed(v)-1))
	case 0x07: // print_addr
		text, _ := decodeAt(m, uint32(a))
		m.appendText(text)
	case 0x08: // call_1s
		if err := m.call(a, nil, inst.Stores, inst.StoreVar, m.PC); err != nil {
			return err
		}
	case 0x09: // remove_obj
		if a != 0 {
			zobject.Unlink(m.Mem, version, objBase, a)
		}
	case 0x0a: // print_obj
		if a != 0 {
			obj := zobject.Get(m.Mem, version, objBase, m.Alphabets, uint32(m.Mem.AbbreviationTableBase), a)
			m.appendText(obj.ShortName)
		}
	case 0x0b: // ret
		m.doReturn(a)
	case 0x0c: // jump
		m.PC = uint32(int64(m.PC) + int64(signed(a)) - 2)
	case 0x0d: // print_paddr
		straddr, serr := m.Mem.UnpackString(a)
		if serr != nil {
			return m.fatal(inst, serr.Error())
		}
		text, _ := decodeAt(m, straddr)
		m.appendText(text)
	case 0x0e: // load
		m.writeVariable(inst.StoreVar, m.readVariable(m.resolveVariableRef(inst.Operands[0])))
	case 0x0f: // not (v1-4) / call_1n (v5+)
		if version >= 5 {
			if err := m.call(a, nil, false, 0, m.PC); err != nil {
				return err
			}
		} else {
			m.writeVariable(inst.StoreVar, ^a)
		}
	default:
		m.warnOnce("unknown-1op", "unimplemented 1OP opcode %d", inst.Opcode)
	}
	return nil
}

func decodeAt(m *Machine, addr uint32) (string, uint32) {
	return zstring.Decode(m.Mem, addr, m.Mem.Version, m.Alphabets, uint32(m.Mem.AbbreviationTableBase))
}

func (m *Machine) exec2OP(inst Instruction, ops []uint16, objBase uint32) *RuntimeError {
	a := ops[0]
	var b uint16
	if len(ops) > 1 {
		b = ops[1]
	}
	version := m.Mem.Version

	switch inst.Opcode {
	case 0x01: // je: a equals any of the remaining operands
		eq := false
		for _, v := range ops[1:] {
			if v == a {
				eq = true
				break
			}
		}
		m.doBranch(inst, eq)
	case 0x02: // jl
		m.doBranch(inst, signed(a) < signed(b))
	case 0x03: // jg
		m.doBranch(inst, signed(a) > signed(b))
	case 0x04: // dec_chk
		varNum := m.resolveVariableRef(inst.Operands[0])
		v := unsigned(signed(m.readVariable(varNum)) - 1)
		m.writeVariable(varNum, v)
		m.doBranch(inst, signed(v) < signed(b))
	case 0x05: // inc_chk
		varNum := m.resolveVariableRef(inst.Operands[0])
		v := unsigned(signed(m.readVariable(varNum)) + 1)
		m.writeVariable(varNum, v)
		m.doBranch(inst, signed(v) > signed(b))
	case 0x06: // jin
		obj := zobject.Get(m.Mem, version, objBase, m.Alphabets, 0, a)
		m.doBranch(inst, obj.Parent == b)
	case 0x07: // test
		m.doBranch(inst, a&b == b)
	case 0x08: // or
		m.writeVariable(inst.StoreVar, a|b)
	case 0x09: // and
		m.writeVariable(inst.StoreVar, a&b)
	case 0x0a: // test_attr
		m.doBranch(inst, zobject.TestAttribute(m.Mem, version, objBase, a, uint8(b)))
	case 0x0b: // set_attr
		if err := zobject.SetAttribute(m.Mem, version, objBase, a, uint8(b)); err != nil {
			return m.fatal(inst, err.Error())
		}
	case 0x0c: // clear_attr
		if err := zobject.ClearAttribute(m.Mem, version, objBase, a, uint8(b)); err != nil {
			return m.fatal(inst, err.Error())
		}
	case 0x0d: // store
		m.writeVariable(m.resolveVariableRef(inst.Operands[0]), b)
	case 0x0e: // insert_obj
		zobject.Insert(m.Mem, version, objBase, a, b)
	case 0x0f: // loadw
		m.writeVariable(inst.StoreVar, m.Mem.ReadWord((uint32(a)+uint32(b)*2)&0xffff))
	case 0x10: // loadb
		m.writeVariable(inst.StoreVar, uint16(m.Mem.ReadByte((uint32(a)+uint32(b))&0xffff)))
	case 0x11: // get_prop
		obj := zobject.Get(m.Mem, version, objBase, m.Alphabets, 0, a)
		data := zobject.GetProperty(m.Mem, version, obj.PropsAddr, uint8(b))
		if data == nil {
			m.writeVariable(inst.StoreVar, zobject.DefaultProperty(m.Mem, version, objBase, uint8(b)))
		} else if len(data) == 1 {
			m.writeVariable(inst.StoreVar, uint16(data[0]))
		} else {
			m.writeVariable(inst.StoreVar, uint16(data[0])<<8|uint16(data[1]))
		}
	case 0x12: // get_prop_addr
		obj := zobject.Get(m.Mem, version, objBase, m.Alphabets, 0, a)
		m.writeVariable(inst.StoreVar, uint16(zobject.GetPropertyAddr(m.Mem, version, obj.PropsAddr, uint8(b))))
	case 0x13: // get_next_prop
		obj := zobject.Get(m.Mem, version, objBase, m.Alphabets, 0, a)
		m.writeVariable(inst.StoreVar, uint16(zobject.GetNextProperty(m.Mem, version, obj.PropsAddr, uint8(b))))
	case 0x14: // add
		m.writeVariable(inst.StoreVar, unsigned(signed(a)+signed(b)))
	case 0x15: // sub
		m.writeVariable(inst.StoreVar, unsigned(signed(a)-signed(b)))
	case 0x16: // mul
		m.writeVariable(inst.StoreVar, unsigned(signed(a)*signed(b)))
	case 0x17: // div
		if b == 0 {
			return m.fatal(inst, "division by zero")
		}
		m.writeVariable(inst.StoreVar, unsigned(signed(a)/signed(b)))
	case 0x18: // mod
		if b == 0 {
			return m.fatal(inst, "division by zero")
		}
		m.writeVariable(inst.StoreVar, unsigned(signed(a)%signed(b)))
	case 0x19: // call_2s
		if err := m.call(a, []uint16{b}, inst.Stores, inst.StoreVar, m.PC); err != nil {
			return err
		}
	case 0x1a: // call_2n
		if err := m.call(a, []uint16{b}, false, 0, m.PC); err != nil {
			return err
		}
	case 0x1b: // set_colour
		m.Screen.SetColor(host.LowerWindow, namedColor(a), namedColor(b))
	case 0x1c: // throw
		if !m.Stack.truncateTo(int(b)) {
			return m.fatal(inst, "throw: invalid stack frame reference")
		}
		m.doReturn(a)
	default:
		m.warnOnce("unknown-2op", "unimplemented 2OP opcode %d", inst.Opcode)
	}
	return nil
}

func namedColor(code uint16) host.Color {
	switch code {
	case 2:
		return host.Color{R: 0, G: 0, B: 0}
	case 3:
		return host.Color{R: 255, G: 0, B: 0}
	case 4:
		return host.Color{R: 0, G: 255, B: 0}
	case 5:
		return host.Color{R: 255, G: 255, B: 0}
	case 6:
		return host.Color{R: 0, G: 0, B: 255}
	case 7:
		return host.Color{R: 255, G: 0, B: 255}
	case 8:
		return host.Color{R: 0, G: 255, B: 255}
	case 9:
		return host.Color{R: 255, G: 255, B: 255}
	case 10:
		return host.Color{R: 192, G: 192, B: 192}
	case 11:
		return host.Color{R: 128, G: 128, B: 128}
	case 12:
		return host.Color{R: 64, G: 64, B: 64}
	default:
		return host.Color{}
	}
}

func (m *Machine) execVAR(inst Instruction, ops []uint16, objBase uint32) *RuntimeError {
	switch inst.Opcode {
	case 0x00: // call/call_vs
		if len(ops) == 0 {
			return m.fatal(inst, "call with no routine operand")
		}
		if err := m.call(ops[0], ops[1:], inst.Stores, inst.StoreVar, m.PC); err != nil {
			return err
		}
	case 0x01: // storew
		if err := m.Mem.WriteWord((uint32(ops[0])+uint32(ops[1])*2)&0xffff, ops[2]); err != nil {
			return m.fatal(inst, err.Error())
		}
	case 0x02: // storeb
		if err := m.Mem.WriteByte((uint32(ops[0])+uint32(ops[1]))&0xffff, uint8(ops[2])); err != nil {
			return m.fatal(inst, err.Error())
		}
	case 0x03: // put_prop
		obj := zobject.Get(m.Mem, m.Mem.Version, objBase, m.Alphabets, 0, ops[0])
		if err := zobject.SetProperty(m.Mem, m.Mem.Version, obj.PropsAddr, uint8(ops[1]), ops[2]); err != nil {
			return m.fatal(inst, err.Error())
		}
	case 0x04: // sread/aread
		m.beginSread(inst, ops)
	case 0x05: // print_char
		m.appendText(string(m.Unicode.ZsciiToUnicode(uint8(ops[0]))))
	case 0x06: // print_num
		m.appendText(intToString(signed(ops[0])))
	case 0x07: // random
		m.writeVariable(inst.StoreVar, m.random(signed(ops[0])))
	case 0x08: // push
		frame, _ := m.Stack.top()
		frame.push(ops[0])
	case 0x09: // pull
		frame, _ := m.Stack.top()
		v, _ := frame.pop()
		if len(inst.Operands) > 0 {
			m.writeVariable(m.resolveVariableRef(inst.Operands[0]), v)
		}
	case 0x0a: // split_window
		m.Screen.SplitWindow(int(ops[0]))
	case 0x0b: // set_window
		w := host.LowerWindow
		if ops[0] == 1 {
			w = host.UpperWindow
		}
		m.currentWindow = w
		m.Screen.SetWindow(w)
	case 0x0c: // call_vs2
		if err := m.call(ops[0], ops[1:], inst.Stores, inst.StoreVar, m.PC); err != nil {
			return err
		}
	case 0x0d: // erase_window
		m.Screen.EraseWindow(host.Window(signed(ops[0])))
	case 0x0e: // erase_line
		m.Screen.EraseLine(host.LowerWindow)
	case 0x0f: // set_cursor
		row, col := signed(ops[0]), uint16(0)
		if len(ops) > 1 {
			col = ops[1]
		}
		if m.Mem.Version != 6 && row < 0 {
			m.warnOnce("set-cursor-v6", "set_cursor(-1/-2) used outside version 6; ignoring")
			return nil
		}
		m.Screen.SetCursor(host.UpperWindow, int(row), int(col))
	case 0x10: // get_cursor
		// Not tracked by the host contract's minimal Screen interface;
		// report the origin rather than fail the opcode outright.
		m.Mem.WriteWord(uint32(ops[0]), 1)
		m.Mem.WriteWord(uint32(ops[0])+2, 1)
	case 0x11: // set_text_style
		m.Screen.SetTextStyle(host.LowerWindow, host.TextStyle(ops[0]))
	case 0x12: // buffer_mode
	case 0x13: // output_stream
		m.setOutputStream(signed(ops[0]), ops)
	case 0x14: // input_stream
	case 0x15: // sound_effect
	case 0x16: // read_char
		m.beginReadChar(inst, ops)
	case 0x17: // scan_table
		form := uint8(0x82)
		if len(ops) > 3 {
			form = uint8(ops[3])
		}
		addr := ztable.ScanTable(m.Mem, ops[0], uint32(ops[1]), ops[2], form)
		m.writeVariable(inst.StoreVar, uint16(addr))
		m.doBranch(inst, addr != 0)
	case 0x18: // not (v5+)
		m.writeVariable(inst.StoreVar, ^ops[0])
	case 0x19: // call_vn
		if err := m.call(ops[0], ops[1:], false, 0, m.PC); err != nil {
			return err
		}
	case 0x1a: // call_vn2
		if err := m.call(ops[0], ops[1:], false, 0, m.PC); err != nil {
			return err
		}
	case 0x1b: // tokenise
		text, _ := decodeBuffer(m, uint32(ops[0]))
		dict := m.Dict
		if len(ops) > 2 && ops[2] != 0 {
			dict = dictionary.Parse(m.Mem, m.Mem.Version, m.Alphabets, uint32(m.Mem.AbbreviationTableBase), uint32(ops[2]))
		}
		preserveExisting := len(ops) > 3 && ops[3] != 0
		m.tokenizeInto(text, uint32(ops[1]), dict, preserveExisting)
	case 0x1c: // encode_text
		from := uint16(0)
		if len(ops) > 2 {
			from = ops[2]
		}
		length := ops[1]
		var zscii []byte
		for i := uint16(0); i < length; i++ {
			zscii = append(zscii, m.Mem.ReadByte(uint32(ops[0])+uint32(from)+uint32(i)))
		}
		encoded := zstring.Encode(string(zscii), m.Mem.Version, m.Alphabets)
		for i, b := range encoded {
			m.Mem.WriteByte(uint32(ops[3])+uint32(i), b)
		}
	case 0x1d: // copy_table
		size := int32(signed(ops[2]))
		ztable.CopyTable(m.Mem, uint32(ops[0]), uint32(ops[1]), size)
	case 0x1e: // print_table
		width := ops[1]
		height := uint16(1)
		skip := uint16(0)
		if len(ops) > 2 {
			height = ops[2]
		}
		if len(ops) > 3 {
			skip = ops[3]
		}
		m.appendText(ztable.PrintTable(m.Mem, uint32(ops[0]), width, height, skip))
	case 0x1f: // check_arg_count
		frame, _ := m.Stack.top()
		m.doBranch(inst, uint16(frame.NumArgs) >= ops[0])
	default:
		m.warnOnce("unknown-var", "unimplemented VAR opcode %d", inst.Opcode)
	}
	return nil
}

func (m *Machine) execEXT(inst Instruction, ops []uint16) *RuntimeError {
	switch inst.Opcode {
	case 0x00: // save
		if len(ops) >= 3 {
			// V5's 3-operand auxiliary form: save `ops[1]` bytes starting at
			// `ops[0]` to a named side file, instead of a full-state snapshot.
			m.writeVariable(inst.StoreVar, m.partialSave(ops[0], ops[1], ops[2]))
			return nil
		}
		snap := m.Snapshot()
		ok := m.Storage != nil && m.Storage.Save("save", snap) == nil
		v := uint16(0)
		if ok {
			v = 1
		}
		m.writeVariable(inst.StoreVar, v)
	case 0x01: // restore
		if len(ops) >= 3 {
			m.writeVariable(inst.StoreVar, m.partialRestore(ops[0], ops[1], ops[2]))
			return nil
		}
		v := uint16(0)
		if m.Storage != nil {
			if snap, err := m.Storage.Restore("save"); err == nil && m.Restore(snap) == nil {
				v = 2
			}
		}
		m.writeVariable(inst.StoreVar, v)
	case 0x02: // log_shift
		amount := signed(ops[1])
		if amount >= 0 {
			m.writeVariable(inst.StoreVar, ops[0]<<uint(amount))
		} else {
			m.writeVariable(inst.StoreVar, ops[0]>>uint(-amount))
		}
	case 0x03: // art_shift
		amount := signed(ops[1])
		if amount >= 0 {
			m.writeVariable(inst.StoreVar, unsigned(signed(ops[0])<<uint(amount)))
		} else {
			m.writeVariable(inst.StoreVar, unsigned(signed(ops[0])>>uint(-amount)))
		}
	case 0x09: // save_undo
		m.pushUndo()
		m.writeVariable(inst.StoreVar, 1)
	case 0x0a: // restore_undo
		v := uint16(0)
		if m.popUndo() {
			v = 2
		}
		m.writeVariable(inst.StoreVar, v)
	case 0x04: // set_font: only font 1 (normal) is supported
		prev := uint16(0)
		if ops[0] == 1 {
			prev = 1
		}
		m.writeVariable(inst.StoreVar, prev)
	case 0x0b: // print_unicode
		m.appendText(string(rune(ops[0])))
	case 0x0c: // check_unicode
		_, ok := m.Unicode.UnicodeToZscii(rune(ops[0]))
		v := uint16(0)
		if ok {
			v = 3
		}
		m.writeVariable(inst.StoreVar, v)
	default:
		m.warnOnce("unknown-ext", "unimplemented EXT opcode %d", inst.Opcode)
	}
	return nil
}

// readAsciiString reads a length-prefixed ASCII string: one length byte
// followed by that many bytes, the format the aux save/restore name operand
// uses.
func (m *Machine) readAsciiString(addr uint32) string {
	length := m.Mem.ReadByte(addr)
	b := make([]byte, length)
	for i := uint32(0); i < uint32(length); i++ {
		b[i] = m.Mem.ReadByte(addr + 1 + i)
	}
	return string(b)
}

// partialSave implements save's V5 3-operand auxiliary form (§4.10): save
// `length` bytes starting at `tableAddr` to a side file named by the
// ASCII string at `nameAddr`, independent of the full save/restore ring.
// Returns 1 on success, 0 on failure, per the opcode's documented result.
func (m *Machine) partialSave(tableAddr, length, nameAddr uint16) uint16 {
	if m.Storage == nil {
		return 0
	}
	name := m.readAsciiString(uint32(nameAddr))
	data := m.Mem.ReadSlice(uint32(tableAddr), uint32(tableAddr)+uint32(length))
	buf := make([]byte, len(data))
	copy(buf, data)
	if err := m.Storage.Save("aux-"+name, host.Snapshot(buf)); err != nil {
		return 0
	}
	return 1
}

// partialRestore is partialSave's dual: restore's V5 3-operand auxiliary
// form. Returns the number of bytes actually restored (0 on failure),
// never more than `length` or the file's own size.
func (m *Machine) partialRestore(tableAddr, length, nameAddr uint16) uint16 {
	if m.Storage == nil {
		return 0
	}
	name := m.readAsciiString(uint32(nameAddr))
	snap, err := m.Storage.Restore("aux-" + name)
	if err != nil {
		return 0
	}
	n := int(length)
	if n > len(snap) {
		n = len(snap)
	}
	for i := 0; i < n; i++ {
		if werr := m.Mem.WriteByte(uint32(tableAddr)+uint32(i), snap[i]); werr != nil {
			return 0
		}
	}
	return uint16(n)
}

func (m *Machine) setOutputStream(stream int16, ops []uint16) {
	switch stream {
	case 1:
		m.streams.screen = true
	case -1:
		m.streams.screen = false
	case 2:
		m.streams.transcript = true
	case -2:
		m.streams.transcript = false
	case 3:
		if len(ops) > 1 {
			m.streams.memoryStack = append(m.streams.memoryStack, uint32(ops[1]))
			m.Mem.WriteWord(uint32(ops[1]), 0)
		}
	case -3:
		if len(m.streams.memoryStack) > 0 {
			m.streams.memoryStack = m.streams.memoryStack[:len(m.streams.memoryStack)-1]
		}
	case 4:
		m.streams.commandLog = true
	case -4:
		m.streams.commandLog = false
	}
}

func (m *Machine) random(n int16) uint16 {
	switch {
	case n > 0:
		return unsigned(int16(m.rng.Intn(int(n)) + 1))
	case n == 0:
		return unsigned(int16(m.rng.Intn(1 << 15)))
	default:
		m.rng = rand.New(rand.NewSource(int64(n)))
		return 0
	}
}

func (m *Machine) beginSread(inst Instruction, ops []uint16) {
	m.pending = &pendingInput{
		char: false, textBuffer: uint32(ops[0]), maxLen: m.Mem.ReadByte(uint32(ops[0])),
		resultVar: inst.StoreVar,
	}
	if len(ops) > 1 {
		m.pending.parseBuffer = uint32(ops[1])
	}
	req := host.InputRequest{Line: true}
	if len(ops) > 3 {
		m.pending.timeoutDeciseconds = ops[2]
		m.pending.timeoutRoutine = ops[3]
		req.Timeout = time.Duration(ops[2]) * 100 * time.Millisecond
	}
	if m.Mem.Version >= 5 {
		if preloadLen := m.Mem.ReadByte(m.pending.textBuffer + 1); preloadLen > 0 {
			req.Preloaded = string(m.Mem.ReadSlice(m.pending.textBuffer+2, m.pending.textBuffer+2+uint32(preloadLen)))
		}
	}
	m.State = WaitingForLine
	if m.Input != nil {
		m.Input.RequestLine(req)
	}
}

func (m *Machine) beginReadChar(inst Instruction, ops []uint16) {
	m.pending = &pendingInput{char: true, resultVar: inst.StoreVar}
	req := host.InputRequest{Line: false}
	if len(ops) > 2 {
		m.pending.timeoutDeciseconds = ops[1]
		m.pending.timeoutRoutine = ops[2]
		req.Timeout = time.Duration(ops[1]) * 100 * time.Millisecond
	}
	m.State = WaitingForChar
	if m.Input != nil {
		m.Input.RequestChar(req)
	}
}

func decodeBuffer(m *Machine, bufferAddr uint32) (string, uint32) {
	if m.Mem.Version <= 4 {
		var b []byte
		for i := uint32(0); ; i++ {
			c := m.Mem.ReadByte(bufferAddr + 1 + i)
			if c == 0 {
				break
			}
			b = append(b, c)
		}
		return string(b), bufferAddr
	}
	length := m.Mem.ReadByte(bufferAddr + 1)
	var b []byte
	for i := uint32(0); i < uint32(length); i++ {
		b = append(b, m.Mem.ReadByte(bufferAddr+2+i))
	}
	return string(b), bufferAddr
}

func intToString(v int16) string {
	neg := v < 0
	u := uint32(v)
	if neg {
		u = uint32(-v)
	}
	if u == 0 {
		return "0"
	}
	var digits []byte
	for u > 0 {
		digits = append([]byte{byte('0' + u%10)}, digits...)
		u /= 10
	}
	if neg {
		return "-" + string(digits)
	}
	return string(digits)
}
