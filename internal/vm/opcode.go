package vm

import (
	"fmt"

	"github.com/gozork/zvm/internal/zcore"
	"github.com/gozork/zvm/internal/zstring"
)

// OperandType is the 2-bit operand-type tag the instruction encoding uses.
type OperandType int

const (
	LargeConstant OperandType = iota
	SmallConstant
	VariableOperand
	Omitted
)

// OperandCount groups opcodes by how many operands their form implies,
// which (together with the opcode number) determines the opcode's meaning.
type OperandCount int

const (
	OP0 OperandCount = iota
	OP1
	OP2
	VAR
	EXT
)

// Operand is one decoded operand: either a literal constant or a variable
// reference to be resolved through readVariable at execution time.
type Operand struct {
	Type  OperandType
	Value uint16
}

// Instruction is a fully decoded opcode ready for dispatch: its operands,
// whether it stores a result or branches, and how many bytes it occupied
// (so the executor can advance the program counter).
type Instruction struct {
	Opcode       uint8
	Count        OperandCount
	Operands     []Operand
	Stores       bool
	StoreVar     uint8
	Branches     bool
	BranchOnTrue bool
	BranchOffset int32
	Text         string
	Length       uint32
}

// Decode reads one instruction starting at addr.
func Decode(mem *zcore.Memory, addr uint32, version uint8, alphabets *zstring.Alphabets, abbreviationTableBase uint32) (Instruction, error) {
	start := addr
	opByte := mem.ReadByte(addr)
	addr++

	var count OperandCount
	var opcode uint8
	var operands []Operand

	switch {
	case opByte == 0xbe && version >= 5:
		count = EXT
		opcode = mem.ReadByte(addr)
		addr++
		types := mem.ReadByte(addr)
		addr++
		operands, addr = decodeVarOperands(mem, addr, types)

	case opByte&0xc0 == 0xc0: // variable form
		if opByte&0x20 == 0 {
			count = OP2
		} else {
			count = VAR
		}
		opcode = opByte & 0x1f
		types := mem.ReadByte(addr)
		addr++
		if count == VAR && (opcode == 0x0c || opcode == 0x1a) {
			types2 := mem.ReadByte(addr)
			addr++
			var ops1, ops2 []Operand
			ops1, addr = decodeVarOperands(mem, addr, types)
			ops2, addr = decodeVarOperands(mem, addr, types2)
			operands = append(ops1, ops2...)
		} else {
			operands, addr = decodeVarOperands(mem, addr, types)
		}

	case opByte&0x80 == 0: // long form, always 2OP
		count = OP2
		opcode = opByte & 0x1f
		t1 := SmallConstant
		if opByte&0x40 != 0 {
			t1 = VariableOperand
		}
		t2 := SmallConstant
		if opByte&0x20 != 0 {
			t2 = VariableOperand
		}
		var o1, o2 Operand
		o1, addr = decodeOperand(mem, addr, t1)
		o2, addr = decodeOperand(mem, addr, t2)
		operands = []Operand{o1, o2}

	default: // short form
		opcode = opByte & 0x0f
		typeBits := (opByte >> 4) & 0x03
		ot := operandTypeFromBits(typeBits)
		if ot == Omitted {
			count = OP0
		} else {
			count = OP1
			var o Operand
			o, addr = decodeOperand(mem, addr, ot)
			operands = []Operand{o}
		}
	}

	inst := Instruction{Opcode: opcode, Count: count, Operands: operands}

	if isLiteralText(count, opcode) {
		text, next := zstring.Decode(mem, addr, version, alphabets, abbreviationTableBase)
		inst.Text = text
		addr = next
	}

	if storesResult(count, opcode, version) {
		inst.Stores = true
		inst.StoreVar = mem.ReadByte(addr)
		addr++
	}

	if branchesOn(count, opcode, version) {
		inst.Branches = true
		b1 := mem.ReadByte(addr)
		addr++
		inst.BranchOnTrue = b1&0x80 != 0
		if b1&0x40 != 0 {
			inst.BranchOffset = int32(b1 & 0x3f)
		} else {
			b2 := mem.ReadByte(addr)
			addr++
			offset := (uint16(b1&0x3f) << 8) | uint16(b2)
			// Sign-extend the 14-bit offset.
			if offset&0x2000 != 0 {
				inst.BranchOffset = int32(offset) - 0x4000
			} else {
				inst.BranchOffset = int32(offset)
			}
		}
	}

	inst.Length = addr - start
	return inst, nil
}

func operandTypeFromBits(bits uint8) OperandType {
	switch bits {
	case 0:
		return LargeConstant
	case 1:
		return SmallConstant
	case 2:
		return VariableOperand
	default:
		return Omitted
	}
}

func decodeOperand(mem *zcore.Memory, addr uint32, t OperandType) (Operand, uint32) {
	switch t {
	case LargeConstant:
		return Operand{Type: t, Value: mem.ReadWord(addr)}, addr + 2
	case SmallConstant, VariableOperand:
		return Operand{Type: t, Value: uint16(mem.ReadByte(addr))}, addr + 1
	default:
		return Operand{Type: Omitted}, addr
	}
}

// decodeVarOperands reads up to 4 operands from a single type byte (2 bits
// each), stopping at the first Omitted marker.
func decodeVarOperands(mem *zcore.Memory, addr uint32, types uint8) ([]Operand, uint32) {
	var ops []Operand
	for shift := 6; shift >= 0; shift -= 2 {
		bits := (types >> uint(shift)) & 0x03
		ot := operandTypeFromBits(bits)
		if ot == Omitted {
			break
		}
		var o Operand
		o, addr = decodeOperand(mem, addr, ot)
		ops = append(ops, o)
	}
	return ops, addr
}

// isLiteralText reports whether this instruction is followed by an inline
// Z-string rather than operands resolved normally (0OP print/print_ret).
func isLiteralText(count OperandCount, opcode uint8) bool {
	return count == OP0 && (opcode == 0x02 || opcode == 0x03)
}

// storesResult reports whether the opcode writes its result to a variable
// per the standard's per-opcode table.
func storesResult(count OperandCount, opcode uint8, version uint8) bool {
	switch count {
	case OP2:
		switch opcode {
		case 0x08, 0x09, 0x0f, 0x10, 0x11, 0x12, 0x13, 0x14, 0x15, 0x16, 0x17, 0x18:
			return true
		case 0x19: // call_2s (v4+); call_2n (0x1a) never stores
			return version >= 4
		}
	case OP1:
		switch opcode {
		case 0x01, 0x02, 0x03, 0x04, 0x08, 0x0e:
			return true
		case 0x0f: // "not" (pre-v5) stores; call_1n (v5+) does not
			return version < 5
		}
	case OP0:
		if opcode == 0x09 && version >= 5 { // catch
			return true
		}
		if (opcode == 0x05 || opcode == 0x06) && version == 4 { // save/restore store in v4
			return true
		}
	case VAR:
		switch opcode {
		case 0x00: // call/call_vs
			return true
		case 0x07, 0x0c, 0x16, 0x17, 0x18:
			return true
		case 0x04: // sread/aread stores in v5+
			return version >= 5
		}
	case EXT:
		switch opcode {
		case 0x00, 0x01, 0x02, 0x03, 0x04, 0x09, 0x0a, 0x0c:
			return true
		}
	}
	return false
}

// branchesOn reports whether the opcode is followed by a branch byte.
func branchesOn(count OperandCount, opcode uint8, version uint8) bool {
	switch count {
	case OP2:
		switch opcode {
		case 0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x0a:
			return true
		}
	case OP1:
		switch opcode {
		case 0x00, 0x01, 0x02:
			return true
		}
	case OP0:
		switch opcode {
		case 0x05, 0x06: // save/restore branch in v1-3
			return version <= 3
		case 0x0d, 0x0f: // verify, piracy
			return true
		}
	case VAR:
		if opcode == 0x17 { // scan_table
			return true
		}
		if opcode == 0x1f { // check_arg_count
			return true
		}
	case EXT:
		if opcode == 0x06 { // picture_data
			return true
		}
	}
	return false
}

func opcodeName(count OperandCount, opcode uint8) string {
	return fmt.Sprintf("%v:%d", count, opcode)
}
