// Package ztable implements the Z-Machine's table opcodes: print_table,
// scan_table and copy_table, which operate directly on raw memory regions
// rather than any higher-level structure.
package ztable

import "github.com/gozork/zvm/internal/zcore"

// PrintTable renders a width x height block of ZSCII text starting at
// baddr, where each row is separated by skip extra bytes (print_table's
// optional 4th operand), joining rows with newlines.
func PrintTable(mem *zcore.Memory, baddr uint32, width, height, skip uint16) string {
	out := make([]byte, 0, int(width)*int(height)+int(height))
	stride := uint32(width) + uint32(skip)
	for row := uint16(0); row < height; row++ {
		rowAddr := baddr + uint32(row)*stride
		for col := uint16(0); col < width; col++ {
			out = append(out, mem.ReadByte(rowAddr+uint32(col)))
		}
		if row+1 < height {
			out = append(out, '\n')
		}
	}
	return string(out)
}

// ScanTable searches length entries of fieldSize bytes starting at baddr
// for one equal to test, returning its address or 0 if not found. form's
// low 7 bits give the field size (0 defaults to 2, matching the standard's
// "omitted form defaults to word fields" behaviour) and bit 7 selects
// word comparison (the field's first two bytes) versus byte comparison
// (the first byte only).
func ScanTable(mem *zcore.Memory, test uint16, baddr uint32, length uint16, form uint8) uint32 {
	fieldSize := form & 0x7f
	if fieldSize == 0 {
		fieldSize = 2
	}
	wordCompare := form&0x80 != 0

	for i := uint16(0); i < length; i++ {
		addr := baddr + uint32(i)*uint32(fieldSize)
		var value uint16
		if wordCompare {
			value = mem.ReadWord(addr)
		} else {
			value = uint16(mem.ReadByte(addr))
		}
		if value == test {
			return addr
		}
	}
	return 0
}

// CopyTable implements copy_table's three modes: second == 0 zero-fills
// the first table for |size| bytes; size >= 0 is a safe copy (as if
// through a temporary buffer, so overlapping ranges behave correctly);
// size < 0 forces a raw forward byte-by-byte copy, which is allowed to
// corrupt overlapping regions — the Z-Machine Standard specifies this
// exact asymmetry and this repo's design notes resolve the negative-size
// case as "forward copy", not "reverse" or "zero-fill".
func CopyTable(mem *zcore.Memory, first, second uint32, size int32) error {
	if second == 0 {
		n := size
		if n < 0 {
			n = -n
		}
		for i := int32(0); i < n; i++ {
			if err := mem.WriteByte(first+uint32(i), 0); err != nil {
				return err
			}
		}
		return nil
	}

	if size >= 0 {
		buf := make([]uint8, size)
		for i := int32(0); i < size; i++ {
			buf[i] = mem.ReadByte(first + uint32(i))
		}
		for i := int32(0); i < size; i++ {
			if err := mem.WriteByte(second+uint32(i), buf[i]); err != nil {
				return err
			}
		}
		return nil
	}

	n := -size
	for i := int32(0); i < n; i++ {
		if err := mem.WriteByte(second+uint32(i), mem.ReadByte(first+uint32(i))); err != nil {
			return err
		}
	}
	return nil
}
