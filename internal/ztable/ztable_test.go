package ztable

import (
	"testing"

	"github.com/gozork/zvm/internal/zcore"
)

func newMemory(t *testing.T, size int) *zcore.Memory {
	t.Helper()
	b := make([]uint8, size)
	b[0] = 3
	b[0x0e], b[0x0f] = byte(size>>8), byte(size) // everything dynamic
	mem, err := zcore.Load(b, zcore.Config{})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	return mem
}

func TestScanTableByteForm(t *testing.T) {
	mem := newMemory(t, 0x100)
	for i, v := range []uint8{10, 20, 30} {
		mem.WriteByte(uint32(0x10+i), v)
	}
	if addr := ScanTable(mem, 20, 0x10, 3, 1); addr != 0x11 {
		t.Errorf("ScanTable = %d, want %d", addr, 0x11)
	}
	if addr := ScanTable(mem, 99, 0x10, 3, 1); addr != 0 {
		t.Errorf("ScanTable(99) = %d, want 0", addr)
	}
}

func TestScanTableWordForm(t *testing.T) {
	mem := newMemory(t, 0x100)
	mem.WriteWord(0x10, 0x1234)
	mem.WriteWord(0x12, 0x5678)
	if addr := ScanTable(mem, 0x5678, 0x10, 2, 0x82); addr != 0x12 {
		t.Errorf("ScanTable word form = %d, want %d", addr, 0x12)
	}
}

func TestCopyTableForwardSafeCopy(t *testing.T) {
	mem := newMemory(t, 0x100)
	for i := 0; i < 4; i++ {
		mem.WriteByte(uint32(0x10+i), uint8(i+1))
	}
	if err := CopyTable(mem, 0x10, 0x20, 4); err != nil {
		t.Fatalf("CopyTable: %v", err)
	}
	for i := 0; i < 4; i++ {
		if got := mem.ReadByte(uint32(0x20 + i)); got != uint8(i+1) {
			t.Errorf("byte %d = %d, want %d", i, got, i+1)
		}
	}
}

func TestCopyTableZeroFillOnZeroSecond(t *testing.T) {
	mem := newMemory(t, 0x100)
	mem.WriteByte(0x10, 0xff)
	if err := CopyTable(mem, 0x10, 0, 1); err != nil {
		t.Fatalf("CopyTable: %v", err)
	}
	if got := mem.ReadByte(0x10); got != 0 {
		t.Errorf("byte = %d, want 0", got)
	}
}

func TestCopyTableNegativeSizeForcesForwardOverlap(t *testing.T) {
	mem := newMemory(t, 0x100)
	// Overlapping forward copy: dest starts one byte after source.
	mem.WriteByte(0x10, 1)
	mem.WriteByte(0x11, 2)
	mem.WriteByte(0x12, 3)
	if err := CopyTable(mem, 0x10, 0x11, -3); err != nil {
		t.Fatalf("CopyTable: %v", err)
	}
	// A forced forward copy propagates byte 0x10's original value through
	// the whole overlapping range, per the Standard's documented quirk.
	if got := mem.ReadByte(0x11); got != 1 {
		t.Errorf("byte 0x11 = %d, want 1", got)
	}
	if got := mem.ReadByte(0x12); got != 1 {
		t.Errorf("byte 0x12 = %d, want 1", got)
	}
}

func TestPrintTable(t *testing.T) {
	mem := newMemory(t, 0x100)
	data := []uint8{'a', 'b', 'c', 'd'}
	for i, v := range data {
		mem.WriteByte(uint32(0x10+i), v)
	}
	got := PrintTable(mem, 0x10, 2, 2, 0)
	if got != "ab\ncd" {
		t.Errorf("PrintTable = %q, want %q", got, "ab\\ncd")
	}
}
