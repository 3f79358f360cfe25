package zcore

import "testing"

func TestLoadRejectsShortImage(t *testing.T) {
	if _, err := Load(make([]byte, 10), Config{}); err == nil {
		t.Fatalf("expected error for undersized image")
	}
}

func TestLoadRejectsBadVersion(t *testing.T) {
	b := make([]byte, headerSize+16)
	b[0] = 9
	if _, err := Load(b, Config{}); err == nil {
		t.Fatalf("expected error for unsupported version")
	}
}

func newV3Image() []byte {
	b := make([]byte, 0x200)
	b[0] = 3
	b[0x04] = 0x01
	b[0x05] = 0x80 // high memory base 0x0180
	b[0x0e] = 0x01
	b[0x0f] = 0x00 // static memory base 0x0100
	b[0x1a] = 0x00
	b[0x1b] = 0x40 // file length word 0x40 * 2 = 0x80
	return b
}

func TestPackedAddressV3(t *testing.T) {
	m, err := Load(newV3Image(), Config{})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got := m.PackedAddress(0x10, false); got != 0x20 {
		t.Errorf("packed address = 0x%x, want 0x20", got)
	}
}

func TestPackedAddressV6RoutineOffset(t *testing.T) {
	b := make([]byte, 0x200)
	b[0] = 6
	b[0x0e], b[0x0f] = 0x01, 0x00
	b[0x28], b[0x29] = 0x00, 0x08 // RoutinesOffset = 8
	m, err := Load(b, Config{})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	want := uint32(0x10)*4 + uint32(8)*8
	if got := m.PackedAddress(0x10, false); got != want {
		t.Errorf("packed routine address = 0x%x, want 0x%x", got, want)
	}
}

func TestStaticWritePermissiveByDefault(t *testing.T) {
	m, err := Load(newV3Image(), Config{})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := m.WriteByte(uint32(m.StaticMemoryBase)+1, 0x42); err != nil {
		t.Fatalf("permissive write should not error: %v", err)
	}
	if m.StaticWriteWarnings() != 1 {
		t.Errorf("expected 1 static write warning, got %d", m.StaticWriteWarnings())
	}
}

func TestStaticWriteStrictIsFatal(t *testing.T) {
	m, err := Load(newV3Image(), Config{StrictWrites: true})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := m.WriteByte(uint32(m.StaticMemoryBase)+1, 0x42); err == nil {
		t.Fatalf("expected error for strict static write")
	}
}

func TestHighMemoryWriteAlwaysFatal(t *testing.T) {
	m, err := Load(newV3Image(), Config{})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := m.WriteByte(uint32(m.PagedMemoryBase), 0x42); err == nil {
		t.Fatalf("expected high memory write to be fatal even in permissive mode")
	}
}

func TestChecksum(t *testing.T) {
	b := newV3Image()
	for i := headerSize; i < 0x80; i++ {
		b[i] = 1
	}
	m, err := Load(b, Config{})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	want := uint16(0x80 - headerSize)
	if got := m.Checksum(); got != want {
		t.Errorf("checksum = %d, want %d", got, want)
	}
}
