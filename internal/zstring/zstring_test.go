package zstring

import "testing"

// fakeMemory is a minimal in-memory ByteReader for codec tests; it does not
// pull in zcore, keeping this package's tests independent of memory-map
// concerns.
type fakeMemory struct {
	bytes []uint8
}

func (f *fakeMemory) ReadByte(address uint32) uint8 {
	return f.bytes[address]
}

func (f *fakeMemory) ReadWord(address uint32) uint16 {
	return uint16(f.bytes[address])<<8 | uint16(f.bytes[address+1])
}

func putWord(b []uint8, addr uint32, value uint16) {
	b[addr] = uint8(value >> 8)
	b[addr+1] = uint8(value)
}

// encodeZString builds raw Z-string bytes for test fixtures directly from
// a list of 5-bit z-char codes, without going through Encode (which targets
// fixed dictionary widths).
func encodeZString(zchars []uint8) []uint8 {
	for len(zchars)%3 != 0 {
		zchars = append(zchars, 5)
	}
	out := make([]uint8, len(zchars)/3*2)
	for w := 0; w*3 < len(zchars); w++ {
		word := uint16(zchars[w*3])<<10 | uint16(zchars[w*3+1])<<5 | uint16(zchars[w*3+2])
		if (w+1)*3 >= len(zchars) {
			word |= 0x8000
		}
		putWord(out, uint32(w*2), word)
	}
	return out
}

func TestDecodeSimpleLowercase(t *testing.T) {
	// "hi" -> z-chars 13 ('h'=7+6), 14 ('i'=8+6)
	raw := encodeZString([]uint8{13, 14})
	mem := &fakeMemory{bytes: raw}
	got, next := Decode(mem, 0, 3, DefaultAlphabets(3), 0)
	if got != "hi" {
		t.Errorf("Decode = %q, want %q", got, "hi")
	}
	if next != uint32(len(raw)) {
		t.Errorf("next address = %d, want %d", next, len(raw))
	}
}

func TestDecodeShiftToUppercase(t *testing.T) {
	// shift (4) then 'H' (A1 index of 'H' is 7, so z-char 13)
	raw := encodeZString([]uint8{4, 13})
	mem := &fakeMemory{bytes: raw}
	got, _ := Decode(mem, 0, 3, DefaultAlphabets(3), 0)
	if got != "H" {
		t.Errorf("Decode = %q, want %q", got, "H")
	}
}

func TestDecodeSpace(t *testing.T) {
	raw := encodeZString([]uint8{13, 0, 14})
	mem := &fakeMemory{bytes: raw}
	got, _ := Decode(mem, 0, 3, DefaultAlphabets(3), 0)
	if got != "h i" {
		t.Errorf("Decode = %q, want %q", got, "h i")
	}
}

func TestDecodeAbbreviation(t *testing.T) {
	// Story layout: abbreviation table at 0x10 holding one entry pointing
	// at a string "hi" stored (word-address) at byte 0x20.
	b := make([]uint8, 0x40)
	abbrWordAddr := uint16(0x20 / 2)
	putWord(b, 0x10, abbrWordAddr)
	hi := encodeZString([]uint8{13, 14})
	copy(b[0x20:], hi)

	// Main string: abbreviation set 1, index 0 -> z-chars 1, 0
	main := encodeZString([]uint8{1, 0})
	copy(b[0x00:], main)

	mem := &fakeMemory{bytes: b}
	got, _ := Decode(mem, 0, 3, DefaultAlphabets(3), 0x10)
	if got != "hi" {
		t.Errorf("Decode with abbreviation = %q, want %q", got, "hi")
	}
}

func TestEncodeRoundTripsThroughDecodeV3(t *testing.T) {
	enc := Encode("hi", 3, DefaultAlphabets(3))
	if len(enc) != 4 {
		t.Fatalf("v3 encode length = %d, want 4", len(enc))
	}
	mem := &fakeMemory{bytes: enc}
	got, _ := Decode(mem, 0, 3, DefaultAlphabets(3), 0)
	// Encode pads with z-char 5 (shift-A2); padding characters don't decode to
	// visible text here since a lone trailing shift contributes nothing.
	if got[:2] != "hi" {
		t.Errorf("Decode(Encode(%q)) = %q, want prefix %q", "hi", got, "hi")
	}
}

func TestEncodeV4UsesThreeWords(t *testing.T) {
	enc := Encode("zzzzzzzzzzzz", 4, DefaultAlphabets(4))
	if len(enc) != 6 {
		t.Fatalf("v4 encode length = %d, want 6", len(enc))
	}
}

func TestZsciiUnicodeRoundTrip(t *testing.T) {
	tbl := NewUnicodeTable()
	r := tbl.ZsciiToUnicode(155)
	if r != 'ä' {
		t.Fatalf("ZsciiToUnicode(155) = %q, want 'ä'", r)
	}
	code, ok := tbl.UnicodeToZscii('ä')
	if !ok || code != 155 {
		t.Fatalf("UnicodeToZscii('ä') = (%d, %v), want (155, true)", code, ok)
	}
}
