// Package zstring implements the Z-Machine's 5-bit-per-character string
// codec: alphabet shifting, abbreviation expansion and the 10-bit ZSCII
// escape, plus the fixed-width encoding dictionaries use for lookup.
package zstring

import "encoding/binary"

// ByteReader is the minimal memory surface the codec needs: reading story
// bytes to walk abbreviation strings. Satisfied by *zcore.Memory without
// importing it, so the codec has no dependency on the memory package.
type ByteReader interface {
	ReadByte(address uint32) uint8
	ReadWord(address uint32) uint16
}

// Alphabets holds the three 26-character rows a version's strings are
// drawn from. A0 is lowercase, A1 is uppercase, A2 is punctuation/digits
// plus the ZSCII-escape and newline slots at positions 0 and 1.
type Alphabets struct {
	A0 string
	A1 string
	A2 string
}

const (
	a0Default = "abcdefghijklmnopqrstuvwxyz"
	a1Default = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	// a2Default's first two entries (z-chars 6 and 7) are never looked up
	// directly: 6 introduces the 10-bit ZSCII escape and 7 is newline.
	a2Default = "\x00\n0123456789.,!?_#'\"/\\-:()"
)

// DefaultAlphabets returns the standard alphabet table.
func DefaultAlphabets(version uint8) *Alphabets {
	return &Alphabets{A0: a0Default, A1: a1Default, A2: a2Default}
}

// LoadAlphabets builds the Alphabets for a story, honouring a custom
// alphabet table if the header's alternative character-set address is set
// (v5+ only; earlier versions always get the defaults). The table's 78
// bytes are read as-is: they are not validated, and there is no fallback
// to the defaults for a table that runs past the end of memory.
func LoadAlphabets(mem ByteReader, version uint8, alternativeCharSetBase uint32) *Alphabets {
	if version < 5 || alternativeCharSetBase == 0 {
		return DefaultAlphabets(version)
	}

	row := func(base uint32) string {
		b := make([]byte, 26)
		for i := 0; i < 26; i++ {
			b[i] = mem.ReadByte(base + uint32(i))
		}
		return string(b)
	}

	a0 := row(alternativeCharSetBase)
	a1 := row(alternativeCharSetBase + 26)
	a2 := row(alternativeCharSetBase + 52)
	// Position 0 of A2 remains the ZSCII-escape slot regardless of the
	// custom table, per the standard's compatibility note.
	a2 = "\x00" + a2[1:]

	return &Alphabets{A0: a0, A1: a1, A2: a2}
}

type shiftState int

const (
	shiftNone shiftState = iota
	shiftA1
	shiftA2
)

// maxWords bounds how many 16-bit words readZChars will read before giving
// up on ever seeing a terminator (§4.1's `get_zstring` Wmax), so a corrupt
// or adversarial story without a terminated Z-string can't run the decoder
// off the end of memory forever. The truncation is silent: no warning is
// emitted.
const maxWords = 1000

// readZChars reads successive 16-bit words from address until one has its
// high bit set, and returns the flattened stream of 5-bit z-characters plus
// the address immediately following the string. A string that never
// terminates within maxWords words is truncated at that point instead of
// reading forever (§4.1).
func readZChars(mem ByteReader, address uint32) ([]uint8, uint32) {
	var zchars []uint8
	addr := address
	for i := 0; i < maxWords; i++ {
		word := mem.ReadWord(addr)
		addr += 2
		zchars = append(zchars,
			uint8((word>>10)&0x1f),
			uint8((word>>5)&0x1f),
			uint8(word&0x1f),
		)
		if word&0x8000 != 0 {
			break
		}
	}
	return zchars, addr
}

// Decode reads a Z-string starting at address and returns its translated
// text and the address immediately following the string (the word with its
// high bit set). abbreviationTableBase of 0 disables abbreviation
// expansion, which Decode relies on internally when decoding the body of an
// abbreviation string, since abbreviations do not nest (§4.2 "Abbreviations
// (non-recursive)").
func Decode(mem ByteReader, address uint32, version uint8, alphabets *Alphabets, abbreviationTableBase uint32) (string, uint32) {
	zchars, next := readZChars(mem, address)
	return decodeZChars(mem, zchars, version, alphabets, abbreviationTableBase), next
}

func decodeZChars(mem ByteReader, zchars []uint8, version uint8, alphabets *Alphabets, abbreviationTableBase uint32) string {
	var out []rune
	shift := shiftNone

	for i := 0; i < len(zchars); i++ {
		z := zchars[i]
		switch {
		case z == 0:
			out = append(out, ' ')
			shift = shiftNone

		case z >= 1 && z <= 3:
			if i+1 >= len(zchars) {
				break
			}
			x := zchars[i+1]
			i++
			if abbreviationTableBase != 0 {
				out = append(out, []rune(decodeAbbreviation(mem, version, alphabets, abbreviationTableBase, z, x))...)
			}
			shift = shiftNone

		case z == 4:
			shift = shiftA1

		case z == 5:
			shift = shiftA2

		case z == 6 && shift == shiftA2:
			if i+2 < len(zchars) {
				hi := zchars[i+1]
				lo := zchars[i+2]
				out = append(out, rune(uint16(hi)<<5|uint16(lo)))
				i += 2
			}
			shift = shiftNone

		default:
			out = append(out, runeFor(alphabets, shift, z))
			shift = shiftNone
		}
	}

	return string(out)
}

func runeFor(alphabets *Alphabets, shift shiftState, z uint8) rune {
	idx := int(z) - 6
	var row string
	switch shift {
	case shiftA1:
		row = alphabets.A1
	case shiftA2:
		row = alphabets.A2
	default:
		row = alphabets.A0
	}
	if idx < 0 || idx >= len(row) {
		return '?'
	}
	return rune(row[idx])
}

func decodeAbbreviation(mem ByteReader, version uint8, alphabets *Alphabets, abbreviationTableBase uint32, z, x uint8) string {
	abbrIx := uint32(32*(int(z)-1) + int(x))
	entryAddr := abbreviationTableBase + abbrIx*2
	wordAddr := uint32(mem.ReadWord(entryAddr)) * 2
	text, _ := Decode(mem, wordAddr, version, alphabets, 0)
	return text
}

// Encode converts text into a fixed-width Z-string suitable for dictionary
// comparison: 2 words (4 bytes) for versions 1-3, 3 words (6 bytes) for
// version 4 and later. Characters with no alphabet slot fall back to the
// ZSCII escape; text past the target length is truncated and short text is
// padded with z-char 5 (the shift-A2 code), matching the dictionary's fixed-width
// encoding.
func Encode(text string, version uint8, alphabets *Alphabets) []uint8 {
	wordCount := 2
	if version >= 4 {
		wordCount = 3
	}
	zchars := make([]uint8, 0, wordCount*3)

	for _, r := range text {
		if len(zchars) >= wordCount*3 {
			break
		}
		zchars = append(zchars, encodeRune(r, alphabets)...)
	}
	for len(zchars) < wordCount*3 {
		zchars = append(zchars, 5)
	}
	zchars = zchars[:wordCount*3]

	out := make([]uint8, wordCount*2)
	for w := 0; w < wordCount; w++ {
		word := uint16(zchars[w*3])<<10 | uint16(zchars[w*3+1])<<5 | uint16(zchars[w*3+2])
		if w == wordCount-1 {
			word |= 0x8000
		}
		binary.BigEndian.PutUint16(out[w*2:w*2+2], word)
	}
	return out
}

func encodeRune(r rune, alphabets *Alphabets) []uint8 {
	if r == ' ' {
		return []uint8{0}
	}
	if idx := indexOf(alphabets.A0, r); idx >= 0 {
		return []uint8{uint8(idx + 6)}
	}
	if idx := indexOf(alphabets.A1, r); idx >= 0 {
		return []uint8{4, uint8(idx + 6)}
	}
	if idx := indexOf(alphabets.A2, r); idx >= 1 {
		return []uint8{5, uint8(idx + 6)}
	}
	// ZSCII escape via A2 position 0.
	hi := uint8((r >> 5) & 0x1f)
	lo := uint8(r & 0x1f)
	return []uint8{5, 6, hi, lo}
}

func indexOf(row string, r rune) int {
	for i := 0; i < len(row); i++ {
		if rune(row[i]) == r {
			return i
		}
	}
	return -1
}
