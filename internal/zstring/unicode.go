package zstring

// DefaultUnicodeTable maps the standard extended-ZSCII codes (155-223) to
// the Unicode runes they represent, per the Z-Machine Standard's table 3.
// A story can override this with its own table via the header's Unicode
// translation table extension; ZsciiToUnicode/UnicodeToZscii consult that
// override first when one is supplied.
var DefaultUnicodeTable = map[uint8]rune{
	155: 'ä', 156: 'ö', 157: 'ü', 158: 'Ä', 159: 'Ö',
	160: 'Ü', 161: 'ß', 162: '»', 163: '«', 164: 'ë',
	165: 'ï', 166: 'ÿ', 167: 'Ë', 168: 'Ï', 169: 'á',
	170: 'é', 171: 'í', 172: 'ó', 173: 'ú', 174: 'ý',
	175: 'Á', 176: 'É', 177: 'Í', 178: 'Ó', 179: 'Ú',
	180: 'Ý', 181: 'à', 182: 'è', 183: 'ì', 184: 'ò',
	185: 'ù', 186: 'À', 187: 'È', 188: 'Ì', 189: 'Ò',
	190: 'Ù', 191: 'â', 192: 'ê', 193: 'î', 194: 'ô',
	195: 'û', 196: 'Â', 197: 'Ê', 198: 'Î', 199: 'Ô',
	200: 'Û', 201: 'å', 202: 'Å', 203: 'ø', 204: 'Ø',
	205: 'ã', 206: 'ñ', 207: 'õ', 208: 'Ã', 209: 'Ñ',
	210: 'Õ', 211: 'æ', 212: 'Æ', 213: 'ç', 214: 'Ç',
	215: 'þ', 216: 'ð', 217: 'Þ', 218: 'Ð', 219: '£',
	220: 'œ', 221: 'Œ', 222: '¡', 223: '¿',
}

// UnicodeTable holds a (possibly story-supplied) ZSCII <-> Unicode mapping.
type UnicodeTable struct {
	toUnicode map[uint8]rune
	toZscii   map[rune]uint8
}

// NewUnicodeTable builds a lookup structure from DefaultUnicodeTable.
func NewUnicodeTable() *UnicodeTable {
	return withOverrides(nil)
}

// LoadUnicodeTable reads a story-supplied Unicode translation table, per
// the header extension table's "unicode translation table" entry: a byte
// count followed by that many Unicode codepoint words, the first for ZSCII
// 155 and each next one for the next code. Falls back to the defaults when
// the address is zero.
func LoadUnicodeTable(mem ByteReader, tableAddress uint32) *UnicodeTable {
	if tableAddress == 0 {
		return NewUnicodeTable()
	}
	count := mem.ReadByte(tableAddress)
	overrides := make(map[uint8]rune, count)
	for i := uint8(0); i < count; i++ {
		code := 155 + i
		cp := mem.ReadWord(tableAddress + 1 + uint32(i)*2)
		overrides[code] = rune(cp)
	}
	return withOverrides(overrides)
}

func withOverrides(overrides map[uint8]rune) *UnicodeTable {
	t := &UnicodeTable{
		toUnicode: make(map[uint8]rune, len(DefaultUnicodeTable)),
		toZscii:   make(map[rune]uint8, len(DefaultUnicodeTable)),
	}
	for code, r := range DefaultUnicodeTable {
		t.toUnicode[code] = r
		t.toZscii[r] = code
	}
	for code, r := range overrides {
		t.toUnicode[code] = r
		t.toZscii[r] = code
	}
	return t
}

// ZsciiToUnicode translates a ZSCII character code to the rune it prints
// as. Codes 32-126 are plain ASCII; 10/13 are newline; everything else is
// looked up in the extended table, falling back to '?' for an unmapped
// code rather than silently dropping output.
func (t *UnicodeTable) ZsciiToUnicode(code uint8) rune {
	switch {
	case code == 10 || code == 13:
		return '\n'
	case code >= 32 && code <= 126:
		return rune(code)
	default:
		if r, ok := t.toUnicode[code]; ok {
			return r
		}
		return '?'
	}
}

// UnicodeToZscii translates a rune to its ZSCII code, returning ok=false
// for a character this table has no ZSCII representation for (the caller,
// per §4.2, should substitute '?' rather than fail the whole string).
func (t *UnicodeTable) UnicodeToZscii(r rune) (uint8, bool) {
	switch {
	case r == '\n':
		return 13, true
	case r >= 32 && r <= 126:
		return uint8(r), true
	default:
		code, ok := t.toZscii[r]
		return code, ok
	}
}
