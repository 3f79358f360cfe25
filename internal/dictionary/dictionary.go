// Package dictionary implements the Z-Machine's word dictionary: header
// parsing, word lookup (binary search for sorted dictionaries, linear scan
// for unsorted ones) and the lexer used by sread/tokenise.
package dictionary

import (
	"bytes"

	"github.com/gozork/zvm/internal/zcore"
	"github.com/gozork/zvm/internal/zstring"
)

// Dictionary holds a parsed dictionary header and the entry table's
// layout; entry bytes are read from memory on demand rather than copied
// out, since some games rebind the dictionary's contents at runtime.
type Dictionary struct {
	mem            *zcore.Memory
	version        uint8
	alphabets      *zstring.Alphabets
	Separators     []uint8
	EntryLength    uint8
	EntryCount     int16
	EntriesBase    uint32
	encodedWidth   int
	abbreviationBs uint32
}

// Parse reads the dictionary header at dictionaryBase: the separator
// table, entry length and the (possibly negative, meaning "unsorted")
// entry count.
func Parse(mem *zcore.Memory, version uint8, alphabets *zstring.Alphabets, abbreviationTableBase uint32, dictionaryBase uint32) *Dictionary {
	nSeparators := mem.ReadByte(dictionaryBase)
	separators := make([]uint8, nSeparators)
	for i := uint8(0); i < nSeparators; i++ {
		separators[i] = mem.ReadByte(dictionaryBase + 1 + uint32(i))
	}

	headerEnd := dictionaryBase + 1 + uint32(nSeparators)
	entryLength := mem.ReadByte(headerEnd)
	entryCount := int16(mem.ReadWord(headerEnd + 1))

	width := 4
	if version >= 4 {
		width = 6
	}

	return &Dictionary{
		mem: mem, version: version, alphabets: alphabets,
		Separators: separators, EntryLength: entryLength, EntryCount: entryCount,
		EntriesBase: headerEnd + 3, encodedWidth: width, abbreviationBs: abbreviationTableBase,
	}
}

func (d *Dictionary) count() int {
	if d.EntryCount < 0 {
		return int(-d.EntryCount)
	}
	return int(d.EntryCount)
}

func (d *Dictionary) entryAddr(i int) uint32 {
	return d.EntriesBase + uint32(i)*uint32(d.EntryLength)
}

func (d *Dictionary) entryKey(i int) []uint8 {
	addr := d.entryAddr(i)
	return d.mem.ReadSlice(addr, addr+uint32(d.encodedWidth))
}

// IsSeparator reports whether zscii is one of the dictionary's word
// separators (typically punctuation that also ends the preceding word).
func (d *Dictionary) IsSeparator(zscii uint8) bool {
	for _, s := range d.Separators {
		if s == zscii {
			return true
		}
	}
	return false
}

// Lookup encodes word and searches for it in the dictionary, using binary
// search when the header declares a sorted (non-negative count) table and
// a linear scan otherwise, per §4.4. Returns 0 if the word is not in the
// dictionary (an unrecognised word, not an error).
func (d *Dictionary) Lookup(word string) uint32 {
	key := zstring.Encode(word, d.version, d.alphabets)

	if d.EntryCount >= 0 {
		lo, hi := 0, d.count()-1
		for lo <= hi {
			mid := (lo + hi) / 2
			cmp := bytes.Compare(d.entryKey(mid), key)
			switch {
			case cmp == 0:
				return d.entryAddr(mid)
			case cmp < 0:
				lo = mid + 1
			default:
				hi = mid - 1
			}
		}
		return 0
	}

	for i := 0; i < d.count(); i++ {
		if bytes.Equal(d.entryKey(i), key) {
			return d.entryAddr(i)
		}
	}
	return 0
}

// Token is one lexed word from an input line: its text, the dictionary
// entry address it resolved to (0 if unrecognised), and its position
// within the original input (used to populate the parse buffer).
type Token struct {
	Text   string
	Entry  uint32
	Start  int
	Length int
}

// Tokenize splits text into words on whitespace and the dictionary's
// separator characters, treating each separator as its own one-character
// word, and resolves each word against the dictionary. This is the pure,
// memory-independent half of sread/tokenise; writing the parse buffer in
// the version-specific wire format is the caller's job.
func (d *Dictionary) Tokenize(text string) []Token {
	var tokens []Token
	runes := []rune(text)
	i := 0
	for i < len(runes) {
		if runes[i] == ' ' {
			i++
			continue
		}
		if d.IsSeparator(uint8(runes[i])) {
			tokens = append(tokens, d.resolve(string(runes[i]), i, 1))
			i++
			continue
		}
		start := i
		for i < len(runes) && runes[i] != ' ' && !d.IsSeparator(uint8(runes[i])) {
			i++
		}
		word := string(runes[start:i])
		tokens = append(tokens, d.resolve(word, start, i-start))
	}
	return tokens
}

func (d *Dictionary) resolve(word string, start, length int) Token {
	return Token{Text: word, Entry: d.Lookup(word), Start: start, Length: length}
}
