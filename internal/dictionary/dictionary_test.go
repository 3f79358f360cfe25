package dictionary

import (
	"testing"

	"github.com/gozork/zvm/internal/zcore"
	"github.com/gozork/zvm/internal/zstring"
)

// buildSortedV3Dictionary writes a 2-entry sorted dictionary ("go", "look")
// at dictionaryBase, with a single separator ",".
func buildSortedV3Dictionary(t *testing.T) (*zcore.Memory, uint32) {
	t.Helper()
	const dictionaryBase = 0x100

	b := make([]uint8, 0x200)
	b[0] = 3
	b[0x0e], b[0x0f] = 0x01, 0xf0

	b[dictionaryBase] = 1    // 1 separator
	b[dictionaryBase+1] = ',' // separator char
	b[dictionaryBase+2] = 7  // entry length: 4 byte key + 3 data bytes
	b[dictionaryBase+3], b[dictionaryBase+4] = 0, 2 // 2 entries, sorted (non-negative)

	entriesBase := dictionaryBase + 5
	alphabets := zstring.DefaultAlphabets(3)

	// Dictionary entries are themselves required to be sorted for binary
	// search; "go" < "look" lexicographically in the encoded byte form too.
	words := []string{"go", "look"}
	for i, w := range words {
		enc := zstring.Encode(w, 3, alphabets)
		copy(b[entriesBase+i*7:], enc)
	}

	mem, err := zcore.Load(b, zcore.Config{})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	return mem, dictionaryBase
}

func TestLookupFindsSortedEntries(t *testing.T) {
	mem, base := buildSortedV3Dictionary(t)
	d := Parse(mem, 3, zstring.DefaultAlphabets(3), 0, base)

	for _, w := range []string{"go", "look"} {
		if addr := d.Lookup(w); addr == 0 {
			t.Errorf("Lookup(%q) = 0, want a nonzero address", w)
		}
	}
	if addr := d.Lookup("xyzzy"); addr != 0 {
		t.Errorf("Lookup(\"xyzzy\") = %d, want 0", addr)
	}
}

func TestTokenizeSplitsOnSeparatorsAndSpaces(t *testing.T) {
	mem, base := buildSortedV3Dictionary(t)
	d := Parse(mem, 3, zstring.DefaultAlphabets(3), 0, base)

	tokens := d.Tokenize("go,look")
	if len(tokens) != 3 {
		t.Fatalf("Tokenize produced %d tokens, want 3", len(tokens))
	}
	if tokens[0].Text != "go" || tokens[1].Text != "," || tokens[2].Text != "look" {
		t.Fatalf("unexpected tokens: %+v", tokens)
	}
	if tokens[0].Entry == 0 {
		t.Errorf("token %q should resolve to a dictionary entry", tokens[0].Text)
	}
	if tokens[1].Entry != 0 {
		t.Errorf("separator token should not resolve in this dictionary")
	}
}
