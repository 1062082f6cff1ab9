package dictionary_test

import (
	"os"
	"testing"

	"github.com/ifzcore/goz/dictionary"
	"github.com/ifzcore/goz/zcore"
	"github.com/ifzcore/goz/zstring"
)

func TestParseAndLookupZork1(t *testing.T) {
	romFileBytes, err := os.ReadFile("../zork1.z1")
	if err != nil {
		t.Skipf("test story file missing: %v", err)
	}
	m, err := zcore.LoadMemory(romFileBytes)
	if err != nil {
		t.Fatalf("LoadMemory: %v", err)
	}

	alphabets := zstring.LoadAlphabets(m.Version, romFileBytes, m.AlphabetTableBase)
	d := dictionary.Parse(romFileBytes, uint32(m.DictionaryBase), m.Version, alphabets, m.AbbreviationsBase)

	if len(d.Separators()) == 0 {
		t.Error("expected at least one word separator")
	}

	encoded := zstring.Encode([]rune("forest"), m.Version, alphabets)
	addr := d.Lookup(encoded)
	if addr == 0 {
		t.Error("expected to find \"forest\" in the dictionary")
	}
}

func TestLookupMissingWordReturnsZero(t *testing.T) {
	romFileBytes, err := os.ReadFile("../zork1.z1")
	if err != nil {
		t.Skipf("test story file missing: %v", err)
	}
	m, err := zcore.LoadMemory(romFileBytes)
	if err != nil {
		t.Fatalf("LoadMemory: %v", err)
	}

	alphabets := zstring.LoadAlphabets(m.Version, romFileBytes, m.AlphabetTableBase)
	d := dictionary.Parse(romFileBytes, uint32(m.DictionaryBase), m.Version, alphabets, m.AbbreviationsBase)

	encoded := zstring.Encode([]rune("zzzzzz"), m.Version, alphabets)
	if addr := d.Lookup(encoded); addr != 0 {
		t.Errorf("expected 0 for a word not in the dictionary, got %d", addr)
	}
}
