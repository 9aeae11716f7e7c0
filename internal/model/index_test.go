package model

import (
	"strings"
	"testing"
	"time"
)

func TestParseIndex_Empty(t *testing.T) {
	for _, blob := range [][]byte{nil, {}} {
		idx, err := ParseIndex(blob)
		if err != nil {
			t.Fatalf("ParseIndex(empty) error = %v", err)
		}

		if len(idx) != 0 {
			t.Errorf("ParseIndex(empty) = %v, want empty index", idx)
		}
	}
}

func TestParseIndex_Malformed(t *testing.T) {
	if _, err := ParseIndex([]byte(`{"alice/m": `)); err == nil {
		t.Error("ParseIndex(malformed) = nil, want error")
	}
}

func TestIndex_EncodeRoundTrip(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	idx := Index{
		"alice/gemma-3-4b-it": NewIndexEntry(NewMetadata("gemma-3-4b-it", "d", []string{"gemma"}, testCIDv1, "alice"), now),
		"bob/bert-base":       NewIndexEntry(NewMetadata("bert-base", "", []string{"bert"}, testCIDv0, "bob"), now),
	}

	blob, err := idx.Encode()
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}

	if !strings.HasSuffix(string(blob), "\n") {
		t.Error("Encode() output missing trailing newline")
	}

	parsed, err := ParseIndex(blob)
	if err != nil {
		t.Fatalf("ParseIndex(Encode()) error = %v", err)
	}

	if len(parsed) != 2 {
		t.Fatalf("round trip lost entries: %v", parsed)
	}

	entry := parsed["alice/gemma-3-4b-it"]
	if entry.CID != testCIDv1 || entry.Owner != "alice" {
		t.Errorf("round trip mangled entry: %+v", entry)
	}

	if entry.UpdatedAt != "2025-06-01T12:00:00Z" {
		t.Errorf("UpdatedAt = %q, want RFC3339 UTC", entry.UpdatedAt)
	}
}

func TestIndex_EncodeDeterministic(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	build := func() Index {
		return Index{
			"zoe/z-model":   NewIndexEntry(NewMetadata("z-model", "z", nil, testCIDv1, "zoe"), now),
			"alice/a-model": NewIndexEntry(NewMetadata("a-model", "a", nil, testCIDv0, "alice"), now),
		}
	}

	first, err := build().Encode()
	if err != nil {
		t.Fatal(err)
	}

	second, err := build().Encode()
	if err != nil {
		t.Fatal(err)
	}

	if string(first) != string(second) {
		t.Error("Encode() is not deterministic across identical indexes")
	}

	// keys must appear in sorted order
	alicePos := strings.Index(string(first), "alice/a-model")
	zoePos := strings.Index(string(first), "zoe/z-model")

	if alicePos < 0 || zoePos < 0 || alicePos > zoePos {
		t.Errorf("keys not sorted: alice at %d, zoe at %d", alicePos, zoePos)
	}
}

func TestIndexEntry_EquivalentIgnoresUpdatedAt(t *testing.T) {
	m := NewMetadata("m", "d", []string{"t"}, testCIDv1, "alice")

	a := NewIndexEntry(m, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	b := NewIndexEntry(m, time.Date(2025, 12, 31, 0, 0, 0, 0, time.UTC))

	if !a.Equivalent(b) {
		t.Error("entries differing only in UpdatedAt reported non-equivalent")
	}

	c := b
	c.Description = "changed"

	if a.Equivalent(c) {
		t.Error("entries with different descriptions reported equivalent")
	}
}

func TestFileSet_PathsSortedAndEqual(t *testing.T) {
	fs := FileSet{
		"models/alice/m/metadata.json": []byte("{}"),
		"model-map.json":               []byte("{}"),
		"models/alice/m/README.md":     []byte("# m"),
	}

	paths := fs.Paths()
	want := []string{"model-map.json", "models/alice/m/README.md", "models/alice/m/metadata.json"}

	for i := range want {
		if paths[i] != want[i] {
			t.Fatalf("Paths() = %v, want %v", paths, want)
		}
	}

	other := FileSet{
		"model-map.json":               []byte("{}"),
		"models/alice/m/README.md":     []byte("# m"),
		"models/alice/m/metadata.json": []byte("{}"),
	}

	if !fs.Equal(other) {
		t.Error("identical sets reported unequal")
	}

	other["models/alice/m/README.md"] = []byte("# different")

	if fs.Equal(other) {
		t.Error("different sets reported equal")
	}
}
