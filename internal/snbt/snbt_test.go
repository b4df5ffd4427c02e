package snbt

import (
	"testing"

	"github.com/naughtychas/gitmc-core/internal/nbt"
)

func TestParseSpecialsScenario(t *testing.T) {
	input := `{a: NaN, b: Infinity, c: -Infinity, d: [B;1b,-1b,0b], e: [], f: [1L,2L,3L]}`
	tag, err := Parse(input)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	root, ok := tag.Value.(nbt.Compound)
	if !ok {
		t.Fatalf("root is not a compound: %#v", tag.Value)
	}

	e, ok := root.GetList("e")
	if !ok {
		t.Fatal("missing key e")
	}
	if e.Type != nbt.TagCompound {
		t.Fatalf("empty list e type = %d, want TagCompound", e.Type)
	}

	out := Serialize(tag, DefaultOptions())
	reparsed, err := Parse(out)
	if err != nil {
		t.Fatalf("reparse: %v", err)
	}
	if !nbt.DeepEqual(tag.Value, reparsed.Value) {
		t.Fatalf("round trip mismatch:\ngot  %#v\nwant %#v", reparsed.Value, tag.Value)
	}
}

func TestParseEmptyUnnamedProducesEmptyCompound(t *testing.T) {
	tag, err := Parse("   ")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	c, ok := tag.Value.(nbt.Compound)
	if !ok || len(c) != 0 {
		t.Fatalf("got %#v, want empty compound", tag.Value)
	}
}

func TestParseDocumentRejectsEmpty(t *testing.T) {
	if _, err := ParseDocument("", "   "); err == nil {
		t.Fatal("expected error for empty document")
	}
}

func TestBareStringsAndBooleans(t *testing.T) {
	tag, err := Parse(`{item: diamond_sword, flag: true, off: false}`)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	root := tag.Value.(nbt.Compound)
	if s, ok := root.GetString("item"); !ok || s != "diamond_sword" {
		t.Fatalf("item = %q, %v", s, ok)
	}
	if b, ok := root.GetByte("flag"); !ok || b != 1 {
		t.Fatalf("flag = %v, %v", b, ok)
	}
	if b, ok := root.GetByte("off"); !ok || b != 0 {
		t.Fatalf("off = %v, %v", b, ok)
	}
}

func TestUnsuffixedNumberClassification(t *testing.T) {
	tag, err := Parse(`{i: 42, d: 3.14, negd: -2.5e3}`)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	root := tag.Value.(nbt.Compound)
	if v, ok := root.GetInt("i"); !ok || v != 42 {
		t.Fatalf("i = %v, %v", v, ok)
	}
	if v, ok := root.GetDouble("d"); !ok || v != 3.14 {
		t.Fatalf("d = %v, %v", v, ok)
	}
	if v, ok := root.GetDouble("negd"); !ok || v != -2500 {
		t.Fatalf("negd = %v, %v", v, ok)
	}
}

func TestQuotedKeysAndEscapes(t *testing.T) {
	tag, err := Parse(`{"weird key": "line1\nline2", 'single': 'it\'s'}`)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	root := tag.Value.(nbt.Compound)
	if s, ok := root.GetString("weird key"); !ok || s != "line1\nline2" {
		t.Fatalf("weird key = %q, %v", s, ok)
	}
	if s, ok := root.GetString("single"); !ok || s != "it's" {
		t.Fatalf("single = %q, %v", s, ok)
	}
}

func TestSerializeIdempotent(t *testing.T) {
	tag, err := Parse(`{a: 1, b: {c: [1,2,3], d: "hi"}, e: [I;1,2,3]}`)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	opts := DefaultOptions()
	first := Serialize(tag, opts)
	reparsed, err := Parse(first)
	if err != nil {
		t.Fatalf("reparse: %v", err)
	}
	second := Serialize(reparsed, opts)
	if first != second {
		t.Fatalf("serialization not idempotent:\nfirst:  %q\nsecond: %q", first, second)
	}
}

func TestExpandedModeRoundTrip(t *testing.T) {
	tag, err := Parse(`{a: 1, nested: {b: 2.5, list: ["x","y"]}}`)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	opts := DefaultOptions()
	opts.Mode = Expanded
	out := Serialize(tag, opts)

	reparsed, err := Parse(out)
	if err != nil {
		t.Fatalf("reparse expanded output: %v\noutput:\n%s", err, out)
	}
	if !nbt.DeepEqual(tag.Value, reparsed.Value) {
		t.Fatalf("expanded round trip mismatch")
	}
}

func TestTypedArrayRoundTrip(t *testing.T) {
	tag, err := Parse(`[L;-1,0,1,9223372036854775807]`)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	out := Serialize(tag, DefaultOptions())
	reparsed, err := Parse(out)
	if err != nil {
		t.Fatalf("reparse: %v", err)
	}
	if !nbt.DeepEqual(tag.Value, reparsed.Value) {
		t.Fatalf("long array round trip mismatch: got %v, want %v", reparsed.Value, tag.Value)
	}
}
