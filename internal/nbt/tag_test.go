package nbt

import (
	"bytes"
	"math"
	"testing"
)

func roundTrip(t *testing.T, doc *Document) *Document {
	t.Helper()
	var buf bytes.Buffer
	if err := NewWriter(&buf).WriteDocument(doc); err != nil {
		t.Fatalf("WriteDocument: %v", err)
	}
	got, err := NewReader(bytes.NewReader(buf.Bytes())).ReadDocument()
	if err != nil {
		t.Fatalf("ReadDocument: %v", err)
	}
	return got
}

func TestDocumentRoundTrip(t *testing.T) {
	root := Compound{}
	root.SetString("name", "hello world")
	root.SetInt("version", 42)
	root.SetByteArray("payload", []byte{1, 2, 3})
	root.SetList("nums", &List{Type: TagInt, Values: []any{int32(1), int32(2), int32(3)}})
	sub := Compound{}
	sub.SetDouble("x", 12.5)
	root.SetCompound("sub", sub)

	doc := &Document{Name: "root", Root: root}
	got := roundTrip(t, doc)

	if got.Name != doc.Name {
		t.Fatalf("name = %q, want %q", got.Name, doc.Name)
	}
	if !DeepEqual(got.Root, doc.Root) {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got.Root, doc.Root)
	}
}

func TestEmptyListDefaultsToCompound(t *testing.T) {
	root := Compound{}
	root.SetList("empty", &List{})
	doc := &Document{Root: root}
	got := roundTrip(t, doc)

	l, ok := got.Root.GetList("empty")
	if !ok {
		t.Fatal("missing list after round trip")
	}
	if l.Type != TagCompound {
		t.Fatalf("empty list element type = %d, want TagCompound", l.Type)
	}
}

func TestNaNRoundTripAndDeepEqual(t *testing.T) {
	root := Compound{}
	root.SetDouble("nan", math.NaN())
	root.SetFloat("nanf", float32(math.NaN()))
	doc := &Document{Root: root}
	got := roundTrip(t, doc)

	if !DeepEqual(got.Root, doc.Root) {
		t.Fatal("NaN values should compare equal under DeepEqual")
	}
}

func TestModifiedUTF8SpecialChars(t *testing.T) {
	cases := []string{
		"plain ascii",
		"\x00embedded nul",
		"emoji \U0001F600 surrogate pair",
		"snowman ☃",
	}
	for _, s := range cases {
		root := Compound{}
		root.SetString("s", s)
		doc := &Document{Root: root}
		got := roundTrip(t, doc)
		gotStr, ok := got.Root.GetString("s")
		if !ok || gotStr != s {
			t.Fatalf("string round trip: got %q, want %q", gotStr, s)
		}
	}
}

func TestReadDocumentRejectsNonCompoundRoot(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	if err := w.WriteTag(&Tag{Type: TagInt, Name: "", Value: int32(1)}); err != nil {
		t.Fatalf("WriteTag: %v", err)
	}
	if _, err := NewReader(bytes.NewReader(buf.Bytes())).ReadDocument(); err == nil {
		t.Fatal("expected error for non-compound root")
	}
}
