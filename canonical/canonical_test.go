package canonical

import (
	"math"
	"testing"
)

func TestMarshal_KeyOrderInvariant(t *testing.T) {
	a := map[string]any{"a": 1, "b": 2, "c": []any{"x", "y"}}
	b := map[string]any{"c": []any{"x", "y"}, "b": 2, "a": 1}

	sa, err := MarshalString(a)
	if err != nil {
		t.Fatalf("Marshal(a): %v", err)
	}
	sb, err := MarshalString(b)
	if err != nil {
		t.Fatalf("Marshal(b): %v", err)
	}
	if sa != sb {
		t.Fatalf("key order changed serialization: %q vs %q", sa, sb)
	}
	if sa != `{"a":1,"b":2,"c":["x","y"]}` {
		t.Fatalf("unexpected canonical form: %q", sa)
	}
}

func TestMarshal_StructAndMapAgree(t *testing.T) {
	type pair struct {
		B string `json:"b"`
		A int    `json:"a"`
	}
	fromStruct, err := MarshalString(pair{B: "two", A: 1})
	if err != nil {
		t.Fatalf("Marshal(struct): %v", err)
	}
	fromMap, err := MarshalString(map[string]any{"a": 1, "b": "two"})
	if err != nil {
		t.Fatalf("Marshal(map): %v", err)
	}
	if fromStruct != fromMap {
		t.Fatalf("struct and map disagree: %q vs %q", fromStruct, fromMap)
	}
}

func TestMarshal_NestedSorting(t *testing.T) {
	v := map[string]any{
		"outer": map[string]any{"z": 0, "m": map[string]any{"b": 1, "a": 2}},
	}
	got, err := MarshalString(v)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	want := `{"outer":{"m":{"a":2,"b":1},"z":0}}`
	if got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestMarshal_ArrayOrderPreserved(t *testing.T) {
	a, _ := MarshalString([]any{1, 2, 3})
	b, _ := MarshalString([]any{3, 2, 1})
	if a == b {
		t.Fatal("array order must be significant")
	}
}

func TestMarshal_NumbersStayMinimal(t *testing.T) {
	got, err := MarshalString(map[string]any{"n": 100, "f": 2.5, "big": int64(1 << 53)})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	want := `{"big":9007199254740992,"f":2.5,"n":100}`
	if got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestMarshal_RejectsNonJSON(t *testing.T) {
	if _, err := Marshal(math.NaN()); err == nil {
		t.Fatal("expected error for NaN")
	}
	if _, err := Marshal(make(chan int)); err == nil {
		t.Fatal("expected error for channel")
	}
}

func TestMarshal_StringEscaping(t *testing.T) {
	a, err := MarshalString(map[string]any{"s": "line\n\"quote\""})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	b, err := MarshalString(map[string]any{"s": "line\n\"quote\""})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if a != b {
		t.Fatal("escaping not deterministic")
	}
}
