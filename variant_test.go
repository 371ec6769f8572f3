package busmsg

import (
	"reflect"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestVariantOf(t *testing.T) {
	tests := []struct {
		in      any
		wantSig string
	}{
		{uint32(7), "u"},
		{"hello", "s"},
		{ObjectPath("/foo"), "o"},
		{mustParseSignature("ai"), "g"},
		{[]string{"a"}, "as"},
		{map[string]int64{"k": 1}, "a{sx}"},
		{Simple{A: 1, B: true}, "(nb)"},
	}

	for _, tc := range tests {
		v, err := VariantOf(tc.in)
		if err != nil {
			t.Errorf("VariantOf(%T): %v", tc.in, err)
			continue
		}
		if got := v.Signature(); got != tc.wantSig {
			t.Errorf("VariantOf(%T).Signature() = %q, want %q", tc.in, got, tc.wantSig)
		}
		if v.IsZero() {
			t.Errorf("VariantOf(%T).IsZero() = true, want false", tc.in)
		}
		if !reflect.DeepEqual(v.Value(), tc.in) {
			t.Errorf("VariantOf(%T).Value() = %v, want %v", tc.in, v.Value(), tc.in)
		}
	}
}

func TestVariantOfNil(t *testing.T) {
	v, err := VariantOf(nil)
	if err != nil {
		t.Fatalf("VariantOf(nil): %v", err)
	}
	if !v.IsZero() {
		t.Errorf("VariantOf(nil).IsZero() = false, want true")
	}
	if v.Value() != nil {
		t.Errorf("VariantOf(nil).Value() = %v, want nil", v.Value())
	}
}

func TestVariantOfUnrepresentable(t *testing.T) {
	for _, in := range []any{int(1), float32(1), Tree{}} {
		if _, err := VariantOf(in); err == nil {
			t.Errorf("VariantOf(%T): err = nil, want error", in)
		}
	}
}

func TestVariantString(t *testing.T) {
	tests := []struct {
		in   any
		want string
	}{
		{uint32(7), "Variant(sig=u, content=7)"},
		{"hello", "Variant(sig=s, content=hello)"},
		{true, "Variant(sig=b, content=true)"},
		{ObjectPath("/foo"), "Variant(sig=o, content=ObjectPath(/foo))"},
		{mustParseSignature("ai"), "Variant(sig=g, content=Signature(ai))"},
		{DictEntry[string, int32]{Key: "k", Value: 5}, "Variant(sig={si}, content=(k, 5))"},
	}

	for _, tc := range tests {
		v, err := VariantOf(tc.in)
		if err != nil {
			t.Errorf("VariantOf(%T): %v", tc.in, err)
			continue
		}
		if got := v.String(); got != tc.want {
			t.Errorf("VariantOf(%T).String() = %q, want %q", tc.in, got, tc.want)
		}
	}

	if got, want := (Variant{}).String(), "Variant(sig=, content=)"; got != want {
		t.Errorf("zero Variant String() = %q, want %q", got, want)
	}
}

func TestVariantClone(t *testing.T) {
	in := []string{"a", "b"}
	v, err := VariantOf(in)
	if err != nil {
		t.Fatalf("VariantOf: %v", err)
	}
	cl := v.Clone()

	// Mutating the original payload must not show through the clone.
	in[0] = "mutated"
	got := DataAs[[]string](cl)
	if diff := cmp.Diff(got, []string{"a", "b"}); diff != "" {
		t.Errorf("clone shares state with the original (-got+want):\n%s", diff)
	}
	if cl.Signature() != v.Signature() {
		t.Errorf("clone signature = %q, want %q", cl.Signature(), v.Signature())
	}
}

func TestVariantCloneNested(t *testing.T) {
	inner, err := VariantOf([]int64{1, 2})
	if err != nil {
		t.Fatalf("VariantOf: %v", err)
	}
	m := map[string]Variant{"k": inner}
	v, err := VariantOf(m)
	if err != nil {
		t.Fatalf("VariantOf: %v", err)
	}
	cl := v.Clone()

	DataAs[[]int64](m["k"])[0] = 99
	got := DataAs[[]int64](DataAs[map[string]Variant](cl)["k"])
	if diff := cmp.Diff(got, []int64{1, 2}); diff != "" {
		t.Errorf("nested clone shares state with the original (-got+want):\n%s", diff)
	}
}

func TestVariantCloneZero(t *testing.T) {
	cl := (Variant{}).Clone()
	if !cl.IsZero() {
		t.Error("Clone of zero Variant is not zero")
	}
}

func TestDataAs(t *testing.T) {
	v, err := VariantOf(uint32(7))
	if err != nil {
		t.Fatalf("VariantOf: %v", err)
	}
	if got := DataAs[uint32](v); got != 7 {
		t.Errorf("DataAs[uint32] = %d, want 7", got)
	}
}

func TestDataAsMismatchPanics(t *testing.T) {
	v, err := VariantOf(uint32(7))
	if err != nil {
		t.Fatalf("VariantOf: %v", err)
	}
	defer func() {
		if recover() == nil {
			t.Error("DataAs[string] of a uint32 variant did not panic")
		}
	}()
	DataAs[string](v)
}

func TestTypeOpsShared(t *testing.T) {
	a, err := VariantOf(uint32(1))
	if err != nil {
		t.Fatalf("VariantOf: %v", err)
	}
	b, err := VariantOf(uint32(2))
	if err != nil {
		t.Fatalf("VariantOf: %v", err)
	}
	if a.ops != b.ops {
		t.Error("variants of the same type do not share an operations table")
	}
}
