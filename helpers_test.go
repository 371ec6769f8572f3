package busmsg

// Simple is a struct with simple fields.
type Simple struct {
	A int16
	B bool
}

// Nested is a struct with a struct field.
type Nested struct {
	A byte
	B Simple
}

// Embedded is a struct that embeds another struct by value.
type Embedded struct {
	Simple
	C byte
}

// EmbeddedShadow is a struct that embeds another struct by value,
// with one of the embedded fields shadowed by an outer field.
type EmbeddedShadow struct {
	Simple
	B byte
}

// Arrays is a struct with various degrees of complicated arrays
// inside.
type Arrays struct {
	A []string
	B []Simple
	C [][]Nested
}

// Tree is a self-referential struct that can't be represented in the
// wire format.
type Tree struct {
	Left  *Tree
	Right *Tree
}

// BoolDouble matches the wire signature "(bd)".
type BoolDouble struct {
	A bool
	B float64
}

func ptr[T any](v T) *T {
	return &v
}
