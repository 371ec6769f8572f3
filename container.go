package busmsg

import "fmt"

// ContainerKind identifies the kind of composite value a Container
// brackets.
type ContainerKind byte

const (
	KindArray ContainerKind = iota
	KindStruct
	KindDictEntry
	KindVariant

	// kindBody is the implicit outermost container holding a
	// message's top-level values.
	kindBody ContainerKind = 0xff
)

func (k ContainerKind) String() string {
	switch k {
	case KindArray:
		return "array"
	case KindStruct:
		return "struct"
	case KindDictEntry:
		return "dict entry"
	case KindVariant:
		return "variant"
	case kindBody:
		return "message body"
	default:
		return fmt.Sprintf("ContainerKind(%d)", byte(k))
	}
}

// A Container marks the start of a composite value in a message
// stream. Content is the signature of what the container brackets:
// the element type for arrays, the concatenated field types for
// structs and dict entries (without the surrounding delimiters), and
// the payload type for variants.
//
// Containers are transient: they exist only as the open marker of a
// composite region and have no standalone identity in the stream.
type Container struct {
	Kind    ContainerKind
	Content string
}

// ContainerEnd closes the innermost currently open container. Every
// open marker must be paired with exactly one ContainerEnd, strictly
// last-in-first-out.
type ContainerEnd struct{}

// signature returns the signature the container occupies in its
// enclosing context, and validates Content for the container kind.
func (c Container) signature() (string, error) {
	switch c.Kind {
	case KindArray:
		if !singleComplete(c.Content) {
			return "", fmt.Errorf("array element signature %q is not one complete type", c.Content)
		}
		return "a" + c.Content, nil
	case KindStruct:
		if !completeTypes(c.Content) {
			return "", fmt.Errorf("struct content signature %q is malformed", c.Content)
		}
		return "(" + c.Content + ")", nil
	case KindDictEntry:
		n, err := firstComplete(c.Content)
		if err != nil || !isBasicCode(c.Content[0]) || !singleComplete(c.Content[n:]) {
			return "", fmt.Errorf("dict entry content signature %q is not a basic key and one value type", c.Content)
		}
		return "{" + c.Content + "}", nil
	case KindVariant:
		if !singleComplete(c.Content) {
			return "", fmt.Errorf("variant payload signature %q is not one complete type", c.Content)
		}
		return "v", nil
	default:
		return "", fmt.Errorf("invalid container kind %s", c.Kind)
	}
}

// alignsAsStruct reports whether values of the given signature align
// to 8 byte boundaries like structs do.
func alignsAsStruct(sig string) bool {
	return sig != "" && (sig[0] == '(' || sig[0] == '{')
}
