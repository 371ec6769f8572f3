package busmsg

import (
	"errors"
	"fmt"
	"reflect"
	"slices"
	"strings"
)

// A Signature describes the type of a wire value.
type Signature struct {
	typ reflect.Type
	str string
}

// String returns the string encoding of the Signature, in the wire
// type grammar.
func (s Signature) String() string {
	return s.str
}

// IsZero reports whether the signature is the zero value. A zero
// Signature describes a void value.
func (s Signature) IsZero() bool {
	return s.typ == nil
}

// Type returns the reflect.Type the Signature represents.
//
// If [Signature.IsZero] is true, Type returns nil.
func (s Signature) Type() reflect.Type {
	return s.typ
}

var (
	typeToSignature cache[reflect.Type, Signature]
	strToSignature  cache[string, Signature]
)

func mkSignature(typ reflect.Type, str string) Signature {
	return Signature{typ, str}
}

// ParseSignature parses a wire type signature string. A string
// containing several complete types parses as a struct of those
// types.
func ParseSignature(sig string) (Signature, error) {
	if ret, err := strToSignature.Get(sig); err == nil {
		return ret, nil
	} else if !errors.Is(err, errNotFound) {
		return Signature{}, err
	}

	var (
		rest  = sig
		parts []reflect.Type
		part  reflect.Type
		err   error
	)
	for rest != "" {
		part, rest, err = parseOne(rest, false)
		if err != nil {
			err := fmt.Errorf("invalid type signature %q: %w", sig, err)
			strToSignature.SetErr(sig, err)
			return Signature{}, err
		}
		parts = append(parts, part)
	}

	var ret Signature
	switch len(parts) {
	case 0:
		ret = mkSignature(nil, "")
	case 1:
		ret = mkSignature(parts[0], sig)
	default:
		fs := make([]reflect.StructField, len(parts))
		for i, f := range parts {
			fs[i] = reflect.StructField{
				Name: fmt.Sprintf("Field%d", i),
				Type: f,
			}
		}
		st := reflect.StructOf(fs)
		ret = mkSignature(st, "("+sig+")")
		// Also add the adjusted struct signature to cache.
		strToSignature.Set(ret.str, ret)
	}

	typeToSignature.Set(ret.typ, ret)
	strToSignature.Set(sig, ret)

	return ret, nil
}

func mustParseSignature(sig string) Signature {
	ret, err := ParseSignature(sig)
	if err != nil {
		panic(err)
	}
	return ret
}

// parseOne consumes the first complete type from the front of sig,
// and returns the corresponding reflect.Type as well as the remainder
// of the type string.
func parseOne(sig string, inArray bool) (t reflect.Type, rest string, err error) {
	if ret, ok := strToType[sig[0]]; ok {
		return ret, sig[1:], nil
	}

	switch sig[0] {
	case 'a':
		if len(sig) == 1 {
			return nil, "", errors.New("missing element type in array definition")
		}
		isDict := sig[1] == '{'
		elem, rest, err := parseOne(sig[1:], true)
		if err != nil {
			return nil, "", err
		}
		if isDict {
			return elem, rest, nil // sub-parser already produced a map
		}
		return reflect.SliceOf(elem), rest, nil
	case '(':
		var (
			fields []reflect.Type
			field  reflect.Type
			rest   = sig[1:]
			err    error
		)
		for rest != "" && rest[0] != ')' {
			field, rest, err = parseOne(rest, false)
			if err != nil {
				return nil, "", err
			}
			fields = append(fields, field)
		}
		if rest == "" {
			return nil, "", errors.New("missing closing ) in struct definition")
		}
		fs := make([]reflect.StructField, len(fields))
		for i, f := range fields {
			fs[i] = reflect.StructField{
				Name: fmt.Sprintf("Field%d", i),
				Type: f,
			}
		}
		return reflect.StructOf(fs), rest[1:], nil
	case '{':
		if !inArray {
			return nil, "", errors.New("dict entry type found outside array")
		}
		key, rest, err := parseOne(sig[1:], false)
		if err != nil {
			return nil, "", err
		}
		if !mapKeyKinds.Has(key.Kind()) {
			return nil, "", fmt.Errorf("invalid dict entry key type %s, must be a basic type", key)
		}
		val, rest, err := parseOne(rest, false)
		if err != nil {
			return nil, "", err
		}
		if rest == "" || rest[0] != '}' {
			return nil, "", errors.New("missing closing } in dict entry definition")
		}
		return reflect.MapOf(key, val), rest[1:], nil
	default:
		return nil, "", fmt.Errorf("unknown type specifier %q", sig[0])
	}
}

// SignatureFor returns the Signature for the given type.
func SignatureFor[T any]() (Signature, error) {
	return signatureFor(reflect.TypeFor[T](), nil)
}

// SignatureOf returns the Signature of the given value.
func SignatureOf(v any) (Signature, error) {
	return signatureFor(reflect.TypeOf(v), nil)
}

var dictEntrierType = reflect.TypeFor[dictEntrier]()

func signatureFor(t reflect.Type, stack []reflect.Type) (sig Signature, err error) {
	if ret, err := typeToSignature.Get(t); err == nil {
		return ret, nil
	} else if !errors.Is(err, errNotFound) {
		return Signature{}, err
	}

	if slices.Contains(stack, t) {
		return Signature{}, typeErr(t, "recursive type has no finite signature")
	}
	stack = append(stack, t)

	// Note, defer captures the type value before we mess with it
	// below.
	defer func(t reflect.Type) {
		if err != nil {
			typeToSignature.SetErr(t, err)
		} else {
			typeToSignature.Set(t, sig)
		}
	}(t)

	if t == nil {
		return Signature{}, typeErr(t, "nil interface")
	}

	t = derefType(t)

	switch t {
	case reflect.TypeFor[Signature]():
		return mkSignature(t, "g"), nil
	case reflect.TypeFor[ObjectPath]():
		return mkSignature(t, "o"), nil
	case reflect.TypeFor[FileDescriptor]():
		return mkSignature(t, "h"), nil
	case reflect.TypeFor[Variant]():
		return mkSignature(t, "v"), nil
	}

	if t.Implements(dictEntrierType) {
		ks, vs, err := reflect.Zero(t).Interface().(dictEntrier).keyValueSignatures()
		if err != nil {
			return Signature{}, err
		}
		if !mapKeyKinds.Has(ks.typ.Kind()) {
			return Signature{}, typeErr(t, "invalid dict entry key type %s, must be a basic type", ks.typ)
		}
		return mkSignature(t, "{"+ks.str+vs.str+"}"), nil
	}

	if ret := kindToType[t.Kind()]; ret != nil {
		return mkSignature(ret, string(kindToStr[t.Kind()])), nil
	}

	switch t.Kind() {
	case reflect.Slice, reflect.Array:
		es, err := signatureFor(t.Elem(), stack)
		if err != nil {
			return Signature{}, err
		}
		return mkSignature(reflect.SliceOf(es.typ), "a"+es.str), nil
	case reflect.Map:
		k := t.Key()
		if k == reflect.TypeFor[any]() {
			return Signature{}, typeErr(t, "map keys cannot be any")
		}
		switch k.Kind() {
		case reflect.Slice:
			return Signature{}, typeErr(t, "map keys cannot be slices")
		case reflect.Array:
			return Signature{}, typeErr(t, "map keys cannot be arrays")
		case reflect.Struct:
			return Signature{}, typeErr(t, "map keys cannot be structs")
		}
		ks, err := signatureFor(k, stack)
		if err != nil {
			return Signature{}, err
		}
		vs, err := signatureFor(t.Elem(), stack)
		if err != nil {
			return Signature{}, err
		}

		return mkSignature(reflect.MapOf(ks.typ, vs.typ), "a{"+ks.str+vs.str+"}"), nil
	case reflect.Struct:
		fs, err := getStructInfo(t)
		if err != nil {
			return Signature{}, typeErr(t, "getting struct info: %w", err)
		}
		var s []string
		for _, f := range fs.Fields {
			// Descend through all fields, to look for cyclic
			// references.
			fieldSig, err := signatureFor(f.Type, stack)
			if err != nil {
				return Signature{}, err
			}
			s = append(s, fieldSig.str)
		}
		return mkSignature(t, "("+strings.Join(s, "")+")"), nil
	}

	return Signature{}, typeErr(t, "no wire mapping available")
}

// firstComplete returns the length in bytes of the first complete
// type at the front of sig.
func firstComplete(sig string) (int, error) {
	if sig == "" {
		return 0, errors.New("empty signature")
	}
	switch c := sig[0]; c {
	case 'a':
		n, err := firstComplete(sig[1:])
		return 1 + n, err
	case '(':
		i := 1
		for i < len(sig) && sig[i] != ')' {
			n, err := firstComplete(sig[i:])
			if err != nil {
				return 0, err
			}
			i += n
		}
		if i >= len(sig) {
			return 0, errors.New("missing closing ) in struct definition")
		}
		return i + 1, nil
	case '{':
		i := 1
		for j := 0; j < 2; j++ {
			if i < len(sig) && sig[i] == '}' {
				return 0, errors.New("dict entry must hold exactly two types")
			}
			n, err := firstComplete(sig[i:])
			if err != nil {
				return 0, err
			}
			i += n
		}
		if i >= len(sig) || sig[i] != '}' {
			return 0, errors.New("missing closing } in dict entry definition")
		}
		return i + 1, nil
	default:
		if _, ok := strToType[c]; !ok {
			return 0, fmt.Errorf("unknown type specifier %q", c)
		}
		return 1, nil
	}
}

// SplitSignature splits a signature string into its complete types.
func SplitSignature(sig string) ([]string, error) {
	var out []string
	for sig != "" {
		n, err := firstComplete(sig)
		if err != nil {
			return nil, fmt.Errorf("invalid type signature %q: %w", sig, err)
		}
		out = append(out, sig[:n])
		sig = sig[n:]
	}
	return out, nil
}

// completeTypes reports whether sig is a concatenation of zero or
// more complete types.
func completeTypes(sig string) bool {
	for sig != "" {
		n, err := firstComplete(sig)
		if err != nil {
			return false
		}
		sig = sig[n:]
	}
	return true
}

// singleComplete reports whether sig is exactly one complete type.
func singleComplete(sig string) bool {
	n, err := firstComplete(sig)
	return err == nil && n == len(sig)
}

// isReduced reports whether sig is in reduced form. A signature that
// wraps a single complete type in a one-element struct is not
// reduced: the bare inner type describes the same value.
func isReduced(sig string) bool {
	if !strings.HasPrefix(sig, "(") || !strings.HasSuffix(sig, ")") {
		return true
	}
	return !singleComplete(sig[1 : len(sig)-1])
}
