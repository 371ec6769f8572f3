package busmsg

import (
	"fmt"
	"reflect"
)

// TypeOps is the operations table for one concrete type: the four
// capabilities needed to handle the type behind a [Variant]. One
// immutable table exists per concrete type, built on first use and
// shared by reference across every Variant of that type.
type TypeOps struct {
	sig      string
	typ      reflect.Type
	copyFn   func(any) any
	encodeFn func(*Message, any)
	decodeFn func(*Message) (any, error)
	formatFn func(any) string
}

// Signature returns the signature of the type the table handles.
func (o *TypeOps) Signature() string {
	return o.sig
}

var typeOpsCache cache[reflect.Type, *TypeOps]

// opsFor returns the operations table for t, building and caching it
// on first use.
func opsFor(t reflect.Type) (*TypeOps, error) {
	if ret, err := typeOpsCache.Get(t); err == nil {
		return ret, nil
	}

	sig, err := signatureFor(t, nil)
	if err != nil {
		typeOpsCache.SetErr(t, err)
		return nil, err
	}
	enc, err := encoderFor(t)
	if err != nil {
		typeOpsCache.SetErr(t, err)
		return nil, err
	}
	dec, err := decoderFor(t)
	if err != nil {
		typeOpsCache.SetErr(t, err)
		return nil, err
	}

	ops := &TypeOps{
		sig: sig.String(),
		typ: t,
		copyFn: func(v any) any {
			return deepCopy(reflect.ValueOf(v)).Interface()
		},
		encodeFn: func(m *Message, v any) {
			enc(m, reflect.ValueOf(v))
		},
		decodeFn: func(m *Message) (any, error) {
			p := reflect.New(t)
			dec(m, p.Elem())
			if err := m.Err(); err != nil {
				return nil, err
			}
			return p.Elem().Interface(), nil
		},
		formatFn: formatValue,
	}
	typeOpsCache.Set(t, ops)
	return ops, nil
}

// A Variant is a type-erased box holding one value together with its
// signature and the operations table bound to the value's concrete
// type. The payload's dynamic type always matches the signature; the
// two are set together, never independently.
//
// The zero Variant holds no value: its signature is empty and
// encoding it is a no-op.
type Variant struct {
	sig  string
	data any
	ops  *TypeOps
}

// VariantOf boxes v. It returns a [TypeError] if v's type has no wire
// representation.
func VariantOf(v any) (Variant, error) {
	if v == nil {
		return Variant{}, nil
	}
	ops, err := opsFor(reflect.TypeOf(v))
	if err != nil {
		return Variant{}, err
	}
	return Variant{sig: ops.sig, data: v, ops: ops}, nil
}

// Signature returns the signature of the boxed value, or the empty
// string for the zero Variant.
func (v Variant) Signature() string {
	return v.sig
}

// Value returns the boxed value as an any, or nil for the zero
// Variant.
func (v Variant) Value() any {
	return v.data
}

// IsZero reports whether the Variant holds no value.
func (v Variant) IsZero() bool {
	return v.ops == nil
}

// Clone returns a Variant holding a deep copy of the boxed value,
// made through the bound operations table. The copy owns its payload
// exclusively.
func (v Variant) Clone() Variant {
	if v.ops == nil {
		return Variant{}
	}
	return Variant{sig: v.sig, data: v.ops.copyFn(v.data), ops: v.ops}
}

// DataAs returns the value boxed in v as a T. The caller must check
// [Variant.Signature] first: a signature mismatch is a programming
// error and panics.
func DataAs[T any](v Variant) T {
	want, err := SignatureFor[T]()
	if err != nil {
		panic(fmt.Sprintf("busmsg: DataAs: %v", err))
	}
	if v.sig != want.String() {
		panic(fmt.Sprintf("busmsg: DataAs[%s]: variant holds %q, not %q",
			reflect.TypeFor[T](), v.sig, want.String()))
	}
	return v.data.(T)
}

func (v Variant) String() string {
	if v.ops == nil {
		return "Variant(sig=, content=)"
	}
	return fmt.Sprintf("Variant(sig=%s, content=%s)", v.sig, v.ops.formatFn(v.data))
}

// formatValue renders a wire value for display.
func formatValue(v any) string {
	switch val := v.(type) {
	case Signature:
		return fmt.Sprintf("Signature(%s)", val.String())
	case fmt.Stringer:
		return val.String()
	default:
		return fmt.Sprint(v)
	}
}

// deepCopy returns a copy of v sharing no mutable state with it.
func deepCopy(v reflect.Value) reflect.Value {
	switch v.Kind() {
	case reflect.Slice:
		if v.IsNil() {
			return v
		}
		out := reflect.MakeSlice(v.Type(), v.Len(), v.Len())
		for i := 0; i < v.Len(); i++ {
			out.Index(i).Set(deepCopy(v.Index(i)))
		}
		return out
	case reflect.Map:
		if v.IsNil() {
			return v
		}
		out := reflect.MakeMapWithSize(v.Type(), v.Len())
		for _, k := range v.MapKeys() {
			out.SetMapIndex(k, deepCopy(v.MapIndex(k)))
		}
		return out
	case reflect.Struct:
		if v.Type() == reflect.TypeFor[Variant]() {
			return reflect.ValueOf(v.Interface().(Variant).Clone())
		}
		out := reflect.New(v.Type()).Elem()
		out.Set(v)
		for i := 0; i < v.NumField(); i++ {
			// Unexported fields cannot be set individually; the
			// whole-struct copy above already carried them over.
			if !v.Type().Field(i).IsExported() {
				continue
			}
			out.Field(i).Set(deepCopy(v.Field(i)))
		}
		return out
	case reflect.Pointer:
		if v.IsNil() {
			return v
		}
		out := reflect.New(v.Type().Elem())
		out.Elem().Set(deepCopy(v.Elem()))
		return out
	default:
		return v
	}
}
