package busmsg

import (
	"errors"
	"reflect"
	"strings"
)

// A msgDecoderFunc reads one value from a message into v, which must
// be settable.
type msgDecoderFunc func(m *Message, v reflect.Value)

var msgDecoders cache[reflect.Type, msgDecoderFunc]

// Decode reads values from the message into the given pointers in
// argument order, applying the inverse of the mapping documented on
// [Message.Append]. The layout of the remaining stream must match the
// targets' signatures, or the message becomes invalid.
//
// When decoding into a slice, Decode resets the slice to zero length
// and appends each array element in encounter order. When decoding
// into a map, Decode allocates a fresh map and stores the incoming
// entries in encounter order; for duplicate keys, the last value
// wins. Nil pointers along the way are allocated as needed.
func (m *Message) Decode(ptrs ...any) *Message {
	for _, p := range ptrs {
		if m.err != nil {
			return m
		}
		rv := reflect.ValueOf(p)
		if rv.Kind() != reflect.Pointer || rv.IsNil() {
			m.fail(typeErr(reflect.TypeOf(p), "decode target must be a non-nil pointer"))
			return m
		}
		dec, err := decoderFor(rv.Type().Elem())
		if err != nil {
			m.fail(err)
			return m
		}
		dec(m, rv.Elem())
	}
	return m
}

func decoderFor(t reflect.Type) (ret msgDecoderFunc, err error) {
	if ret, err := msgDecoders.Get(t); err == nil {
		return ret, nil
	} else if !errors.Is(err, errNotFound) {
		return nil, err
	}
	defer func(t reflect.Type) {
		if err != nil {
			msgDecoders.SetErr(t, err)
		} else {
			msgDecoders.Set(t, ret)
		}
	}(t)

	switch t {
	case reflect.TypeFor[Variant]():
		return func(m *Message, v reflect.Value) {
			v.Set(reflect.ValueOf(m.ReadVariant()))
		}, nil
	case reflect.TypeFor[Signature]():
		return func(m *Message, v reflect.Value) {
			v.Set(reflect.ValueOf(m.ReadSignature()))
		}, nil
	case reflect.TypeFor[ObjectPath]():
		return func(m *Message, v reflect.Value) {
			v.SetString(string(m.ReadObjectPath()))
		}, nil
	case reflect.TypeFor[FileDescriptor]():
		return func(m *Message, v reflect.Value) {
			v.SetUint(uint64(m.ReadFD()))
		}, nil
	}

	if t.Implements(dictEntrierType) {
		return newDictEntryDecoder(t)
	}

	switch t.Kind() {
	case reflect.Pointer:
		return newPtrDecoder(t)
	case reflect.Bool:
		return func(m *Message, v reflect.Value) {
			v.SetBool(m.ReadBool())
		}, nil
	case reflect.Int, reflect.Uint:
		return nil, typeErr(t, "int and uint aren't portable, use fixed width integers")
	case reflect.Int8:
		return nil, typeErr(t, "int8 has no corresponding wire type, use uint8 instead")
	case reflect.Int16, reflect.Int32, reflect.Int64:
		return newIntDecoder(t), nil
	case reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return newUintDecoder(t), nil
	case reflect.Float32:
		return nil, typeErr(t, "float32 has no corresponding wire type, use float64 instead")
	case reflect.Float64:
		return func(m *Message, v reflect.Value) {
			v.SetFloat(m.ReadDouble())
		}, nil
	case reflect.String:
		return func(m *Message, v reflect.Value) {
			v.SetString(m.ReadString())
		}, nil
	case reflect.Slice:
		return newSliceDecoder(t)
	case reflect.Array:
		return newArrayDecoder(t)
	case reflect.Struct:
		return newStructDecoder(t)
	case reflect.Map:
		return newMapDecoder(t)
	}
	return nil, typeErr(t, "no wire mapping for type")
}

func newPtrDecoder(t reflect.Type) (msgDecoderFunc, error) {
	elemDec, err := decoderFor(t.Elem())
	if err != nil {
		return nil, err
	}
	fn := func(m *Message, v reflect.Value) {
		if v.IsNil() {
			v.Set(reflect.New(t.Elem()))
		}
		elemDec(m, v.Elem())
	}
	return fn, nil
}

func newIntDecoder(t reflect.Type) msgDecoderFunc {
	switch t.Size() {
	case 2:
		return func(m *Message, v reflect.Value) {
			v.SetInt(int64(m.ReadInt16()))
		}
	case 4:
		return func(m *Message, v reflect.Value) {
			v.SetInt(int64(m.ReadInt32()))
		}
	case 8:
		return func(m *Message, v reflect.Value) {
			v.SetInt(m.ReadInt64())
		}
	default:
		panic("invalid newIntDecoder type")
	}
}

func newUintDecoder(t reflect.Type) msgDecoderFunc {
	switch t.Size() {
	case 1:
		return func(m *Message, v reflect.Value) {
			v.SetUint(uint64(m.ReadUint8()))
		}
	case 2:
		return func(m *Message, v reflect.Value) {
			v.SetUint(uint64(m.ReadUint16()))
		}
	case 4:
		return func(m *Message, v reflect.Value) {
			v.SetUint(uint64(m.ReadUint32()))
		}
	case 8:
		return func(m *Message, v reflect.Value) {
			v.SetUint(m.ReadUint64())
		}
	default:
		panic("invalid newUintDecoder type")
	}
}

func newSliceDecoder(t reflect.Type) (msgDecoderFunc, error) {
	elemSig, err := signatureFor(t.Elem(), nil)
	if err != nil {
		return nil, err
	}
	elemDec, err := decoderFor(t.Elem())
	if err != nil {
		return nil, err
	}
	open := Container{Kind: KindArray, Content: elemSig.String()}

	fn := func(m *Message, v reflect.Value) {
		v.Set(reflect.MakeSlice(t, 0, 0))
		m.EnterContainer(open)
		for !m.End() {
			el := reflect.New(t.Elem()).Elem()
			elemDec(m, el)
			if m.err != nil {
				return
			}
			v.Set(reflect.Append(v, el))
		}
		m.ExitContainer()
	}
	return fn, nil
}

func newArrayDecoder(t reflect.Type) (msgDecoderFunc, error) {
	elemSig, err := signatureFor(t.Elem(), nil)
	if err != nil {
		return nil, err
	}
	elemDec, err := decoderFor(t.Elem())
	if err != nil {
		return nil, err
	}
	open := Container{Kind: KindArray, Content: elemSig.String()}

	fn := func(m *Message, v reflect.Value) {
		m.EnterContainer(open)
		for i := 0; i < t.Len(); i++ {
			if m.End() {
				m.fail(typeErr(t, "wire array has fewer than %d elements", t.Len()))
				return
			}
			elemDec(m, v.Index(i))
			if m.err != nil {
				return
			}
		}
		m.ExitContainer()
	}
	return fn, nil
}

func newStructDecoder(t reflect.Type) (msgDecoderFunc, error) {
	fs, err := getStructInfo(t)
	if err != nil {
		return nil, typeErr(t, "getting struct info: %w", err)
	}

	var (
		decs []msgDecoderFunc
		sigs []string
	)
	for _, f := range fs.Fields {
		fSig, err := signatureFor(f.Type, nil)
		if err != nil {
			return nil, err
		}
		fDec, err := decoderFor(f.Type)
		if err != nil {
			return nil, err
		}
		decs = append(decs, fDec)
		sigs = append(sigs, fSig.String())
	}
	open := Container{Kind: KindStruct, Content: strings.Join(sigs, "")}

	fn := func(m *Message, v reflect.Value) {
		m.EnterContainer(open)
		for i, f := range fs.Fields {
			if m.err != nil {
				return
			}
			decs[i](m, fieldByIndexAlloc(v, f.Index))
		}
		m.ExitContainer()
	}
	return fn, nil
}

func newMapDecoder(t reflect.Type) (msgDecoderFunc, error) {
	kt, vt := t.Key(), t.Elem()
	if !mapKeyKinds.Has(kt.Kind()) {
		return nil, typeErr(t, "invalid map key type %s", kt)
	}
	kSig, err := signatureFor(kt, nil)
	if err != nil {
		return nil, err
	}
	vSig, err := signatureFor(vt, nil)
	if err != nil {
		return nil, err
	}
	kDec, err := decoderFor(kt)
	if err != nil {
		return nil, err
	}
	vDec, err := decoderFor(vt)
	if err != nil {
		return nil, err
	}
	entryContent := kSig.String() + vSig.String()
	openArray := Container{Kind: KindArray, Content: "{" + entryContent + "}"}
	openEntry := Container{Kind: KindDictEntry, Content: entryContent}

	fn := func(m *Message, v reflect.Value) {
		v.Set(reflect.MakeMap(t))
		m.EnterContainer(openArray)
		for !m.End() {
			m.EnterContainer(openEntry)
			mk := reflect.New(kt).Elem()
			mv := reflect.New(vt).Elem()
			kDec(m, mk)
			vDec(m, mv)
			m.ExitContainer()
			if m.err != nil {
				return
			}
			v.SetMapIndex(mk, mv)
		}
		m.ExitContainer()
	}
	return fn, nil
}

func newDictEntryDecoder(t reflect.Type) (msgDecoderFunc, error) {
	ks, vs, err := reflect.Zero(t).Interface().(dictEntrier).keyValueSignatures()
	if err != nil {
		return nil, err
	}
	kDec, err := decoderFor(t.Field(0).Type)
	if err != nil {
		return nil, err
	}
	vDec, err := decoderFor(t.Field(1).Type)
	if err != nil {
		return nil, err
	}
	open := Container{Kind: KindDictEntry, Content: ks.String() + vs.String()}

	fn := func(m *Message, v reflect.Value) {
		m.EnterContainer(open)
		kDec(m, v.Field(0))
		vDec(m, v.Field(1))
		m.ExitContainer()
	}
	return fn, nil
}
