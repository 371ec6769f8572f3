package busmsg

import (
	"errors"
	"reflect"
	"slices"
	"strings"
)

// A msgEncoderFunc appends one value to a message through the
// message's typed operators, so that every reflected write passes the
// same container validation as a hand-written one.
type msgEncoderFunc func(m *Message, v reflect.Value)

var msgEncoders cache[reflect.Type, msgEncoderFunc]

// Append serializes the given values onto the end of the message in
// argument order, mapping each Go type to its wire type:
//
// uint{8,16,32,64}, int{16,32,64}, float64, bool and string values
// append the corresponding basic type. [Signature], [ObjectPath] and
// [FileDescriptor] values append the corresponding special basic
// types.
//
// Slice and array values append a wire array bracketed by container
// markers. Struct values append a wire struct, visiting exported
// fields in declaration order; embedded structs are flattened. Map
// values append an array of dict entries in ascending key order; the
// key's underlying type must be a basic type. [DictEntry] values
// append a lone dict entry. [Variant] values append a variant.
//
// A [Container] value appends an open marker, and a [ContainerEnd]
// appends the matching close marker; values between the two are
// validated against the container's content signature.
//
// Pointer values append the value pointed to, with nil pointers
// appending the zero value of the pointed-to type. int8, int, uint,
// uintptr, float32, complex, channel and function values have no wire
// representation and invalidate the message with a [TypeError].
func (m *Message) Append(vs ...any) *Message {
	for _, v := range vs {
		if m.err != nil {
			return m
		}
		switch val := v.(type) {
		case Container:
			m.OpenContainer(val)
			continue
		case ContainerEnd:
			m.CloseContainer()
			continue
		case Variant:
			m.PutVariant(val)
			continue
		}
		if v == nil {
			m.fail(typeErr(nil, "nil interface"))
			return m
		}
		enc, err := encoderFor(reflect.TypeOf(v))
		if err != nil {
			m.fail(err)
			return m
		}
		enc(m, reflect.ValueOf(v))
	}
	return m
}

func encoderFor(t reflect.Type) (ret msgEncoderFunc, err error) {
	if ret, err := msgEncoders.Get(t); err == nil {
		return ret, nil
	} else if !errors.Is(err, errNotFound) {
		return nil, err
	}
	// Note, defer captures the type value in case it gets messed with
	// below.
	defer func(t reflect.Type) {
		if err != nil {
			msgEncoders.SetErr(t, err)
		} else {
			msgEncoders.Set(t, ret)
		}
	}(t)

	switch t {
	case reflect.TypeFor[Variant]():
		return func(m *Message, v reflect.Value) {
			m.PutVariant(v.Interface().(Variant))
		}, nil
	case reflect.TypeFor[Signature]():
		return func(m *Message, v reflect.Value) {
			m.PutSignature(v.Interface().(Signature))
		}, nil
	case reflect.TypeFor[ObjectPath]():
		return func(m *Message, v reflect.Value) {
			m.PutObjectPath(ObjectPath(v.String()))
		}, nil
	case reflect.TypeFor[FileDescriptor]():
		return func(m *Message, v reflect.Value) {
			m.PutFD(FileDescriptor(v.Uint()))
		}, nil
	}

	if t.Implements(dictEntrierType) {
		return newDictEntryEncoder(t)
	}

	switch t.Kind() {
	case reflect.Pointer:
		return newPtrEncoder(t)
	case reflect.Bool:
		return func(m *Message, v reflect.Value) {
			m.PutBool(v.Bool())
		}, nil
	case reflect.Int, reflect.Uint:
		return nil, typeErr(t, "int and uint aren't portable, use fixed width integers")
	case reflect.Int8:
		return nil, typeErr(t, "int8 has no corresponding wire type, use uint8 instead")
	case reflect.Int16, reflect.Int32, reflect.Int64:
		return newIntEncoder(t), nil
	case reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return newUintEncoder(t), nil
	case reflect.Float32:
		return nil, typeErr(t, "float32 has no corresponding wire type, use float64 instead")
	case reflect.Float64:
		return func(m *Message, v reflect.Value) {
			m.PutDouble(v.Float())
		}, nil
	case reflect.String:
		return func(m *Message, v reflect.Value) {
			m.PutString(v.String())
		}, nil
	case reflect.Slice, reflect.Array:
		return newSliceEncoder(t)
	case reflect.Struct:
		return newStructEncoder(t)
	case reflect.Map:
		return newMapEncoder(t)
	}
	return nil, typeErr(t, "no wire mapping for type")
}

func newPtrEncoder(t reflect.Type) (msgEncoderFunc, error) {
	elemEnc, err := encoderFor(t.Elem())
	if err != nil {
		return nil, err
	}
	fn := func(m *Message, v reflect.Value) {
		if v.IsNil() {
			elemEnc(m, reflect.Zero(t.Elem()))
			return
		}
		elemEnc(m, v.Elem())
	}
	return fn, nil
}

func newIntEncoder(t reflect.Type) msgEncoderFunc {
	switch t.Size() {
	case 2:
		return func(m *Message, v reflect.Value) {
			m.PutInt16(int16(v.Int()))
		}
	case 4:
		return func(m *Message, v reflect.Value) {
			m.PutInt32(int32(v.Int()))
		}
	case 8:
		return func(m *Message, v reflect.Value) {
			m.PutInt64(v.Int())
		}
	default:
		panic("invalid newIntEncoder type")
	}
}

func newUintEncoder(t reflect.Type) msgEncoderFunc {
	switch t.Size() {
	case 1:
		return func(m *Message, v reflect.Value) {
			m.PutUint8(uint8(v.Uint()))
		}
	case 2:
		return func(m *Message, v reflect.Value) {
			m.PutUint16(uint16(v.Uint()))
		}
	case 4:
		return func(m *Message, v reflect.Value) {
			m.PutUint32(uint32(v.Uint()))
		}
	case 8:
		return func(m *Message, v reflect.Value) {
			m.PutUint64(v.Uint())
		}
	default:
		panic("invalid newUintEncoder type")
	}
}

func newSliceEncoder(t reflect.Type) (msgEncoderFunc, error) {
	elemSig, err := signatureFor(t.Elem(), nil)
	if err != nil {
		return nil, err
	}
	elemEnc, err := encoderFor(t.Elem())
	if err != nil {
		return nil, err
	}
	open := Container{Kind: KindArray, Content: elemSig.String()}

	fn := func(m *Message, v reflect.Value) {
		m.OpenContainer(open)
		for i := 0; i < v.Len() && m.err == nil; i++ {
			elemEnc(m, v.Index(i))
		}
		m.CloseContainer()
	}
	return fn, nil
}

func newStructEncoder(t reflect.Type) (msgEncoderFunc, error) {
	fs, err := getStructInfo(t)
	if err != nil {
		return nil, typeErr(t, "getting struct info: %w", err)
	}

	var (
		encs []msgEncoderFunc
		sigs []string
	)
	for _, f := range fs.Fields {
		// Signature first: it fails fast on field types with no wire
		// mapping, including recursive ones.
		fSig, err := signatureFor(f.Type, nil)
		if err != nil {
			return nil, err
		}
		fEnc, err := encoderFor(f.Type)
		if err != nil {
			return nil, err
		}
		encs = append(encs, fEnc)
		sigs = append(sigs, fSig.String())
	}
	open := Container{Kind: KindStruct, Content: strings.Join(sigs, "")}

	fn := func(m *Message, v reflect.Value) {
		m.OpenContainer(open)
		for i, f := range fs.Fields {
			if m.err != nil {
				break
			}
			fv := fieldByIndex(v, f.Index)
			if !fv.IsValid() {
				fv = reflect.Zero(f.Type)
			}
			encs[i](m, fv)
		}
		m.CloseContainer()
	}
	return fn, nil
}

func newMapEncoder(t reflect.Type) (msgEncoderFunc, error) {
	kt := t.Key()
	if !mapKeyKinds.Has(kt.Kind()) {
		return nil, typeErr(t, "invalid map key type %s", kt)
	}
	kSig, err := signatureFor(kt, nil)
	if err != nil {
		return nil, err
	}
	vSig, err := signatureFor(t.Elem(), nil)
	if err != nil {
		return nil, err
	}
	kEnc, err := encoderFor(kt)
	if err != nil {
		return nil, err
	}
	vEnc, err := encoderFor(t.Elem())
	if err != nil {
		return nil, err
	}
	kCmp := mapKeyCmp(kt)
	entryContent := kSig.String() + vSig.String()
	openArray := Container{Kind: KindArray, Content: "{" + entryContent + "}"}
	openEntry := Container{Kind: KindDictEntry, Content: entryContent}

	fn := func(m *Message, v reflect.Value) {
		ks := v.MapKeys()
		slices.SortFunc(ks, kCmp)
		m.OpenContainer(openArray)
		for _, mk := range ks {
			if m.err != nil {
				break
			}
			m.OpenContainer(openEntry)
			kEnc(m, mk)
			vEnc(m, v.MapIndex(mk))
			m.CloseContainer()
		}
		m.CloseContainer()
	}
	return fn, nil
}

func newDictEntryEncoder(t reflect.Type) (msgEncoderFunc, error) {
	ks, vs, err := reflect.Zero(t).Interface().(dictEntrier).keyValueSignatures()
	if err != nil {
		return nil, err
	}
	if !mapKeyKinds.Has(ks.Type().Kind()) {
		return nil, typeErr(t, "invalid dict entry key type %s", ks.Type())
	}
	kEnc, err := encoderFor(t.Field(0).Type)
	if err != nil {
		return nil, err
	}
	vEnc, err := encoderFor(t.Field(1).Type)
	if err != nil {
		return nil, err
	}
	open := Container{Kind: KindDictEntry, Content: ks.String() + vs.String()}

	fn := func(m *Message, v reflect.Value) {
		m.OpenContainer(open)
		kEnc(m, v.Field(0))
		vEnc(m, v.Field(1))
		m.CloseContainer()
	}
	return fn, nil
}
