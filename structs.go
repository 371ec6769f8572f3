package busmsg

import (
	"cmp"
	"iter"
	"reflect"
)

// structField is the information about a struct field that needs to
// be marshalled or unmarshalled.
type structField struct {
	Name  string
	Index []int
	Type  reflect.Type
}

// structInfo is the information about a struct's wire-relevant
// fields, in declared order.
type structInfo struct {
	Fields []*structField
}

var structInfos cache[reflect.Type, *structInfo]

// getStructInfo returns the structInfo for t. Exported fields are
// visited in declaration order; embedded structs are flattened into
// the outer struct; unexported fields and fields tagged `dbus:"-"`
// are skipped.
func getStructInfo(t reflect.Type) (*structInfo, error) {
	if ret, err := structInfos.Get(t); err == nil {
		return ret, nil
	}

	ret := &structInfo{}
	for f := range structFields(t, nil) {
		if !f.IsExported() {
			continue
		}
		if f.Tag.Get("dbus") == "-" {
			continue
		}
		ret.Fields = append(ret.Fields, &structField{
			Name:  f.Name,
			Index: f.Index,
			Type:  f.Type,
		})
	}
	structInfos.Set(t, ret)
	return ret, nil
}

// structFields iterates t's fields in declaration order, descending
// into embedded structs as if their fields were declared in the outer
// struct.
func structFields(t reflect.Type, idx []int) iter.Seq[reflect.StructField] {
	return func(yield func(reflect.StructField) bool) {
		for i := range t.NumField() {
			f := t.Field(i)
			idx = append(idx, i)
			if f.Anonymous {
				at := f.Type
				if at.Kind() == reflect.Pointer {
					at = at.Elem()
				}
				if at.Kind() == reflect.Struct {
					for af := range structFields(at, idx) {
						if !yield(af) {
							return
						}
					}
					idx = idx[:len(idx)-1]
					continue
				}
			}
			f.Index = append([]int(nil), idx...)
			if !yield(f) {
				return
			}
			idx = idx[:len(idx)-1]
		}
	}
}

func derefType(t reflect.Type) reflect.Type {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t
}

// fieldByIndex loads the field identified by idx from structVal,
// traversing embedded structs. Nil embedded struct pointers load as a
// non-settable zero value of the field.
func fieldByIndex(structVal reflect.Value, idx []int) reflect.Value {
	v := structVal
	for _, i := range idx {
		for v.Kind() == reflect.Pointer {
			if v.IsNil() {
				return reflect.Value{}
			}
			v = v.Elem()
		}
		v = v.Field(i)
	}
	return v
}

// fieldByIndexAlloc is like fieldByIndex, but allocates zero structs
// as needed when traversing nil embedded struct pointers, so that the
// result is settable.
func fieldByIndexAlloc(structVal reflect.Value, idx []int) reflect.Value {
	v := structVal
	for _, i := range idx {
		for v.Kind() == reflect.Pointer {
			if v.IsNil() {
				v.Set(reflect.New(v.Type().Elem()))
			}
			v = v.Elem()
		}
		v = v.Field(i)
	}
	return v
}

// mapKeyCmp returns a comparison function producing a deterministic
// ordering for dict keys of type t. t must be a basic kind.
func mapKeyCmp(t reflect.Type) func(a, b reflect.Value) int {
	switch t.Kind() {
	case reflect.Bool:
		return func(a, b reflect.Value) int {
			x, y := 0, 0
			if a.Bool() {
				x = 1
			}
			if b.Bool() {
				y = 1
			}
			return cmp.Compare(x, y)
		}
	case reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return func(a, b reflect.Value) int { return cmp.Compare(a.Uint(), b.Uint()) }
	case reflect.Int16, reflect.Int32, reflect.Int64:
		return func(a, b reflect.Value) int { return cmp.Compare(a.Int(), b.Int()) }
	case reflect.Float64:
		return func(a, b reflect.Value) int { return cmp.Compare(a.Float(), b.Float()) }
	case reflect.String:
		return func(a, b reflect.Value) int { return cmp.Compare(a.String(), b.String()) }
	default:
		panic(typeErr(t, "invalid dict key kind %s", t.Kind()))
	}
}
