package busmsg

import (
	"fmt"
	"reflect"
)

// registry is the process-wide table mapping a signature string to
// the operations table used to decode a Variant of that signature
// when its concrete type is unknown at the decode site.
//
// The registry takes no lock. Registration must complete during
// program initialization, before any concurrent decoding begins;
// lookups after that point are safe from any goroutine. Callers that
// must register types later have to provide their own
// synchronization.
var registry = map[string]*TypeOps{}

// RegisterType makes T decodable from variants carrying T's
// signature.
//
// T's signature must be in reduced form: registering a type whose
// signature wraps a single value in a redundant one-element struct is
// a programming error and panics. Registering a signature again
// replaces the previous table; the last registration wins.
func RegisterType[T any]() {
	t := reflect.TypeFor[T]()
	sig, err := SignatureFor[T]()
	if err != nil {
		panic(fmt.Sprintf("busmsg: RegisterType[%s]: %v", t, err))
	}
	if !isReduced(sig.String()) {
		panic(fmt.Sprintf("busmsg: RegisterType[%s]: signature %q wraps a single value in a redundant struct, register the bare inner type instead", t, sig))
	}
	ops, err := opsFor(t)
	if err != nil {
		panic(fmt.Sprintf("busmsg: RegisterType[%s]: %v", t, err))
	}
	registry[sig.String()] = ops
}

// LookupType returns the operations table registered for the given
// signature. The second result is false if nothing is registered for
// the signature; callers must treat that as "cannot decode this
// variant", not as a fault.
func LookupType(sig string) (*TypeOps, bool) {
	ops, ok := registry[sig]
	return ops, ok
}

func init() {
	RegisterType[uint8]()
	RegisterType[bool]()
	RegisterType[int16]()
	RegisterType[uint16]()
	RegisterType[int32]()
	RegisterType[uint32]()
	RegisterType[int64]()
	RegisterType[uint64]()
	RegisterType[float64]()
	RegisterType[string]()
	RegisterType[ObjectPath]()
	RegisterType[Signature]()
	RegisterType[FileDescriptor]()
	RegisterType[[]string]()
	RegisterType[map[string]Variant]()
}
