package busmsg

import "fmt"

// A DictEntry is an ordered key/value pair, encoded as a wire dict
// entry. Dictionaries are arrays of dict entries; a lone DictEntry
// can also be encoded standalone as an ordered pair.
//
// The key type must be a basic wire type.
type DictEntry[K comparable, V any] struct {
	Key   K
	Value V
}

// dictEntrier lets the signature machinery recognize DictEntry
// values of any instantiation.
type dictEntrier interface {
	keyValueSignatures() (key, value Signature, err error)
}

func (d DictEntry[K, V]) keyValueSignatures() (Signature, Signature, error) {
	ks, err := SignatureFor[K]()
	if err != nil {
		return Signature{}, Signature{}, err
	}
	vs, err := SignatureFor[V]()
	if err != nil {
		return Signature{}, Signature{}, err
	}
	return ks, vs, nil
}

func (d DictEntry[K, V]) String() string {
	return fmt.Sprintf("(%s, %s)", formatValue(d.Key), formatValue(d.Value))
}
