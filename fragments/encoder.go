package fragments

import "fmt"

// An Encoder provides utilities to write bus wire format values to a
// byte slice.
//
// Methods insert padding as needed to conform to the wire alignment
// rules, except for [Encoder.Write] which outputs bytes verbatim.
type Encoder struct {
	// Order is the byte order to use when encoding multi-byte values.
	Order ByteOrder
	// Out is the encoded output.
	Out []byte
}

// Pad inserts padding bytes as needed to make the output a multiple
// of align bytes. If the output is already correctly aligned, no
// padding is inserted.
func (e *Encoder) Pad(align int) {
	extra := len(e.Out) % align
	if extra == 0 {
		return
	}
	var pad [8]byte
	e.Out = append(e.Out, pad[:align-extra]...)
}

// Write writes bs as-is to the output. It is the caller's
// responsibility to ensure correct padding and encoding.
func (e *Encoder) Write(bs []byte) {
	e.Out = append(e.Out, bs...)
}

// Bytes writes bs to the output as a length-prefixed byte array.
func (e *Encoder) Bytes(bs []byte) {
	e.Pad(4)
	e.Uint32(uint32(len(bs)))
	e.Out = append(e.Out, bs...)
}

// String writes s to the output, with a uint32 length prefix and a
// trailing nul byte.
func (e *Encoder) String(s string) {
	e.Pad(4)
	e.Uint32(uint32(len(s)))
	e.Out = append(e.Out, s...)
	e.Out = append(e.Out, 0)
}

// Signature writes a type signature string to the output. Signatures
// use a single length byte rather than a uint32 prefix, and are
// limited to 255 bytes; longer strings are rejected rather than
// truncated.
func (e *Encoder) Signature(s string) error {
	if len(s) > 255 {
		return fmt.Errorf("signature of length %d exceeds the 255 byte limit", len(s))
	}
	e.Out = append(e.Out, uint8(len(s)))
	e.Out = append(e.Out, s...)
	e.Out = append(e.Out, 0)
	return nil
}

// Uint8 writes a uint8.
func (e *Encoder) Uint8(u8 uint8) {
	e.Out = append(e.Out, u8)
}

// Uint16 writes a uint16.
func (e *Encoder) Uint16(u16 uint16) {
	e.Pad(2)
	e.Out = e.Order.AppendUint16(e.Out, u16)
}

// Uint32 writes a uint32.
func (e *Encoder) Uint32(u32 uint32) {
	e.Pad(4)
	e.Out = e.Order.AppendUint32(e.Out, u32)
}

// Uint64 writes a uint64.
func (e *Encoder) Uint64(u64 uint64) {
	e.Pad(8)
	e.Out = e.Order.AppendUint64(e.Out, u64)
}

// An ArrayMark records where an array's length word and first element
// live in the output, so that [Encoder.ArrayEnd] can backpatch the
// length once the elements have been written.
type ArrayMark struct {
	length int
	start  int
}

// ArrayStart begins an array. The caller writes the array's elements,
// padding each element to the correct alignment for the element type,
// and then closes the array with [Encoder.ArrayEnd].
//
// containsStructs indicates whether the array's elements align like
// structs, so that the array header can be padded accordingly even
// when the array is empty.
func (e *Encoder) ArrayStart(containsStructs bool) ArrayMark {
	e.Pad(4)
	off := len(e.Out)
	e.Uint32(0)
	if containsStructs {
		e.Pad(8)
	}
	return ArrayMark{length: off, start: len(e.Out)}
}

// ArrayEnd closes an array begun with [Encoder.ArrayStart],
// backpatching the array's length word. The length does not include
// the padding between the length word and the first element.
func (e *Encoder) ArrayEnd(m ArrayMark) {
	e.Order.PutUint32(e.Out[m.length:], uint32(len(e.Out)-m.start))
}

// StructPad aligns the output for the start of a struct or dict
// entry.
func (e *Encoder) StructPad() {
	e.Pad(8)
}

// ByteOrderFlag writes the byte order flag byte ('l' or 'B') that
// matches [Encoder.Order].
func (e *Encoder) ByteOrderFlag() {
	e.Write([]byte{e.Order.flagByte()})
}
