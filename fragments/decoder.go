package fragments

import (
	"fmt"
	"io"
)

// A Decoder provides utilities to read bus wire format values from a
// byte slice.
//
// Methods advance the read cursor as needed to account for the
// padding required by the wire alignment rules, except for
// [Decoder.Read] which reads bytes verbatim.
//
// The decoder reads from an in-memory slice rather than a stream, so
// that the cursor can be rewound to the start of the input and so
// that container boundaries can be expressed as byte offsets.
type Decoder struct {
	// Order is the byte order to use when reading multi-byte values.
	Order ByteOrder
	// In is the input to read.
	In []byte

	// pos is the read cursor. Alignment depends on the global offset
	// within the message, and cannot be derived from local context
	// partway through decoding.
	pos int
}

// Offset returns the number of bytes consumed so far.
func (d *Decoder) Offset() int {
	return d.pos
}

// Rewind moves the read cursor back to the start of the input.
func (d *Decoder) Rewind() {
	d.pos = 0
}

// Pad consumes padding bytes as needed to make the next read happen
// at a multiple of align bytes. If the decoder is already correctly
// aligned, no bytes are consumed.
func (d *Decoder) Pad(align int) error {
	extra := d.pos % align
	if extra == 0 {
		return nil
	}
	skip := align - extra
	if d.pos+skip > len(d.In) {
		return io.ErrUnexpectedEOF
	}
	d.pos += skip
	return nil
}

// Read reads n bytes, with no framing or padding.
func (d *Decoder) Read(n int) ([]byte, error) {
	if d.pos+n > len(d.In) {
		return nil, io.ErrUnexpectedEOF
	}
	bs := d.In[d.pos : d.pos+n]
	d.pos += n
	return bs, nil
}

// Bytes reads a length-prefixed byte array.
func (d *Decoder) Bytes() ([]byte, error) {
	ln, err := d.Uint32()
	if err != nil {
		return nil, err
	}
	return d.Read(int(ln))
}

// String reads a uint32-length-prefixed, nul-terminated string.
func (d *Decoder) String() (string, error) {
	ln, err := d.Uint32()
	if err != nil {
		return "", err
	}
	ret, err := d.Read(int(ln) + 1)
	if err != nil {
		return "", err
	}
	return string(ret[:len(ret)-1]), nil
}

// Signature reads a type signature string, which uses a single length
// byte rather than a uint32 prefix.
func (d *Decoder) Signature() (string, error) {
	ln, err := d.Uint8()
	if err != nil {
		return "", err
	}
	ret, err := d.Read(int(ln) + 1)
	if err != nil {
		return "", err
	}
	if ret[len(ret)-1] != 0 {
		return "", fmt.Errorf("signature %q not nul terminated", ret[:len(ret)-1])
	}
	return string(ret[:len(ret)-1]), nil
}

// Uint8 reads a uint8.
func (d *Decoder) Uint8() (uint8, error) {
	bs, err := d.Read(1)
	if err != nil {
		return 0, err
	}
	return bs[0], nil
}

// Uint16 reads a uint16.
func (d *Decoder) Uint16() (uint16, error) {
	if err := d.Pad(2); err != nil {
		return 0, err
	}
	bs, err := d.Read(2)
	if err != nil {
		return 0, err
	}
	return d.Order.Uint16(bs), nil
}

// Uint32 reads a uint32.
func (d *Decoder) Uint32() (uint32, error) {
	if err := d.Pad(4); err != nil {
		return 0, err
	}
	bs, err := d.Read(4)
	if err != nil {
		return 0, err
	}
	return d.Order.Uint32(bs), nil
}

// Uint64 reads a uint64.
func (d *Decoder) Uint64() (uint64, error) {
	if err := d.Pad(8); err != nil {
		return 0, err
	}
	bs, err := d.Read(8)
	if err != nil {
		return 0, err
	}
	return d.Order.Uint64(bs), nil
}

// ByteOrderFlag reads a byte order flag byte, and sets
// [Decoder.Order] to match it.
func (d *Decoder) ByteOrderFlag() error {
	v, err := d.Uint8()
	if err != nil {
		return err
	}
	switch v {
	case 'B':
		d.Order = BigEndian
	case 'l':
		d.Order = LittleEndian
	default:
		return fmt.Errorf("unknown byte order flag %q", v)
	}
	return nil
}
