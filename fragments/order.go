package fragments

import (
	"encoding/binary"

	"golang.org/x/sys/cpu"
)

// ByteOrder is the byte order used to encode multi-byte values. It
// extends the standard library's byte orders with the wire flag byte
// that bus messages use to advertise their ordering.
type ByteOrder interface {
	byteOrder
	flagByte() byte
}

type byteOrder interface {
	binary.ByteOrder
	binary.AppendByteOrder
}

type wrapStd struct {
	byteOrder
}

func (w wrapStd) flagByte() byte {
	switch w.byteOrder {
	case binary.BigEndian:
		return 'B'
	case binary.LittleEndian:
		return 'l'
	case binary.NativeEndian:
		if cpu.IsBigEndian {
			return 'B'
		}
		return 'l'
	default:
		panic("unknown ByteOrder, how did you manage to make one of those?")
	}
}

var (
	BigEndian    = wrapStd{binary.BigEndian}
	LittleEndian = wrapStd{binary.LittleEndian}
	NativeEndian = wrapStd{binary.NativeEndian}
)
