package busmsg

import (
	"errors"
	"fmt"
	"math"

	"github.com/mvantis/busmsg/fragments"
)

type msgMode byte

const (
	modeWrite msgMode = iota
	modeRead
)

// ctn tracks one open container on the message's container stack.
// The outermost entry is the implicit message body.
type ctn struct {
	kind    ContainerKind
	content string
	// pos is the cursor into content, for the containers whose
	// values consume it sequentially. The body container's content
	// grows instead when writing.
	pos int
	// mark is the write-side array backpatch handle.
	mark fragments.ArrayMark
	// end is the read-side byte offset just past the array's last
	// element.
	end int
}

// A Message is an ordered stream of typed wire values plus the
// envelope metadata describing where the message is going.
//
// A message is either in write mode (created by [NewMethodCall],
// [NewSignal], [Message.CreateReply] or [Message.CreateError]; values
// are appended) or in read mode (created by [NewIncoming]; values are
// consumed by a cursor). Every value operator validates the value's
// signature against the innermost open container.
//
// A message carries a sticky validity state: the first failed
// operation records its error and every subsequent operation becomes
// a no-op, so a caller can chain a whole sequence of operations and
// check [Message.Err] once at the end. A failure while writing
// corrupts the stream permanently; a failure while reading can be
// cleared by [Message.Rewind].
//
// A Message is owned by exactly one in-flight operation and is not
// safe for concurrent use.
type Message struct {
	env  Envelope
	mode msgMode

	err     error
	corrupt bool

	enc   *fragments.Encoder
	dec   *fragments.Decoder
	stack []*ctn
}

func newWrite(env Envelope) *Message {
	return &Message{
		env:   env,
		mode:  modeWrite,
		enc:   &fragments.Encoder{Order: fragments.LittleEndian},
		stack: []*ctn{{kind: kindBody}},
	}
}

// NewMethodCall returns an empty write-mode message addressed to the
// given method.
func NewMethodCall(dest string, path ObjectPath, iface, member string) *Message {
	return newWrite(Envelope{
		Type:        TypeMethodCall,
		Destination: dest,
		Path:        path,
		Interface:   iface,
		Member:      member,
	})
}

// NewSignal returns an empty write-mode message describing a signal
// emission.
func NewSignal(path ObjectPath, iface, member string) *Message {
	return newWrite(Envelope{
		Type:      TypeSignal,
		Path:      path,
		Interface: iface,
		Member:    member,
	})
}

// NewIncoming returns a read-mode message over the given envelope and
// encoded body, as handed over by the transport.
func NewIncoming(env Envelope, body []byte) *Message {
	return &Message{
		env:   env,
		mode:  modeRead,
		dec:   &fragments.Decoder{Order: fragments.LittleEndian, In: body},
		stack: []*ctn{{kind: kindBody, content: env.Signature}},
	}
}

// CreateReply returns an empty write-mode reply addressed back to
// this message's sender.
func (m *Message) CreateReply() *Message {
	return newWrite(Envelope{
		Type:        TypeReply,
		Destination: m.env.Sender,
		ReplySerial: m.env.Serial,
	})
}

// CreateError returns a write-mode error reply addressed back to this
// message's sender. The explanation travels as the first body value.
func (m *Message) CreateError(name, message string) *Message {
	r := newWrite(Envelope{
		Type:        TypeErrorReply,
		Destination: m.env.Sender,
		ReplySerial: m.env.Serial,
		ErrName:     name,
		ErrMessage:  message,
	})
	r.PutString(message)
	return r
}

// Envelope returns the message's envelope metadata, with the body
// signature filled in.
func (m *Message) Envelope() Envelope {
	env := m.env
	env.Signature = m.Signature()
	return env
}

// Body returns the encoded message body accumulated so far, for
// handoff to the transport.
func (m *Message) Body() []byte {
	if m.mode == modeWrite {
		return m.enc.Out
	}
	return m.dec.In
}

// Err returns the error that invalidated the message, or nil while
// the message is valid.
func (m *Message) Err() error {
	return m.err
}

func (m *Message) fail(err error) {
	if m.err != nil {
		return
	}
	m.err = err
	if m.mode == modeWrite {
		m.corrupt = true
	}
}

func (m *Message) top() *ctn {
	return m.stack[len(m.stack)-1]
}

// noteWrite accounts for one value of the given signature being
// appended, validating it against the innermost open container.
func (m *Message) noteWrite(sig string) bool {
	top := m.top()
	switch top.kind {
	case kindBody:
		top.content += sig
		return true
	case KindArray:
		if sig != top.content {
			m.fail(fmt.Errorf("cannot write %q into array of %q", sig, top.content))
			return false
		}
		return true
	default: // struct, dict entry, variant: sequential content
		rest := top.content[top.pos:]
		if rest == "" {
			m.fail(fmt.Errorf("cannot write %q, %s content %q is already complete", sig, top.kind, top.content))
			return false
		}
		n, err := firstComplete(rest)
		if err != nil {
			m.fail(err)
			return false
		}
		if rest[:n] != sig {
			m.fail(fmt.Errorf("cannot write %q into %s, expecting %q", sig, top.kind, rest[:n]))
			return false
		}
		top.pos += n
		return true
	}
}

func (m *Message) okWrite(sig string) bool {
	if m.err != nil {
		return false
	}
	if m.mode != modeWrite {
		m.fail(errors.New("message is not in write mode"))
		return false
	}
	return m.noteWrite(sig)
}

// PutUint8 appends a byte value.
func (m *Message) PutUint8(v uint8) *Message {
	if m.okWrite("y") {
		m.enc.Uint8(v)
	}
	return m
}

// PutBool appends a boolean value.
func (m *Message) PutBool(v bool) *Message {
	if m.okWrite("b") {
		u := uint32(0)
		if v {
			u = 1
		}
		m.enc.Uint32(u)
	}
	return m
}

// PutInt16 appends an int16 value.
func (m *Message) PutInt16(v int16) *Message {
	if m.okWrite("n") {
		m.enc.Uint16(uint16(v))
	}
	return m
}

// PutUint16 appends a uint16 value.
func (m *Message) PutUint16(v uint16) *Message {
	if m.okWrite("q") {
		m.enc.Uint16(v)
	}
	return m
}

// PutInt32 appends an int32 value.
func (m *Message) PutInt32(v int32) *Message {
	if m.okWrite("i") {
		m.enc.Uint32(uint32(v))
	}
	return m
}

// PutUint32 appends a uint32 value.
func (m *Message) PutUint32(v uint32) *Message {
	if m.okWrite("u") {
		m.enc.Uint32(v)
	}
	return m
}

// PutInt64 appends an int64 value.
func (m *Message) PutInt64(v int64) *Message {
	if m.okWrite("x") {
		m.enc.Uint64(uint64(v))
	}
	return m
}

// PutUint64 appends a uint64 value.
func (m *Message) PutUint64(v uint64) *Message {
	if m.okWrite("t") {
		m.enc.Uint64(v)
	}
	return m
}

// PutDouble appends a float64 value.
func (m *Message) PutDouble(v float64) *Message {
	if m.okWrite("d") {
		m.enc.Uint64(math.Float64bits(v))
	}
	return m
}

// PutString appends a string value.
func (m *Message) PutString(v string) *Message {
	if m.okWrite("s") {
		m.enc.String(v)
	}
	return m
}

// PutObjectPath appends an object path value.
func (m *Message) PutObjectPath(v ObjectPath) *Message {
	if m.okWrite("o") {
		m.enc.String(string(v))
	}
	return m
}

// PutSignature appends a signature value.
func (m *Message) PutSignature(v Signature) *Message {
	if m.okWrite("g") {
		if err := m.enc.Signature(v.String()); err != nil {
			m.fail(err)
		}
	}
	return m
}

// PutFD appends a file descriptor handle.
func (m *Message) PutFD(v FileDescriptor) *Message {
	if m.okWrite("h") {
		m.enc.Uint32(uint32(v))
	}
	return m
}

// OpenContainer appends the open marker of a composite value. Every
// value appended until the matching [Message.CloseContainer] must
// conform to the container's content signature.
func (m *Message) OpenContainer(c Container) *Message {
	if m.err != nil {
		return m
	}
	if m.mode != modeWrite {
		m.fail(errors.New("message is not in write mode"))
		return m
	}
	outer, err := c.signature()
	if err != nil {
		m.fail(err)
		return m
	}
	if !m.noteWrite(outer) {
		return m
	}
	ent := &ctn{kind: c.Kind, content: c.Content}
	switch c.Kind {
	case KindArray:
		ent.mark = m.enc.ArrayStart(alignsAsStruct(c.Content))
	case KindStruct, KindDictEntry:
		m.enc.StructPad()
	case KindVariant:
		if err := m.enc.Signature(c.Content); err != nil {
			m.fail(err)
			return m
		}
	}
	m.stack = append(m.stack, ent)
	return m
}

// CloseContainer appends the close marker matching the innermost open
// marker. Closing with no container open is a programming error and
// panics.
func (m *Message) CloseContainer() *Message {
	if m.err != nil {
		return m
	}
	if m.mode != modeWrite {
		m.fail(errors.New("message is not in write mode"))
		return m
	}
	if len(m.stack) == 1 {
		panic("busmsg: CloseContainer with no open container")
	}
	top := m.top()
	m.stack = m.stack[:len(m.stack)-1]
	switch top.kind {
	case KindArray:
		m.enc.ArrayEnd(top.mark)
	default:
		if top.pos != len(top.content) {
			m.fail(fmt.Errorf("closing %s with unwritten content %q", top.kind, top.content[top.pos:]))
		}
	}
	return m
}

// PutVariant appends a variant value: the payload's signature
// followed by the payload, encoded through the payload's operations
// table. Appending the zero Variant is a no-op.
func (m *Message) PutVariant(v Variant) *Message {
	if m.err != nil || v.IsZero() {
		return m
	}
	m.OpenContainer(Container{Kind: KindVariant, Content: v.sig})
	if m.err == nil {
		v.ops.encodeFn(m, v.data)
	}
	m.CloseContainer()
	return m
}

// expectRead validates that the next value in the stream has the
// given signature, and advances the signature cursor over it.
func (m *Message) expectRead(sig string) bool {
	if m.err != nil {
		return false
	}
	if m.mode != modeRead {
		m.fail(errors.New("message is not in read mode"))
		return false
	}
	top := m.top()
	if top.kind == KindArray {
		if sig != top.content {
			m.fail(fmt.Errorf("cannot read %q from array of %q", sig, top.content))
			return false
		}
		if m.dec.Offset() >= top.end {
			m.fail(fmt.Errorf("reading %q past the end of the array", sig))
			return false
		}
		return true
	}
	rest := top.content[top.pos:]
	if rest == "" {
		m.fail(fmt.Errorf("reading %q past the end of %s", sig, top.kind))
		return false
	}
	n, err := firstComplete(rest)
	if err != nil {
		m.fail(err)
		return false
	}
	if rest[:n] != sig {
		m.fail(fmt.Errorf("cannot read %q, next value is %q", sig, rest[:n]))
		return false
	}
	top.pos += n
	return true
}

// ReadUint8 consumes a byte value.
func (m *Message) ReadUint8() uint8 {
	if !m.expectRead("y") {
		return 0
	}
	v, err := m.dec.Uint8()
	if err != nil {
		m.fail(err)
		return 0
	}
	return v
}

// ReadBool consumes a boolean value.
func (m *Message) ReadBool() bool {
	if !m.expectRead("b") {
		return false
	}
	v, err := m.dec.Uint32()
	if err != nil {
		m.fail(err)
		return false
	}
	if v > 1 {
		m.fail(fmt.Errorf("invalid boolean value %d", v))
		return false
	}
	return v == 1
}

// ReadInt16 consumes an int16 value.
func (m *Message) ReadInt16() int16 {
	if !m.expectRead("n") {
		return 0
	}
	v, err := m.dec.Uint16()
	if err != nil {
		m.fail(err)
		return 0
	}
	return int16(v)
}

// ReadUint16 consumes a uint16 value.
func (m *Message) ReadUint16() uint16 {
	if !m.expectRead("q") {
		return 0
	}
	v, err := m.dec.Uint16()
	if err != nil {
		m.fail(err)
		return 0
	}
	return v
}

// ReadInt32 consumes an int32 value.
func (m *Message) ReadInt32() int32 {
	if !m.expectRead("i") {
		return 0
	}
	v, err := m.dec.Uint32()
	if err != nil {
		m.fail(err)
		return 0
	}
	return int32(v)
}

// ReadUint32 consumes a uint32 value.
func (m *Message) ReadUint32() uint32 {
	if !m.expectRead("u") {
		return 0
	}
	v, err := m.dec.Uint32()
	if err != nil {
		m.fail(err)
		return 0
	}
	return v
}

// ReadInt64 consumes an int64 value.
func (m *Message) ReadInt64() int64 {
	if !m.expectRead("x") {
		return 0
	}
	v, err := m.dec.Uint64()
	if err != nil {
		m.fail(err)
		return 0
	}
	return int64(v)
}

// ReadUint64 consumes a uint64 value.
func (m *Message) ReadUint64() uint64 {
	if !m.expectRead("t") {
		return 0
	}
	v, err := m.dec.Uint64()
	if err != nil {
		m.fail(err)
		return 0
	}
	return v
}

// ReadDouble consumes a float64 value.
func (m *Message) ReadDouble() float64 {
	if !m.expectRead("d") {
		return 0
	}
	v, err := m.dec.Uint64()
	if err != nil {
		m.fail(err)
		return 0
	}
	return math.Float64frombits(v)
}

// ReadString consumes a string value.
func (m *Message) ReadString() string {
	if !m.expectRead("s") {
		return ""
	}
	v, err := m.dec.String()
	if err != nil {
		m.fail(err)
		return ""
	}
	return v
}

// ReadObjectPath consumes an object path value.
func (m *Message) ReadObjectPath() ObjectPath {
	if !m.expectRead("o") {
		return ""
	}
	v, err := m.dec.String()
	if err != nil {
		m.fail(err)
		return ""
	}
	return ObjectPath(v)
}

// ReadSignature consumes a signature value.
func (m *Message) ReadSignature() Signature {
	if !m.expectRead("g") {
		return Signature{}
	}
	s, err := m.dec.Signature()
	if err != nil {
		m.fail(err)
		return Signature{}
	}
	sig, err := ParseSignature(s)
	if err != nil {
		m.fail(err)
		return Signature{}
	}
	return sig
}

// ReadFD consumes a file descriptor handle.
func (m *Message) ReadFD() FileDescriptor {
	if !m.expectRead("h") {
		return 0
	}
	v, err := m.dec.Uint32()
	if err != nil {
		m.fail(err)
		return 0
	}
	return FileDescriptor(v)
}

// EnterContainer consumes and validates the open marker of a
// composite value matching the given kind and content signature.
func (m *Message) EnterContainer(c Container) *Message {
	if m.err != nil {
		return m
	}
	if m.mode != modeRead {
		m.fail(errors.New("message is not in read mode"))
		return m
	}
	outer, err := c.signature()
	if err != nil {
		m.fail(err)
		return m
	}
	if !m.expectRead(outer) {
		return m
	}
	ent := &ctn{kind: c.Kind, content: c.Content}
	switch c.Kind {
	case KindArray:
		ln, err := m.dec.Uint32()
		if err != nil {
			m.fail(err)
			return m
		}
		if alignsAsStruct(c.Content) {
			if err := m.dec.Pad(8); err != nil {
				m.fail(err)
				return m
			}
		}
		ent.end = m.dec.Offset() + int(ln)
	case KindStruct, KindDictEntry:
		if err := m.dec.Pad(8); err != nil {
			m.fail(err)
			return m
		}
	case KindVariant:
		s, err := m.dec.Signature()
		if err != nil {
			m.fail(err)
			return m
		}
		if s != c.Content {
			m.fail(fmt.Errorf("variant payload signature %q does not match expected %q", s, c.Content))
			return m
		}
	}
	m.stack = append(m.stack, ent)
	return m
}

// ExitContainer consumes the close marker of the innermost open
// container. Exiting with no container open is a programming error
// and panics; exiting with content still unread invalidates the
// message.
func (m *Message) ExitContainer() *Message {
	if m.err != nil {
		return m
	}
	if m.mode != modeRead {
		m.fail(errors.New("message is not in read mode"))
		return m
	}
	if len(m.stack) == 1 {
		panic("busmsg: ExitContainer with no open container")
	}
	top := m.top()
	m.stack = m.stack[:len(m.stack)-1]
	switch top.kind {
	case KindArray:
		switch off := m.dec.Offset(); {
		case off < top.end:
			m.fail(fmt.Errorf("exiting array with %d bytes unread", top.end-off))
		case off > top.end:
			// A malformed body whose last element spans past the
			// array's declared length.
			m.fail(fmt.Errorf("array contents ran %d bytes past the array boundary", off-top.end))
		}
	default:
		if top.pos != len(top.content) {
			m.fail(fmt.Errorf("exiting %s with unread content %q", top.kind, top.content[top.pos:]))
		}
	}
	return m
}

// ReadVariant consumes a variant value. The payload's concrete type
// is chosen by looking the carried signature up in the type registry;
// a signature with no registered type invalidates the message and
// produces no payload.
func (m *Message) ReadVariant() Variant {
	if !m.expectRead("v") {
		return Variant{}
	}
	s, err := m.dec.Signature()
	if err != nil {
		m.fail(err)
		return Variant{}
	}
	ops, ok := LookupType(s)
	if !ok {
		m.fail(fmt.Errorf("no registered type for variant signature %q", s))
		return Variant{}
	}
	m.stack = append(m.stack, &ctn{kind: KindVariant, content: s})
	val, err := ops.decodeFn(m)
	top := m.top()
	m.stack = m.stack[:len(m.stack)-1]
	if err != nil {
		m.fail(err)
		return Variant{}
	}
	if top.pos != len(top.content) {
		m.fail(fmt.Errorf("variant payload %q not fully consumed", top.content))
		return Variant{}
	}
	return Variant{sig: s, data: val, ops: ops}
}

// End reports whether the read cursor has reached the end of the
// innermost open container, or of the whole body if no container is
// open. An invalid message is always at its end.
func (m *Message) End() bool {
	if m.mode != modeRead {
		return false
	}
	if m.err != nil {
		return true
	}
	top := m.top()
	if top.kind == KindArray {
		return m.dec.Offset() >= top.end
	}
	return top.pos >= len(top.content)
}

// PeekType returns the signature code of the next value in the
// stream without consuming it, and, for containers, the content
// signature. At the end of the current container it returns (0, "").
func (m *Message) PeekType() (code byte, content string) {
	if m.mode != modeRead || m.err != nil {
		return 0, ""
	}
	top := m.top()
	var next string
	if top.kind == KindArray {
		if m.dec.Offset() >= top.end {
			return 0, ""
		}
		next = top.content
	} else {
		rest := top.content[top.pos:]
		if rest == "" {
			return 0, ""
		}
		n, err := firstComplete(rest)
		if err != nil {
			return 0, ""
		}
		next = rest[:n]
	}
	switch next[0] {
	case 'a':
		return 'a', next[1:]
	case '(', '{':
		return next[0], next[1 : len(next)-1]
	case 'v':
		// A variant's content signature travels in the stream rather
		// than in the enclosing signature; peek it from a throwaway
		// cursor.
		probe := *m.dec
		if s, err := probe.Signature(); err == nil {
			return 'v', s
		}
		return 'v', ""
	default:
		return next[0], ""
	}
}

// Rewind resets the read cursor to the start of the body, so that
// subsequent reads start over. Open containers are abandoned. A
// read-phase failure is cleared; a message corrupted while writing
// stays invalid.
func (m *Message) Rewind() *Message {
	if m.mode != modeRead {
		return m
	}
	m.dec.Rewind()
	m.stack = m.stack[:1]
	m.stack[0].pos = 0
	if !m.corrupt {
		m.err = nil
	}
	return m
}
