package busmsg

// MessageType is the kind of a bus message.
type MessageType byte

const (
	TypeInvalid MessageType = iota
	TypeSignal
	TypeMethodCall
	TypeReply
	// TypeErrorReply is the kind of an error reply message. The name
	// avoids colliding with the [TypeError] marshalling error.
	TypeErrorReply
)

func (t MessageType) String() string {
	switch t {
	case TypeInvalid:
		return "invalid"
	case TypeSignal:
		return "signal"
	case TypeMethodCall:
		return "method call"
	case TypeReply:
		return "reply"
	case TypeErrorReply:
		return "error"
	default:
		return "unknown"
	}
}

// Envelope is the routing and framing metadata that accompanies a
// message body. The transport collaborator owns envelope framing on
// the wire; the marshalling engine only carries the metadata and
// exposes it through read-only accessors on [Message].
type Envelope struct {
	// Type is the message's kind.
	Type MessageType
	// Serial identifies the message within its connection. The
	// transport assigns it; zero means unassigned.
	Serial uint32
	// ReplySerial is the serial of the message this one answers.
	// Required for replies and errors.
	ReplySerial uint32
	// Path is the target object for a call, or the source object for
	// a signal.
	Path ObjectPath
	// Interface is the interface to target for a call, or the source
	// interface for a signal.
	Interface string
	// Member is the method name for a call, or the signal name for a
	// signal.
	Member string
	// ErrName is the name of the error that occurred. Required for
	// error messages.
	ErrName string
	// ErrMessage is the human-readable error explanation. On the
	// wire it travels as the first body value of an error message;
	// the transport mirrors it here for convenient access.
	ErrMessage string
	// Destination is the target for a message. Optional for signals,
	// required for everything else.
	Destination string
	// Sender is the client ID of the message sender, populated by
	// the bus.
	Sender string
	// Signature is the type signature of the message body.
	Signature string
}

// Type returns the message's kind.
func (m *Message) Type() MessageType { return m.env.Type }

// IsError reports whether the message is an error reply.
func (m *Message) IsError() bool { return m.env.Type == TypeErrorReply }

// Destination returns the message's destination client ID.
func (m *Message) Destination() string { return m.env.Destination }

// SetDestination changes the message's destination client ID.
func (m *Message) SetDestination(dest string) { m.env.Destination = dest }

// Sender returns the client ID of the message's sender.
func (m *Message) Sender() string { return m.env.Sender }

// Member returns the method or signal name the message targets.
func (m *Message) Member() string { return m.env.Member }

// Interface returns the interface the message targets.
func (m *Message) Interface() string { return m.env.Interface }

// Path returns the object path the message targets.
func (m *Message) Path() ObjectPath { return m.env.Path }

// ErrorName returns the error name of an error reply, or "".
func (m *Message) ErrorName() string { return m.env.ErrName }

// ErrorMessage returns the error explanation of an error reply, or
// "".
func (m *Message) ErrorMessage() string { return m.env.ErrMessage }

// Signature returns the signature of the message body. For a message
// being written, this is the signature of everything appended so far.
func (m *Message) Signature() string {
	if m.mode == modeWrite {
		return m.stack[0].content
	}
	return m.env.Signature
}

// CallError returns the [CallError] carried by an error reply, or nil
// if the message is not an error.
func (m *Message) CallError() error {
	if !m.IsError() {
		return nil
	}
	return CallError{Name: m.env.ErrName, Detail: m.env.ErrMessage}
}
