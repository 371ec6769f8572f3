package busmsg

import "fmt"

// ObjectPath is the path of an object exposed on the bus.
type ObjectPath string

func (p ObjectPath) String() string {
	return fmt.Sprintf("ObjectPath(%s)", string(p))
}

// FileDescriptor is a handle to a file attached to a message. The
// value is an index into the message's out-of-band descriptor table,
// not a raw descriptor; translating the index to an open file is the
// transport's job.
type FileDescriptor uint32
