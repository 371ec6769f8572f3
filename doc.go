// Package busmsg implements the typed payload representation of a
// message bus wire format: a self-describing, signature-typed
// encoding of primitive and composite values.
//
// The central type is [Message], an ordered stream of typed wire
// values. A message in write mode appends values through Put
// operators or the reflection-driven [Message.Append]; a message in
// read mode consumes values through Read operators or
// [Message.Decode]. Composite values (arrays, structs, dict entries,
// variants) are bracketed by [Container] open markers and matching
// close markers, and every value is validated against the innermost
// open container's content signature.
//
// Messages carry a sticky validity state: the first failed operation
// invalidates the message and every later operation on it becomes a
// no-op, so a sequence of operations can be chained and checked once
// with [Message.Err].
//
// [Variant] boxes a value of any encodable type together with its
// [Signature]. Decoding a variant whose concrete type is unknown at
// the call site relies on the process-wide type registry: call
// [RegisterType] during initialization for every type that may arrive
// inside a variant.
//
// The package performs no I/O. Moving encoded bodies and envelope
// metadata between processes is the transport's job; see [Envelope]
// and [NewIncoming] for the handoff points.
package busmsg
