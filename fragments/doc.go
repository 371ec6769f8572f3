// Package fragments provides low-level encoding and decoding helpers
// to construct and parse pieces of bus messages.
//
// The provided encoder and decoder are very low level, and do not
// enforce any message semantics. It is the caller's responsibility to
// produce well formed messages using these tools: the busmsg.Message
// stream does exactly that, and is the intended consumer of this
// package.
package fragments
