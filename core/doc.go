// Package core contains the canonical dispatch contracts and entities shared by
// the receiver, the deferred dispatchers and the lazy processors. Adapters
// depend on this package; core must not depend on transport or platform SDKs.
//
// An inbound event moves through a fixed state machine:
//
//	received -> handshake-answered | filtered-dropped | deduped | ack-sent -> deferred
//	deferred -> processing -> replied-success | replied-fallback
//
// Every state after an ack or drop is terminal; there is no retry transition.
package core
