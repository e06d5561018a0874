// Package lazy runs deferred tasks after the platform has been acknowledged.
//
// A Processor re-validates every task, performs at most one backend call and
// emits exactly one reply: the generated text on success or a fixed fallback
// text on any failure.
package lazy
