// Package inbound acknowledges platform deliveries within the reply deadline.
//
// The Receiver answers handshakes before any other check, verifies request
// signatures, dedupes redeliveries with claim/complete/fail semantics, and
// hands slow work to a core.TaskDispatcher only after the acknowledgement has
// been written.
package inbound
