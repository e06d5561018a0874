// Package httpapi exposes the dispatcher over net/http.
//
// Handler serves the platform events endpoint, the lazy endpoint used by the
// invoke dispatch mode, and a health check. Relay is the front unit of the
// relay role: it answers immediately and forwards the raw delivery.
package httpapi
