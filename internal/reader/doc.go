// Package reader is the core of rfidhub: it tracks a fleet of RFID readers,
// their persisted addressing and their live device sessions.
//
// The pieces, leaf first:
//
//   - Catalogue (catalog.go): the fixed table of error kinds every failure
//     path maps to. Each kind has a numeric code, a message, an optional
//     request field and an optional predicate over that field's value.
//   - Session (session.go): one native driver context and its link state.
//     Every device call is bounded by a timeout and serialised.
//   - Registry (registry.go, tags.go): reader id to configuration plus an
//     optional live session. It validates every request against an ordered
//     rule list before touching a device, persists configuration through a
//     Store and publishes an Event for every change.
//
// Registry operations return *Error values, which the HTTP layer and the
// console render through Envelope as {"response": ...} or
// {"error": {"error_code": ..., "error_msg": ...}}.
//
// Thread safety: all Registry methods are safe for concurrent use. A single
// registry-wide mutex serialises operations, including their device calls.
package reader
