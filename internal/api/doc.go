// Package api implements the HTTP facade and WebSocket event stream of the
// hub.
//
// Every /api/v1/readers route maps onto one reader.Registry call and
// answers with the registry's response envelope:
//
//	{"response": ...}
//	{"error": {"error_code": 10, "error_msg": "..."}}
//
// Batch tag operations answer with both maps when some tags fail. The HTTP
// status follows the error class: 404 for unknown readers, 400 for request
// and state errors, 500 for device, storage and timeout failures.
//
// Trailing slashes are optional so legacy clients addressing /readers/1/
// keep working.
//
// The Hub is a reader.EventSink; clients subscribe to event types such as
// "tags.read" or to "*" for everything.
package api
