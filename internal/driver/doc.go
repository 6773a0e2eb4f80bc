// Package driver defines the boundary between the reader core and the
// fixed-function device library that talks to physical RFID readers.
//
// The surface mirrors the native C-style API the readers ship with: a
// Driver allocates opaque reader contexts, and every Context call returns
// an integer status where 0 means success and negative values are
// device-native error codes. Buffers are fixed width (tagcodec.TagID,
// tagcodec.Payload) and owned by the caller.
//
// Two implementations live in this module:
//
//   - Simulator: an in-memory bench of readers and tags with injectable
//     failures and hangs, used by tests and by the "simulated" driver type.
//   - isc.Driver: the serial host-protocol adapter for real hardware.
//
// Contexts are not safe for concurrent use; the reader session serialises
// every call it makes.
package driver
