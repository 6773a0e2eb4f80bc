// Package isc drives ISO 15693 RFID readers that speak the ISC standard
// host protocol over a serial line.
//
// Every request and response is one frame:
//
//	LEN | COM-ADR | CMD | DATA... | CRC16 (LSB first)
//
// Responses carry a STATUS byte ahead of DATA. LEN counts the whole frame
// including the checksum, so a frame never exceeds 255 bytes and block
// transfers are split into chunks. The checksum is CRC-16/MCRF4XX
// (ISO/IEC 13239: poly 0x8408 reflected, preset 0xFFFF).
//
// Tag identifiers are the 8-byte ISO 15693 UIDs reported by inventory,
// rendered as 16 upper-case hex digits.
package isc
