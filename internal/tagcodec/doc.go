// Package tagcodec converts between host strings and the fixed-width blocks
// an RFID reader exchanges with its transponders.
//
// Two block shapes exist on the wire:
//
//   - Payload: the tag's user memory, 56 blocks of 4 bytes (224 bytes).
//     Text is encoded with the reader's code page, truncated to the block
//     size when too long and right-padded with NUL bytes when short.
//   - TagID: the transponder serial number, a 32-byte slot of plain ASCII.
//     Identifiers are never truncated: two different tags must never alias.
//
// Usage:
//
//	codec, err := tagcodec.New("windows-1251")
//	block, err := codec.EncodePayload("Склад 4, стеллаж 12")
//	text, err := codec.DecodePayload(block)
//
//	id, err := tagcodec.EncodeTagID("E004010012345678")
package tagcodec
