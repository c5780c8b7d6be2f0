// Package wire implements the byte-level building blocks of the OSCAR
// protocol as seen by a client: the SNAC header, TLV records and chains,
// and a bounds-checked reader/writer pair.
//
// # SNAC Header
//
// Every frame handed to this module by the transport layer starts with a
// 10-byte SNAC header:
//   - Family (2 bytes): service family (0x0004 = ICBM, 0x0015 = ICQ extensions)
//   - Subtype (2 bytes): operation within the family
//   - Flags (2 bytes): SNAC flags
//   - RequestID (4 bytes): correlates a reply with its request
//
// # TLV Records
//
// Most payloads are chains of type-length-value records:
//   - Type (2 bytes)
//   - Length (2 bytes)
//   - Value (Length bytes)
//
// # Byte Order
//
// OSCAR fields are big-endian. ICQ legacy sub-structures embedded in OSCAR
// payloads are little-endian; Reader and Writer expose explicit LE helpers
// for those.
//
// Frames come from an untrusted peer. Every Reader method checks bounds and
// returns ErrBufferTooShort instead of panicking.
package wire
