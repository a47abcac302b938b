// Package packet implements the polling protocol framing.
//
// A packet is a single type code followed by optional data:
//
//	4hello world
//	2
//
// A payload is zero or more packets, each prefixed by the decimal byte length
// of its encoded form and a colon:
//
//	12:4hello world3:4hi
//
// The empty payload is "0:".
//
// Decoding never fails with an error value. A malformed packet decodes to
// the sentinel ErrorPacket, and any malformed frame turns the whole payload
// into a single ErrorPacket; nothing parsed before the bad frame survives.
package packet
