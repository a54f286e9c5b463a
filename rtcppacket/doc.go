// Package rtcppacket implements the RTCP wire codec described by RFC 3550
// and the payload-specific/transport-layer feedback formats of RFC 4585.
//
// Like rtppacket, this package delegates the per-packet encoding to a
// pion library (github.com/pion/rtcp) and limits itself to the concerns
// that library doesn't cover: walking a compound datagram into individual
// packets, classifying each one by Kind, and rejecting malformed compounds
// the same way the wire codec's sibling packages do (a *ParseError, never
// a panic).
package rtcppacket
