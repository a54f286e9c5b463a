// Package byteutil provides endian-safe reads and writes of 1-, 2-, 3-, and
// 4-byte big-endian fields over untrusted buffers.
//
// Every function here trusts its caller to have bounds-checked the buffer
// first; these are hot-path primitives used once per field on every parsed
// RTP/RTCP packet, so they do not repeat bounds checks that the caller has
// already performed.
package byteutil
