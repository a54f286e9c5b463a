// Package limits provides centralized size constants and validation
// functions used across the worker's wire codecs and channel framer. This
// package ensures consistent bounds enforcement across every component that
// touches untrusted bytes.
//
// # Size Hierarchy
//
//   - MaxCsrcCount (15): RTP's 4-bit CSRC count field caps the contributing
//     source list at 15 entries (RFC 3550 §5.1).
//
//   - MaxExtensionWords (65535): the RTP one-byte/two-byte header extension's
//     16-bit length field, counted in 32-bit words.
//
//   - MaxByeReasonLength (255): an RTCP BYE reason string is length-prefixed
//     by a single byte (RFC 3550 §6.6).
//
//   - DefaultChannelBufferSize (262144): the default size of the shared
//     read/write buffer backing the netstring control channel.
//
//   - MaxProcessingBuffer (1MB): the absolute maximum for any single
//     untrusted buffer accepted by this worker, independent of the above.
//
// # Validation Functions
//
// Each validation function returns a sentinel error: ErrTooLarge wrapped
// with the offending size for logging, or ErrEmpty as is:
//
//	if err := limits.ValidateProcessingBuffer(data); err != nil {
//	    // reject, warn, continue
//	}
package limits
