// Package rtppacket implements the RTP wire codec: parsing, validation,
// in-place mutation, cloning, and serialization of a single RTP packet
// against RFC 3550 §5.1.
//
// A Packet parsed by Parse is a non-owning view over the caller's read
// buffer — valid only until that buffer is next reused. Serialize produces
// a Packet that owns its backing array; Clone produces a view over the
// caller-supplied destination. See Packet's doc comment for the full
// lifetime contract.
//
// Parse runs its own bounds checks against the raw byte layout first, so
// rejection reasons match this worker's own wording, then hands a
// bounds-guaranteed buffer to github.com/pion/rtp's Header/Packet types for
// the actual fixed-header/CSRC/payload decode; Serialize does the mirror
// image through pion's Marshal. The one-shot header extension and the
// padding trailer are handled on top, outside pion's model, and Clone/
// Serialize expose the explicit owned-vs-view distinction spec'd for this
// worker.
package rtppacket
