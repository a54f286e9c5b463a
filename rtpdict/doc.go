// Package rtpdict holds the value types exchanged during capability
// negotiation: codec/header-extension capabilities, per-stream RTP
// parameters, and the payload-type pool used to assign dynamic types.
//
// The type shapes follow the RtpCapabilities/RtpParameters family from the
// mediasoup Go client bindings (see other_examples in the retrieval pack)
// rather than a generic map[string]interface{}, so codec-specific fields
// like an RTX codec's associated payload type (Apt) are concrete struct
// fields instead of map lookups. Where a capability or parameter needs an
// SDP-shaped representation (for a control-channel payload, or future
// interop), ToSDPCodec/ToSDPExtMap bridge to github.com/pion/sdp/v3's
// Codec/ExtMap types.
package rtpdict
