package rtpdict

// MediaKind distinguishes audio from video codecs and encodings.
type MediaKind string

const (
	MediaKindAudio MediaKind = "audio"
	MediaKindVideo MediaKind = "video"
)

// CodecSpecificParameters holds the signaling parameters critical for
// codec matching. Only the fields a given MIME type cares about are
// populated; the rest stay at their zero value and are omitted on the wire.
type CodecSpecificParameters struct {
	PacketizationMode     uint32 `json:"packetization-mode,omitempty"`
	ProfileLevelId        string `json:"profile-level-id,omitempty"`
	LevelAsymmetryAllowed uint32 `json:"level-asymmetry-allowed,omitempty"`
	ProfileId             string `json:"profile-id,omitempty"`

	// Apt is the associated payload type an RTX companion codec retransmits
	// on behalf of.
	Apt uint8 `json:"apt,omitempty"`

	Useinbandfec uint8 `json:"useinbandfec,omitempty"`
	Usedtx       uint8 `json:"usedtx,omitempty"`
}

// RtcpFeedback names a single RTCP feedback mechanism a codec supports,
// e.g. {Type: "nack"} or {Type: "nack", Parameter: "pli"}.
type RtcpFeedback struct {
	Type      string `json:"type"`
	Parameter string `json:"parameter,omitempty"`
}

// CodecCapability describes one codec (or RTX companion codec) a room or
// peer can handle.
type CodecCapability struct {
	Kind      MediaKind `json:"kind"`
	MimeType  string    `json:"mimeType"`
	ClockRate uint32    `json:"clockRate"`
	Channels  uint8     `json:"channels,omitempty"`

	// PreferredPayloadType is the payload type the supervisor asked to
	// reserve for this codec, if any. Nil means "allocate from the dynamic
	// range".
	PreferredPayloadType *uint8 `json:"preferredPayloadType,omitempty"`

	// PayloadType is the number actually assigned to the codec: filled in
	// by BuildRoomCapabilities for a room, or supplied by the peer in the
	// capabilities Negotiate checks (which returns them unchanged).
	PayloadType uint8 `json:"payloadType"`

	Parameters   CodecSpecificParameters `json:"parameters,omitempty"`
	RtcpFeedback []RtcpFeedback          `json:"rtcpFeedback,omitempty"`
}

// IsRTX reports whether this capability describes an RTX companion codec.
func (c CodecCapability) IsRTX() bool {
	return len(c.MimeType) >= 4 && c.MimeType[len(c.MimeType)-4:] == "/rtx"
}

// HeaderExtension describes a supported RTP header extension, identified by
// its RFC 5285 URI.
type HeaderExtension struct {
	Kind        MediaKind `json:"kind,omitempty"`
	URI         string    `json:"uri"`
	PreferredID uint8     `json:"preferredId"`
}

// Capabilities is a negotiated set of codecs, header extensions, and FEC
// mechanisms — either a room's full set, or a peer's subset of it.
type Capabilities struct {
	Codecs           []CodecCapability `json:"codecs,omitempty"`
	HeaderExtensions []HeaderExtension `json:"headerExtensions,omitempty"`
	FecMechanisms    []string          `json:"fecMechanisms,omitempty"`
}

// HasMatchingPayloadType reports whether any codec in these capabilities is
// assigned payloadType.
func (c Capabilities) HasMatchingPayloadType(payloadType uint8) bool {
	for _, codec := range c.Codecs {
		if codec.PayloadType == payloadType {
			return true
		}
	}
	return false
}

// EncodingParameters describes one transmitted RTP stream within a set of
// RtpParameters, and its optional RTX companion stream.
type EncodingParameters struct {
	SSRC             uint32  `json:"ssrc"`
	CodecPayloadType *uint8  `json:"codecPayloadType,omitempty"`
	RtxSSRC          *uint32 `json:"rtxSsrc,omitempty"`
}

// HeaderExtensionParameters maps a negotiated header extension URI to the
// numeric id this stream actually uses on the wire.
type HeaderExtensionParameters struct {
	URI string `json:"uri"`
	ID  uint8  `json:"id"`
}

// RtcpParameters carries the RTCP-related negotiated settings for a stream.
type RtcpParameters struct {
	CNAME       string `json:"cname,omitempty"`
	ReducedSize bool   `json:"reducedSize,omitempty"`
}

// Parameters are the per-stream negotiated RTP parameters: the codecs,
// header extension mapping, encodings and RTCP settings a single receiver
// or sender actually uses.
type Parameters struct {
	MuxID            string                      `json:"muxId,omitempty"`
	Codecs           []CodecCapability           `json:"codecs"`
	HeaderExtensions []HeaderExtensionParameters `json:"headerExtensions,omitempty"`
	Encodings        []EncodingParameters        `json:"encodings,omitempty"`
	Rtcp             *RtcpParameters             `json:"rtcp,omitempty"`
}

// HasPayloadType reports whether any codec in these parameters is assigned
// payloadType.
func (p Parameters) HasPayloadType(payloadType uint8) bool {
	for _, c := range p.Codecs {
		if c.PayloadType == payloadType {
			return true
		}
	}
	return false
}
