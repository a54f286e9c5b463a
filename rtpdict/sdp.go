package rtpdict

import (
	"fmt"
	"net/url"

	"github.com/pion/sdp/v3"
)

// ToSDPCodec renders a codec capability as a github.com/pion/sdp/v3 Codec
// value, suitable for building an "a=rtpmap"/"a=fmtp" pair when a
// capability set needs to be exchanged with an SDP-speaking collaborator.
func (c CodecCapability) ToSDPCodec() sdp.Codec {
	return sdp.Codec{
		PayloadType:        c.PayloadType,
		Name:               codecName(c.MimeType),
		ClockRate:          c.ClockRate,
		EncodingParameters: encodingParameters(c),
		Fmtp:               fmtpLine(c.Parameters),
	}
}

// ToSDPExtMap renders a header extension as a github.com/pion/sdp/v3
// ExtMap value with the given negotiated numeric id. A URI that does not
// parse leaves the ExtMap's URI unset.
func (h HeaderExtension) ToSDPExtMap(id uint8) sdp.ExtMap {
	ext := sdp.ExtMap{
		Value: int(id),
	}
	if u, err := url.Parse(h.URI); err == nil {
		ext.URI = u
	}
	return ext
}

func codecName(mimeType string) string {
	for i := len(mimeType) - 1; i >= 0; i-- {
		if mimeType[i] == '/' {
			return mimeType[i+1:]
		}
	}
	return mimeType
}

func encodingParameters(c CodecCapability) string {
	if c.Channels > 1 {
		return fmt.Sprintf("%d", c.Channels)
	}
	return ""
}

func fmtpLine(p CodecSpecificParameters) string {
	var parts []string
	if p.PacketizationMode != 0 {
		parts = append(parts, fmt.Sprintf("packetization-mode=%d", p.PacketizationMode))
	}
	if p.ProfileLevelId != "" {
		parts = append(parts, fmt.Sprintf("profile-level-id=%s", p.ProfileLevelId))
	}
	if p.ProfileId != "" {
		parts = append(parts, fmt.Sprintf("profile-id=%s", p.ProfileId))
	}
	if p.Apt != 0 {
		parts = append(parts, fmt.Sprintf("apt=%d", p.Apt))
	}
	line := ""
	for i, part := range parts {
		if i > 0 {
			line += ";"
		}
		line += part
	}
	return line
}
