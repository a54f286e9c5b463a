package rtpdict

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownCodec indicates a peer offered a codec the room's capabilities
// don't recognize (by MIME type and clock rate).
var ErrUnknownCodec = errors.New("codec not present in room capabilities")

// Negotiate validates peer against the receiver's capabilities (the room's)
// per spec §4.D: every codec in peer must match one in the room by MIME
// type and clock rate. The peer's own payload-type numbering is preserved
// in the result, since each peer assigns payload types independently.
func (room Capabilities) Negotiate(peer Capabilities) (Capabilities, error) {
	for _, offered := range peer.Codecs {
		if !room.hasMatchingCodec(offered) {
			return Capabilities{}, fmt.Errorf("%w: %s @ %dHz", ErrUnknownCodec, offered.MimeType, offered.ClockRate)
		}
	}
	return peer, nil
}

func (room Capabilities) hasMatchingCodec(offered CodecCapability) bool {
	for _, known := range room.Codecs {
		if strings.EqualFold(known.MimeType, offered.MimeType) && known.ClockRate == offered.ClockRate {
			return true
		}
	}
	return false
}
