package rtpdict

import (
	"errors"
	"fmt"

	"github.com/mediaforge/sfuworker/limits"
)

// ErrPayloadTypeTaken indicates a codec's preferred payload type was
// already reserved by an earlier codec in the same list.
var ErrPayloadTypeTaken = errors.New("payload type already reserved")

// ErrPayloadTypesExhausted indicates the dynamic payload-type range
// [96, 127] has no free slot left to allocate.
var ErrPayloadTypesExhausted = errors.New("no dynamic payload types available")

// PayloadTypePool tracks which RTP payload type numbers are in use within
// a room, across both the RFC 3551 static range and the dynamic range
// [96, 127]. It is not safe for concurrent use; callers serialize access
// the same way the room serializes all mutation of its capabilities.
type PayloadTypePool struct {
	used map[uint8]bool
}

// NewPayloadTypePool returns an empty pool spanning the static type set
// [0, 34] and the dynamic range [96, 127], per spec §4.D step 1.
func NewPayloadTypePool() *PayloadTypePool {
	return &PayloadTypePool{used: make(map[uint8]bool)}
}

// Reserve marks pt as taken. It fails if pt is already reserved.
func (p *PayloadTypePool) Reserve(pt uint8) error {
	if p.used[pt] {
		return fmt.Errorf("%w: %d", ErrPayloadTypeTaken, pt)
	}
	p.used[pt] = true
	return nil
}

// IsUsed reports whether pt has been reserved or allocated already.
func (p *PayloadTypePool) IsUsed(pt uint8) bool { return p.used[pt] }

// AllocateDynamic reserves and returns the lowest unused payload type in
// the dynamic range.
func (p *PayloadTypePool) AllocateDynamic() (uint8, error) {
	for pt := limits.MinDynamicPayloadType; pt <= limits.MaxDynamicPayloadType; pt++ {
		if !p.used[uint8(pt)] {
			p.used[uint8(pt)] = true
			return uint8(pt), nil
		}
	}
	return 0, ErrPayloadTypesExhausted
}

// BuildRoomCapabilities computes a room's effective RTP capabilities from
// the supervisor-supplied media codec list, per spec §4.D:
//
//  1. start from an empty PayloadTypePool spanning static and dynamic types.
//  2. for each codec, reserve its preferred payload type if it names one,
//     otherwise allocate the lowest free dynamic type.
//  3. fabricate an RTX companion codec at payloadType+1 when that slot is
//     free; skip silently otherwise.
func BuildRoomCapabilities(mediaCodecs []CodecCapability, headerExtensions []HeaderExtension) (*Capabilities, error) {
	pool := NewPayloadTypePool()
	caps := &Capabilities{HeaderExtensions: headerExtensions}

	for _, codec := range mediaCodecs {
		assigned, err := assignPayloadType(pool, codec.PreferredPayloadType)
		if err != nil {
			return nil, fmt.Errorf("assigning payload type for %s: %w", codec.MimeType, err)
		}
		codec.PayloadType = assigned
		codec.PreferredPayloadType = nil
		caps.Codecs = append(caps.Codecs, codec)

		if rtxPT := assigned + 1; !pool.IsUsed(rtxPT) && assigned < 255 {
			if err := pool.Reserve(rtxPT); err == nil {
				caps.Codecs = append(caps.Codecs, rtxCompanion(codec, rtxPT))
			}
		}
	}

	return caps, nil
}

func assignPayloadType(pool *PayloadTypePool, preferred *uint8) (uint8, error) {
	if preferred != nil {
		if err := pool.Reserve(*preferred); err != nil {
			return 0, err
		}
		return *preferred, nil
	}
	return pool.AllocateDynamic()
}

func rtxCompanion(codec CodecCapability, payloadType uint8) CodecCapability {
	kindPrefix := "audio"
	if codec.Kind == MediaKindVideo {
		kindPrefix = "video"
	}
	return CodecCapability{
		Kind:        codec.Kind,
		MimeType:    kindPrefix + "/rtx",
		ClockRate:   codec.ClockRate,
		PayloadType: payloadType,
		Parameters:  CodecSpecificParameters{Apt: codec.PayloadType},
	}
}
