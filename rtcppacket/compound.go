package rtcppacket

import (
	"fmt"

	"github.com/mediaforge/sfuworker/limits"
	"github.com/mediaforge/sfuworker/workerlog"
	"github.com/pion/rtcp"
)

var log = workerlog.For("rtcppacket")

// Kind classifies a single RTCP packet within a compound datagram.
type Kind int

const (
	KindUnknown Kind = iota
	KindSR
	KindRR
	KindSDES
	KindBye
	KindApp
	KindPSFB
	KindRTPFB
)

func (k Kind) String() string {
	switch k {
	case KindSR:
		return "SR"
	case KindRR:
		return "RR"
	case KindSDES:
		return "SDES"
	case KindBye:
		return "BYE"
	case KindApp:
		return "APP"
	case KindPSFB:
		return "PSFB"
	case KindRTPFB:
		return "RTPFB"
	default:
		return "unknown"
	}
}

// ParseError reports why Parse rejected a compound datagram. Like
// rtppacket.ParseError, this is never fatal: the caller drops the datagram.
type ParseError struct {
	Reason string
}

func (e *ParseError) Error() string { return e.Reason }

// Entry is a single classified packet from within a compound datagram. Raw
// holds the underlying pion/rtcp value so a caller can switch on its
// concrete type for field access (e.g. report blocks, NACK pairs).
type Entry struct {
	Kind Kind
	Raw  rtcp.Packet
}

// Compound is a parsed RTCP compound datagram: zero or more individual
// packets sharing one UDP/ICE datagram, each 4-byte aligned per RFC 3550
// §6.1.
type Compound struct {
	Entries []Entry
}

func classify(pkt rtcp.Packet) Kind {
	switch pkt.(type) {
	case *rtcp.SenderReport:
		return KindSR
	case *rtcp.ReceiverReport:
		return KindRR
	case *rtcp.SourceDescription:
		return KindSDES
	case *rtcp.Goodbye:
		return KindBye
	case *rtcp.PictureLossIndication,
		*rtcp.FullIntraRequest,
		*rtcp.SliceLossIndication,
		*rtcp.ReceiverEstimatedMaximumBitrate:
		return KindPSFB
	case *rtcp.TransportLayerNack,
		*rtcp.TransportLayerCC,
		*rtcp.RapidResynchronizationRequest:
		return KindRTPFB
	default:
		return KindUnknown
	}
}

// Parse walks buf as a compound RTCP datagram, classifying each contained
// packet. A datagram that pion/rtcp itself cannot unmarshal is reported as
// a *ParseError rather than propagating pion's own error type, so rejection
// reasons stay consistent with the rest of this worker's wire codecs.
func Parse(buf []byte) (*Compound, error) {
	if err := limits.ValidateProcessingBuffer(buf); err != nil {
		return nil, &ParseError{Reason: fmt.Sprintf("refusing to parse RTCP datagram: %s", err)}
	}

	packets, err := rtcp.Unmarshal(buf)
	if err != nil {
		log.WithField("size", len(buf)).Warn("discarding malformed RTCP compound datagram")
		return nil, &ParseError{Reason: fmt.Sprintf("invalid RTCP compound datagram: %s", err)}
	}

	c := &Compound{Entries: make([]Entry, 0, len(packets))}
	for _, pkt := range packets {
		c.Entries = append(c.Entries, Entry{Kind: classify(pkt), Raw: pkt})
	}
	return c, nil
}

// Serialize re-encodes the compound datagram back to wire bytes, in the
// same order its entries were parsed (or appended).
func (c *Compound) Serialize() ([]byte, error) {
	raws := make([]rtcp.Packet, len(c.Entries))
	for i, e := range c.Entries {
		raws[i] = e.Raw
	}
	out, err := rtcp.Marshal(raws)
	if err != nil {
		return nil, fmt.Errorf("serializing RTCP compound datagram: %w", err)
	}
	return out, nil
}

// Add appends a packet to the compound, classifying it automatically.
func (c *Compound) Add(pkt rtcp.Packet) {
	c.Entries = append(c.Entries, Entry{Kind: classify(pkt), Raw: pkt})
}

// Filter returns only the entries matching kind, in their original order.
func (c *Compound) Filter(kind Kind) []Entry {
	var out []Entry
	for _, e := range c.Entries {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

// NackedSequenceNumbers expands nack's packet-id/bitmask pairs into the full
// list of RTP sequence numbers it reports lost (RFC 4585 §6.2.1).
func NackedSequenceNumbers(nack *rtcp.TransportLayerNack) []uint16 {
	var seqs []uint16
	for i := range nack.Nacks {
		seqs = append(seqs, nack.Nacks[i].PacketList()...)
	}
	return seqs
}

// NewBye builds a BYE packet carrying the given source SSRCs and an
// optional reason string, mirroring RTC::RTCP::ByePacket from the original
// worker (a length-prefixed reason, truncated to MaxByeReasonLength).
func NewBye(ssrcs []uint32, reason string) *rtcp.Goodbye {
	if len(reason) > limits.MaxByeReasonLength {
		reason = reason[:limits.MaxByeReasonLength]
	}
	return &rtcp.Goodbye{
		Sources: ssrcs,
		Reason:  reason,
	}
}
