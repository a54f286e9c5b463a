package sender

import (
	"sync"

	"github.com/mediaforge/sfuworker/limits"
	"github.com/mediaforge/sfuworker/rtpdict"
	"github.com/mediaforge/sfuworker/rtppacket"
	"github.com/mediaforge/sfuworker/workerlog"
	"github.com/pion/rtcp"
)

var log = workerlog.For("sender")

// Transport is the narrowest collaborator a Sender needs: somewhere to
// hand a packet for actual wire delivery. It is satisfied by any
// transport-layer collaborator; this package never depends on a concrete
// socket type, matching the teacher's preference for small collaborator
// interfaces (see interfaces.INetworkTransport).
type Transport interface {
	SendRtpPacket(pkt *rtppacket.Packet) error
}

// ReceiverFeedbackListener is the associated receiver's peer, notified so
// a NACK or receiver report can close the loop back to the stream's
// origin. Implemented by peer.Peer.
type ReceiverFeedbackListener interface {
	OnSenderReceiverReport(s *Sender, report *rtcp.ReceiverReport)
	OnSenderFeedback(s *Sender, feedback rtcp.Packet)
}

type state int

const (
	stateUnavailable state = iota // no transport attached yet
	stateAvailable
	stateClosed
)

// historyEntry is one retained, owned packet in a sender's retransmission
// history, keyed by the sequence number it was sent under.
type historyEntry struct {
	seq uint16
	pkt *rtppacket.Packet
}

// history is a fixed-size ring buffer of recently-sent owned packets,
// pulled from by Retransmit when a NACK names a sequence number still held.
// Capacity is fixed at construction; once full the oldest entry is
// overwritten.
type history struct {
	entries []historyEntry
	next    int
}

func newHistory(capacity int) *history {
	return &history{entries: make([]historyEntry, 0, capacity)}
}

func (h *history) record(seq uint16, pkt *rtppacket.Packet) {
	capacity := cap(h.entries)
	if capacity == 0 {
		return
	}
	entry := historyEntry{seq: seq, pkt: pkt}
	if len(h.entries) < capacity {
		h.entries = append(h.entries, entry)
		return
	}
	h.entries[h.next] = entry
	h.next = (h.next + 1) % capacity
}

// lookup appends to scratch, in the order seqNumbers is given, the packet
// retained for each sequence number still present in the history. scratch
// is the caller-supplied, reused backing slice (spec's room-owned
// retransmission scratch); lookup only appends to it, so the caller passes
// it already truncated (scratch[:0]), and lookup returns the grown slice.
func (h *history) lookup(seqNumbers []uint16, scratch []*rtppacket.Packet) []*rtppacket.Packet {
	for _, seq := range seqNumbers {
		for _, entry := range h.entries {
			if entry.seq == seq {
				scratch = append(scratch, entry.pkt)
				break
			}
		}
	}
	return scratch
}

// Sender is the egress endpoint mirroring one receiver's stream to one
// other peer.
type Sender struct {
	mu         sync.Mutex
	id         string
	receiverID string
	transport  Transport
	feedback   ReceiverFeedbackListener
	state      state
	params     rtpdict.Parameters
	history    *history
}

// New constructs a Sender that is not yet available: Send is a no-op until
// a transport is attached via SetTransport. Availability depends on the
// transport alone; SetParameters records target parameters but neither
// enables nor is required for sending.
func New(id, receiverID string, feedback ReceiverFeedbackListener) *Sender {
	return &Sender{
		id:         id,
		receiverID: receiverID,
		feedback:   feedback,
		state:      stateUnavailable,
		history:    newHistory(limits.MaxRetransmissionHistory),
	}
}

// ID returns this sender's room-unique id.
func (s *Sender) ID() string { return s.id }

// ReceiverID returns the id of the receiver this sender mirrors.
func (s *Sender) ReceiverID() string { return s.receiverID }

// SetParameters installs this sender's target RTP parameters.
func (s *Sender) SetParameters(params rtpdict.Parameters) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == stateClosed {
		return
	}
	s.params = params
}

// SetTransport attaches the transport collaborator and marks the sender
// available, unless it has already been closed.
func (s *Sender) SetTransport(t Transport) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == stateClosed {
		return
	}
	s.transport = t
	s.state = stateAvailable
}

// Parameters returns the sender's currently installed target parameters.
func (s *Sender) Parameters() rtpdict.Parameters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.params
}

// Send hands pkt to the transport collaborator if the sender is available.
// The packet is never mutated, and the transport receives pkt itself rather
// than a copy. A sender that is unavailable, or whose receiver has been
// closed in the same turn, drops the packet silently. A packet that is
// actually handed to the transport is also copied into a freshly allocated
// buffer and retained in this sender's retransmission history, so every
// forwarded packet costs one allocation.
func (s *Sender) Send(pkt *rtppacket.Packet) {
	s.mu.Lock()
	if s.state != stateAvailable {
		s.mu.Unlock()
		return
	}
	transport := s.transport
	s.mu.Unlock()

	if err := transport.SendRtpPacket(pkt); err != nil {
		log.WithField("sender_id", s.id).WithField("error", err.Error()).Warn("failed to send RTP packet")
	}

	s.recordHistory(pkt)
}

// recordHistory clones pkt into a freshly allocated buffer (never mutating
// the caller's shared view, per spec's read-only fan-out) and files the
// owned result under its sequence number.
func (s *Sender) recordHistory(pkt *rtppacket.Packet) {
	owned, err := pkt.Clone(make([]byte, pkt.Len()))
	if err != nil {
		log.WithField("sender_id", s.id).WithField("error", err.Error()).
			Warn("failed to retain packet for retransmission history")
		return
	}

	s.mu.Lock()
	s.history.record(pkt.SequenceNumber(), owned)
	s.mu.Unlock()
}

// Retransmit looks up seqNumbers in this sender's retransmission history and
// resends every match found (via Send, so the usual availability/transport
// handling applies). scratch is the caller-supplied, reused coalescing
// vector (spec's room-owned retransmission scratch, never retained past
// this call); Retransmit returns the slice grown into it for the caller to
// keep for its next invocation.
func (s *Sender) Retransmit(seqNumbers []uint16, scratch []*rtppacket.Packet) []*rtppacket.Packet {
	s.mu.Lock()
	scratch = s.history.lookup(seqNumbers, scratch[:0])
	s.mu.Unlock()

	for _, pkt := range scratch {
		s.Send(pkt)
	}
	return scratch
}

// ReceiveReceiverReport forwards an inbound RTCP receiver report to this
// sender's associated receiver's peer, for loop closure (e.g. bitrate
// adaptation).
func (s *Sender) ReceiveReceiverReport(report *rtcp.ReceiverReport) {
	s.mu.Lock()
	closed := s.state == stateClosed
	s.mu.Unlock()
	if closed {
		return
	}
	s.feedback.OnSenderReceiverReport(s, report)
}

// ReceiveFeedback forwards any other RTCP feedback packet (PLI, FIR, NACK,
// REMB, ...) the same way.
func (s *Sender) ReceiveFeedback(feedback rtcp.Packet) {
	s.mu.Lock()
	closed := s.state == stateClosed
	s.mu.Unlock()
	if closed {
		return
	}
	s.feedback.OnSenderFeedback(s, feedback)
}

// Close transitions the sender to terminal. Idempotent; does not itself
// notify a listener, since sender teardown is bookkeeping the room
// performs directly against its bipartite map (spec §4.H "sender closed").
func (s *Sender) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = stateClosed
	s.transport = nil
}

// IsClosed reports whether Close has already run.
func (s *Sender) IsClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == stateClosed
}

// IsAvailable reports whether the sender has a transport attached and is
// not closed, so it can accept Send calls. Installed parameters are not
// consulted.
func (s *Sender) IsAvailable() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == stateAvailable
}
