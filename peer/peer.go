package peer

import (
	"errors"
	"fmt"
	"sync"

	"github.com/mediaforge/sfuworker/receiver"
	"github.com/mediaforge/sfuworker/rtpdict"
	"github.com/mediaforge/sfuworker/rtppacket"
	"github.com/mediaforge/sfuworker/sender"
	"github.com/mediaforge/sfuworker/workerlog"
	"github.com/pion/rtcp"
)

var log = workerlog.For("peer")

// ErrReceiverExists and ErrSenderExists guard against reusing an id the
// peer already has an entity under.
var (
	ErrReceiverExists = errors.New("receiver already exists")
	ErrSenderExists   = errors.New("sender already exists")
	ErrNotFound       = errors.New("entity not found")
)

// RoomListener receives every lifecycle and traffic event a peer's
// receivers and senders produce, so the owning room can keep its bipartite
// routing map in sync. Implemented by room.Room.
type RoomListener interface {
	OnPeerReceiverParameters(p *Peer, r *receiver.Receiver)
	OnPeerRtpPacket(p *Peer, r *receiver.Receiver, pkt *rtppacket.Packet)
	OnPeerReceiverClosed(p *Peer, receiverID string)
	OnPeerSenderFeedback(p *Peer, s *sender.Sender, feedback rtcp.Packet)
	OnPeerClosed(p *Peer)
}

// Peer is one room participant. It owns its receivers and senders and
// forwards their events to a RoomListener.
type Peer struct {
	mu           sync.Mutex
	id           string
	listener     RoomListener
	capabilities rtpdict.Capabilities
	receivers    map[string]*receiver.Receiver
	senders      map[string]*sender.Sender
	closed       bool
}

// New constructs a Peer with no receivers or senders yet.
func New(id string, listener RoomListener) *Peer {
	return &Peer{
		id:        id,
		listener:  listener,
		receivers: make(map[string]*receiver.Receiver),
		senders:   make(map[string]*sender.Sender),
	}
}

// ID returns the room-unique peer id.
func (p *Peer) ID() string { return p.id }

// SetCapabilities installs this peer's negotiated RTP capabilities, a
// refinement of the room's (spec §4.D).
func (p *Peer) SetCapabilities(caps rtpdict.Capabilities) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.capabilities = caps
}

// Capabilities returns this peer's negotiated capabilities.
func (p *Peer) Capabilities() rtpdict.Capabilities {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.capabilities
}

// CreateReceiver constructs a receiver owned by this peer and registers it
// as this peer's receiver.Listener.
func (p *Peer) CreateReceiver(receiverID string) (*receiver.Receiver, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, exists := p.receivers[receiverID]; exists {
		return nil, fmt.Errorf("%w: %s", ErrReceiverExists, receiverID)
	}
	r := receiver.New(receiverID, p)
	p.receivers[receiverID] = r
	return r, nil
}

// ReceiverIDs returns the ids of every receiver this peer currently owns,
// for a caller (the room, during peer teardown) that needs to reconcile
// its own bookkeeping against what Close is about to tear down.
func (p *Peer) ReceiverIDs() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	ids := make([]string, 0, len(p.receivers))
	for id := range p.receivers {
		ids = append(ids, id)
	}
	return ids
}

// SenderIDs returns the ids of every sender this peer currently owns.
func (p *Peer) SenderIDs() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	ids := make([]string, 0, len(p.senders))
	for id := range p.senders {
		ids = append(ids, id)
	}
	return ids
}

// Receiver looks up one of this peer's receivers by id.
func (p *Peer) Receiver(receiverID string) (*receiver.Receiver, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	r, ok := p.receivers[receiverID]
	return r, ok
}

// CreateSender constructs a sender owned by this peer, mirroring a
// receiver owned by (possibly) another peer. feedback is notified of RTCP
// reports this sender relays; it is normally the receiver-owning peer.
func (p *Peer) CreateSender(senderID, receiverID string, feedback sender.ReceiverFeedbackListener) (*sender.Sender, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, exists := p.senders[senderID]; exists {
		return nil, fmt.Errorf("%w: %s", ErrSenderExists, senderID)
	}
	s := sender.New(senderID, receiverID, feedback)
	p.senders[senderID] = s
	return s, nil
}

// Sender looks up one of this peer's senders by id.
func (p *Peer) Sender(senderID string) (*sender.Sender, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.senders[senderID]
	return s, ok
}

// CloseSender closes and removes senderID from this peer's map, if present.
func (p *Peer) CloseSender(senderID string) {
	p.mu.Lock()
	s, ok := p.senders[senderID]
	if ok {
		delete(p.senders, senderID)
	}
	p.mu.Unlock()
	if ok {
		s.Close()
	}
}

// CloseReceiver closes and removes receiverID from this peer's map, if
// present.
func (p *Peer) CloseReceiver(receiverID string) {
	p.mu.Lock()
	r, ok := p.receivers[receiverID]
	if ok {
		delete(p.receivers, receiverID)
	}
	p.mu.Unlock()
	if ok {
		r.Close()
	}
}

// Close closes every receiver and sender this peer owns, then notifies the
// RoomListener exactly once.
func (p *Peer) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	receivers := make([]*receiver.Receiver, 0, len(p.receivers))
	for _, r := range p.receivers {
		receivers = append(receivers, r)
	}
	senders := make([]*sender.Sender, 0, len(p.senders))
	for _, s := range p.senders {
		senders = append(senders, s)
	}
	p.mu.Unlock()

	for _, r := range receivers {
		r.Close()
	}
	for _, s := range senders {
		s.Close()
	}

	p.listener.OnPeerClosed(p)
}

// --- receiver.Listener ---

// OnReceiverRtpParameters forwards to the RoomListener so the room can
// mirror this receiver to every other peer in the room.
func (p *Peer) OnReceiverRtpParameters(r *receiver.Receiver) {
	p.listener.OnPeerReceiverParameters(p, r)
}

// OnReceiverRtpPacket forwards to the RoomListener for fan-out dispatch.
func (p *Peer) OnReceiverRtpPacket(r *receiver.Receiver, pkt *rtppacket.Packet) {
	p.listener.OnPeerRtpPacket(p, r, pkt)
}

// OnReceiverClosed removes the receiver from this peer's map (if Close was
// invoked directly on the receiver rather than through CloseReceiver) and
// forwards to the RoomListener so the bipartite map is updated.
func (p *Peer) OnReceiverClosed(r *receiver.Receiver) {
	p.mu.Lock()
	delete(p.receivers, r.ID())
	p.mu.Unlock()
	p.listener.OnPeerReceiverClosed(p, r.ID())
}

// --- sender.ReceiverFeedbackListener ---

// OnSenderReceiverReport is called when this peer is the receiver-owning
// peer for a sender's mirrored stream; it logs the report for now, loop
// closure beyond logging is policy the room or a future bandwidth
// estimator may add.
func (p *Peer) OnSenderReceiverReport(s *sender.Sender, report *rtcp.ReceiverReport) {
	log.WithField("peer_id", p.id).WithField("sender_id", s.ID()).
		WithField("reports", report.Reports).Debug("received RTCP receiver report")
}

// OnSenderFeedback is called for other RTCP feedback (PLI, FIR, NACK,
// REMB, ...) relayed by a sender mirroring one of this peer's receivers. It
// forwards to the RoomListener, which owns the retransmission scratch a
// NACK is serviced through (spec §4.H).
func (p *Peer) OnSenderFeedback(s *sender.Sender, feedback rtcp.Packet) {
	log.WithField("peer_id", p.id).WithField("sender_id", s.ID()).Debug("received RTCP feedback")
	p.listener.OnPeerSenderFeedback(p, s, feedback)
}
