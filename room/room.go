package room

import (
	"errors"
	"fmt"
	"sync"

	"github.com/mediaforge/sfuworker/invariant"
	"github.com/mediaforge/sfuworker/limits"
	"github.com/mediaforge/sfuworker/peer"
	"github.com/mediaforge/sfuworker/receiver"
	"github.com/mediaforge/sfuworker/rtcppacket"
	"github.com/mediaforge/sfuworker/rtpdict"
	"github.com/mediaforge/sfuworker/rtppacket"
	"github.com/mediaforge/sfuworker/sender"
	"github.com/mediaforge/sfuworker/wireid"
	"github.com/mediaforge/sfuworker/workerlog"
	"github.com/pion/rtcp"
)

var log = workerlog.For("room")

// ErrPeerExists and ErrPeerNotFound guard the peer-id namespace.
var (
	ErrPeerExists   = errors.New("peer already exists")
	ErrPeerNotFound = errors.New("peer not found")
)

// ClosedListener is notified once a room has no peers left and has been
// marked for garbage collection (spec §4.H "room.close" / empty-room GC).
type ClosedListener interface {
	OnRoomClosed(roomID string)
}

// Room is one conference room: the set of peers sharing a negotiated set of
// RTP capabilities, plus the receiver↔sender bipartite map that drives
// packet fan-out.
type Room struct {
	mu sync.Mutex

	id             string
	capabilities   rtpdict.Capabilities
	closedListener ClosedListener
	markedForGC    bool

	peerOrder []string
	peers     map[string]*peer.Peer

	// receiverOwner and receiverByID let OnPeerRtpPacket and
	// OnPeerReceiverClosed resolve a receiver id back to its owning peer and
	// the receiver object without walking every peer.
	receiverOwner map[string]*peer.Peer
	receiverByID  map[string]*receiver.Receiver

	// receiverSenders is the core bipartite edge set, receiver -> senders,
	// kept as an ordered slice (not a set) so fan-out happens in the order
	// senders were created, i.e. the order peers joined the room.
	receiverSenders map[string][]string

	// senderToReceiver and senderOwner are the reverse edges, letting sender
	// teardown and reconciliation run without a linear scan.
	senderToReceiver map[string]string
	senderOwner      map[string]*peer.Peer

	// nackScratch is the fixed-size, reused coalescing vector spec §3/§4.H
	// names: handed to a sender's Retransmit so it can gather the packets a
	// single NACK names without reallocating. Its contents are only valid
	// for the duration of a single OnPeerSenderFeedback call.
	nackScratch []*rtppacket.Packet
}

// New computes the room's effective RTP capabilities from mediaCodecs and
// headerExtensions (spec §4.D) and returns an empty room ready to accept
// peers.
func New(id string, mediaCodecs []rtpdict.CodecCapability, headerExtensions []rtpdict.HeaderExtension, closedListener ClosedListener) (*Room, error) {
	caps, err := rtpdict.BuildRoomCapabilities(mediaCodecs, headerExtensions)
	if err != nil {
		return nil, fmt.Errorf("building room capabilities: %w", err)
	}
	return &Room{
		id:               id,
		capabilities:     *caps,
		closedListener:   closedListener,
		peers:            make(map[string]*peer.Peer),
		receiverOwner:    make(map[string]*peer.Peer),
		receiverByID:     make(map[string]*receiver.Receiver),
		receiverSenders:  make(map[string][]string),
		senderToReceiver: make(map[string]string),
		senderOwner:      make(map[string]*peer.Peer),
		nackScratch:      make([]*rtppacket.Packet, 0, limits.MaxNackCoalesce),
	}, nil
}

// ID returns the room's id.
func (r *Room) ID() string { return r.id }

// Capabilities returns the room's effective RTP capabilities.
func (r *Room) Capabilities() rtpdict.Capabilities {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.capabilities
}

// AddPeer negotiates peerCapabilities against the room's capabilities (if
// given) and registers a new peer.Peer under peerID.
func (r *Room) AddPeer(peerID string, peerCapabilities *rtpdict.Capabilities) (*peer.Peer, error) {
	r.mu.Lock()
	if _, exists := r.peers[peerID]; exists {
		r.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrPeerExists, peerID)
	}
	room := r.capabilities
	r.mu.Unlock()

	negotiated := room
	if peerCapabilities != nil {
		var err error
		negotiated, err = room.Negotiate(*peerCapabilities)
		if err != nil {
			return nil, fmt.Errorf("negotiating capabilities for peer %s: %w", peerID, err)
		}
	}

	p := peer.New(peerID, r)
	p.SetCapabilities(negotiated)

	r.mu.Lock()
	r.peers[peerID] = p
	r.peerOrder = append(r.peerOrder, peerID)
	r.mu.Unlock()

	log.WithField("room_id", r.id).WithField("peer_id", peerID).Info("peer joined room")
	return p, nil
}

// Peer looks up a peer by id.
func (r *Room) Peer(peerID string) (*peer.Peer, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.peers[peerID]
	return p, ok
}

// ClosePeer closes peerID's Peer and reconciles the bipartite map against
// everything that teardown cascaded through. peer.Close closes its own
// senders without telling the room (its receivers do report, through
// OnPeerReceiverClosed), so ClosePeer snapshots what the peer owned
// beforehand and cleans up leftover bipartite-map entries afterward —
// tolerating entries already removed by that OnPeerReceiverClosed cascade
// (spec §4.H's teardown idempotency).
func (r *Room) ClosePeer(peerID string) error {
	r.mu.Lock()
	p, ok := r.peers[peerID]
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrPeerNotFound, peerID)
	}

	ownedReceivers := p.ReceiverIDs()
	ownedSenders := p.SenderIDs()

	p.Close()

	r.mu.Lock()
	for _, receiverID := range ownedReceivers {
		r.forgetReceiverLocked(receiverID)
	}
	for _, senderID := range ownedSenders {
		r.forgetSenderLocked(senderID)
	}
	delete(r.peers, peerID)
	r.removePeerOrderLocked(peerID)
	empty := len(r.peers) == 0 && r.markedForGC
	r.mu.Unlock()

	log.WithField("room_id", r.id).WithField("peer_id", peerID).Info("peer left room")

	if empty && r.closedListener != nil {
		r.closedListener.OnRoomClosed(r.id)
	}
	return nil
}

// MarkForGC flags the room for garbage collection once it becomes empty. If
// it is already empty, the closed listener is notified immediately.
func (r *Room) MarkForGC() {
	r.mu.Lock()
	r.markedForGC = true
	empty := len(r.peers) == 0
	r.mu.Unlock()

	if empty && r.closedListener != nil {
		r.closedListener.OnRoomClosed(r.id)
	}
}

// forgetReceiverLocked removes receiverID and every sender mirroring it from
// the bipartite map. Safe to call on an id already removed by cascade.
// Callers hold r.mu.
func (r *Room) forgetReceiverLocked(receiverID string) {
	senders := r.receiverSenders[receiverID]
	delete(r.receiverSenders, receiverID)
	delete(r.receiverOwner, receiverID)
	delete(r.receiverByID, receiverID)
	for _, senderID := range senders {
		delete(r.senderToReceiver, senderID)
		delete(r.senderOwner, senderID)
	}
	r.checkSymmetryLocked()
}

// forgetSenderLocked removes senderID from the bipartite map, including its
// entry in its receiver's fan-out slice. Safe to call on an id already
// removed by cascade. Callers hold r.mu.
func (r *Room) forgetSenderLocked(senderID string) {
	receiverID, ok := r.senderToReceiver[senderID]
	delete(r.senderToReceiver, senderID)
	delete(r.senderOwner, senderID)
	if !ok {
		return
	}
	senders := r.receiverSenders[receiverID]
	for i, id := range senders {
		if id == senderID {
			r.receiverSenders[receiverID] = append(senders[:i], senders[i+1:]...)
			break
		}
	}
	r.checkSymmetryLocked()
}

// checkSymmetryLocked asserts the bipartite routing map's symmetry
// invariant (spec §8): every sender listed under a receiver's fan-out must
// map back to that same receiver, and every sender->receiver edge must
// appear in its receiver's fan-out list. Callers hold r.mu.
func (r *Room) checkSymmetryLocked() {
	for receiverID, senders := range r.receiverSenders {
		for _, senderID := range senders {
			invariant.Check(r.senderToReceiver[senderID] == receiverID,
				"sender %s listed under receiver %s but maps back to receiver %q", senderID, receiverID, r.senderToReceiver[senderID])
		}
	}
	for senderID, receiverID := range r.senderToReceiver {
		found := false
		for _, id := range r.receiverSenders[receiverID] {
			if id == senderID {
				found = true
				break
			}
		}
		invariant.Check(found, "sender %s maps to receiver %s but is absent from its fan-out list", senderID, receiverID)
	}
}

func (r *Room) removePeerOrderLocked(peerID string) {
	for i, id := range r.peerOrder {
		if id == peerID {
			r.peerOrder = append(r.peerOrder[:i], r.peerOrder[i+1:]...)
			return
		}
	}
}

// --- peer.RoomListener ---

// OnPeerReceiverParameters mirrors a newly-parameterized receiver to every
// other peer currently in the room, in peer-insertion order, so a receiver
// created after other peers already joined fans out deterministically
// (spec §8 scenario 4).
func (r *Room) OnPeerReceiverParameters(p *peer.Peer, rcv *receiver.Receiver) {
	r.mu.Lock()
	otherPeers := make([]*peer.Peer, 0, len(r.peerOrder))
	for _, id := range r.peerOrder {
		if id == p.ID() {
			continue
		}
		otherPeers = append(otherPeers, r.peers[id])
	}
	r.receiverOwner[rcv.ID()] = p
	r.receiverByID[rcv.ID()] = rcv
	r.mu.Unlock()

	params := rcv.Parameters()

	for _, other := range otherPeers {
		senderID := wireid.New()

		s, err := other.CreateSender(senderID, rcv.ID(), p)
		invariant.Check(err == nil, "fresh sender id %s collided in peer %s: %v", senderID, other.ID(), err)
		s.SetParameters(params)

		r.mu.Lock()
		r.receiverSenders[rcv.ID()] = append(r.receiverSenders[rcv.ID()], senderID)
		r.senderToReceiver[senderID] = rcv.ID()
		r.senderOwner[senderID] = other
		r.checkSymmetryLocked()
		r.mu.Unlock()

		log.WithField("room_id", r.id).WithField("receiver_id", rcv.ID()).
			WithField("sender_id", senderID).WithField("peer_id", other.ID()).
			Debug("mirrored receiver to peer")
	}
}

// OnPeerRtpPacket forwards pkt to every sender currently mirroring rcv, in
// the order those senders were created.
func (r *Room) OnPeerRtpPacket(p *peer.Peer, rcv *receiver.Receiver, pkt *rtppacket.Packet) {
	r.mu.Lock()
	senderIDs := append([]string(nil), r.receiverSenders[rcv.ID()]...)
	owners := make([]*peer.Peer, len(senderIDs))
	for i, id := range senderIDs {
		owners[i] = r.senderOwner[id]
	}
	r.mu.Unlock()

	for i, senderID := range senderIDs {
		owner := owners[i]
		if owner == nil {
			continue
		}
		s, ok := owner.Sender(senderID)
		if !ok {
			continue
		}
		s.Send(pkt)
	}
}

// OnPeerReceiverClosed tears down every sender mirroring receiverID and
// removes the bipartite-map entries for it.
func (r *Room) OnPeerReceiverClosed(p *peer.Peer, receiverID string) {
	r.mu.Lock()
	senderIDs := append([]string(nil), r.receiverSenders[receiverID]...)
	owners := make([]*peer.Peer, len(senderIDs))
	for i, id := range senderIDs {
		owners[i] = r.senderOwner[id]
	}
	r.forgetReceiverLocked(receiverID)
	r.mu.Unlock()

	for i, senderID := range senderIDs {
		if owners[i] == nil {
			continue
		}
		owners[i].CloseSender(senderID)
	}

	log.WithField("room_id", r.id).WithField("receiver_id", receiverID).Debug("receiver closed, mirrored senders torn down")
}

// OnPeerSenderFeedback services a NACK reported against one of p's mirrored
// senders by pulling matching packets from that sender's own retransmission
// history, using the room's reused coalescing scratch rather than
// allocating a fresh vector per feedback message (spec §3/§4.H). Other
// feedback kinds are not retransmission's concern and are ignored here.
func (r *Room) OnPeerSenderFeedback(p *peer.Peer, s *sender.Sender, feedback rtcp.Packet) {
	nack, ok := feedback.(*rtcp.TransportLayerNack)
	if !ok {
		return
	}
	seqs := rtcppacket.NackedSequenceNumbers(nack)
	if len(seqs) == 0 {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.nackScratch = s.Retransmit(seqs, r.nackScratch)
}

// OnPeerClosed is a no-op: ClosePeer already reconciled every bipartite-map
// entry this peer's receivers and senders held, using the snapshot it took
// before calling peer.Close.
func (r *Room) OnPeerClosed(p *peer.Peer) {}
