package receiver

import (
	"errors"
	"fmt"
	"sync"

	"github.com/mediaforge/sfuworker/rtpdict"
	"github.com/mediaforge/sfuworker/rtppacket"
	"github.com/mediaforge/sfuworker/workerlog"
)

var log = workerlog.For("receiver")

// ErrClosed is returned by operations attempted after Close.
var ErrClosed = errors.New("receiver closed")

// ErrUnknownCodec is returned by SetParameters when a codec it names isn't
// present in the peer's capabilities.
var ErrUnknownCodec = errors.New("codec not present in peer capabilities")

// Listener receives callbacks for one receiver's lifecycle and traffic. It
// is implemented by peer.Peer; the receiver never holds a concrete peer
// reference, only this interface, so the dependency points one way.
type Listener interface {
	// OnReceiverRtpParameters is called once SetParameters installs valid
	// parameters, so the room can mirror this receiver to every other peer.
	OnReceiverRtpParameters(r *Receiver)

	// OnReceiverRtpPacket is called for every packet ReceivePacket accepts.
	OnReceiverRtpPacket(r *Receiver, pkt *rtppacket.Packet)

	// OnReceiverClosed is called exactly once, when Close transitions the
	// receiver to its terminal state.
	OnReceiverClosed(r *Receiver)
}

type state int

const (
	stateOpen state = iota
	stateClosed
)

// Receiver is the ingress endpoint for one media stream owned by a peer.
type Receiver struct {
	mu       sync.Mutex
	id       string
	listener Listener
	state    state
	params   rtpdict.Parameters
}

// New constructs a Receiver in the open state, not yet carrying parameters.
func New(id string, listener Listener) *Receiver {
	return &Receiver{id: id, listener: listener, state: stateOpen}
}

// ID returns the room-unique receiver id this instance was constructed with.
func (r *Receiver) ID() string { return r.id }

// SetParameters validates params against peerCapabilities (every codec
// params names must be present there) and, if valid, installs them and
// notifies the listener.
func (r *Receiver) SetParameters(params rtpdict.Parameters, peerCapabilities rtpdict.Capabilities) error {
	r.mu.Lock()
	if r.state == stateClosed {
		r.mu.Unlock()
		return ErrClosed
	}

	for _, codec := range params.Codecs {
		if !peerCapabilities.HasMatchingPayloadType(codec.PayloadType) {
			r.mu.Unlock()
			log.WithField("receiver_id", r.id).WithField("payload_type", codec.PayloadType).
				Warn("rejecting SetParameters: unknown codec")
			return fmt.Errorf("%w: payload type %d", ErrUnknownCodec, codec.PayloadType)
		}
	}

	r.params = params
	r.mu.Unlock()

	r.listener.OnReceiverRtpParameters(r)
	return nil
}

// Parameters returns the receiver's currently installed parameters.
func (r *Receiver) Parameters() rtpdict.Parameters {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.params
}

// ReceivePacket is invoked by the transport collaborator for every inbound
// RTP packet. A packet whose payload type isn't present in the receiver's
// parameters is dropped silently, per spec §4.E and §4.H's tie-breaks.
func (r *Receiver) ReceivePacket(pkt *rtppacket.Packet) {
	r.mu.Lock()
	if r.state == stateClosed {
		r.mu.Unlock()
		return
	}
	accepted := r.params.HasPayloadType(pkt.PayloadType())
	r.mu.Unlock()

	if !accepted {
		log.WithField("receiver_id", r.id).WithField("payload_type", pkt.PayloadType()).
			Debug("dropping packet with unrecognized payload type")
		return
	}

	r.listener.OnReceiverRtpPacket(r, pkt)
}

// Close transitions the receiver to closed. Subsequent operations are
// no-ops. The listener is notified exactly once.
func (r *Receiver) Close() {
	r.mu.Lock()
	if r.state == stateClosed {
		r.mu.Unlock()
		return
	}
	r.state = stateClosed
	r.mu.Unlock()

	r.listener.OnReceiverClosed(r)
}

// IsClosed reports whether Close has already run.
func (r *Receiver) IsClosed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state == stateClosed
}
