package main

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/mediaforge/sfuworker/channel"
	"github.com/mediaforge/sfuworker/peer"
	"github.com/mediaforge/sfuworker/room"
	"github.com/mediaforge/sfuworker/rtpdict"
	"github.com/mediaforge/sfuworker/rtppacket"
	"github.com/mediaforge/sfuworker/sender"
	"github.com/mediaforge/sfuworker/wireid"
	"github.com/mediaforge/sfuworker/workerlog"
)

var workerLog = workerlog.For("worker")

// worker is the process-wide dispatch table: every room, and the id
// indirection needed to route a request's internal path to the right
// entity. It implements channel.Dispatcher.
type worker struct {
	mu    sync.Mutex
	conn  *channel.Conn
	rooms map[string]*room.Room

	// transports is deliberately a thin bookkeeping stub: ICE/DTLS/SRTP
	// transport establishment is delegated to an external collaborator and
	// specified only at its interface (spec §1 Non-goals), so this worker
	// only tracks that a transportId exists and which peer owns it.
	transports map[string]*transportEntry
}

type transportEntry struct {
	id     string
	roomID string
	peerID string
}

func newWorker() *worker {
	return &worker{
		rooms:      make(map[string]*room.Room),
		transports: make(map[string]*transportEntry),
	}
}

func (w *worker) HandleNotification(n *channel.Notification) {
	workerLog.WithField("event", n.Event).WithField("target_id", n.TargetID).
		Debug("dropping unexpected inbound notification")
}

func (w *worker) HandleRequest(req *channel.Request, reply *channel.Reply) {
	if req.Internal == nil && req.Method != "worker.dump" && req.Method != "worker.updateSettings" {
		reply.Reject("internal routing path is required for this method")
		return
	}

	switch req.Method {
	case "worker.dump":
		w.handleWorkerDump(reply)
	case "worker.updateSettings":
		w.handleWorkerUpdateSettings(req, reply)
	case "worker.createRouter":
		w.handleCreateRouter(req, reply)
	case "router.close":
		w.handleRouterClose(req, reply)
	case "router.dump":
		w.handleRouterDump(req, reply)
	case "router.createPeer":
		w.handleCreatePeer(req, reply)
	case "peer.close":
		w.handlePeerClose(req, reply)
	case "peer.dump":
		w.handlePeerDump(req, reply)
	case "peer.setCapabilities":
		w.handlePeerSetCapabilities(req, reply)
	case "peer.createTransport":
		w.handlePeerCreateTransport(req, reply)
	case "peer.createRtpReceiver":
		w.handlePeerCreateRtpReceiver(req, reply)
	case "transport.close":
		w.handleTransportClose(req, reply)
	case "transport.dump":
		w.handleTransportDump(req, reply)
	case "transport.setRemoteDtlsParameters":
		w.handleTransportSetRemoteDtlsParameters(req, reply)
	case "rtpReceiver.close":
		w.handleRtpReceiverClose(req, reply)
	case "rtpReceiver.dump":
		w.handleRtpReceiverDump(req, reply)
	case "rtpReceiver.receive":
		w.handleRtpReceiverReceive(req, reply)
	case "rtpSender.dump":
		w.handleRtpSenderDump(req, reply)
	case "rtpSender.setTransport":
		w.handleRtpSenderSetTransport(req, reply)
	default:
		reply.Reject(fmt.Sprintf("unknown method %q", req.Method))
	}
}

// --- lookups ---

func (w *worker) findRoom(roomID string) (*room.Room, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	r, ok := w.rooms[roomID]
	return r, ok
}

func (w *worker) findPeer(roomID, peerID string) (*peer.Peer, bool) {
	r, ok := w.findRoom(roomID)
	if !ok {
		return nil, false
	}
	return r.Peer(peerID)
}

// --- worker.* ---

type workerDumpResponse struct {
	RoomIDs []string `json:"roomIds"`
}

func (w *worker) handleWorkerDump(reply *channel.Reply) {
	w.mu.Lock()
	ids := make([]string, 0, len(w.rooms))
	for id := range w.rooms {
		ids = append(ids, id)
	}
	w.mu.Unlock()
	reply.Accept(workerDumpResponse{RoomIDs: ids})
}

type updateSettingsData struct {
	LogLevel string `json:"logLevel"`
}

func (w *worker) handleWorkerUpdateSettings(req *channel.Request, reply *channel.Reply) {
	var data updateSettingsData
	if err := json.Unmarshal(req.Data, &data); err != nil {
		reply.Reject("malformed data: " + err.Error())
		return
	}
	if data.LogLevel != "" {
		workerlog.SetLevel(data.LogLevel)
	}
	reply.Accept(nil)
}

// --- worker.createRouter / router.* ---

type createRouterData struct {
	MediaCodecs      []rtpdict.CodecCapability `json:"mediaCodecs"`
	HeaderExtensions []rtpdict.HeaderExtension `json:"headerExtensions"`
}

func (w *worker) handleCreateRouter(req *channel.Request, reply *channel.Reply) {
	if req.Internal == nil || req.Internal.RoomID == "" {
		reply.Reject("internal.roomId is required")
		return
	}

	w.mu.Lock()
	if _, exists := w.rooms[req.Internal.RoomID]; exists {
		w.mu.Unlock()
		reply.Reject(fmt.Sprintf("router %s already exists", req.Internal.RoomID))
		return
	}
	w.mu.Unlock()

	var data createRouterData
	if err := json.Unmarshal(req.Data, &data); err != nil {
		reply.Reject("malformed data: " + err.Error())
		return
	}

	r, err := room.New(req.Internal.RoomID, data.MediaCodecs, data.HeaderExtensions, roomClosedListenerFunc(w.onRoomClosed))
	if err != nil {
		reply.Reject(err.Error())
		return
	}

	w.mu.Lock()
	w.rooms[req.Internal.RoomID] = r
	w.mu.Unlock()

	reply.Accept(nil)
}

type roomClosedListenerFunc func(roomID string)

func (f roomClosedListenerFunc) OnRoomClosed(roomID string) { f(roomID) }

func (w *worker) onRoomClosed(roomID string) {
	w.mu.Lock()
	delete(w.rooms, roomID)
	w.mu.Unlock()
	workerLog.WithField("room_id", roomID).Info("router garbage collected")
}

func (w *worker) handleRouterClose(req *channel.Request, reply *channel.Reply) {
	r, ok := w.findRoom(req.Internal.RoomID)
	if !ok {
		reply.Reject("router not found")
		return
	}
	r.MarkForGC()
	reply.Accept(nil)
}

type routerDumpResponse struct {
	Capabilities rtpdict.Capabilities `json:"rtpCapabilities"`
}

func (w *worker) handleRouterDump(req *channel.Request, reply *channel.Reply) {
	r, ok := w.findRoom(req.Internal.RoomID)
	if !ok {
		reply.Reject("router not found")
		return
	}
	reply.Accept(routerDumpResponse{Capabilities: r.Capabilities()})
}

type createPeerData struct {
	RtpCapabilities *rtpdict.Capabilities `json:"rtpCapabilities"`
}

func (w *worker) handleCreatePeer(req *channel.Request, reply *channel.Reply) {
	r, ok := w.findRoom(req.Internal.RoomID)
	if !ok {
		reply.Reject("router not found")
		return
	}
	if req.Internal.PeerID == "" {
		reply.Reject("internal.peerId is required")
		return
	}

	var data createPeerData
	if len(req.Data) > 0 {
		if err := json.Unmarshal(req.Data, &data); err != nil {
			reply.Reject("malformed data: " + err.Error())
			return
		}
	}

	if _, err := r.AddPeer(req.Internal.PeerID, data.RtpCapabilities); err != nil {
		reply.Reject(err.Error())
		return
	}
	reply.Accept(nil)
}

// --- peer.* ---

func (w *worker) handlePeerClose(req *channel.Request, reply *channel.Reply) {
	r, ok := w.findRoom(req.Internal.RoomID)
	if !ok {
		reply.Reject("router not found")
		return
	}
	if err := r.ClosePeer(req.Internal.PeerID); err != nil {
		reply.Reject(err.Error())
		return
	}
	reply.Accept(nil)
}

type peerDumpResponse struct {
	ReceiverIDs []string `json:"rtpReceiverIds"`
	SenderIDs   []string `json:"rtpSenderIds"`
}

func (w *worker) handlePeerDump(req *channel.Request, reply *channel.Reply) {
	p, ok := w.findPeer(req.Internal.RoomID, req.Internal.PeerID)
	if !ok {
		reply.Reject("peer not found")
		return
	}
	reply.Accept(peerDumpResponse{ReceiverIDs: p.ReceiverIDs(), SenderIDs: p.SenderIDs()})
}

type setCapabilitiesData struct {
	RtpCapabilities rtpdict.Capabilities `json:"rtpCapabilities"`
}

func (w *worker) handlePeerSetCapabilities(req *channel.Request, reply *channel.Reply) {
	r, ok := w.findRoom(req.Internal.RoomID)
	if !ok {
		reply.Reject("router not found")
		return
	}
	p, ok := r.Peer(req.Internal.PeerID)
	if !ok {
		reply.Reject("peer not found")
		return
	}

	var data setCapabilitiesData
	if err := json.Unmarshal(req.Data, &data); err != nil {
		reply.Reject("malformed data: " + err.Error())
		return
	}

	negotiated, err := r.Capabilities().Negotiate(data.RtpCapabilities)
	if err != nil {
		reply.Reject(err.Error())
		return
	}
	p.SetCapabilities(negotiated)
	reply.Accept(nil)
}

// --- peer.createTransport / transport.* ---
//
// These model the external ICE/DTLS/SRTP transport collaborator's
// lifecycle only at its interface (spec §1 Non-goals exclude the
// transport itself): the worker tracks that a transportId was allocated
// to a peer, nothing more.

type createTransportResponse struct {
	TransportID string `json:"transportId"`
}

func (w *worker) handlePeerCreateTransport(req *channel.Request, reply *channel.Reply) {
	if _, ok := w.findPeer(req.Internal.RoomID, req.Internal.PeerID); !ok {
		reply.Reject("peer not found")
		return
	}

	id := wireid.New()
	w.mu.Lock()
	w.transports[id] = &transportEntry{id: id, roomID: req.Internal.RoomID, peerID: req.Internal.PeerID}
	w.mu.Unlock()

	reply.Accept(createTransportResponse{TransportID: id})
}

func (w *worker) findTransport(transportID string) (*transportEntry, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	t, ok := w.transports[transportID]
	return t, ok
}

func (w *worker) handleTransportClose(req *channel.Request, reply *channel.Reply) {
	w.mu.Lock()
	delete(w.transports, req.Internal.TransportID)
	w.mu.Unlock()
	reply.Accept(nil)
}

type transportDumpResponse struct {
	TransportID string `json:"transportId"`
	PeerID      string `json:"peerId"`
}

func (w *worker) handleTransportDump(req *channel.Request, reply *channel.Reply) {
	t, ok := w.findTransport(req.Internal.TransportID)
	if !ok {
		reply.Reject("transport not found")
		return
	}
	reply.Accept(transportDumpResponse{TransportID: t.id, PeerID: t.peerID})
}

func (w *worker) handleTransportSetRemoteDtlsParameters(req *channel.Request, reply *channel.Reply) {
	if _, ok := w.findTransport(req.Internal.TransportID); !ok {
		reply.Reject("transport not found")
		return
	}
	// DTLS handshake itself is out of scope; accepting here only records
	// that the control-plane step happened.
	reply.Accept(nil)
}

// --- peer.createRtpReceiver / rtpReceiver.* ---

type createRtpReceiverData struct {
	RtpParameters rtpdict.Parameters `json:"rtpParameters"`
}

func (w *worker) handlePeerCreateRtpReceiver(req *channel.Request, reply *channel.Reply) {
	r, ok := w.findRoom(req.Internal.RoomID)
	if !ok {
		reply.Reject("router not found")
		return
	}
	p, ok := r.Peer(req.Internal.PeerID)
	if !ok {
		reply.Reject("peer not found")
		return
	}
	if req.Internal.RtpReceiverID == "" {
		reply.Reject("internal.rtpReceiverId is required")
		return
	}

	var data createRtpReceiverData
	if err := json.Unmarshal(req.Data, &data); err != nil {
		reply.Reject("malformed data: " + err.Error())
		return
	}

	recv, err := p.CreateReceiver(req.Internal.RtpReceiverID)
	if err != nil {
		reply.Reject(err.Error())
		return
	}
	if err := recv.SetParameters(data.RtpParameters, p.Capabilities()); err != nil {
		p.CloseReceiver(req.Internal.RtpReceiverID)
		reply.Reject(err.Error())
		return
	}
	reply.Accept(nil)
}

func (w *worker) findReceiver(roomID, peerID, receiverID string) (recv receiverLookup, ok bool) {
	p, ok := w.findPeer(roomID, peerID)
	if !ok {
		return receiverLookup{}, false
	}
	r, ok := p.Receiver(receiverID)
	if !ok {
		return receiverLookup{}, false
	}
	return receiverLookup{peer: p, id: receiverID, recv: r}, true
}

type receiverLookup struct {
	peer *peer.Peer
	id   string
	recv interface {
		ReceivePacket(pkt *rtppacket.Packet)
	}
}

func (w *worker) handleRtpReceiverClose(req *channel.Request, reply *channel.Reply) {
	p, ok := w.findPeer(req.Internal.RoomID, req.Internal.PeerID)
	if !ok {
		reply.Reject("peer not found")
		return
	}
	p.CloseReceiver(req.Internal.RtpReceiverID)
	reply.Accept(nil)
}

type rtpReceiverDumpResponse struct {
	RtpReceiverID string `json:"rtpReceiverId"`
}

func (w *worker) handleRtpReceiverDump(req *channel.Request, reply *channel.Reply) {
	if _, ok := w.findReceiver(req.Internal.RoomID, req.Internal.PeerID, req.Internal.RtpReceiverID); !ok {
		reply.Reject("rtpReceiver not found")
		return
	}
	reply.Accept(rtpReceiverDumpResponse{RtpReceiverID: req.Internal.RtpReceiverID})
}

type receivePacketData struct {
	// Packet is the raw RTP datagram handed off by the external transport
	// collaborator once it has decrypted/depacketized the wire bytes (spec
	// §1 scopes the transport itself out; this is its narrow interface
	// into the worker). encoding/json base64-encodes/decodes this field.
	Packet []byte `json:"packet"`
}

func (w *worker) handleRtpReceiverReceive(req *channel.Request, reply *channel.Reply) {
	lookup, ok := w.findReceiver(req.Internal.RoomID, req.Internal.PeerID, req.Internal.RtpReceiverID)
	if !ok {
		reply.Reject("rtpReceiver not found")
		return
	}

	var data receivePacketData
	if err := json.Unmarshal(req.Data, &data); err != nil {
		reply.Reject("malformed data: " + err.Error())
		return
	}

	pkt, err := rtppacket.Parse(data.Packet)
	if err != nil {
		// Malformed packets are dropped with a warning, not rejected as a
		// request failure (spec §7): the request itself succeeded.
		workerLog.WithField("rtp_receiver_id", lookup.id).WithField("error", err.Error()).
			Warn("dropping malformed RTP packet")
		reply.Accept(nil)
		return
	}

	lookup.recv.ReceivePacket(pkt)
	reply.Accept(nil)
}

// --- rtpSender.* ---

func (w *worker) findSender(roomID, peerID, senderID string) (*sender.Sender, bool) {
	p, ok := w.findPeer(roomID, peerID)
	if !ok {
		return nil, false
	}
	return p.Sender(senderID)
}

type rtpSenderDumpResponse struct {
	RtpSenderID string `json:"rtpSenderId"`
	Available   bool   `json:"available"`
}

func (w *worker) handleRtpSenderDump(req *channel.Request, reply *channel.Reply) {
	s, ok := w.findSender(req.Internal.RoomID, req.Internal.PeerID, req.Internal.RtpSenderID)
	if !ok {
		reply.Reject("rtpSender not found")
		return
	}
	reply.Accept(rtpSenderDumpResponse{RtpSenderID: s.ID(), Available: s.IsAvailable()})
}

type setTransportData struct {
	TransportID string `json:"transportId"`
}

func (w *worker) handleRtpSenderSetTransport(req *channel.Request, reply *channel.Reply) {
	s, ok := w.findSender(req.Internal.RoomID, req.Internal.PeerID, req.Internal.RtpSenderID)
	if !ok {
		reply.Reject("rtpSender not found")
		return
	}

	var data setTransportData
	if err := json.Unmarshal(req.Data, &data); err != nil {
		reply.Reject("malformed data: " + err.Error())
		return
	}
	if _, ok := w.findTransport(data.TransportID); !ok {
		reply.Reject("transport not found")
		return
	}

	s.SetTransport(&notifyingTransport{worker: w, transportID: data.TransportID, senderID: req.Internal.RtpSenderID})
	reply.Accept(nil)
}

// notifyingTransport is the sender.Transport stub standing in for the
// external ICE/DTLS/SRTP collaborator: in production, the supervisor's
// transport process would hand the serialized packet to the network. Here
// it surfaces the send as a spontaneous notification on the control
// channel, which is the only egress this worker owns.
type notifyingTransport struct {
	worker      *worker
	transportID string
	senderID    string
}

func (t *notifyingTransport) SendRtpPacket(pkt *rtppacket.Packet) error {
	raw, err := pkt.Serialize()
	if err != nil {
		return fmt.Errorf("serializing outbound packet: %w", err)
	}
	data, err := json.Marshal(receivePacketData{Packet: raw})
	if err != nil {
		return fmt.Errorf("marshaling outbound packet notification: %w", err)
	}
	return t.worker.conn.SendNotification(&channel.Notification{
		TargetID: t.transportID,
		Event:    "transport.send",
		Data:     data,
	})
}
