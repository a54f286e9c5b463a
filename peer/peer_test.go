package peer

import (
	"testing"

	"github.com/mediaforge/sfuworker/receiver"
	"github.com/mediaforge/sfuworker/rtpdict"
	"github.com/mediaforge/sfuworker/rtppacket"
	"github.com/mediaforge/sfuworker/sender"
	"github.com/pion/rtcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRoom struct {
	receiverParams  []*receiver.Receiver
	packets         []*rtppacket.Packet
	closedReceivers []string
	closedPeers     []*Peer
	senderFeedback  []rtcp.Packet
}

func (f *fakeRoom) OnPeerReceiverParameters(p *Peer, r *receiver.Receiver) {
	f.receiverParams = append(f.receiverParams, r)
}
func (f *fakeRoom) OnPeerRtpPacket(p *Peer, r *receiver.Receiver, pkt *rtppacket.Packet) {
	f.packets = append(f.packets, pkt)
}
func (f *fakeRoom) OnPeerReceiverClosed(p *Peer, receiverID string) {
	f.closedReceivers = append(f.closedReceivers, receiverID)
}
func (f *fakeRoom) OnPeerClosed(p *Peer) { f.closedPeers = append(f.closedPeers, p) }
func (f *fakeRoom) OnPeerSenderFeedback(p *Peer, s *sender.Sender, feedback rtcp.Packet) {
	f.senderFeedback = append(f.senderFeedback, feedback)
}

// fakeRoom additionally satisfies sender.ReceiverFeedbackListener so it can
// stand in as the feedback collaborator passed to CreateSender in tests.
func (f *fakeRoom) OnSenderReceiverReport(s *sender.Sender, report *rtcp.ReceiverReport) {}
func (f *fakeRoom) OnSenderFeedback(s *sender.Sender, feedback rtcp.Packet)              {}

type fakeTransport struct{ sent int }

func (f *fakeTransport) SendRtpPacket(pkt *rtppacket.Packet) error { f.sent++; return nil }

func capsWithPT(pt uint8) rtpdict.Capabilities {
	return rtpdict.Capabilities{Codecs: []rtpdict.CodecCapability{{PayloadType: pt}}}
}

func paramsWithPT(pt uint8) rtpdict.Parameters {
	return rtpdict.Parameters{Codecs: []rtpdict.CodecCapability{{PayloadType: pt}}}
}

func TestCreateReceiverRejectsDuplicateID(t *testing.T) {
	room := &fakeRoom{}
	p := New("p1", room)

	_, err := p.CreateReceiver("r1")
	require.NoError(t, err)
	_, err = p.CreateReceiver("r1")
	require.ErrorIs(t, err, ErrReceiverExists)
}

func TestReceiverParametersBubbleToRoom(t *testing.T) {
	room := &fakeRoom{}
	p := New("p1", room)
	r, err := p.CreateReceiver("r1")
	require.NoError(t, err)

	require.NoError(t, r.SetParameters(paramsWithPT(96), capsWithPT(96)))
	assert.Len(t, room.receiverParams, 1)
}

func TestReceivedPacketBubblesToRoom(t *testing.T) {
	room := &fakeRoom{}
	p := New("p1", room)
	r, err := p.CreateReceiver("r1")
	require.NoError(t, err)
	require.NoError(t, r.SetParameters(paramsWithPT(96), capsWithPT(96)))

	buf := []byte{0x80, 0x60, 0x00, 0x01, 0, 0, 0, 0x64, 1, 2, 3, 4, 0xAA}
	pkt, err := rtppacket.Parse(buf)
	require.NoError(t, err)

	r.ReceivePacket(pkt)
	require.Len(t, room.packets, 1)
}

func TestCloseReceiverBubblesAndRemovesFromMap(t *testing.T) {
	room := &fakeRoom{}
	p := New("p1", room)
	_, err := p.CreateReceiver("r1")
	require.NoError(t, err)

	p.CloseReceiver("r1")
	assert.Equal(t, []string{"r1"}, room.closedReceivers)
	_, ok := p.Receiver("r1")
	assert.False(t, ok)
}

func TestPeerCloseClosesAllAndNotifiesOnce(t *testing.T) {
	room := &fakeRoom{}
	p := New("p1", room)
	_, err := p.CreateReceiver("r1")
	require.NoError(t, err)
	_, err = p.CreateSender("s1", "otherReceiver", &fakeRoom{})
	require.NoError(t, err)

	s, _ := p.Sender("s1")

	p.Close()
	p.Close()

	assert.Len(t, room.closedPeers, 1)
	assert.Equal(t, []string{"r1"}, room.closedReceivers)
	assert.True(t, s.IsClosed())
}

func TestSenderFeedbackBubblesToRoom(t *testing.T) {
	room := &fakeRoom{}
	p := New("p1", room)
	s, err := p.CreateSender("s1", "r1", p)
	require.NoError(t, err)

	s.ReceiveFeedback(&rtcp.PictureLossIndication{})
	assert.Len(t, room.senderFeedback, 1)
}

func TestCreateSenderRejectsDuplicateID(t *testing.T) {
	room := &fakeRoom{}
	p := New("p1", room)

	_, err := p.CreateSender("s1", "r1", room)
	require.NoError(t, err)
	_, err = p.CreateSender("s1", "r1", room)
	require.ErrorIs(t, err, ErrSenderExists)
}

func TestSenderCreatedThroughPeerForwardsPackets(t *testing.T) {
	room := &fakeRoom{}
	p := New("p1", room)
	s, err := p.CreateSender("s1", "r1", room)
	require.NoError(t, err)

	transport := &fakeTransport{}
	s.SetTransport(transport)

	buf := []byte{0x80, 0x60, 0x00, 0x01, 0, 0, 0, 0x64, 1, 2, 3, 4, 0xAA}
	pkt, err := rtppacket.Parse(buf)
	require.NoError(t, err)

	s.Send(pkt)
	assert.Equal(t, 1, transport.sent)
}
