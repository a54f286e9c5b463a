package receiver

import (
	"testing"

	"github.com/mediaforge/sfuworker/rtpdict"
	"github.com/mediaforge/sfuworker/rtppacket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeListener struct {
	gotParameters []*Receiver
	gotPackets    []*rtppacket.Packet
	closedCount   int
}

func (f *fakeListener) OnReceiverRtpParameters(r *Receiver) { f.gotParameters = append(f.gotParameters, r) }
func (f *fakeListener) OnReceiverRtpPacket(r *Receiver, pkt *rtppacket.Packet) {
	f.gotPackets = append(f.gotPackets, pkt)
}
func (f *fakeListener) OnReceiverClosed(r *Receiver) { f.closedCount++ }

func capsWithPT(pt uint8) rtpdict.Capabilities {
	return rtpdict.Capabilities{Codecs: []rtpdict.CodecCapability{{MimeType: "audio/opus", PayloadType: pt}}}
}

func samplePacket(t *testing.T, payloadType uint8) *rtppacket.Packet {
	buf := []byte{0x80, payloadType, 0x00, 0x01, 0, 0, 0, 0x64, 1, 2, 3, 4, 0xAA}
	p, err := rtppacket.Parse(buf)
	require.NoError(t, err)
	return p
}

func TestSetParametersAcceptsKnownCodec(t *testing.T) {
	listener := &fakeListener{}
	r := New("r1", listener)

	params := rtpdict.Parameters{Codecs: []rtpdict.CodecCapability{{PayloadType: 96}}}
	require.NoError(t, r.SetParameters(params, capsWithPT(96)))
	assert.Len(t, listener.gotParameters, 1)
}

func TestSetParametersRejectsUnknownCodec(t *testing.T) {
	listener := &fakeListener{}
	r := New("r1", listener)

	params := rtpdict.Parameters{Codecs: []rtpdict.CodecCapability{{PayloadType: 97}}}
	err := r.SetParameters(params, capsWithPT(96))
	require.ErrorIs(t, err, ErrUnknownCodec)
	assert.Empty(t, listener.gotParameters)
}

func TestReceivePacketDropsUnrecognizedPayloadType(t *testing.T) {
	listener := &fakeListener{}
	r := New("r1", listener)
	require.NoError(t, r.SetParameters(rtpdict.Parameters{Codecs: []rtpdict.CodecCapability{{PayloadType: 96}}}, capsWithPT(96)))

	r.ReceivePacket(samplePacket(t, 97))
	assert.Empty(t, listener.gotPackets)
}

func TestReceivePacketForwardsAcceptedPacket(t *testing.T) {
	listener := &fakeListener{}
	r := New("r1", listener)
	require.NoError(t, r.SetParameters(rtpdict.Parameters{Codecs: []rtpdict.CodecCapability{{PayloadType: 96}}}, capsWithPT(96)))

	pkt := samplePacket(t, 96)
	r.ReceivePacket(pkt)
	require.Len(t, listener.gotPackets, 1)
	assert.Same(t, pkt, listener.gotPackets[0])
}

func TestCloseIsIdempotentAndNotifiesOnce(t *testing.T) {
	listener := &fakeListener{}
	r := New("r1", listener)

	r.Close()
	r.Close()
	assert.Equal(t, 1, listener.closedCount)
	assert.True(t, r.IsClosed())
}

func TestOperationsAfterCloseAreNoOps(t *testing.T) {
	listener := &fakeListener{}
	r := New("r1", listener)
	r.Close()

	err := r.SetParameters(rtpdict.Parameters{}, capsWithPT(96))
	require.ErrorIs(t, err, ErrClosed)

	r.ReceivePacket(samplePacket(t, 96))
	assert.Empty(t, listener.gotPackets)
}
