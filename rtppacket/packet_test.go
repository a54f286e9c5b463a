package rtppacket

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func simplePacket() []byte {
	return []byte{
		0x80, 0x60, 0x00, 0x01,
		0x00, 0x00, 0x00, 0x64,
		0x12, 0x34, 0x56, 0x78,
		0xDE, 0xAD, 0xBE, 0xEF,
	}
}

func TestParseSerializeRoundTrip(t *testing.T) {
	buf := simplePacket()
	p, err := Parse(buf)
	require.NoError(t, err)

	assert.False(t, p.HasMarker())
	assert.Equal(t, uint8(0x60), p.PayloadType())
	assert.Equal(t, uint16(1), p.SequenceNumber())
	assert.Equal(t, uint32(0x64), p.Timestamp())
	assert.Equal(t, uint32(0x12345678), p.SSRC())
	assert.Equal(t, []byte{0xDE, 0xAD, 0xBE, 0xEF}, p.Payload())
	assert.False(t, p.IsOwned())

	out, err := p.Serialize()
	require.NoError(t, err)
	assert.True(t, bytes.Equal(buf, out))
	assert.True(t, p.IsOwned())
}

func TestParseRejectsShortBuffer(t *testing.T) {
	_, err := Parse([]byte{0x80, 0x60, 0x00})
	require.Error(t, err)
}

func TestParseRejectsBadVersion(t *testing.T) {
	buf := simplePacket()
	buf[0] = 0x00
	_, err := Parse(buf)
	require.Error(t, err)
}

func TestParseRejectsTruncatedCsrcList(t *testing.T) {
	buf := simplePacket()
	buf[0] |= 0x02 // claim two CSRCs (8 bytes) when only 4 bytes follow the fixed header
	_, err := Parse(buf)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CSRC")
}

func TestParseRejectsPaddingWithNoSpace(t *testing.T) {
	buf := []byte{
		0xA0, 0x60, 0x00, 0x01, // padding bit set
		0x00, 0x00, 0x00, 0x64,
		0x12, 0x34, 0x56, 0x78,
	}
	_, err := Parse(buf)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "padding bit is set but no space")
}

func TestParseRejectsZeroPaddingByte(t *testing.T) {
	buf := append(simplePacket(), 0x00)
	buf[0] |= 0x20
	_, err := Parse(buf)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "padding byte cannot be 0")
}

func TestParseRejectsPaddingLargerThanTail(t *testing.T) {
	buf := append(simplePacket(), 0x06)
	buf[0] |= 0x20
	_, err := Parse(buf)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "greater than available space")
}

func TestParseAcceptsValidPadding(t *testing.T) {
	buf := []byte{
		0xA0, 0x60, 0x00, 0x01,
		0x00, 0x00, 0x00, 0x64,
		0x12, 0x34, 0x56, 0x78,
		0xDE, 0xAD, 0x00, 0x02, // payload + 2 bytes of padding (last = length)
	}
	p, err := Parse(buf)
	require.NoError(t, err)
	assert.Equal(t, uint8(2), p.PaddingLength())
	assert.Equal(t, []byte{0xDE, 0xAD}, p.Payload())
}

func TestParseAcceptsMaxCsrcAndExtension(t *testing.T) {
	buf := []byte{0x8F, 0x60, 0x00, 0x01, 0, 0, 0, 0x64, 1, 2, 3, 4}
	for i := 0; i < 15; i++ {
		buf = append(buf, 0, 0, 0, byte(i))
	}
	buf[0] |= 0x10 // extension
	buf = append(buf, 0xBE, 0xDE, 0x00, 0x01, 0xAA, 0xBB, 0xCC, 0xDD)
	buf = append(buf, []byte("payload")...)

	p, err := Parse(buf)
	require.NoError(t, err)
	assert.Len(t, p.CSRC(), 15)
	assert.Equal(t, uint16(0xBEDE), p.ExtensionProfile())
	assert.Equal(t, []byte{0xAA, 0xBB, 0xCC, 0xDD}, p.ExtensionValue())
	assert.Equal(t, []byte("payload"), p.Payload())
}

func TestSetPayloadIsStructuralAndSerializes(t *testing.T) {
	p, err := Parse(simplePacket())
	require.NoError(t, err)

	p.SetPayload([]byte{1, 2, 3})
	out, err := p.Serialize()
	require.NoError(t, err)
	assert.Equal(t, 12+3, len(out))

	reparsed, err := Parse(out)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, reparsed.Payload())
}

func TestSetExtensionPadsToFourBytes(t *testing.T) {
	p, err := Parse(simplePacket())
	require.NoError(t, err)

	require.NoError(t, p.SetExtension(0x1234, []byte{0xAA}))
	out, err := p.Serialize()
	require.NoError(t, err)

	reparsed, err := Parse(out)
	require.NoError(t, err)
	assert.True(t, reparsed.HasExtension())
	assert.Equal(t, uint16(0x1234), reparsed.ExtensionProfile())
	assert.Equal(t, []byte{0xAA, 0, 0, 0}, reparsed.ExtensionValue())
}

func TestCsrcListTooLargeRejected(t *testing.T) {
	p, err := Parse(simplePacket())
	require.NoError(t, err)
	err = p.SetCSRC(make([]uint32, 16))
	require.Error(t, err)
}

func TestHeaderFieldMutationInPlace(t *testing.T) {
	buf := simplePacket()
	p, err := Parse(buf)
	require.NoError(t, err)

	p.SetMarker(true)
	p.SetSequenceNumber(42)

	assert.True(t, buf[1]&0x80 != 0, "marker bit should be set in the original backing array")
	assert.Equal(t, uint16(42), p.SequenceNumber())
}

func TestClone(t *testing.T) {
	buf := simplePacket()
	src, err := Parse(buf)
	require.NoError(t, err)

	dst := make([]byte, src.Len())
	cloned, err := src.Clone(dst)
	require.NoError(t, err)
	assert.False(t, cloned.IsOwned())
	assert.Equal(t, src.SSRC(), cloned.SSRC())
	assert.Equal(t, src.Payload(), cloned.Payload())

	// Mutating the source's backing array must not affect the clone, since
	// the clone owns an independent copy in dst.
	src.SetSSRC(0xFFFFFFFF)
	assert.NotEqual(t, src.SSRC(), cloned.SSRC())
}

func TestCloneRejectsUndersizedDestination(t *testing.T) {
	src, err := Parse(simplePacket())
	require.NoError(t, err)

	_, err = src.Clone(make([]byte, 4))
	require.Error(t, err)
}
