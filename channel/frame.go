package channel

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mediaforge/sfuworker/limits"
)

// maxLengthPrefixDigits bounds how many decimal digits the framer will scan
// looking for the colon before giving up on a malformed prefix; 10 digits
// covers any length up to the largest practical buffer size.
const maxLengthPrefixDigits = 10

// ErrMalformedFrame indicates the framer encountered bytes that can never
// become a valid netstring frame; the channel must close.
var ErrMalformedFrame = errors.New("malformed channel frame")

// ErrFrameTooLarge indicates a length prefix names a frame larger than the
// framer's buffer; the channel must close.
var ErrFrameTooLarge = errors.New("channel frame exceeds buffer size")

// Framer incrementally decodes netstring frames (<len>:<payload>,) off a
// single shared, pre-allocated buffer, per spec §4.I. Feed appends newly
// read bytes; Next extracts complete frames as they become available.
type Framer struct {
	buf  []byte
	size int // bytes currently held in buf[:size]
}

// NewFramer allocates a Framer backed by a buffer of bufferSize bytes.
func NewFramer(bufferSize int) *Framer {
	return &Framer{buf: make([]byte, bufferSize)}
}

// Feed appends data to the framer's internal buffer. It fails if the
// combined size would exceed the buffer's capacity.
func (f *Framer) Feed(data []byte) error {
	if f.size+len(data) > len(f.buf) {
		return fmt.Errorf("%w: %d buffered + %d incoming > %d capacity",
			ErrFrameTooLarge, f.size, len(data), len(f.buf))
	}
	copy(f.buf[f.size:], data)
	f.size += len(data)
	return nil
}

// Next extracts the next complete frame's payload, if one is fully
// buffered. It returns (nil, nil) when more data is needed, and a non-nil
// error only for a malformed or oversized frame — a condition the caller
// must treat as fatal and close the channel.
func (f *Framer) Next() ([]byte, error) {
	if f.size == 0 {
		return nil, nil
	}

	colon := -1
	scanned := f.size
	if scanned > maxLengthPrefixDigits+1 {
		scanned = maxLengthPrefixDigits + 1
	}
	for i := 0; i < scanned; i++ {
		b := f.buf[i]
		if b == ':' {
			colon = i
			break
		}
		if b < '0' || b > '9' {
			return nil, fmt.Errorf("%w: non-digit %q in length prefix", ErrMalformedFrame, b)
		}
	}
	if colon == -1 {
		if f.size > maxLengthPrefixDigits {
			return nil, fmt.Errorf("%w: length prefix exceeds %d digits", ErrMalformedFrame, maxLengthPrefixDigits)
		}
		return nil, nil // prefix digits so far, but no colon yet: wait for more
	}
	if colon == 0 {
		return nil, fmt.Errorf("%w: empty length prefix", ErrMalformedFrame)
	}

	length := 0
	for i := 0; i < colon; i++ {
		length = length*10 + int(f.buf[i]-'0')
	}
	if err := limits.ValidateChannelFrameLength(length, len(f.buf)); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFrameTooLarge, err)
	}

	need := colon + 1 + length + 1 // digits + ':' + payload + ','
	if need > f.size {
		if need > len(f.buf) {
			return nil, fmt.Errorf("%w: frame needs %d bytes, buffer holds %d", ErrFrameTooLarge, need, len(f.buf))
		}
		return nil, nil // payload not fully arrived yet
	}

	if f.buf[need-1] != ',' {
		return nil, fmt.Errorf("%w: missing trailing comma", ErrMalformedFrame)
	}

	payload := make([]byte, length)
	copy(payload, f.buf[colon+1:colon+1+length])

	remaining := f.size - need
	copy(f.buf, f.buf[need:f.size])
	f.size = remaining

	return payload, nil
}

// Encode wraps payload in netstring framing.
func Encode(payload []byte) []byte {
	prefix := fmt.Sprintf("%d:", len(payload))
	out := make([]byte, 0, len(prefix)+len(payload)+1)
	out = append(out, prefix...)
	out = append(out, payload...)
	out = append(out, ',')
	return out
}

// InternalPath names the entities a request or notification is routed to.
type InternalPath struct {
	RoomID        string `json:"roomId,omitempty"`
	PeerID        string `json:"peerId,omitempty"`
	TransportID   string `json:"transportId,omitempty"`
	RtpReceiverID string `json:"rtpReceiverId,omitempty"`
	RtpSenderID   string `json:"rtpSenderId,omitempty"`
}

// Request is one inbound control-channel request, per spec §6.
type Request struct {
	ID       uint32          `json:"id"`
	Method   string          `json:"method"`
	Internal *InternalPath   `json:"internal,omitempty"`
	Data     json.RawMessage `json:"data,omitempty"`
}

// Response carries the outcome of a request: either an accepted payload or
// a human-readable rejection reason, never both.
type Response struct {
	ID       uint32          `json:"id"`
	Accepted bool            `json:"accepted,omitempty"`
	Rejected bool            `json:"rejected,omitempty"`
	Data     json.RawMessage `json:"data,omitempty"`
	Reason   string          `json:"reason,omitempty"`
}

// Notification is a unilateral, unreplied event.
type Notification struct {
	TargetID string          `json:"targetId"`
	Event    string          `json:"event"`
	Data     json.RawMessage `json:"data,omitempty"`
}

// envelopeSniff is decoded first to tell a request from a notification: a
// request always carries a non-empty method, a notification never does.
type envelopeSniff struct {
	Method string `json:"method"`
}

// DecodeEnvelope classifies a frame payload as a *Request or *Notification.
func DecodeEnvelope(payload []byte) (interface{}, error) {
	var sniff envelopeSniff
	if err := json.Unmarshal(payload, &sniff); err != nil {
		return nil, fmt.Errorf("decoding channel envelope: %w", err)
	}
	if sniff.Method != "" {
		var req Request
		if err := json.Unmarshal(payload, &req); err != nil {
			return nil, fmt.Errorf("decoding request: %w", err)
		}
		return &req, nil
	}
	var n Notification
	if err := json.Unmarshal(payload, &n); err != nil {
		return nil, fmt.Errorf("decoding notification: %w", err)
	}
	return &n, nil
}
