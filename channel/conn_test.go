package channel

import (
	"encoding/json"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/mediaforge/sfuworker/limits"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingDispatcher struct {
	mu            sync.Mutex
	requests      []*Request
	notifications []*Notification
	onRequest     func(req *Request, reply *Reply)
}

func (d *recordingDispatcher) HandleRequest(req *Request, reply *Reply) {
	d.mu.Lock()
	d.requests = append(d.requests, req)
	d.mu.Unlock()
	if d.onRequest != nil {
		d.onRequest(req, reply)
	}
}

func (d *recordingDispatcher) HandleNotification(n *Notification) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.notifications = append(d.notifications, n)
}

func (d *recordingDispatcher) requestCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.requests)
}

type recordingClosedListener struct {
	mu             sync.Mutex
	closed         bool
	isClosedByPeer bool
}

func (l *recordingClosedListener) OnChannelClosed(isClosedByPeer bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	l.isClosedByPeer = isClosedByPeer
}

func readFrame(t *testing.T, conn net.Conn) []byte {
	t.Helper()
	f := NewFramer(65536)
	buf := make([]byte, 4096)
	for {
		n, err := conn.Read(buf)
		require.NoError(t, err)
		require.NoError(t, f.Feed(buf[:n]))
		payload, err := f.Next()
		require.NoError(t, err)
		if payload != nil {
			return payload
		}
	}
}

func TestConnDispatchesSingleRequestFrame(t *testing.T) {
	supervisor, worker := net.Pipe()
	defer supervisor.Close()

	dispatcher := &recordingDispatcher{onRequest: func(req *Request, reply *Reply) {
		reply.Accept(map[string]string{"ok": "yes"})
	}}
	c := New(worker, limits.DefaultChannelBufferSize, dispatcher, nil)
	go c.Run()

	_, err := supervisor.Write([]byte(`21:{"id":1,"method":"x"},`))
	require.NoError(t, err)

	payload := readFrame(t, supervisor)
	var resp Response
	require.NoError(t, json.Unmarshal(payload, &resp))
	assert.Equal(t, uint32(1), resp.ID)
	assert.True(t, resp.Accepted)
	assert.Equal(t, 1, dispatcher.requestCount())
}

func TestConnRejectsRequestNotRepliedToWithNotImplemented(t *testing.T) {
	supervisor, worker := net.Pipe()
	defer supervisor.Close()

	dispatcher := &recordingDispatcher{}
	c := New(worker, limits.DefaultChannelBufferSize, dispatcher, nil)
	go c.Run()

	_, err := supervisor.Write([]byte(`21:{"id":7,"method":"x"},`))
	require.NoError(t, err)

	payload := readFrame(t, supervisor)
	var resp Response
	require.NoError(t, json.Unmarshal(payload, &resp))
	assert.Equal(t, uint32(7), resp.ID)
	assert.True(t, resp.Rejected)
	assert.Equal(t, "not implemented", resp.Reason)
}

func TestConnRejectsOnHandlerPanic(t *testing.T) {
	supervisor, worker := net.Pipe()
	defer supervisor.Close()

	dispatcher := &recordingDispatcher{onRequest: func(req *Request, reply *Reply) {
		panic("boom")
	}}
	c := New(worker, limits.DefaultChannelBufferSize, dispatcher, nil)
	go c.Run()

	_, err := supervisor.Write([]byte(`21:{"id":2,"method":"x"},`))
	require.NoError(t, err)

	payload := readFrame(t, supervisor)
	var resp Response
	require.NoError(t, json.Unmarshal(payload, &resp))
	assert.True(t, resp.Rejected)
	assert.Equal(t, "internal error", resp.Reason)
}

func TestConnSecondReplyIsNoOp(t *testing.T) {
	supervisor, worker := net.Pipe()
	defer supervisor.Close()

	dispatcher := &recordingDispatcher{onRequest: func(req *Request, reply *Reply) {
		reply.Accept(map[string]string{"ok": "yes"})
		reply.Reject("too late")
	}}
	c := New(worker, limits.DefaultChannelBufferSize, dispatcher, nil)
	go c.Run()

	_, err := supervisor.Write([]byte(`21:{"id":3,"method":"x"},`))
	require.NoError(t, err)

	payload := readFrame(t, supervisor)
	var resp Response
	require.NoError(t, json.Unmarshal(payload, &resp))
	assert.True(t, resp.Accepted)
}

func TestConnDispatchesNotification(t *testing.T) {
	supervisor, worker := net.Pipe()
	defer supervisor.Close()

	dispatcher := &recordingDispatcher{}
	c := New(worker, limits.DefaultChannelBufferSize, dispatcher, nil)
	go c.Run()

	body := `{"targetId":"p1","event":"close"}`
	frame := Encode([]byte(body))
	_, err := supervisor.Write(frame)
	require.NoError(t, err)

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if dispatcher.requestCount() >= 0 && len(dispatcher.notifications) == 1 {
			break
		}
		time.Sleep(time.Millisecond)
	}
	require.Len(t, dispatcher.notifications, 1)
	assert.Equal(t, "p1", dispatcher.notifications[0].TargetID)
}

func TestConnClosesOnPeerEOF(t *testing.T) {
	supervisor, worker := net.Pipe()

	listener := &recordingClosedListener{}
	c := New(worker, limits.DefaultChannelBufferSize, &recordingDispatcher{}, listener)
	go c.Run()

	supervisor.Close()

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		listener.mu.Lock()
		closed := listener.closed
		listener.mu.Unlock()
		if closed {
			break
		}
		time.Sleep(time.Millisecond)
	}
	listener.mu.Lock()
	defer listener.mu.Unlock()
	assert.True(t, listener.closed)
	assert.True(t, listener.isClosedByPeer)
}
