package channel

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/mediaforge/sfuworker/invariant"
	"github.com/mediaforge/sfuworker/workerlog"
)

var log = workerlog.For("channel")

// Transport is the narrow collaborator Conn needs from the underlying pipe
// (in production, the supervisor-inherited file descriptor pair). Grounded
// on UnixStreamSocket's read/write/close triad.
type Transport interface {
	io.Reader
	io.Writer
	Close() error
}

// halfCloser is implemented by transports that support a graceful
// write-side shutdown (e.g. *net.UnixConn); Conn uses it when available so
// pending writes drain before the handle fully closes.
type halfCloser interface {
	CloseWrite() error
}

// Dispatcher receives every inbound request and notification. HandleRequest
// must invoke exactly one of reply.Accept or reply.Reject before it
// returns — Conn's single-goroutine dispatch loop treats a synchronous
// return without either as "not implemented" and replies on the handler's
// behalf, modeling the turn-based timeout described in spec §4.I.
type Dispatcher interface {
	HandleRequest(req *Request, reply *Reply)
	HandleNotification(n *Notification)
}

// ClosedListener is notified exactly once when a Conn finishes closing.
type ClosedListener interface {
	OnChannelClosed(isClosedByPeer bool)
}

// Reply is the accept/reject continuation for one in-flight request.
type Reply struct {
	mu      sync.Mutex
	replied bool
	conn    *Conn
	id      uint32
}

// Accept sends an accepted response carrying data. A second call, or a call
// after Reject, is a no-op.
func (r *Reply) Accept(data interface{}) {
	r.mu.Lock()
	if r.replied {
		r.mu.Unlock()
		return
	}
	r.replied = true
	r.mu.Unlock()

	raw, err := json.Marshal(data)
	if err != nil {
		log.WithField("request_id", r.id).WithField("error", err.Error()).
			Error("failed to marshal accepted response data")
		r.conn.sendResponse(&Response{ID: r.id, Rejected: true, Reason: "internal error"})
		return
	}
	r.conn.sendResponse(&Response{ID: r.id, Accepted: true, Data: raw})
}

// Reject sends a rejected response carrying a human-readable reason. A
// second call, or a call after Accept, is a no-op.
func (r *Reply) Reject(reason string) {
	r.mu.Lock()
	if r.replied {
		r.mu.Unlock()
		return
	}
	r.replied = true
	r.mu.Unlock()

	r.conn.sendResponse(&Response{ID: r.id, Rejected: true, Reason: reason})
}

func (r *Reply) hasReplied() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.replied
}

// Conn is one end of the netstring-framed control channel.
type Conn struct {
	transport  Transport
	dispatcher Dispatcher
	closed     ClosedListener

	framer *Framer

	writeCh   chan []byte
	closeOnce sync.Once
	doneCh    chan struct{}

	mu             sync.Mutex
	isClosedByPeer bool
	hasError       bool
	closing        bool
}

// New wraps transport in a Conn with the given buffer size (spec default
// limits.DefaultChannelBufferSize). dispatcher handles inbound requests and
// notifications; closed, if non-nil, is notified once the channel closes.
func New(transport Transport, bufferSize int, dispatcher Dispatcher, closed ClosedListener) *Conn {
	c := &Conn{
		transport:  transport,
		dispatcher: dispatcher,
		closed:     closed,
		framer:     NewFramer(bufferSize),
		writeCh:    make(chan []byte, 256),
		doneCh:     make(chan struct{}),
	}
	go c.writePump()
	return c
}

// Run drives the read loop until the transport closes or a fatal framing
// error occurs. It blocks; callers typically run it in its own goroutine.
func (c *Conn) Run() {
	buf := make([]byte, 65536)
	for {
		n, err := c.transport.Read(buf)
		if n > 0 {
			if feedErr := c.framer.Feed(buf[:n]); feedErr != nil {
				log.WithField("error", feedErr.Error()).Error("channel framing overflow, closing")
				c.failAndClose()
				return
			}
			if !c.drainFrames() {
				return
			}
		}
		if err != nil {
			if err == io.EOF {
				c.mu.Lock()
				c.isClosedByPeer = true
				c.mu.Unlock()
			} else {
				log.WithField("error", err.Error()).Error("channel read error, closing")
				c.mu.Lock()
				c.hasError = true
				c.mu.Unlock()
			}
			c.Close()
			return
		}
	}
}

// drainFrames extracts and dispatches every complete frame currently
// buffered. It returns false if a fatal framing error forced a close.
func (c *Conn) drainFrames() bool {
	for {
		payload, err := c.framer.Next()
		if err != nil {
			log.WithField("error", err.Error()).Error("malformed channel frame, closing")
			c.failAndClose()
			return false
		}
		if payload == nil {
			return true
		}
		c.dispatch(payload)
	}
}

func (c *Conn) dispatch(payload []byte) {
	envelope, err := DecodeEnvelope(payload)
	if err != nil {
		log.WithField("error", err.Error()).Warn("dropping undecodable channel frame")
		return
	}
	switch v := envelope.(type) {
	case *Request:
		c.dispatchRequest(v)
	case *Notification:
		c.dispatcher.HandleNotification(v)
	}
}

func (c *Conn) dispatchRequest(req *Request) {
	reply := &Reply{conn: c, id: req.ID}
	func() {
		defer func() {
			if p := recover(); p != nil {
				// An invariant breach is a programmer bug, not a request
				// failure (spec §7): let it propagate past this request's
				// handling so the process aborts, instead of masking it as
				// an ordinary rejection.
				if _, ok := p.(*invariant.Breach); ok {
					panic(p)
				}
				log.WithField("request_id", req.ID).WithField("panic", fmt.Sprint(p)).
					Error("request handler panicked")
				reply.Reject("internal error")
			}
		}()
		c.dispatcher.HandleRequest(req, reply)
	}()
	if !reply.hasReplied() {
		reply.Reject("not implemented")
	}
}

func (c *Conn) sendResponse(resp *Response) {
	raw, err := json.Marshal(resp)
	if err != nil {
		log.WithField("request_id", resp.ID).WithField("error", err.Error()).
			Error("failed to marshal response")
		return
	}
	c.enqueueWrite(Encode(raw))
}

// SendNotification frames and enqueues a unilateral notification.
func (c *Conn) SendNotification(n *Notification) error {
	raw, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshaling notification: %w", err)
	}
	c.enqueueWrite(Encode(raw))
	return nil
}

// SendRequest frames and enqueues an outbound request (the worker acting as
// requester, e.g. for a supervisor-directed callback); responses arrive
// through the normal read loop and are not currently correlated back to a
// caller here — that pairing is the dispatcher's responsibility.
func (c *Conn) SendRequest(req *Request) error {
	raw, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshaling request: %w", err)
	}
	c.enqueueWrite(Encode(raw))
	return nil
}

func (c *Conn) enqueueWrite(frame []byte) {
	c.mu.Lock()
	closing := c.closing
	c.mu.Unlock()
	if closing {
		return
	}
	select {
	case c.writeCh <- frame:
	case <-c.doneCh:
	}
}

// writePump is the sole goroutine performing blocking writes, so a
// back-pressured write does not block callers enqueueing further frames
// while writeCh has room; once its 256-frame buffer is full, enqueueWrite
// blocks until the pump catches up or the channel closes (spec §4.I's
// try-write-then-async pattern, simplified to Go's natural
// producer/consumer idiom: every frame is queued, none written inline).
func (c *Conn) writePump() {
	for {
		select {
		case frame := <-c.writeCh:
			if _, err := c.transport.Write(frame); err != nil {
				log.WithField("error", err.Error()).Error("channel write error, closing")
				c.mu.Lock()
				c.hasError = true
				c.mu.Unlock()
				c.Close()
				return
			}
		case <-c.doneCh:
			return
		}
	}
}

// failAndClose marks the channel errored and closes it; used by fatal
// framing conditions discovered mid-read.
func (c *Conn) failAndClose() {
	c.mu.Lock()
	c.hasError = true
	c.mu.Unlock()
	c.Close()
}

// Close shuts the channel down. If the peer hasn't already closed its side
// and no error has been recorded, it attempts a half-close so queued writes
// can drain; otherwise it closes the handle directly. The ClosedListener is
// notified exactly once.
func (c *Conn) Close() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closing = true
		isClosedByPeer := c.isClosedByPeer
		hasError := c.hasError
		c.mu.Unlock()

		close(c.doneCh)

		if !hasError && !isClosedByPeer {
			if hc, ok := c.transport.(halfCloser); ok {
				if err := hc.CloseWrite(); err != nil {
					log.WithField("error", err.Error()).Debug("half-close failed, closing handle directly")
				}
			}
		}
		if err := c.transport.Close(); err != nil {
			log.WithField("error", err.Error()).Debug("transport close returned an error")
		}

		if c.closed != nil {
			c.closed.OnChannelClosed(isClosedByPeer)
		}
	})
}
