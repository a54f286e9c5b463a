// Package channel implements the worker's control channel: a netstring
// (<len>:<payload>,) framed duplex byte stream carrying JSON request,
// response, and notification envelopes between the worker and its
// supervisor, grounded on the teacher's bufio-free UnixStreamSocket
// read/write discipline. Every outbound frame is queued to a single writer
// goroutine; no inline write is attempted before queueing.
package channel
