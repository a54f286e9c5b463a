// Package sender implements the egress endpoint of a media stream: it
// holds target RTP parameters, forwards packets handed to it by the room
// without mutating the shared view, retains a bounded retransmission
// history of what it has sent, and passes RTCP reports and feedback back
// to its associated receiver's peer for loop closure.
package sender
