// Package receiver implements the ingress endpoint of a media stream: it
// holds a peer's negotiated RTP parameters, validates inbound packets
// against them, and reports accepted packets to its listener (a peer,
// identified only through the narrow receiver.Listener interface so this
// package never imports peer).
package receiver
