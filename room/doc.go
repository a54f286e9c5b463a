// Package room implements the central routing engine of one conference
// room: it owns the set of peers, computes the room's effective RTP
// capabilities from the supervisor-supplied codec list, and maintains the
// receiver↔sender bipartite map described in spec §3 — the structure that
// turns "receiver got a packet" into "every mirroring sender forwards it".
//
// Room implements peer.RoomListener so it learns about receiver/sender
// traffic and lifecycle purely through that interface; it never reaches
// into a peer's internals directly.
package room
