// Package peer implements one room participant: it owns that participant's
// receivers and senders, bubbles their lifecycle events up to a room
// through the narrow RoomListener interface, and is the dispatch target
// for control requests scoped to this peer's id.
//
// Peer depends on receiver and sender but never on room, so the dependency
// graph stays one-directional; room.Room implements RoomListener and holds
// peers by pointer.
package peer
