// Package wireid generates process-unique identifiers for entities that the
// supervisor does not number itself: sender ids minted by the room on
// receiver-added fan-out (spec §4.H), and any internal id a collaborator
// needs before the supervisor has assigned one.
package wireid
