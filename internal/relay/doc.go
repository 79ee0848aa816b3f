// Package relay holds the in-memory room state of the signaling relay: which
// participants are connected, which room each one is in, and how frames reach
// them.
//
// Hub is the only entry point for concurrent callers. It keeps the
// participant Registry and the room Directory behind one lock so a
// participant is never observable in one without the other. Frames are
// delivered through per-connection Mailboxes and never block the sender.
package relay
