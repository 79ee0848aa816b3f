// Package signaling serves the room WebSocket: one Session per connection,
// and a Router that turns inbound messages into unicasts and room broadcasts
// on the shared relay.Hub.
//
// Media never passes through the relay; only offer/answer/candidate payloads
// and room notices do.
package signaling
