// Package protocol defines the JSON wire protocol spoken over the signaling
// WebSocket.
//
// Inbound frames are parsed into a closed set of message types (see Parse).
// Outbound frames are plain structs with a fixed "type" field built by the
// New* constructors.
package protocol
