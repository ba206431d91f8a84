// Package signaling is the WebSocket front end of the live relay.
//
// Each accepted socket becomes a hub.Conn. One goroutine reads, rate limits
// and parses frames and hands them to the hub in arrival order; a second
// goroutine owns all writes, drains a bounded outbound queue and sends
// keepalive pings. A connection that stops answering pings for longer than
// the idle timeout is closed.
//
// The package also serves the read-only stream status and chat history
// endpoints.
package signaling
