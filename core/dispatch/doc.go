// Package dispatch implements the ride coordination core: the taxi and
// customer state machines, the assignment algorithm and the handlers
// reacting to bus traffic. All post-handshake content reaches this
// package through the message bus relay, never through raw sockets.
package dispatch
