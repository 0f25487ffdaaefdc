// Package relay implements the core of the order chat relay: the room
// registry, the per-connection session state machine, the broadcast
// engine, and the HTTP/WebSocket surface in front of them.
//
// The implementation is organized into specialized files for configuration,
// the hub, clients, routing, and HTTP handlers to keep the codebase
// maintainable and testable as the project grows.
package relay
