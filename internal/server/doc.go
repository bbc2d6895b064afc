// Package server implements the chat relay: a registry of secret-keyed chat
// rooms over WebSocket connections, with history replay for late joiners and
// per-room broadcast of live messages.
//
// The implementation is organized into specialized files for configuration,
// the registry and room entities, per-connection clients, the protocol
// handler, and HTTP plumbing to keep the codebase maintainable and testable
// as the project grows.
package server
