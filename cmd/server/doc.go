// Package main is the entry point for the Crusade VFS backend server.
//
// The server hosts per-user sandboxed virtual filesystems behind a REST API,
// with session-token authentication, cross-user sharing, and WebSocket
// change notification for connected desktop clients.
//
// Configuration:
//   - Environment variables (12-factor)
//   - CLI flags (override env vars)
//   - Defaults for development
//
// Usage:
//
//	./server -port 5000 -data ./data
//
// Signals:
//   - SIGINT, SIGTERM: Graceful shutdown
package main
