// Package ws provides WebSocket handling for near-real-time file change
// notification.
//
// Each authenticated connection registers with the hub and may subscribe to
// one virtual directory at a time. A per-connection timer periodically
// recomputes and pushes the watched listing; mutating VFS operations
// additionally signal every connection of the affected user out of band, so
// concurrent viewers converge without waiting for the next tick.
//
// Message Types (Client → Server):
//   - subscribe: watch a virtual path
//   - unsubscribe: stop watching
//   - ping: keep-alive ping
//
// Message Types (Server → Client):
//   - file-list: current listing of the watched path
//   - file-change (event): a directory of this user was mutated
//   - error: request could not be serviced
//
// Example Usage:
//
//	hub := ws.NewHub(vfsService, time.Second, logger)
//	handler := ws.NewHandler(hub, sessions, logger)
//	router.GET("/ws", handler.HandleConnection)
package ws
