package ws

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/crusadeos/backend/internal/shared/id"
	"github.com/crusadeos/backend/internal/vfs"
)

// Lister recomputes a directory listing for pushes. Satisfied by the VFS
// service.
type Lister interface {
	List(userID id.UserID, virtual string) ([]vfs.Entry, error)
}

// Hub is the change broadcaster: a registry of open connections keyed by
// user, each with its own watched path and refresh timer. Mutating VFS
// operations call Notify to converge all of a user's viewers immediately
// instead of waiting for the next tick.
type Hub struct {
	mu    sync.Mutex
	conns map[id.UserID]map[*Conn]struct{}

	lister   Lister
	interval time.Duration
	logger   *zap.Logger

	connGauge prometheus.Gauge
	pushes    *prometheus.CounterVec
}

// NewHub creates a hub pushing listings on the given refresh interval.
func NewHub(lister Lister, interval time.Duration, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		conns:    make(map[id.UserID]map[*Conn]struct{}),
		lister:   lister,
		interval: interval,
		logger:   logger,
	}
}

// WithMetrics reports connection counts and push volumes to the given
// collectors. Optional.
func (h *Hub) WithMetrics(connections prometheus.Gauge, pushes *prometheus.CounterVec) *Hub {
	h.connGauge = connections
	h.pushes = pushes
	return h
}

// Conn is one subscribed client connection. Subscriptions are per
// connection: two connections for the same user may watch different paths.
type Conn struct {
	id     string
	userID id.UserID
	sock   *websocket.Conn

	writeMu sync.Mutex

	watchMu sync.Mutex
	watched string // empty when unsubscribed

	refresh chan string // signals the pump; carries the changed path
	done    chan struct{}
}

// Notify pushes a change notification to every connection of the user and
// signals the refresh pump of each connection watching the mutated
// directory. Goroutines already running per connection are signalled, never
// respawned.
func (h *Hub) Notify(userID id.UserID, dirPath string) {
	h.mu.Lock()
	conns := make([]*Conn, 0, len(h.conns[userID]))
	for c := range h.conns[userID] {
		conns = append(conns, c)
	}
	h.mu.Unlock()

	for _, c := range conns {
		c.write(map[string]interface{}{
			"event": "file-change",
			"path":  dirPath,
		})
		if h.pushes != nil {
			h.pushes.WithLabelValues("mutation").Inc()
		}
		select {
		case c.refresh <- dirPath:
		default:
		}
	}
}

// ConnectionCount reports open connections, for health reporting.
func (h *Hub) ConnectionCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, set := range h.conns {
		n += len(set)
	}
	return n
}

func (h *Hub) register(userID id.UserID, sock *websocket.Conn) *Conn {
	c := &Conn{
		id:      uuid.NewString(),
		userID:  userID,
		sock:    sock,
		refresh: make(chan string, 1),
		done:    make(chan struct{}),
	}

	h.mu.Lock()
	if h.conns[userID] == nil {
		h.conns[userID] = make(map[*Conn]struct{})
	}
	h.conns[userID][c] = struct{}{}
	h.mu.Unlock()

	if h.connGauge != nil {
		h.connGauge.Inc()
	}
	go h.pump(c)

	h.logger.Debug("connection registered",
		zap.String("conn", c.id), zap.String("user", userID.String()))
	return c
}

// unregister removes the connection and stops its pump. No dangling timers.
func (h *Hub) unregister(c *Conn) {
	h.mu.Lock()
	if set, ok := h.conns[c.userID]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(h.conns, c.userID)
		}
	}
	h.mu.Unlock()

	if h.connGauge != nil {
		h.connGauge.Dec()
	}
	close(c.done)
	h.logger.Debug("connection unregistered", zap.String("conn", c.id))
}

// pump drives one connection: a fixed-interval ticker recomputes the watched
// listing, and out-of-band refresh signals from mutations push immediately.
func (h *Hub) pump(c *Conn) {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			h.pushListing(c)
			if h.pushes != nil {
				h.pushes.WithLabelValues("tick").Inc()
			}
		case changed := <-c.refresh:
			// Only recompute when the mutation touched the watched path;
			// the file-change event already went out either way.
			if c.watchPath() == changed {
				h.pushListing(c)
			}
		case <-c.done:
			return
		}
	}
}

func (h *Hub) pushListing(c *Conn) {
	watched := c.watchPath()
	if watched == "" {
		return
	}
	items, err := h.lister.List(c.userID, watched)
	if err != nil {
		// Watched directory may have been deleted out from under the
		// viewer; report an empty listing rather than dropping the
		// connection.
		items = []vfs.Entry{}
	}
	c.write(map[string]interface{}{
		"type":  "file-list",
		"path":  watched,
		"items": items,
	})
}

func (c *Conn) subscribe(path string) {
	c.watchMu.Lock()
	c.watched = path
	c.watchMu.Unlock()
}

func (c *Conn) unsubscribe() {
	c.watchMu.Lock()
	c.watched = ""
	c.watchMu.Unlock()
}

func (c *Conn) watchPath() string {
	c.watchMu.Lock()
	defer c.watchMu.Unlock()
	return c.watched
}

// write serializes concurrent writers on the socket. gorilla/websocket
// allows at most one concurrent writer.
func (c *Conn) write(v interface{}) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.sock.WriteJSON(v)
}
