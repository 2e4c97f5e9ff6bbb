package ws

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crusadeos/backend/internal/shared/id"
	"github.com/crusadeos/backend/internal/shared/vfserr"
	"github.com/crusadeos/backend/internal/vfs"
)

const watcher = id.UserID("user_watcher")

// fakeLister serves canned listings keyed by path.
type fakeLister struct {
	mu       sync.Mutex
	listings map[string][]vfs.Entry
}

func (f *fakeLister) List(userID id.UserID, virtual string) ([]vfs.Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	entries, ok := f.listings[virtual]
	if !ok {
		return nil, vfserr.NotFound("path not found")
	}
	return entries, nil
}

func (f *fakeLister) set(path string, entries []vfs.Entry) {
	f.mu.Lock()
	f.listings[path] = entries
	f.mu.Unlock()
}

// fakeAuth accepts exactly one token.
type fakeAuth struct {
	token  string
	userID id.UserID
}

func (f *fakeAuth) Authenticate(token string) (id.UserID, error) {
	if token != f.token {
		return "", vfserr.Auth
	}
	return f.userID, nil
}

type frame struct {
	Type    string      `json:"type"`
	Event   string      `json:"event"`
	Path    string      `json:"path"`
	Items   []vfs.Entry `json:"items"`
	Message string      `json:"message"`
}

func newTestHub(t *testing.T) (*Hub, *fakeLister, string) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	lister := &fakeLister{listings: map[string][]vfs.Entry{"/": {}}}
	hub := NewHub(lister, 50*time.Millisecond, nil)
	handler := NewHandler(hub, &fakeAuth{token: "good-token", userID: watcher}, nil)

	router := gin.New()
	router.GET("/ws", handler.HandleConnection)
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	return hub, lister, "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
}

func dial(t *testing.T, url, token string) *websocket.Conn {
	t.Helper()
	sock, _, err := websocket.DefaultDialer.Dial(url+"?token="+token, nil)
	require.NoError(t, err)
	t.Cleanup(func() { sock.Close() })
	return sock
}

// readFrame reads one JSON frame with a deadline.
func readFrame(t *testing.T, sock *websocket.Conn) frame {
	t.Helper()
	require.NoError(t, sock.SetReadDeadline(time.Now().Add(2*time.Second)))
	var f frame
	require.NoError(t, sock.ReadJSON(&f))
	return f
}

// TestConnectionRejectsBadToken tests the pre-upgrade auth gate
func TestConnectionRejectsBadToken(t *testing.T) {
	_, _, url := newTestHub(t)

	_, resp, err := websocket.DefaultDialer.Dial(url+"?token=bogus", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, 403, resp.StatusCode)
}

// TestSubscribePushesImmediately tests the listing pushed on subscribe
func TestSubscribePushesImmediately(t *testing.T) {
	hub, lister, url := newTestHub(t)
	size := int64(3)
	lister.set("/docs", []vfs.Entry{{Name: "a.txt", Type: vfs.KindFile, Size: &size}})

	sock := dial(t, url, "good-token")
	require.Eventually(t, func() bool { return hub.ConnectionCount() == 1 }, time.Second, 10*time.Millisecond)

	require.NoError(t, sock.WriteJSON(map[string]string{"type": "subscribe", "path": "/docs"}))

	f := readFrame(t, sock)
	assert.Equal(t, "file-list", f.Type)
	assert.Equal(t, "/docs", f.Path)
	require.Len(t, f.Items, 1)
	assert.Equal(t, "a.txt", f.Items[0].Name)
}

// TestTickerRefreshesListing tests periodic pushes without mutations
func TestTickerRefreshesListing(t *testing.T) {
	_, lister, url := newTestHub(t)
	lister.set("/docs", []vfs.Entry{})

	sock := dial(t, url, "good-token")
	require.NoError(t, sock.WriteJSON(map[string]string{"type": "subscribe", "path": "/docs"}))
	readFrame(t, sock) // immediate push

	// The next frames come from the ticker.
	for i := 0; i < 2; i++ {
		f := readFrame(t, sock)
		assert.Equal(t, "file-list", f.Type)
		assert.Equal(t, "/docs", f.Path)
	}
}

// TestNotifyPushesFileChange tests the mutation fan-out
func TestNotifyPushesFileChange(t *testing.T) {
	hub, lister, url := newTestHub(t)
	lister.set("/docs", []vfs.Entry{})

	sock := dial(t, url, "good-token")
	require.Eventually(t, func() bool { return hub.ConnectionCount() == 1 }, time.Second, 10*time.Millisecond)

	hub.Notify(watcher, "/docs")

	f := readFrame(t, sock)
	assert.Equal(t, "file-change", f.Event)
	assert.Equal(t, "/docs", f.Path)
}

// TestNotifyOtherUserIsSilent tests per-user fan-out scoping
func TestNotifyOtherUserIsSilent(t *testing.T) {
	hub, _, url := newTestHub(t)

	sock := dial(t, url, "good-token")
	require.Eventually(t, func() bool { return hub.ConnectionCount() == 1 }, time.Second, 10*time.Millisecond)

	hub.Notify(id.UserID("user_other"), "/docs")

	require.NoError(t, sock.SetReadDeadline(time.Now().Add(150*time.Millisecond)))
	var f frame
	err := sock.ReadJSON(&f)
	require.Error(t, err, "no frame expected for another user's mutation")
}

// TestUnsubscribeStopsListings tests that an unsubscribed connection gets
// no ticker pushes
func TestUnsubscribeStopsListings(t *testing.T) {
	_, lister, url := newTestHub(t)
	lister.set("/docs", []vfs.Entry{})

	sock := dial(t, url, "good-token")
	require.NoError(t, sock.WriteJSON(map[string]string{"type": "subscribe", "path": "/docs"}))
	readFrame(t, sock)
	require.NoError(t, sock.WriteJSON(map[string]string{"type": "unsubscribe"}))

	// Drain anything in flight, then expect silence.
	deadline := time.Now().Add(200 * time.Millisecond)
	for {
		require.NoError(t, sock.SetReadDeadline(deadline))
		var f frame
		if err := sock.ReadJSON(&f); err != nil {
			break
		}
		assert.Equal(t, "file-list", f.Type)
	}
}

// TestDeletedWatchedPathReportsEmpty tests resilience to a vanished
// directory
func TestDeletedWatchedPathReportsEmpty(t *testing.T) {
	_, lister, url := newTestHub(t)
	lister.set("/docs", []vfs.Entry{})

	sock := dial(t, url, "good-token")
	require.NoError(t, sock.WriteJSON(map[string]string{"type": "subscribe", "path": "/docs"}))
	readFrame(t, sock)

	// Watched path disappears; pushes degrade to empty listings.
	lister.mu.Lock()
	delete(lister.listings, "/docs")
	lister.mu.Unlock()

	f := readFrame(t, sock)
	assert.Equal(t, "file-list", f.Type)
	assert.Empty(t, f.Items)
}

// TestPingPong tests the keepalive frame
func TestPingPong(t *testing.T) {
	_, _, url := newTestHub(t)

	sock := dial(t, url, "good-token")
	require.NoError(t, sock.WriteJSON(map[string]string{"type": "ping"}))

	f := readFrame(t, sock)
	assert.Equal(t, "pong", f.Type)
}

// TestDisconnectCleansUp tests registry cleanup on close
func TestDisconnectCleansUp(t *testing.T) {
	hub, _, url := newTestHub(t)

	sock := dial(t, url, "good-token")
	require.Eventually(t, func() bool { return hub.ConnectionCount() == 1 }, time.Second, 10*time.Millisecond)

	sock.Close()
	require.Eventually(t, func() bool { return hub.ConnectionCount() == 0 }, time.Second, 10*time.Millisecond)
}

// TestSubscribeHostilePath tests the error frame for a climbing path
func TestSubscribeHostilePath(t *testing.T) {
	_, _, url := newTestHub(t)

	sock := dial(t, url, "good-token")
	require.NoError(t, sock.WriteJSON(map[string]string{"type": "subscribe", "path": "/../other"}))

	f := readFrame(t, sock)
	assert.Equal(t, "error", f.Type)
}

// TestEntrySerialization tests the wire shape of a listing entry
func TestEntrySerialization(t *testing.T) {
	size := int64(7)
	data, err := json.Marshal(vfs.Entry{Name: "a.txt", Type: vfs.KindFile, Size: &size})
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"a.txt","type":"file","size":7}`, string(data))

	data, err = json.Marshal(vfs.Entry{Name: "d", Type: vfs.KindFolder})
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"d","type":"folder"}`, string(data))
}
