// Package testutil provides testing helpers for exercising the full HTTP
// API against a server wired onto a throwaway data directory.
package testutil

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/crusadeos/backend/internal/infrastructure/config"
	"github.com/crusadeos/backend/internal/infrastructure/server"
)

// TestServer wraps a fully wired server on a temp data directory.
type TestServer struct {
	*httptest.Server
	t *testing.T
}

// NewTestServer boots a server with fast session timings and a throwaway
// data directory, torn down with the test.
func NewTestServer(t *testing.T) *TestServer {
	t.Helper()

	cfg := config.Default()
	cfg.Storage.DataDir = t.TempDir()
	cfg.Session.TTL = time.Minute
	cfg.Session.SweepInterval = time.Hour
	cfg.Watch.RefreshInterval = 50 * time.Millisecond
	cfg.RateLimit.Enabled = false

	srv, err := server.NewServer(cfg)
	require.NoError(t, err)

	ts := httptest.NewServer(srv.Router())
	t.Cleanup(func() {
		ts.Close()
		srv.Close()
	})
	return &TestServer{Server: ts, t: t}
}

// Response is a decoded API response.
type Response struct {
	Status      int
	ContentType string
	Body        map[string]interface{}
	Raw         []byte
}

// Do issues one request. A non-empty token rides in the Authorization
// header; a non-nil body is sent as JSON.
func (s *TestServer) Do(method, path, token string, body interface{}) Response {
	s.t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(s.t, err)
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, s.URL+path, reader)
	require.NoError(s.t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(s.t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(s.t, err)

	out := Response{Status: resp.StatusCode, ContentType: resp.Header.Get("Content-Type"), Raw: raw}
	if json.Valid(raw) {
		json.Unmarshal(raw, &out.Body)
	}
	return out
}

// Upload issues a multipart upload of one file.
func (s *TestServer) Upload(token, dirPath, fileName string, content []byte) Response {
	s.t.Helper()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	require.NoError(s.t, w.WriteField("path", dirPath))
	part, err := w.CreateFormFile("file", fileName)
	require.NoError(s.t, err)
	_, err = part.Write(content)
	require.NoError(s.t, err)
	require.NoError(s.t, w.Close())

	req, err := http.NewRequest(http.MethodPost, s.URL+"/api/cvfs/upload", &buf)
	require.NoError(s.t, err)
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(s.t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(s.t, err)

	out := Response{Status: resp.StatusCode, ContentType: resp.Header.Get("Content-Type"), Raw: raw}
	if json.Valid(raw) {
		json.Unmarshal(raw, &out.Body)
	}
	return out
}

// SignupAndLogin registers a user and returns a live token.
func (s *TestServer) SignupAndLogin(username, password string) string {
	s.t.Helper()

	resp := s.Do(http.MethodPost, "/api/auth/signup", "", map[string]string{
		"username": username,
		"password": password,
	})
	require.Equal(s.t, http.StatusCreated, resp.Status, string(resp.Raw))

	resp = s.Do(http.MethodPost, "/api/auth/login", "", map[string]string{
		"username": username,
		"password": password,
	})
	require.Equal(s.t, http.StatusOK, resp.Status, string(resp.Raw))
	token, _ := resp.Body["token"].(string)
	require.NotEmpty(s.t, token)
	return token
}
