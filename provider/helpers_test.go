package provider

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

// streamServer answers every request with the given lines, flushing after each.
func streamServer(t *testing.T, contentType string, lines ...string) (*httptest.Server, *recorder) {
	t.Helper()
	captured := &recorder{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured.capture(t, r)
		w.Header().Set("Content-Type", contentType)
		w.WriteHeader(http.StatusOK)
		flusher := w.(http.Flusher)
		for _, line := range lines {
			fmt.Fprint(w, line)
			flusher.Flush()
		}
	}))
	t.Cleanup(srv.Close)
	return srv, captured
}

// droppingServer writes a 200 response announcing more body than it sends
// and then closes the connection, simulating a mid-stream network drop.
func droppingServer(t *testing.T, body string) *httptest.Server {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hj, ok := w.(http.Hijacker)
		require.True(t, ok, "server does not support hijacking")

		conn, buf, err := hj.Hijack()
		require.NoError(t, err)
		defer conn.Close()

		fmt.Fprintf(buf, "HTTP/1.1 200 OK\r\nContent-Type: application/x-ndjson\r\nContent-Length: %d\r\n\r\n%s",
			len(body)+1024, body)
		buf.Flush()
	}))
	t.Cleanup(srv.Close)
	return srv
}

// statusServer answers with a fixed status and JSON body.
func statusServer(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

// deadURL returns the URL of a server that is no longer listening.
func deadURL(t *testing.T) string {
	t.Helper()
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()
	return url
}

// requestRecord is what a test server saw of one request.
type requestRecord struct {
	Method string
	Path   string
	Header http.Header
	Body   map[string]any
}

// recorder keeps the last request a test server handled.
type recorder struct {
	mu   sync.Mutex
	last requestRecord
}

func (c *recorder) capture(t *testing.T, r *http.Request) {
	rec := requestRecord{
		Method: r.Method,
		Path:   r.URL.Path,
		Header: r.Header.Clone(),
	}

	data, err := io.ReadAll(r.Body)
	if err == nil && len(data) > 0 {
		if err := json.Unmarshal(data, &rec.Body); err != nil {
			t.Errorf("request body is not JSON: %v", err)
		}
	}

	c.mu.Lock()
	c.last = rec
	c.mu.Unlock()
}

func (c *recorder) Last() requestRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last
}
