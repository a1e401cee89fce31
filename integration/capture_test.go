//go:build integration

package integration

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	imamcp "github.com/imalabs/ima-mcp-go"
)

// TestCaptureWritesFileOnSuccess runs a capture-enabled client and checks
// the raw SSE body lands on disk with its metadata header.
func TestCaptureWritesFileOnSuccess(t *testing.T) {
	u := newUpstream(t)
	u.answerLines = []string{`data: {"content":"captured answer"}`}

	dir := t.TempDir()
	cfg := cookieAuthConfig(u)
	cfg.EnableRawCapture = true
	cfg.RawCaptureDir = dir
	cfg.RawCaptureOnSuccess = true

	c := newClient(t, cfg)
	c.Ask(context.Background(), "record this exchange")

	files, err := filepath.Glob(filepath.Join(dir, "sse_*.log"))
	require.NoError(t, err)
	require.Len(t, files, 1)

	content, err := os.ReadFile(files[0])
	require.NoError(t, err)

	header, body, found := strings.Cut(string(content), "\n\n")
	require.True(t, found, "capture file must carry a metadata header ahead of the body")

	var meta map[string]any
	require.NoError(t, json.Unmarshal([]byte(header), &meta))
	assert.EqualValues(t, 1, meta["attempt"])
	assert.Equal(t, "record this exchange", meta["question"])
	assert.NotEmpty(t, meta["trace_id"])
	assert.NotContains(t, meta, "stream_error")

	assert.Contains(t, body, `"content":"captured answer"`)
}

// TestCaptureSkipsSuccessByDefault pins the capture policy: without the
// on-success opt-in, a clean stream leaves nothing on disk.
func TestCaptureSkipsSuccessByDefault(t *testing.T) {
	u := newUpstream(t)

	dir := t.TempDir()
	cfg := cookieAuthConfig(u)
	cfg.EnableRawCapture = true
	cfg.RawCaptureDir = dir

	c := newClient(t, cfg)
	c.Ask(context.Background(), "nothing to keep")

	files, err := filepath.Glob(filepath.Join(dir, "sse_*.log"))
	require.NoError(t, err)
	assert.Empty(t, files)
}

// TestCaptureWritesFileOnStreamError forces a stream that dies before any
// data arrives and checks the capture records the stream error while the
// caller still gets a well-formed answer.
func TestCaptureWritesFileOnStreamError(t *testing.T) {
	u := newUpstream(t)
	u.qa = func(_ int, w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}

		// Hold the stream open without sending a byte until the client's
		// deadline cuts the connection.
		<-r.Context().Done()
	}

	dir := t.TempDir()
	cfg := cookieAuthConfig(u)
	cfg.Timeout = 500 * time.Millisecond
	cfg.EnableRawCapture = true
	cfg.RawCaptureDir = dir

	c := newClient(t, cfg)
	msgs := c.Ask(context.Background(), "silent upstream")

	require.Len(t, msgs, 1)
	assert.Equal(t, imamcp.MessageTypeSystem, msgs[0].MessageType())

	files, err := filepath.Glob(filepath.Join(dir, "sse_*.log"))
	require.NoError(t, err)
	require.Len(t, files, 1)

	content, err := os.ReadFile(files[0])
	require.NoError(t, err)

	header, _, found := strings.Cut(string(content), "\n\n")
	require.True(t, found)

	var meta map[string]any
	require.NoError(t, json.Unmarshal([]byte(header), &meta))
	assert.Contains(t, meta["stream_error"], "context deadline exceeded")
	assert.EqualValues(t, 0, meta["response_bytes"])
}
