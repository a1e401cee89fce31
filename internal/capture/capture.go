// Package capture persists raw SSE response bodies for offline diagnosis.
// Files are keyed by trace id and attempt and carry a JSON metadata header
// ahead of the body.
package capture

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/imalabs/ima-mcp-go/internal/config"
	"github.com/imalabs/ima-mcp-go/internal/message"
)

// questionPreviewLimit bounds the question text stored in metadata.
const questionPreviewLimit = 200

// Stats describes one processed stream for the metadata header.
type Stats struct {
	TraceID     string
	Attempt     int // zero-based attempt index
	Question    string
	ChunkCount  int
	ParsedCount int
	FailedCount int
	Elapsed     time.Duration
	StreamErr   error
}

//nolint:tagliatelle // file format shared with other tooling
type metadata struct {
	Timestamp     string  `json:"timestamp"`
	TraceID       string  `json:"trace_id"`
	Attempt       int     `json:"attempt"`
	Question      string  `json:"question,omitempty"`
	ChunkCount    int     `json:"message_count"`
	ParsedCount   int     `json:"parsed_message_count"`
	FailedCount   int     `json:"failed_parse_count"`
	ElapsedSecs   float64 `json:"elapsed_seconds"`
	ResponseBytes int     `json:"response_bytes"`
	Truncated     bool    `json:"truncated"`
	StreamError   string  `json:"stream_error,omitempty"`
}

// Recorder writes capture files under a fixed directory. A Recorder that
// failed to prepare its directory, or that was built with capture disabled,
// silently drops everything.
type Recorder struct {
	enabled   bool
	dir       string
	maxBytes  int64
	onSuccess bool
	log       *slog.Logger

	now func() time.Time
}

// NewRecorder prepares the capture directory when capture is enabled.
// Directory failures disable the recorder instead of failing the client;
// capture is a debugging aid, never a reason to refuse service.
func NewRecorder(cfg *config.Config, log *slog.Logger) *Recorder {
	r := &Recorder{
		dir:       cfg.RawCaptureDir,
		maxBytes:  cfg.RawCaptureMaxBytes,
		onSuccess: cfg.RawCaptureOnSuccess,
		log:       log.With("component", "capture"),
		now:       time.Now,
	}

	if !cfg.EnableRawCapture {
		return r
	}

	if r.dir == "" {
		r.dir = config.DefaultRawCaptureDir
	}

	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		r.log.Error("Failed to prepare raw capture directory", "dir", r.dir, "error", err)
		return r
	}

	r.enabled = true
	r.log.Info("Raw SSE captures will be written", "dir", r.dir)

	return r
}

// shouldPersist applies the capture policy: errors always, successes only
// when configured.
func (r *Recorder) shouldPersist(streamErr error) bool {
	if !r.enabled {
		return false
	}

	if streamErr != nil {
		return true
	}

	return r.onSuccess
}

// Persist writes one capture file and returns its path, or "" when the
// policy skipped it or the write failed. Write failures are logged, never
// propagated.
func (r *Recorder) Persist(body string, stats Stats) string {
	if !r.shouldPersist(stats.StreamErr) {
		return ""
	}

	now := r.now()
	name := fmt.Sprintf("sse_%s_%06d_%s_attempt%d.log",
		now.Format("20060102_150405"), now.Nanosecond()/1000, stats.TraceID, stats.Attempt+1)
	path := filepath.Join(r.dir, name)

	encoded := []byte(body)
	responseBytes := len(encoded)
	truncated := false

	if r.maxBytes > 0 && int64(responseBytes) > r.maxBytes {
		encoded = encoded[:r.maxBytes]
		truncated = true
	}

	meta := metadata{
		Timestamp:     now.Format(time.RFC3339Nano),
		TraceID:       stats.TraceID,
		Attempt:       stats.Attempt + 1,
		Question:      message.Truncate(strings.TrimSpace(stats.Question), questionPreviewLimit),
		ChunkCount:    stats.ChunkCount,
		ParsedCount:   stats.ParsedCount,
		FailedCount:   stats.FailedCount,
		ElapsedSecs:   math.Round(stats.Elapsed.Seconds()*1000) / 1000,
		ResponseBytes: responseBytes,
		Truncated:     truncated,
	}
	if stats.StreamErr != nil {
		meta.StreamError = stats.StreamErr.Error()
	}

	header, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		r.log.Error("Failed to encode capture metadata", "error", err)
		return ""
	}

	// The byte cap can cut inside a rune; scrub so the file stays UTF-8.
	content := string(header) + "\n\n" + strings.ToValidUTF8(string(encoded), "�")

	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		r.log.Error("Failed to persist raw SSE response", "path", path, "error", err)
		return ""
	}

	r.log.Info("Raw SSE response saved", "path", path, "trace_id", stats.TraceID)

	return path
}
