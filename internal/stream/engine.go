// Package stream issues QA requests and parses the SSE response into typed
// messages under idle-timeout supervision.
//
// A single Ask performs the full per-attempt pipeline: token check, fresh
// session, POST, supervised chunk loop, trailing-buffer flush, and a
// whole-body fallback for upstreams that answer a stream request with one
// JSON document. Stream-phase problems are diagnostics, not errors: whatever
// was parsed before a stall remains valid.
package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/oklog/ulid/v2"
	"golang.org/x/sync/errgroup"
	"golang.org/x/text/encoding/simplifiedchinese"

	"github.com/imalabs/ima-mcp-go/internal/auth"
	"github.com/imalabs/ima-mcp-go/internal/capture"
	"github.com/imalabs/ima-mcp-go/internal/config"
	imaerrors "github.com/imalabs/ima-mcp-go/internal/errors"
	"github.com/imalabs/ima-mcp-go/internal/message"
	"github.com/imalabs/ima-mcp-go/internal/session"
	"github.com/imalabs/ima-mcp-go/internal/transport"
)

const (
	// initialIdleTimeout bounds the wait for the first byte; the upstream
	// can think for minutes before it starts answering.
	initialIdleTimeout = 180 * time.Second

	// stallIdleTimeout bounds silence once streaming has started.
	stallIdleTimeout = 120 * time.Second

	// fallbackChunkThreshold marks a stream as suspiciously short. Short
	// streams get a whole-body reparse in case the upstream sent a single
	// JSON document under an SSE content type.
	fallbackChunkThreshold = 100

	readBufferSize = 16 * 1024
)

// Engine performs one complete ask attempt against the QA endpoint.
type Engine struct {
	cfg      *config.Config
	tokens   *auth.Manager
	sessions *session.Initializer
	client   *http.Client
	recorder *capture.Recorder
	log      *slog.Logger

	initialIdle time.Duration
	stallIdle   time.Duration
}

// NewEngine wires the engine to the shared transport, auth, and session
// components.
func NewEngine(cfg *config.Config, tokens *auth.Manager, sessions *session.Initializer, client *http.Client, recorder *capture.Recorder, log *slog.Logger) *Engine {
	return &Engine{
		cfg:         cfg,
		tokens:      tokens,
		sessions:    sessions,
		client:      client,
		recorder:    recorder,
		log:         log.With("component", "stream"),
		initialIdle: initialIdleTimeout,
		stallIdle:   stallIdleTimeout,
	}
}

// Ask runs one attempt: token check, fresh session, QA POST, and stream
// parse. Errors cover only the phases before streaming starts; once the SSE
// loop is entered, problems are recorded as diagnostics and the parsed
// messages are returned. A transport-level success that yields nothing
// parseable returns a single system message, never an empty list.
func (e *Engine) Ask(ctx context.Context, question string, attempt int) ([]message.Message, error) {
	if strings.TrimSpace(question) == "" {
		return nil, imaerrors.ErrEmptyQuestion
	}

	if !e.tokens.EnsureValid(ctx) {
		return nil, imaerrors.ErrAuthFailed
	}

	sessionID, err := e.sessions.Init(ctx)
	if err != nil {
		return nil, err
	}

	traceID := ulid.Make().String()
	log := e.log.With("trace_id", traceID)

	payload := buildQARequest(e.cfg, sessionID, question)

	// The deadline covers the whole exchange, body read included; a stream
	// cut by it is still a usable answer when messages were parsed.
	ctx, cancel := context.WithTimeout(ctx, transport.RequestTimeout(e.cfg.Timeout))
	defer cancel()

	headers := transport.BuildHeaders(e.cfg, e.tokens.Token(), transport.AcceptEventStream)

	req, err := transport.NewJSONRequest(ctx, e.cfg.BaseURL+transport.QAEndpoint, payload, headers)
	if err != nil {
		return nil, fmt.Errorf("building qa request: %w", err)
	}

	log.Debug("Sending question",
		"question", transport.Excerpt(question, 50),
		"session_id", transport.Excerpt(sessionID, 16))

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("qa request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, e.statusError(log, resp, sessionID)
	}

	contentType := resp.Header.Get("Content-Type")
	if !strings.Contains(contentType, "text/event-stream") {
		return nil, e.notStreamError(log, resp, contentType)
	}

	msgs := e.processStream(ctx, log, resp.Body, streamInfo{
		traceID:  traceID,
		attempt:  attempt,
		question: question,
	})

	if len(msgs) == 0 {
		log.Warn("Request succeeded but produced no parseable SSE content")
		msgs = append(msgs, &message.SystemMessage{
			Content: "request succeeded but returned no parseable content",
			Raw:     "No valid SSE messages received",
		})
	}

	return msgs, nil
}

// statusError turns a non-200 QA response into a typed error. A 400 almost
// always means the session id or auth material was rejected, so it gets a
// dedicated diagnostic.
func (e *Engine) statusError(log *slog.Logger, resp *http.Response, sessionID string) error {
	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode == http.StatusBadRequest {
		log.Error("QA endpoint rejected the request, session id or auth material likely invalid",
			"session_id", transport.Excerpt(sessionID, 16),
			"token_held", e.tokens.Token() != "")
	}

	return &imaerrors.APIStatusError{
		Endpoint:   transport.QAEndpoint,
		StatusCode: resp.StatusCode,
		Body:       transport.Excerpt(string(body), 200),
	}
}

// notStreamError classifies a 200 response that is not SSE: an upstream JSON
// error envelope when one can be decoded, otherwise a content-type mismatch
// with a body excerpt.
func (e *Engine) notStreamError(log *slog.Logger, resp *http.Response, contentType string) error {
	body, _ := io.ReadAll(resp.Body)
	text := string(body)

	log.Error("Expected SSE response",
		"content_type", contentType,
		"body", transport.Excerpt(text, 1000))

	if strings.TrimSpace(text) == "" {
		return &imaerrors.NotStreamError{ContentType: contentType}
	}

	var upstream struct {
		Code int    `json:"code"`
		Msg  string `json:"msg"`
	}
	if err := json.Unmarshal(body, &upstream); err == nil {
		msg := upstream.Msg
		if msg == "" {
			msg = "unknown error"
		}

		return &imaerrors.UpstreamError{Code: upstream.Code, Msg: msg}
	}

	return &imaerrors.NotStreamError{
		ContentType: contentType,
		Body:        transport.Excerpt(text, 200),
	}
}

type streamInfo struct {
	traceID  string
	attempt  int
	question string
}

// processStream consumes the SSE body until EOF, idle timeout, read error,
// or cancellation. It never fails: stream-phase problems become capture
// diagnostics and whatever parsed stays in the result.
func (e *Engine) processStream(ctx context.Context, log *slog.Logger, body io.Reader, info streamInfo) []message.Message {
	start := time.Now()
	run := &streamRun{log: log}

	var streamErr error

	chunks := make(chan []byte, 4)

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(chunks)

		return pump(gCtx, body, chunks)
	})

	idle := time.NewTimer(e.initialIdle)
	defer idle.Stop()

loop:
	for {
		select {
		case data, ok := <-chunks:
			if !ok {
				// Pump finished, collect its verdict. Wait returns
				// immediately here.
				if err := g.Wait(); err != nil && run.quiet() {
					streamErr = fmt.Errorf("stream read: %w", err)
				}

				break loop
			}

			run.ingest(data)
			idle.Reset(e.stallIdle)

		case <-idle.C:
			// The pump is left blocked in Read; the caller's body close
			// releases it right after this returns.
			if run.quiet() {
				streamErr = imaerrors.ErrStreamIdle
			}

			break loop

		case <-ctx.Done():
			if run.quiet() {
				streamErr = fmt.Errorf("stream read: %w", ctx.Err())
			}

			break loop
		}
	}

	run.flush()

	if run.chunks < fallbackChunkThreshold || !run.hasData {
		run.extractEnvelope()
	}

	elapsed := time.Since(start)

	e.recorder.Persist(run.full.String(), capture.Stats{
		TraceID:     info.traceID,
		Attempt:     info.attempt,
		Question:    info.question,
		ChunkCount:  run.chunks,
		ParsedCount: run.parsed,
		FailedCount: run.failed,
		Elapsed:     elapsed,
		StreamErr:   streamErr,
	})

	log.Info("Stream complete",
		"chunks", run.chunks,
		"parsed", run.parsed,
		"failed", run.failed,
		"bytes", run.full.Len(),
		"elapsed", elapsed.Round(time.Millisecond))

	if streamErr != nil {
		log.Warn("Stream ended early", "error", streamErr)
	}

	if run.chunks > fallbackChunkThreshold && run.parsed < 5 {
		log.Error("Large stream parsed almost nothing",
			"chunks", run.chunks,
			"parsed", run.parsed)
	}

	return run.messages
}

// pump feeds raw reads into chunks until EOF, read error, or cancellation.
// Zero-length reads are skipped so they neither count nor reset the idle
// timer. Only a genuine read error is returned; EOF and cancellation are
// clean exits.
func pump(ctx context.Context, body io.Reader, chunks chan<- []byte) error {
	buf := make([]byte, readBufferSize)

	for {
		n, err := body.Read(buf)
		if n > 0 {
			data := make([]byte, n)
			copy(data, buf[:n])

			select {
			case chunks <- data:
			case <-ctx.Done():
				return nil
			}
		}

		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}

			return err
		}
	}
}

// streamRun accumulates one stream's state: the line buffer, the full body
// for capture and fallback, and the parse counters.
type streamRun struct {
	log      *slog.Logger
	messages []message.Message
	buffer   string
	full     strings.Builder
	chunks   int
	parsed   int
	failed   int
	hasData  bool
}

// quiet reports whether the stream has produced nothing usable yet; only a
// quiet stream turns an early end into a diagnostic.
func (s *streamRun) quiet() bool {
	return !s.hasData || s.parsed == 0
}

// ingest decodes one chunk, appends it to the buffers, and parses every
// complete line.
func (s *streamRun) ingest(data []byte) {
	s.hasData = true
	s.chunks++

	text := s.decode(data)
	s.full.WriteString(text)
	s.buffer += text

	for {
		line, rest, found := strings.Cut(s.buffer, "\n")
		if !found {
			break
		}

		s.buffer = rest
		s.parseLine(line)
	}
}

// decode tries UTF-8 first, then GBK; as a last resort invalid bytes are
// dropped. Chunks are decoded independently, so a rune split across reads
// degrades to the fallback and is rescued by the whole-body reparse.
func (s *streamRun) decode(data []byte) string {
	if utf8.Valid(data) {
		return string(data)
	}

	if decoded, err := simplifiedchinese.GBK.NewDecoder().Bytes(data); err == nil {
		return string(decoded)
	}

	s.log.Warn("Chunk decode failed, dropping invalid bytes", "chunk", s.chunks)

	return strings.ToValidUTF8(string(data), "")
}

func (s *streamRun) parseLine(line string) {
	line = strings.TrimSpace(line)
	if line == "" {
		return
	}

	msg, err := message.ParseLine(s.log, line)
	if err != nil {
		s.failed++
		return
	}

	if msg != nil {
		s.parsed++
		s.messages = append(s.messages, msg)
	}
}

// flush runs the trailing partial buffer through the line parser.
func (s *streamRun) flush() {
	trimmed := strings.TrimSpace(s.buffer)
	if trimmed == "" {
		return
	}

	for _, line := range strings.Split(trimmed, "\n") {
		s.parseLine(line)
	}
}

// extractEnvelope reparses the whole body as a single JSON document and
// appends whatever it yields after the streamed messages. Non-JSON bodies
// were already handled line by line.
func (s *streamRun) extractEnvelope() {
	trimmed := strings.TrimSpace(s.full.String())
	if trimmed == "" {
		return
	}

	var payload map[string]any
	if err := json.Unmarshal([]byte(trimmed), &payload); err != nil {
		return
	}

	s.messages = append(s.messages, message.ParseEnvelope(s.log, payload)...)
}
