package client

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/imalabs/ima-mcp-go/internal/config"
	imaerrors "github.com/imalabs/ima-mcp-go/internal/errors"
	"github.com/imalabs/ima-mcp-go/internal/message"
	"github.com/imalabs/ima-mcp-go/internal/transport"
)

const (
	// retryDelay separates attempts after a non-auth failure.
	retryDelay = time.Second

	// validateQuestion is the canned round-trip Validate sends.
	validateQuestion = "你好"
)

// asker runs one complete question attempt. Implemented by stream.Engine.
type asker interface {
	Ask(ctx context.Context, question string, attempt int) ([]message.Message, error)
}

// refresher renews the access token after an auth-classified failure.
// Implemented by auth.Manager.
type refresher interface {
	Refresh(ctx context.Context) bool
}

// Status reports the client's configuration and connectivity state.
type Status struct {
	Configured    bool
	Authenticated bool
	LastTestTime  time.Time
	ErrorMessage  string
}

// Client is the retry orchestrator around the stream engine.
type Client struct {
	cfg    *config.Config
	engine asker
	tokens refresher
	log    *slog.Logger

	// Connectivity state from the last Validate run.
	mu            sync.Mutex
	authenticated bool
	lastTest      time.Time
}

// New wires the orchestrator to an assembled engine and token manager.
func New(cfg *config.Config, engine asker, tokens refresher, log *slog.Logger) *Client {
	return &Client{
		cfg:    cfg,
		engine: engine,
		tokens: tokens,
		log:    log.With("component", "client"),
	}
}

// Ask answers a question with up to RetryCount+1 attempts. It never returns
// an error: an empty question is rejected as a system message before any
// request, and total failure yields a synthetic system message, so the result
// always holds at least one entry.
func (c *Client) Ask(ctx context.Context, question string) []message.Message {
	log := c.log.With("qa_trace_id", uuid.NewString()[:8])

	if strings.TrimSpace(question) == "" {
		log.Warn("Rejecting empty question")

		return []message.Message{&message.SystemMessage{
			Content: "question cannot be empty",
			Raw:     "Input rejected before any request",
		}}
	}

	attempts := c.cfg.RetryCount + 1
	if attempts < 1 {
		attempts = 1
	}

	log.Info("Starting question",
		"question", transport.Excerpt(question, 50),
		"max_attempts", attempts)

	var msgs []message.Message

	for attempt := 0; attempt < attempts; attempt++ {
		var err error

		msgs, err = c.engine.Ask(ctx, question, attempt)
		if err == nil {
			log.Info("Question answered", "messages", len(msgs), "attempt", attempt+1)
			break
		}

		log.Error("Attempt failed",
			"attempt", attempt+1,
			"max_attempts", attempts,
			"error", err)

		if attempt == attempts-1 {
			log.Error("All attempts exhausted")
			break
		}

		if imaerrors.IsAuthError(err) {
			if !c.tokens.Refresh(ctx) {
				log.Error("Token refresh failed, abandoning remaining attempts")
				break
			}

			log.Info("Token refreshed, retrying")

			continue
		}

		log.Info("Transient failure, retrying after delay")

		if !sleep(ctx, retryDelay) {
			log.Warn("Cancelled while waiting to retry")
			break
		}
	}

	if len(msgs) == 0 {
		msgs = []message.Message{&message.SystemMessage{
			Content: fmt.Sprintf("failed to get an answer: all %d attempts failed", attempts),
			Raw:     "All retries exhausted",
		}}
	}

	return msgs
}

// AskText answers a question and assembles the final answer text.
func (c *Client) AskText(ctx context.Context, question string) string {
	return message.ExtractText(c.Ask(ctx, question))
}

// Validate sends a canned question through the full pipeline and reports
// whether a real answer came back. Synthetic and unrecognized payloads do not
// count; a validation that only produced system messages failed.
func (c *Client) Validate(ctx context.Context) bool {
	ok := hasAnswer(c.Ask(ctx, validateQuestion))

	c.mu.Lock()
	c.authenticated = ok
	c.lastTest = time.Now()
	c.mu.Unlock()

	if ok {
		c.log.Info("Connectivity check passed")
	} else {
		c.log.Warn("Connectivity check failed")
	}

	return ok
}

// StatusReport returns the configuration state and the outcome of the most
// recent Validate run. It performs no network calls; LastTestTime is zero
// until Validate has run.
func (c *Client) StatusReport() Status {
	status := Status{Configured: true}

	if err := c.cfg.Validate(); err != nil {
		status.Configured = false
		status.ErrorMessage = err.Error()
	}

	c.mu.Lock()
	status.Authenticated = c.authenticated
	status.LastTestTime = c.lastTest
	c.mu.Unlock()

	return status
}

// hasAnswer reports whether msgs holds anything beyond system messages.
func hasAnswer(msgs []message.Message) bool {
	for _, msg := range msgs {
		if msg.MessageType() != message.TypeSystem {
			return true
		}
	}

	return false
}

// sleep waits for d, returning false when ctx ends first.
func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
