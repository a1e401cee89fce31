// Package transport owns the HTTP plumbing shared by every upstream call:
// the pooled client, the fixed endpoints and protocol parameters, and the
// browser-profile request headers the upstream expects.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/imalabs/ima-mcp-go/internal/config"
)

// Upstream endpoints, relative to the configured base URL.
const (
	// QAEndpoint streams question answers over SSE.
	QAEndpoint = "/cgi-bin/assistant/qa"

	// RefreshEndpoint exchanges a refresh token for an access token.
	RefreshEndpoint = "/cgi-bin/auth_login/refresh"

	// InitSessionEndpoint creates the per-question session.
	InitSessionEndpoint = "/cgi-bin/session_logic/init_session"
)

// Fixed protocol parameters of the upstream QA service.
const (
	RobotType              = 5
	SceneType              = 1
	ModelType              = 4
	QuestionType           = 2
	InteractType           = 0
	CommandTypeKnowledgeQA = 14
	TokenTypeRefresh       = 14
)

const (
	connectTimeout  = 30 * time.Second
	idleConnTimeout = 60 * time.Second
	maxIdleConns    = 100
	maxConnsPerHost = 30

	// maxRequestTimeout caps a single request end to end, body read
	// included. The upstream drops connections held longer anyway.
	maxRequestTimeout = 300 * time.Second
)

// NewHTTPClient builds the pooled client shared by all upstream calls.
// Deadlines come from request contexts, not the client, so streaming reads
// are bounded per call.
func NewHTTPClient(cfg *config.Config) (*http.Client, error) {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   connectTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          maxIdleConns,
		MaxIdleConnsPerHost:   maxConnsPerHost,
		IdleConnTimeout:       idleConnTimeout,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: time.Second,
		ForceAttemptHTTP2:     true,
	}

	if cfg.ProxyURL != "" {
		proxyURL, err := url.Parse(cfg.ProxyURL)
		if err != nil {
			return nil, fmt.Errorf("parsing proxy URL: %w", err)
		}

		transport.Proxy = http.ProxyURL(proxyURL)
	}

	return &http.Client{Transport: transport}, nil
}

// RequestTimeout bounds one upstream request. The configured timeout applies
// up to a hard five-minute cap.
func RequestTimeout(configured time.Duration) time.Duration {
	if configured <= 0 || configured > maxRequestTimeout {
		return maxRequestTimeout
	}

	return configured
}

// NewJSONRequest builds a POST request with a JSON body. The caller joins
// base URL and endpoint and owns header assembly.
func NewJSONRequest(ctx context.Context, url string, payload any, headers http.Header) (*http.Request, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encoding request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}

	req.Header = headers

	return req, nil
}

// Excerpt bounds upstream body text included in errors and logs.
func Excerpt(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}

	return string(runes[:limit])
}
