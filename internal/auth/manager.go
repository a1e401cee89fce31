// Package auth manages the upstream access token: expiry tracking, refresh
// calls, and recovery of refresh credentials from browser cookie material.
package auth

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/imalabs/ima-mcp-go/internal/config"
	"github.com/imalabs/ima-mcp-go/internal/transport"
)

// defaultValidSeconds applies when the refresh response omits the token
// lifetime.
const defaultValidSeconds = 7200

// Credential recovery patterns over raw cookie material. The x-ima-cookie
// pairs are checked before the plain browser cookies.
var (
	uidPattern          = regexp.MustCompile(`IMA-UID=([^;]+)`)
	userIDPattern       = regexp.MustCompile(`user_id=([a-f0-9]{16})`)
	refreshTokenPattern = regexp.MustCompile(`IMA-REFRESH-TOKEN=([^;]+)`)
	imaTokenPattern     = regexp.MustCompile(`IMA-TOKEN=([^;]+)`)
	rawRefreshPattern   = regexp.MustCompile(`refresh_token=([^;]+)`)
)

// Manager tracks the access token lifecycle. A token counts as expired when
// it has never been refreshed in-process or its last refresh is older than
// the lifetime the upstream declared for it. Safe for concurrent use.
type Manager struct {
	cfg    *config.Config
	client *http.Client
	log    *slog.Logger

	mu           sync.Mutex
	token        string
	validSeconds int
	updatedAt    time.Time
	userID       string
	refreshToken string

	flight singleflight.Group

	now func() time.Time
}

// NewManager seeds the manager from configuration. A preconfigured token
// starts expired since its age is unknown, so it is refreshed before first
// use.
func NewManager(cfg *config.Config, client *http.Client, log *slog.Logger) *Manager {
	return &Manager{
		cfg:          cfg,
		client:       client,
		log:          log.With("component", "token_manager"),
		token:        cfg.Token,
		userID:       cfg.UserID,
		refreshToken: cfg.RefreshToken,
		now:          time.Now,
	}
}

// Token returns the current access token, empty when none is held yet.
func (m *Manager) Token() string {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.token
}

func (m *Manager) expired() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.updatedAt.IsZero() || m.validSeconds <= 0 {
		return true
	}

	return m.now().After(m.updatedAt.Add(time.Duration(m.validSeconds) * time.Second))
}

// EnsureValid brings the token into the best obtainable state and reports
// whether requests may proceed. It only reports false when a refresh was
// attempted and rejected: without recoverable refresh credentials the
// cookie headers alone may still authenticate, so the answer is true.
func (m *Manager) EnsureValid(ctx context.Context) bool {
	if !m.expired() {
		return true
	}

	m.mu.Lock()
	hasCredentials := m.userID != "" && m.refreshToken != ""
	m.mu.Unlock()

	if hasCredentials {
		return m.Refresh(ctx)
	}

	if m.recoverCredentials() {
		return m.Refresh(ctx)
	}

	m.log.Info("No refresh credentials recoverable, relying on cookie auth")

	return true
}

// Refresh exchanges the refresh token for a fresh access token and reports
// success. It never returns an error; failure detail goes to the log so
// callers can fall back to cookie auth or surface an auth failure.
// Concurrent calls collapse into a single upstream request.
func (m *Manager) Refresh(ctx context.Context) bool {
	ok, _, _ := m.flight.Do("refresh", func() (any, error) {
		return m.refresh(ctx), nil
	})

	return ok.(bool)
}

func (m *Manager) refresh(ctx context.Context) bool {
	m.mu.Lock()
	userID, refreshToken, token := m.userID, m.refreshToken, m.token
	m.mu.Unlock()

	if userID == "" || refreshToken == "" {
		if !m.recoverCredentials() {
			m.log.Warn("Cannot refresh: user id or refresh token missing")
			return false
		}

		m.mu.Lock()
		userID, refreshToken = m.userID, m.refreshToken
		m.mu.Unlock()
	}

	payload := refreshRequest{
		UserID:       userID,
		RefreshToken: refreshToken,
		TokenType:    transport.TokenTypeRefresh,
	}

	ctx, cancel := context.WithTimeout(ctx, transport.RequestTimeout(m.cfg.Timeout))
	defer cancel()

	req, err := transport.NewJSONRequest(ctx, m.cfg.BaseURL+transport.RefreshEndpoint, payload, transport.RefreshHeaders(m.cfg, token))
	if err != nil {
		m.log.Error("Building refresh request failed", "error", err)
		return false
	}

	resp, err := m.client.Do(req)
	if err != nil {
		m.log.Error("Token refresh request failed", "error", err)
		return false
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		m.log.Error("Reading refresh response failed", "error", err)
		return false
	}

	if resp.StatusCode != http.StatusOK {
		m.log.Error("Token refresh rejected",
			"status", resp.StatusCode,
			"body", transport.Excerpt(string(body), 200))
		return false
	}

	var parsed refreshResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		m.log.Error("Refresh response is not JSON",
			"error", err,
			"body", transport.Excerpt(string(body), 200))
		return false
	}

	if parsed.Code != 0 || parsed.Token == "" {
		m.log.Warn("Token refresh failed", "code", parsed.Code, "msg", parsed.Msg)
		return false
	}

	validSeconds := defaultValidSeconds
	if parsed.TokenValidTime != "" {
		if v, err := strconv.Atoi(parsed.TokenValidTime); err == nil {
			validSeconds = v
		}
	}

	m.mu.Lock()
	m.token = parsed.Token
	m.validSeconds = validSeconds
	m.updatedAt = m.now()
	m.mu.Unlock()

	m.log.Info("Token refreshed", "valid_seconds", validSeconds)

	return true
}

// recoverCredentials extracts user id and refresh token from the configured
// cookie material and reports whether both were found. Whatever is found
// replaces the held values, even a miss.
func (m *Manager) recoverCredentials() bool {
	userID := m.parseUserID()
	refreshToken := m.parseRefreshToken()

	m.mu.Lock()
	m.userID = userID
	m.refreshToken = refreshToken
	m.mu.Unlock()

	return userID != "" && refreshToken != ""
}

// parseUserID looks for the IMA-UID pair in x-ima-cookie, then for a
// 16-hex-digit user_id in the plain browser cookies.
func (m *Manager) parseUserID() string {
	if match := uidPattern.FindStringSubmatch(m.cfg.XIMACookie); match != nil {
		return match[1]
	}

	if m.cfg.Cookies != "" {
		if match := userIDPattern.FindStringSubmatch(m.cfg.Cookies); match != nil {
			return match[1]
		}
	}

	return ""
}

// parseRefreshToken prefers IMA-REFRESH-TOKEN from x-ima-cookie, falls back
// to IMA-TOKEN, then to a refresh_token pair in the plain browser cookies.
// Values may arrive percent-encoded.
func (m *Manager) parseRefreshToken() string {
	if match := refreshTokenPattern.FindStringSubmatch(m.cfg.XIMACookie); match != nil {
		return unescape(match[1])
	}

	m.log.Warn("No IMA-REFRESH-TOKEN in x-ima-cookie")

	if match := imaTokenPattern.FindStringSubmatch(m.cfg.XIMACookie); match != nil {
		m.log.Warn("Falling back to IMA-TOKEN as refresh token")
		return unescape(match[1])
	}

	if m.cfg.Cookies != "" {
		if match := rawRefreshPattern.FindStringSubmatch(m.cfg.Cookies); match != nil {
			return unescape(match[1])
		}
	}

	m.log.Warn("No refresh token recoverable from any cookie source")

	return ""
}

func unescape(s string) string {
	decoded, err := url.PathUnescape(s)
	if err != nil {
		return s
	}

	return decoded
}

//nolint:tagliatelle // upstream wire format
type refreshRequest struct {
	UserID       string `json:"user_id"`
	RefreshToken string `json:"refresh_token"`
	TokenType    int    `json:"token_type"`
}

//nolint:tagliatelle // upstream wire format
type refreshResponse struct {
	Code           int    `json:"code"`
	Msg            string `json:"msg"`
	Token          string `json:"token"`
	TokenValidTime string `json:"token_valid_time"`
	UserID         string `json:"user_id"`
}
