//go:build integration

// Package integration exercises the assembled bridge end to end against a
// fake upstream: token refresh, session creation, SSE streaming, retry
// behavior, raw capture, and the MCP surface. Build with -tags integration.
package integration

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	imamcp "github.com/imalabs/ima-mcp-go"
)

// Endpoint paths pinned here independently of the client, so a path change
// in the transport layer breaks these tests.
const (
	refreshPath = "/cgi-bin/auth_login/refresh"
	initPath    = "/cgi-bin/session_logic/init_session"
	qaPath      = "/cgi-bin/assistant/qa"
)

// qaCall records one hit on the QA endpoint: the auth material it carried
// and the decoded body fields tests assert on.
type qaCall struct {
	Authorization string
	XIMACookie    string
	XIMABkn       string
	SessionID     string
	Question      string
}

// upstream fakes the ima service. The default handlers accept everything:
// refresh hands out numbered tokens, init hands out numbered session ids,
// and qa streams answerLines. Tests script failure sequences by assigning
// the refresh and qa hooks before the first request.
type upstream struct {
	t   *testing.T
	srv *httptest.Server

	// answerLines is the SSE body the default qa handler streams.
	answerLines []string

	// refresh and qa receive the 1-based call number.
	refresh func(call int, w http.ResponseWriter, r *http.Request)
	qa      func(call int, w http.ResponseWriter, r *http.Request)

	mu            sync.Mutex
	refreshCalls  int
	initCalls     int
	qaCalls       []qaCall
	refreshBodies []map[string]any
	initBodies    []map[string]any
}

func newUpstream(t *testing.T) *upstream {
	t.Helper()

	u := &upstream{
		t:           t,
		answerLines: []string{`data: {"content":"ok"}`},
	}

	mux := http.NewServeMux()
	mux.HandleFunc(refreshPath, u.handleRefresh)
	mux.HandleFunc(initPath, u.handleInit)
	mux.HandleFunc(qaPath, u.handleQA)

	u.srv = httptest.NewServer(mux)
	t.Cleanup(u.srv.Close)

	return u
}

func (u *upstream) handleRefresh(w http.ResponseWriter, r *http.Request) {
	body := decodeBody(u.t, r)

	u.mu.Lock()
	u.refreshCalls++
	call := u.refreshCalls
	u.refreshBodies = append(u.refreshBodies, body)
	u.mu.Unlock()

	if u.refresh != nil {
		u.refresh(call, w, r)
		return
	}

	writeJSON(w, fmt.Sprintf(`{"code":0,"msg":"ok","token":"token-%d","token_valid_time":"7200"}`, call))
}

func (u *upstream) handleInit(w http.ResponseWriter, r *http.Request) {
	body := decodeBody(u.t, r)

	u.mu.Lock()
	u.initCalls++
	call := u.initCalls
	u.initBodies = append(u.initBodies, body)
	u.mu.Unlock()

	writeJSON(w, fmt.Sprintf(`{"code":0,"msg":"ok","session_id":"sess-%d"}`, call))
}

func (u *upstream) handleQA(w http.ResponseWriter, r *http.Request) {
	body := decodeBody(u.t, r)

	sessionID, _ := body["session_id"].(string)
	question, _ := body["question"].(string)

	u.mu.Lock()
	u.qaCalls = append(u.qaCalls, qaCall{
		Authorization: r.Header.Get("Authorization"),
		XIMACookie:    r.Header.Get("x-ima-cookie"),
		XIMABkn:       r.Header.Get("x-ima-bkn"),
		SessionID:     sessionID,
		Question:      question,
	})
	call := len(u.qaCalls)
	u.mu.Unlock()

	if u.qa != nil {
		u.qa(call, w, r)
		return
	}

	streamSSE(w, u.answerLines...)
}

// counts snapshots the per-endpoint hit counters.
func (u *upstream) counts() (refreshes, inits, asks int) {
	u.mu.Lock()
	defer u.mu.Unlock()

	return u.refreshCalls, u.initCalls, len(u.qaCalls)
}

func (u *upstream) qaCall(t *testing.T, i int) qaCall {
	t.Helper()

	u.mu.Lock()
	defer u.mu.Unlock()
	require.Less(t, i, len(u.qaCalls), "qa endpoint was hit %d times", len(u.qaCalls))

	return u.qaCalls[i]
}

func (u *upstream) refreshBody(t *testing.T, i int) map[string]any {
	t.Helper()

	u.mu.Lock()
	defer u.mu.Unlock()
	require.Less(t, i, len(u.refreshBodies), "refresh endpoint was hit %d times", len(u.refreshBodies))

	return u.refreshBodies[i]
}

func (u *upstream) initBody(t *testing.T, i int) map[string]any {
	t.Helper()

	u.mu.Lock()
	defer u.mu.Unlock()
	require.Less(t, i, len(u.initBodies), "init endpoint was hit %d times", len(u.initBodies))

	return u.initBodies[i]
}

// decodeBody reads a JSON request body. Handlers run off the test goroutine,
// so failures are recorded with Errorf rather than aborting.
func decodeBody(t *testing.T, r *http.Request) map[string]any {
	t.Helper()

	var body map[string]any
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		t.Errorf("decoding %s request body: %v", r.URL.Path, err)
		return nil
	}

	return body
}

func writeJSON(w http.ResponseWriter, body string) {
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprint(w, body)
}

func writeStatus(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	fmt.Fprint(w, body)
}

func streamSSE(w http.ResponseWriter, lines ...string) {
	w.Header().Set("Content-Type", "text/event-stream")
	for _, line := range lines {
		fmt.Fprintf(w, "%s\n\n", line)
	}
}

// cookieAuthConfig returns a config whose cookie material carries no
// recoverable refresh credentials, so the pipeline relies on header auth and
// never calls the refresh endpoint.
func cookieAuthConfig(u *upstream) *imamcp.Config {
	return &imamcp.Config{
		XIMACookie:      "IMA-GUID=guid-int; theme=dark",
		XIMABkn:         "424242",
		KnowledgeBaseID: "kb-integration",
		ClientID:        "client-integration",
		BaseURL:         u.srv.URL,
		Timeout:         10 * time.Second,
		RetryCount:      2,
	}
}

// refreshableConfig returns a config whose x-ima-cookie carries both refresh
// credentials, so the token manager refreshes before the first request and
// again after every auth-classified failure.
func refreshableConfig(u *upstream) *imamcp.Config {
	cfg := cookieAuthConfig(u)
	cfg.XIMACookie = "IMA-UID=user-int; IMA-GUID=guid-int; IMA-REFRESH-TOKEN=refresh-int"

	return cfg
}

func newClient(t *testing.T, cfg *imamcp.Config) *imamcp.Client {
	t.Helper()

	c, err := imamcp.New(cfg)
	require.NoError(t, err)

	return c
}
