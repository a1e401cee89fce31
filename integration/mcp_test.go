//go:build integration

package integration

import (
	"context"
	"net/http"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	imamcp "github.com/imalabs/ima-mcp-go"
	"github.com/imalabs/ima-mcp-go/internal/auth"
	"github.com/imalabs/ima-mcp-go/internal/capture"
	"github.com/imalabs/ima-mcp-go/internal/client"
	intmcp "github.com/imalabs/ima-mcp-go/internal/mcp"
	"github.com/imalabs/ima-mcp-go/internal/session"
	"github.com/imalabs/ima-mcp-go/internal/stream"
)

// connectBridge assembles the real pipeline against the fake upstream,
// serves it over an in-memory MCP transport, and returns a connected client
// session.
func connectBridge(t *testing.T, u *upstream, cfg *imamcp.Config) *mcp.ClientSession {
	t.Helper()

	log := imamcp.NopLogger()
	httpClient := u.srv.Client()

	tokens := auth.NewManager(cfg, httpClient, log)
	sessions := session.NewInitializer(cfg, tokens, httpClient, log)
	recorder := capture.NewRecorder(cfg, log)
	engine := stream.NewEngine(cfg, tokens, sessions, httpClient, recorder, log)
	pipeline := client.New(cfg, engine, tokens, log)

	srv, err := intmcp.NewServer(cfg, pipeline, log)
	require.NoError(t, err)

	serverTransport, clientTransport := mcp.NewInMemoryTransports()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	go func() { _ = srv.Run(ctx, serverTransport) }()

	host := mcp.NewClient(&mcp.Implementation{Name: "integration-host", Version: "0.0.1"}, nil)

	cs, err := host.Connect(ctx, clientTransport, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = cs.Close() })

	return cs
}

func callTool(t *testing.T, cs *mcp.ClientSession, name string, args map[string]any) *mcp.CallToolResult {
	t.Helper()

	res, err := cs.CallTool(context.Background(), &mcp.CallToolParams{Name: name, Arguments: args})
	require.NoError(t, err)

	return res
}

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()

	require.NotEmpty(t, res.Content)

	text, ok := res.Content[0].(*mcp.TextContent)
	require.True(t, ok, "content[0] is %T, want *mcp.TextContent", res.Content[0])

	return text.Text
}

// TestMCPAskEndToEnd drives the ask tool through a real MCP session and the
// real pipeline down to the fake upstream.
func TestMCPAskEndToEnd(t *testing.T) {
	u := newUpstream(t)
	u.answerLines = []string{
		`data: {"type":"knowledgeBase","medias":[{"id":"m1","title":"Quick Start","introduction":"First steps."}]}`,
		`data: {"content":"Streaming works."}`,
		`data: [DONE]`,
	}

	cs := connectBridge(t, u, cookieAuthConfig(u))

	res := callTool(t, cs, "ask", map[string]any{"question": "Does streaming work?"})
	require.False(t, res.IsError)

	text := resultText(t, res)
	assert.Contains(t, text, "**Question**: Does streaming work?")
	assert.Contains(t, text, "**Answer**:")
	assert.Contains(t, text, "Streaming works.")
	assert.Contains(t, text, "**References**:")
	assert.Contains(t, text, "1. Quick Start")

	_, inits, asks := u.counts()
	assert.Equal(t, 1, inits)
	assert.Equal(t, 1, asks)
}

// TestMCPAskEmptyQuestion pins that input mistakes surface as MCP error
// results without touching the upstream.
func TestMCPAskEmptyQuestion(t *testing.T) {
	u := newUpstream(t)
	cs := connectBridge(t, u, cookieAuthConfig(u))

	res := callTool(t, cs, "ask", map[string]any{"question": "   "})

	assert.True(t, res.IsError)
	assert.Equal(t, "question cannot be empty", resultText(t, res))

	_, _, asks := u.counts()
	assert.Zero(t, asks)
}

// TestMCPValidateAndStatusEndToEnd runs the validation tool against the fake
// upstream and reads the outcome back through the status tool and resource.
func TestMCPValidateAndStatusEndToEnd(t *testing.T) {
	u := newUpstream(t)
	u.answerLines = []string{`data: {"content":"你好！有什么可以帮您？"}`}

	cs := connectBridge(t, u, cookieAuthConfig(u))

	res := callTool(t, cs, "ima_validate_config", nil)
	require.False(t, res.IsError)
	assert.Contains(t, resultText(t, res), "configuration valid")

	res = callTool(t, cs, "ima_get_status", nil)
	require.False(t, res.IsError)

	status := resultText(t, res)
	assert.Contains(t, status, "configured: yes")
	assert.Contains(t, status, "authenticated: yes")

	read, err := cs.ReadResource(context.Background(), &mcp.ReadResourceParams{URI: "ima://status"})
	require.NoError(t, err)
	require.Len(t, read.Contents, 1)
	assert.Contains(t, read.Contents[0].Text, `"is_authenticated": true`)
}

// TestMCPUpstreamFailureIsData pins the error-channel decision: upstream
// trouble comes back as regular answer text, not an MCP error result.
func TestMCPUpstreamFailureIsData(t *testing.T) {
	u := newUpstream(t)
	u.qa = func(_ int, w http.ResponseWriter, _ *http.Request) {
		writeStatus(w, http.StatusInternalServerError, `{"code":-1,"msg":"internal error"}`)
	}

	cfg := cookieAuthConfig(u)
	cfg.RetryCount = 0

	cs := connectBridge(t, u, cfg)

	res := callTool(t, cs, "ask", map[string]any{"question": "anyone home?"})

	require.False(t, res.IsError, "pipeline failures are answer text, not protocol errors")

	text := resultText(t, res)
	assert.Contains(t, text, "**Answer**:")
	assert.Contains(t, text, "failed to get an answer")
}
