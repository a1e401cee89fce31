package mcp

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imalabs/ima-mcp-go/internal/client"
	"github.com/imalabs/ima-mcp-go/internal/config"
	"github.com/imalabs/ima-mcp-go/internal/message"
)

// fakeQA scripts the pipeline behind the tools.
type fakeQA struct {
	msgs   []message.Message
	valid  bool
	status client.Status

	asked       []string
	hadDeadline bool
}

func (f *fakeQA) Ask(ctx context.Context, question string) []message.Message {
	f.asked = append(f.asked, question)
	_, f.hadDeadline = ctx.Deadline()

	return f.msgs
}

func (f *fakeQA) Validate(context.Context) bool { return f.valid }

func (f *fakeQA) StatusReport() client.Status { return f.status }

func testConfig() *config.Config {
	return &config.Config{
		XIMACookie:      "IMA-UID=oabc; IMA-GUID=guid-1",
		XIMABkn:         "12345",
		KnowledgeBaseID: "kb-main",
		BaseURL:         "https://ima.example.com",
		Timeout:         5 * time.Second,
	}
}

// connectSession builds a server around qa and returns a client session
// talking to it over in-memory transports.
func connectSession(t *testing.T, cfg *config.Config, qa QA) *mcp.ClientSession {
	t.Helper()

	srv, err := NewServer(cfg, qa, slog.Default())
	require.NoError(t, err)

	ctx := context.Background()
	serverTransport, clientTransport := mcp.NewInMemoryTransports()

	serverSession, err := srv.server.Connect(ctx, serverTransport, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = serverSession.Close() })

	peer := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "1.0.0"}, nil)

	clientSession, err := peer.Connect(ctx, clientTransport, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = clientSession.Close() })

	return clientSession
}

func callTool(t *testing.T, session *mcp.ClientSession, name string, args map[string]any) *mcp.CallToolResult {
	t.Helper()

	res, err := session.CallTool(context.Background(), &mcp.CallToolParams{Name: name, Arguments: args})
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

func readResource(t *testing.T, session *mcp.ClientSession, uri string) *mcp.ResourceContents {
	t.Helper()

	res, err := session.ReadResource(context.Background(), &mcp.ReadResourceParams{URI: uri})
	require.NoError(t, err)
	require.Len(t, res.Contents, 1)

	return res.Contents[0]
}

func TestListTools(t *testing.T) {
	session := connectSession(t, testConfig(), &fakeQA{})

	res, err := session.ListTools(context.Background(), nil)
	require.NoError(t, err)

	names := make([]string, 0, len(res.Tools))
	for _, tool := range res.Tools {
		assert.NotEmpty(t, tool.Description, "tool %s has no description", tool.Name)
		names = append(names, tool.Name)
	}
	sort.Strings(names)

	assert.Equal(t, []string{"ask", "ima_get_status", "ima_validate_config"}, names)
}

func TestListResources(t *testing.T) {
	session := connectSession(t, testConfig(), &fakeQA{})

	res, err := session.ListResources(context.Background(), nil)
	require.NoError(t, err)

	uris := make([]string, 0, len(res.Resources))
	for _, resource := range res.Resources {
		uris = append(uris, resource.URI)
	}
	sort.Strings(uris)

	assert.Equal(t, []string{configURI, helpURI, statusURI}, uris)
}

func TestAskTool(t *testing.T) {
	qa := &fakeQA{msgs: []message.Message{
		&message.KnowledgeMessage{
			Content: "Searching the knowledge base\n",
			Medias: []message.MediaInfo{
				{Title: "Getting started", Introduction: "A short guide."},
				{Title: "Upgrade notes"},
			},
		},
		&message.TextMessage{Text: "Use the quick start guide."},
	}}
	session := connectSession(t, testConfig(), qa)

	res := callTool(t, session, "ask", map[string]any{"question": "  How do I start?  "})
	require.False(t, res.IsError)

	text := resultText(t, res)
	assert.Contains(t, text, "**Question**: How do I start?")
	assert.Contains(t, text, "**Answer**:")
	assert.Contains(t, text, "Use the quick start guide.")
	assert.Contains(t, text, "**References**:")
	assert.Contains(t, text, "1. Getting started")
	assert.Contains(t, text, "   A short guide.")
	assert.Contains(t, text, "2. Upgrade notes")

	require.Equal(t, []string{"How do I start?"}, qa.asked, "question must reach the pipeline trimmed")
	assert.True(t, qa.hadDeadline, "ask must bound the pipeline with a deadline")
}

func TestAskToolEmptyQuestion(t *testing.T) {
	qa := &fakeQA{}
	session := connectSession(t, testConfig(), qa)

	res := callTool(t, session, "ask", map[string]any{"question": "   "})

	assert.True(t, res.IsError)
	assert.Equal(t, "question cannot be empty", resultText(t, res))
	assert.Empty(t, qa.asked, "an empty question must not reach the pipeline")
}

func TestValidateConfigTool(t *testing.T) {
	tests := []struct {
		name         string
		mutate       func(*config.Config)
		valid        bool
		wantErr      bool
		wantContains string
	}{
		{
			name:         "missing credentials",
			mutate:       func(c *config.Config) { c.XIMACookie = "" },
			wantErr:      true,
			wantContains: "configuration invalid",
		},
		{
			name:         "upstream rejects",
			mutate:       func(*config.Config) {},
			valid:        false,
			wantErr:      true,
			wantContains: "validation against the knowledge base failed",
		},
		{
			name:         "valid",
			mutate:       func(*config.Config) {},
			valid:        true,
			wantContains: "configuration valid",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.mutate(cfg)

			session := connectSession(t, cfg, &fakeQA{valid: tt.valid})

			res := callTool(t, session, "ima_validate_config", nil)

			assert.Equal(t, tt.wantErr, res.IsError)
			assert.Contains(t, resultText(t, res), tt.wantContains)
		})
	}
}

func TestGetStatusTool(t *testing.T) {
	qa := &fakeQA{status: client.Status{Configured: true, Authenticated: true}}
	session := connectSession(t, testConfig(), qa)

	res := callTool(t, session, "ima_get_status", nil)
	require.False(t, res.IsError)

	text := resultText(t, res)
	assert.Contains(t, text, "IMA bridge status:")
	assert.Contains(t, text, "configured: yes")
	assert.Contains(t, text, "IMA_X_IMA_COOKIE: set")
}

func TestReadConfigResource(t *testing.T) {
	session := connectSession(t, testConfig(), &fakeQA{})

	contents := readResource(t, session, configURI)
	assert.Equal(t, "application/json", contents.MIMEType)

	var doc map[string]any
	require.NoError(t, json.Unmarshal([]byte(contents.Text), &doc))

	assert.Equal(t, "IM****-1", doc["x_ima_cookie"], "cookie header must be masked")
	assert.Equal(t, "********", doc["x_ima_bkn"], "short secrets must be masked whole")
	assert.Equal(t, "kb-main", doc["knowledge_base_id"])
}

func TestReadHelpResource(t *testing.T) {
	session := connectSession(t, testConfig(), &fakeQA{})

	contents := readResource(t, session, helpURI)

	assert.Equal(t, "text/markdown", contents.MIMEType)
	assert.Contains(t, contents.Text, "IMA_X_IMA_COOKIE")
	assert.Contains(t, contents.Text, "`ask`")
	assert.Contains(t, contents.Text, "ima://status")
}

func TestReadStatusResource(t *testing.T) {
	qa := &fakeQA{status: client.Status{
		Configured:    true,
		Authenticated: true,
		LastTestTime:  time.Date(2026, 8, 25, 10, 30, 0, 0, time.UTC),
	}}
	session := connectSession(t, testConfig(), qa)

	contents := readResource(t, session, statusURI)
	assert.Equal(t, "application/json", contents.MIMEType)

	var doc map[string]any
	require.NoError(t, json.Unmarshal([]byte(contents.Text), &doc))

	assert.Equal(t, true, doc["is_configured"])
	assert.Equal(t, true, doc["is_authenticated"])
	assert.Equal(t, "2026-08-25T10:30:00Z", doc["last_test_time"])
	assert.NotContains(t, doc, "error_message")
}
