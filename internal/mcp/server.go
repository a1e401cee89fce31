package mcp

import (
	"context"
	"log/slog"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/imalabs/ima-mcp-go/internal/client"
	"github.com/imalabs/ima-mcp-go/internal/config"
	"github.com/imalabs/ima-mcp-go/internal/message"
)

const (
	serverName    = "ima-mcp"
	serverVersion = "1.0.0"
)

// QA is the ask pipeline surface the tools are served from.
type QA interface {
	// Ask runs one question through the retry pipeline. Failures come back
	// as messages, never as an empty slice.
	Ask(ctx context.Context, question string) []message.Message

	// Validate sends a canned question and reports whether a real answer
	// came back.
	Validate(ctx context.Context) bool

	// StatusReport returns configuration validity and the cached Validate
	// outcome without touching the network.
	StatusReport() client.Status
}

// Compile-time verification that the pipeline client satisfies QA.
var _ QA = (*client.Client)(nil)

// Server exposes the bridge over the Model Context Protocol.
type Server struct {
	cfg    *config.Config
	qa     QA
	log    *slog.Logger
	server *mcp.Server
}

// NewServer builds an MCP server with every tool and resource registered.
func NewServer(cfg *config.Config, qa QA, log *slog.Logger) (*Server, error) {
	if log == nil {
		log = slog.Default()
	}

	s := &Server{
		cfg: cfg,
		qa:  qa,
		log: log.With("component", "mcp"),
		server: mcp.NewServer(&mcp.Implementation{
			Name:    serverName,
			Version: serverVersion,
		}, nil),
	}

	if err := s.registerTools(); err != nil {
		return nil, err
	}

	s.registerResources()

	return s, nil
}

// Run serves the MCP protocol over transport until ctx is cancelled or the
// peer disconnects. It blocks.
func (s *Server) Run(ctx context.Context, transport mcp.Transport) error {
	s.log.Info("MCP server starting", "name", serverName, "version", serverVersion)

	return s.server.Run(ctx, transport)
}

// TextResult creates a CallToolResult with text content.
func TextResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}
}

// ErrorResult creates a CallToolResult indicating an error.
func ErrorResult(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: msg}},
		IsError: true,
	}
}
