package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const (
	configURI = "ima://config"
	helpURI   = "ima://help"
	statusURI = "ima://status"
)

const helpText = `# ima-mcp

Bridges the ima.qq.com knowledge base into any MCP client. Questions go
through the ` + "`ask`" + ` tool and come back as one formatted answer with
knowledge base references.

## Configuration

Set these environment variables, or put them in a .env file next to the
binary:

- ` + "`IMA_X_IMA_COOKIE`" + ` (required): the x-ima-cookie request header from a
  logged-in ima.qq.com browser session
- ` + "`IMA_X_IMA_BKN`" + ` (required): the x-ima-bkn request header
- ` + "`IMA_COOKIES`" + `: full Cookie header value, lets the bridge refresh an
  expired login
- ` + "`IMA_KNOWLEDGE_BASE_ID`" + `: the knowledge base to query
- ` + "`IMA_TIMEOUT`" + `, ` + "`IMA_RETRY_COUNT`" + `, ` + "`IMA_PROXY_URL`" + `: transport tuning
- ` + "`IMA_ENABLE_RAW_CAPTURE`" + `, ` + "`IMA_RAW_CAPTURE_DIR`" + `: stream diagnostics

## Tools

- ` + "`ask`" + `: ask the knowledge base a question
- ` + "`ima_validate_config`" + `: check the configuration against the live service
- ` + "`ima_get_status`" + `: report configuration and authentication state

## Resources

- ` + "`ima://config`" + `: active configuration, secrets masked
- ` + "`ima://status`" + `: configuration and authentication state as JSON
- ` + "`ima://help`" + `: this document

## Running

The server speaks MCP over stdio:

    ima-mcp

Register it with your client, for example:

    claude mcp add ima -- ima-mcp
`

// statusDocument is the ima://status payload.
//
//nolint:tagliatelle // bridge document format
type statusDocument struct {
	IsConfigured    bool   `json:"is_configured"`
	IsAuthenticated bool   `json:"is_authenticated"`
	LastTestTime    string `json:"last_test_time,omitempty"`
	ErrorMessage    string `json:"error_message,omitempty"`
}

func (s *Server) registerResources() {
	s.server.AddResource(&mcp.Resource{
		URI:         configURI,
		Name:        "config",
		Title:       "Bridge configuration",
		Description: "The active configuration with every secret masked.",
		MIMEType:    "application/json",
	}, s.readConfig)

	s.server.AddResource(&mcp.Resource{
		URI:         helpURI,
		Name:        "help",
		Title:       "Usage guide",
		Description: "How to configure and talk to the bridge.",
		MIMEType:    "text/markdown",
	}, s.readHelp)

	s.server.AddResource(&mcp.Resource{
		URI:         statusURI,
		Name:        "status",
		Title:       "Bridge status",
		Description: "Configuration and authentication state as JSON.",
		MIMEType:    "application/json",
	}, s.readStatus)
}

// readConfig serves the masked configuration. Config.MarshalJSON masks the
// secret fields, so the document never carries usable credentials.
func (s *Server) readConfig(_ context.Context, _ *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	data, err := json.MarshalIndent(s.cfg, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}

	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{
			URI:      configURI,
			MIMEType: "application/json",
			Text:     string(data),
		}},
	}, nil
}

func (s *Server) readHelp(_ context.Context, _ *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{
			URI:      helpURI,
			MIMEType: "text/markdown",
			Text:     helpText,
		}},
	}, nil
}

func (s *Server) readStatus(_ context.Context, _ *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	st := s.qa.StatusReport()

	doc := statusDocument{
		IsConfigured:    st.Configured,
		IsAuthenticated: st.Authenticated,
		ErrorMessage:    st.ErrorMessage,
	}
	if !st.LastTestTime.IsZero() {
		doc.LastTestTime = st.LastTestTime.Format(time.RFC3339)
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal status: %w", err)
	}

	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{
			URI:      statusURI,
			MIMEType: "application/json",
			Text:     string(data),
		}},
	}, nil
}
