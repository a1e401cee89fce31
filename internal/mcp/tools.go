package mcp

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/imalabs/ima-mcp-go/internal/message"
	"github.com/imalabs/ima-mcp-go/internal/transport"
)

const (
	// askTimeout bounds one ask call end to end, retries included. MCP
	// hosts commonly abandon tool calls after a minute.
	askTimeout = 55 * time.Second

	// maxReferences bounds the reference list appended to an answer.
	maxReferences = 5

	// introductionLimit caps the runes kept from one reference introduction.
	introductionLimit = 100
)

// AskInput is the input schema for the ask tool.
type AskInput struct {
	Question string `json:"question" jsonschema:"The question to ask the knowledge base"`
}

// ValidateConfigInput is the input schema for the ima_validate_config tool.
type ValidateConfigInput struct{}

// GetStatusInput is the input schema for the ima_get_status tool.
type GetStatusInput struct{}

func (s *Server) registerTools() error {
	if err := s.registerAsk(); err != nil {
		return fmt.Errorf("register ask: %w", err)
	}

	if err := s.registerValidateConfig(); err != nil {
		return fmt.Errorf("register ima_validate_config: %w", err)
	}

	if err := s.registerGetStatus(); err != nil {
		return fmt.Errorf("register ima_get_status: %w", err)
	}

	return nil
}

func (s *Server) registerAsk() error {
	schema, err := jsonschema.For[AskInput](nil)
	if err != nil {
		return fmt.Errorf("input schema: %w", err)
	}

	tool := &mcp.Tool{
		Name: "ask",
		Description: "Ask the configured ima.qq.com knowledge base a question. " +
			"Returns the answer followed by up to five knowledge base references.",
		InputSchema: schema,
	}

	mcp.AddTool(s.server, tool, func(ctx context.Context, _ *mcp.CallToolRequest, in AskInput) (*mcp.CallToolResult, any, error) {
		question := strings.TrimSpace(in.Question)
		if question == "" {
			return ErrorResult("question cannot be empty"), nil, nil
		}

		ctx, cancel := context.WithTimeout(ctx, askTimeout)
		defer cancel()

		s.log.Info("Tool call", "tool", "ask", "question", transport.Excerpt(question, 50))

		msgs := s.qa.Ask(ctx, question)

		return TextResult(formatAnswer(question, msgs)), nil, nil
	})

	return nil
}

func (s *Server) registerValidateConfig() error {
	schema, err := jsonschema.For[ValidateConfigInput](nil)
	if err != nil {
		return fmt.Errorf("input schema: %w", err)
	}

	tool := &mcp.Tool{
		Name: "ima_validate_config",
		Description: "Validate the bridge configuration and confirm the authentication " +
			"material is accepted by the knowledge base.",
		InputSchema: schema,
	}

	mcp.AddTool(s.server, tool, func(ctx context.Context, _ *mcp.CallToolRequest, _ ValidateConfigInput) (*mcp.CallToolResult, any, error) {
		if err := s.cfg.Validate(); err != nil {
			return ErrorResult(fmt.Sprintf("configuration invalid: %v", err)), nil, nil
		}

		ctx, cancel := context.WithTimeout(ctx, askTimeout)
		defer cancel()

		s.log.Info("Tool call", "tool", "ima_validate_config")

		if !s.qa.Validate(ctx) {
			return ErrorResult("configuration loaded but validation against the knowledge base failed, " +
				"check IMA_X_IMA_COOKIE and IMA_X_IMA_BKN"), nil, nil
		}

		return TextResult("configuration valid, authentication material accepted by the knowledge base"), nil, nil
	})

	return nil
}

func (s *Server) registerGetStatus() error {
	schema, err := jsonschema.For[GetStatusInput](nil)
	if err != nil {
		return fmt.Errorf("input schema: %w", err)
	}

	tool := &mcp.Tool{
		Name: "ima_get_status",
		Description: "Report bridge status: configuration validity, the cached authentication " +
			"outcome and which credential variables are populated.",
		InputSchema: schema,
	}

	mcp.AddTool(s.server, tool, func(_ context.Context, _ *mcp.CallToolRequest, _ GetStatusInput) (*mcp.CallToolResult, any, error) {
		return TextResult(s.renderStatus()), nil, nil
	})

	return nil
}

// formatAnswer renders the ask reply: the question, the assembled answer and
// up to five knowledge sources with a short introduction each.
func formatAnswer(question string, msgs []message.Message) string {
	var b strings.Builder

	fmt.Fprintf(&b, "**Question**: %s\n\n**Answer**:\n%s", question, message.ExtractText(msgs))

	sources := message.ExtractKnowledge(msgs)
	if len(sources) == 0 {
		return b.String()
	}

	b.WriteString("\n\n**References**:\n")

	for i, src := range sources {
		if i == maxReferences {
			break
		}

		fmt.Fprintf(&b, "%d. %s\n", i+1, src.Title)

		if src.Introduction != "" {
			fmt.Fprintf(&b, "   %s\n", message.Truncate(src.Introduction, introductionLimit))
		}
	}

	return b.String()
}

// renderStatus builds the ima_get_status reply: the cached authentication
// outcome plus which credential variables are populated.
func (s *Server) renderStatus() string {
	st := s.qa.StatusReport()

	var b strings.Builder
	b.WriteString("IMA bridge status:\n")
	fmt.Fprintf(&b, "  configured: %s\n", yesNo(st.Configured))
	fmt.Fprintf(&b, "  authenticated: %s\n", yesNo(st.Authenticated))

	if st.LastTestTime.IsZero() {
		b.WriteString("  last validated: never\n")
	} else {
		fmt.Fprintf(&b, "  last validated: %s\n", st.LastTestTime.Format(time.RFC3339))
	}

	if st.ErrorMessage != "" {
		fmt.Fprintf(&b, "  error: %s\n", st.ErrorMessage)
	}

	b.WriteString("\nEnvironment:\n")
	fmt.Fprintf(&b, "  IMA_X_IMA_COOKIE: %s\n", setUnset(s.cfg.XIMACookie != ""))
	fmt.Fprintf(&b, "  IMA_X_IMA_BKN: %s\n", setUnset(s.cfg.XIMABkn != ""))
	fmt.Fprintf(&b, "  IMA_COOKIES: %s\n", setUnset(s.cfg.Cookies != ""))
	fmt.Fprintf(&b, "  IMA_REFRESH_TOKEN: %s\n", setUnset(s.cfg.RefreshToken != ""))
	fmt.Fprintf(&b, "  IMA_KNOWLEDGE_BASE_ID: %s\n", setUnset(s.cfg.KnowledgeBaseID != ""))

	return b.String()
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}

	return "no"
}

func setUnset(v bool) string {
	if v {
		return "set"
	}

	return "not set"
}
