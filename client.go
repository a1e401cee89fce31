package imamcp

import (
	"context"
	"fmt"

	"github.com/imalabs/ima-mcp-go/internal/auth"
	"github.com/imalabs/ima-mcp-go/internal/capture"
	"github.com/imalabs/ima-mcp-go/internal/client"
	"github.com/imalabs/ima-mcp-go/internal/session"
	"github.com/imalabs/ima-mcp-go/internal/stream"
	"github.com/imalabs/ima-mcp-go/internal/transport"
)

// Client answers questions against one configured knowledge base.
//
// A Client is safe for concurrent use and holds no connection state between
// questions; there is nothing to close.
//
// Example usage:
//
//	cfg, err := imamcp.LoadConfig()
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	c, err := imamcp.New(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	msgs := c.Ask(ctx, "What changed in the last release?")
//	fmt.Println(imamcp.ExtractText(msgs))
type Client struct {
	cfg  *Config
	impl *client.Client
}

// New assembles a client from cfg. The configuration is validated first;
// load one from the environment with LoadConfig.
func New(cfg *Config, opts ...Option) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	options := applyOptions(opts)

	log := options.logger
	if log == nil {
		log = NopLogger()
	}

	httpClient := options.httpClient
	if httpClient == nil {
		built, err := transport.NewHTTPClient(cfg)
		if err != nil {
			return nil, fmt.Errorf("building http client: %w", err)
		}

		httpClient = built
	}

	tokens := auth.NewManager(cfg, httpClient, log)
	sessions := session.NewInitializer(cfg, tokens, httpClient, log)
	recorder := capture.NewRecorder(cfg, log)
	engine := stream.NewEngine(cfg, tokens, sessions, httpClient, recorder, log)

	return &Client{
		cfg:  cfg,
		impl: client.New(cfg, engine, tokens, log),
	}, nil
}

// Ask runs one question through the retry pipeline and returns everything
// the stream produced, in arrival order. Failures come back as messages,
// never as an empty slice.
func (c *Client) Ask(ctx context.Context, question string) []Message {
	return c.impl.Ask(ctx, question)
}

// AskText runs one question and returns only the assembled answer text.
func (c *Client) AskText(ctx context.Context, question string) string {
	return c.impl.AskText(ctx, question)
}

// Validate sends a canned question upstream and reports whether a real
// answer came back. The outcome is cached for Status.
func (c *Client) Validate(ctx context.Context) bool {
	return c.impl.Validate(ctx)
}

// Status reports configuration validity and the cached Validate outcome
// without touching the network.
func (c *Client) Status() Status {
	return c.impl.StatusReport()
}

// Config returns the configuration the client was built with.
func (c *Client) Config() *Config {
	return c.cfg
}
