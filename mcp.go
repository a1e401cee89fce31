package imamcp

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	intmcp "github.com/imalabs/ima-mcp-go/internal/mcp"
)

// Serve loads configuration, assembles a client and serves the MCP bridge
// on stdio until ctx is cancelled or the host disconnects. It blocks.
//
// Configuration comes from the environment unless WithConfig is given. The
// server logs through WithLogger; point it at stderr, stdout carries the
// protocol.
func Serve(ctx context.Context, opts ...Option) error {
	c, err := newFromOptions(opts)
	if err != nil {
		return err
	}

	options := applyOptions(opts)

	log := options.logger
	if log == nil {
		log = NopLogger()
	}

	srv, err := intmcp.NewServer(c.cfg, c.impl, log)
	if err != nil {
		return fmt.Errorf("building mcp server: %w", err)
	}

	return srv.Run(ctx, &mcp.StdioTransport{})
}
