package imamcp

import (
	"context"
	"fmt"
)

// WithClient builds a client and hands it to fn.
//
// Configuration comes from the environment unless WithConfig is given.
// Clients hold no connection state, so there is no cleanup step; fn's error
// is returned unchanged.
//
// Example usage:
//
//	err := imamcp.WithClient(ctx, func(c *imamcp.Client) error {
//	    fmt.Println(c.AskText(ctx, "Where is the style guide?"))
//	    return nil
//	}, imamcp.WithLogger(slog.Default()))
func WithClient(ctx context.Context, fn func(*Client) error, opts ...Option) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	c, err := newFromOptions(opts)
	if err != nil {
		return fmt.Errorf("building client: %w", err)
	}

	return fn(c)
}
