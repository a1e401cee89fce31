package imamcp

import "context"

// Ask answers one question with a throwaway client.
//
// Configuration comes from the environment unless WithConfig is given.
// Setup problems (missing credentials, a bad proxy URL) surface as the
// error; upstream failures come back as messages like every pipeline
// answer.
func Ask(ctx context.Context, question string, opts ...Option) ([]Message, error) {
	c, err := newFromOptions(opts)
	if err != nil {
		return nil, err
	}

	return c.Ask(ctx, question), nil
}

// AskText answers one question and returns only the assembled answer text.
func AskText(ctx context.Context, question string, opts ...Option) (string, error) {
	c, err := newFromOptions(opts)
	if err != nil {
		return "", err
	}

	return c.AskText(ctx, question), nil
}

// newFromOptions builds a client from WithConfig or, when absent, from the
// environment.
func newFromOptions(opts []Option) (*Client, error) {
	options := applyOptions(opts)

	cfg := options.config
	if cfg == nil {
		loaded, err := LoadConfig()
		if err != nil {
			return nil, err
		}

		cfg = loaded
	}

	return New(cfg, opts...)
}
