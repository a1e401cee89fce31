// Package imamcp bridges the ima.qq.com knowledge base into the Model
// Context Protocol and into Go programs.
//
// The upstream service answers questions over an SSE stream guarded by
// browser session credentials. This package wraps that protocol: it keeps
// the login token fresh, opens a QA session, decodes the stream into typed
// messages and retries transient failures. The same pipeline backs an MCP
// server exposing the ask, ima_validate_config and ima_get_status tools.
//
// # Basic Usage
//
// For one-shot questions, use Ask or AskText:
//
//	ctx := context.Background()
//	answer, err := imamcp.AskText(ctx, "What does the deployment guide say about rollbacks?")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(answer)
//
// Configuration comes from IMA_-prefixed environment variables; see Config.
// Setup problems surface as the returned error. Upstream failures never do:
// the pipeline converts them to messages, so inspect the message types when
// answers must be told apart from failure notices:
//
//	msgs, err := imamcp.Ask(ctx, "How do I rotate credentials?")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	for _, msg := range msgs {
//	    switch m := msg.(type) {
//	    case *imamcp.TextMessage:
//	        fmt.Print(m.Text)
//	    case *imamcp.KnowledgeMessage:
//	        fmt.Printf("consulted %d sources\n", len(m.Medias))
//	    case *imamcp.SystemMessage:
//	        fmt.Println("notice:", m.Content)
//	    }
//	}
//
// # Reusing a Client
//
// For repeated questions, build one Client and share it:
//
//	cfg, err := imamcp.LoadConfig()
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	c, err := imamcp.New(cfg, imamcp.WithLogger(slog.Default()))
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	answer := c.AskText(ctx, "Summarize the onboarding doc")
//
// Clients are safe for concurrent use and hold no connection state; there
// is nothing to close.
//
// # MCP Server
//
// Serve runs the bridge as an MCP server on stdio until the context is
// cancelled or the host disconnects:
//
//	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
//	defer stop()
//
//	if err := imamcp.Serve(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
// # Logging
//
// The package is silent unless WithLogger is given:
//
//	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
//	answer, err := imamcp.AskText(ctx, "Hello", imamcp.WithLogger(logger))
//
// # Requirements
//
// The bridge needs credentials captured from a logged-in ima.qq.com browser
// session: IMA_X_IMA_COOKIE and IMA_X_IMA_BKN at minimum, plus IMA_COOKIES
// when the bridge should refresh an expired login on its own. The ima://help
// resource documents every variable.
package imamcp
