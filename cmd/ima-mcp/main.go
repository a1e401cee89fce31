// ima-mcp serves the ima.qq.com knowledge base over the Model Context
// Protocol on stdio.
package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	imamcp "github.com/imalabs/ima-mcp-go"
)

func main() {
	// stdout carries the MCP protocol; everything else goes to stderr.
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		logger.Info("No .env file found, using environment variables")
	}

	cfg, err := imamcp.LoadConfig()
	if err != nil {
		logger.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	if cfg.Debug {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		}))
		slog.SetDefault(logger)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err = imamcp.Serve(ctx, imamcp.WithConfig(cfg), imamcp.WithLogger(logger))
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Server stopped", "error", err)
		os.Exit(1)
	}

	logger.Info("Server shut down")
}
