package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/aws/aws-lambda-go/lambda"

	"chat-relay/internal/setup"
)

func main() {
	ctx := context.Background()

	// ---- Configuration (read only here) ----
	cfg, err := setup.LoadConfig()
	if err != nil {
		slog.Error("invalid configuration", "err", err)
		os.Exit(1)
	}

	logger := setup.NewLogger(os.Stdout, cfg.LogLevel)
	slog.SetDefault(logger)

	// ---- Handler ----
	h, err := setup.NewHandler(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to create handler", "err", err)
		os.Exit(1)
	}

	lambda.Start(h.Handle)
}
