package setup

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/config"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"

	"chat-relay/handler"
	"chat-relay/internal/integrations/generate"
	"chat-relay/internal/integrations/paramstore"
	"chat-relay/internal/usecase"
)

type Config struct {
	// BaseURL of the generation service. When empty, BaseURLParam names the
	// SSM parameter holding it.
	BaseURL      string
	BaseURLParam string
	LogLevel     slog.Level
	LocalAddr    string
}

// LoadConfig reads configuration from the environment. This is the only
// place environment variables are read.
func LoadConfig() (Config, error) {
	cfg := Config{
		BaseURL:      strings.TrimSpace(os.Getenv("GENERATE_BASE_URL")),
		BaseURLParam: strings.TrimSpace(os.Getenv("GENERATE_BASE_URL_PARAM")),
		LogLevel:     parseLevel(os.Getenv("LOG_LEVEL")),
		LocalAddr:    envString("LOCAL_ADDR", ":8080"),
	}
	if cfg.BaseURL == "" && cfg.BaseURLParam == "" {
		return Config{}, errors.New("setup: GENERATE_BASE_URL or GENERATE_BASE_URL_PARAM must be set")
	}
	return cfg, nil
}

// NewLogger returns a JSON logger writing to w at the configured level.
func NewLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
}

// NewHandler builds the request handler and its dependencies. AWS config is
// only loaded when the base URL has to come from Parameter Store.
func NewHandler(ctx context.Context, cfg Config, logger *slog.Logger) (*handler.Handler, error) {
	opts := []generate.Option{generate.WithLogger(logger)}
	if cfg.BaseURL != "" {
		opts = append(opts, generate.WithBaseURL(cfg.BaseURL))
	} else {
		awsCfg, err := config.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, fmt.Errorf("setup: load AWS config: %w", err)
		}
		ps, err := paramstore.New(awsssm.NewFromConfig(awsCfg))
		if err != nil {
			return nil, fmt.Errorf("setup: create parameter store client: %w", err)
		}
		opts = append(opts, generate.WithParamStore(ps, cfg.BaseURLParam))
	}

	gen, err := generate.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("setup: create generate client: %w", err)
	}
	chat, err := usecase.NewChatService(gen, logger)
	if err != nil {
		return nil, fmt.Errorf("setup: create chat service: %w", err)
	}
	return handler.NewHandler(chat, logger)
}

func parseLevel(v string) slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(v))); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

func envString(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}
