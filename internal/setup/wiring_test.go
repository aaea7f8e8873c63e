package setup

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/aws/aws-lambda-go/events"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_RequiresBaseURLSource(t *testing.T) {
	t.Setenv("GENERATE_BASE_URL", "")
	t.Setenv("GENERATE_BASE_URL_PARAM", "")
	_, err := LoadConfig()
	require.Error(t, err)
	require.Contains(t, err.Error(), "GENERATE_BASE_URL")
}

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("GENERATE_BASE_URL", " https://model.example.com ")
	t.Setenv("GENERATE_BASE_URL_PARAM", "")
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("LOCAL_ADDR", "")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.Equal(t, "https://model.example.com", cfg.BaseURL)
	require.Equal(t, slog.LevelInfo, cfg.LogLevel)
	require.Equal(t, ":8080", cfg.LocalAddr)
}

func TestLoadConfig_ParamAndOverrides(t *testing.T) {
	t.Setenv("GENERATE_BASE_URL", "")
	t.Setenv("GENERATE_BASE_URL_PARAM", "/chat-relay/base-url")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOCAL_ADDR", "127.0.0.1:9000")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.Equal(t, "/chat-relay/base-url", cfg.BaseURLParam)
	require.Equal(t, slog.LevelDebug, cfg.LogLevel)
	require.Equal(t, "127.0.0.1:9000", cfg.LocalAddr)
}

func TestParseLevel(t *testing.T) {
	require.Equal(t, slog.LevelWarn, parseLevel("WARN"))
	require.Equal(t, slog.LevelError, parseLevel("error"))
	require.Equal(t, slog.LevelInfo, parseLevel("verbose"))
}

func TestNewHandler_StaticBaseURLEndToEnd(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/generate", r.URL.Path)
		_, _ = w.Write([]byte(`{"generated_text":"hi there"}`))
	}))
	defer srv.Close()

	var buf bytes.Buffer
	h, err := NewHandler(context.Background(), Config{BaseURL: srv.URL}, NewLogger(&buf, slog.LevelDebug))
	require.NoError(t, err)

	resp, err := h.Handle(context.Background(), events.APIGatewayProxyRequest{Body: `{"message":"hello"}`})
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.JSONEq(t, `{"success":true,"response":"hi there","conversationHistory":[{"role":"user","content":"hello"},{"role":"assistant","content":"hi there"}]}`, resp.Body)
	require.Contains(t, buf.String(), "received event")
}
