// Package api exposes the chat service over HTTP.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/docchat/docchat/internal/chat"
	"github.com/docchat/docchat/internal/llm"
)

const maxRequestBodySize = 1 << 20 // 1MB

// Chatter handles a session-scoped chat turn.
type Chatter interface {
	Handle(ctx context.Context, sessionID, userText string, useRAG bool) (chat.Reply, error)
}

// ModelClient is the pass-through surface's upstream dependency.
type ModelClient interface {
	Complete(ctx context.Context, req llm.Request) (*llm.Completion, error)
	Stream(ctx context.Context, req llm.Request) (io.ReadCloser, error)
}

type Deps struct {
	Chat           Chatter
	Model          ModelClient
	AllowedOrigins []string
}

// NewHandler builds the HTTP router: the session-aware chat endpoint, the
// stateless OpenAI-shaped pass-through, and health.
func NewHandler(deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(CORS(deps.AllowedOrigins))

	r.Get("/health", handleHealth)
	r.Post("/chat", handleChat(deps))
	r.Post("/v1/chat/completions", handleCompletions(deps))

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}
