package api

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/docchat/docchat/internal/llm"
	"github.com/docchat/docchat/internal/render"
)

// completionMessage extends the upstream message with a sanitized-HTML
// rendering of the content, so browser callers never inject raw model
// output into the DOM.
type completionMessage struct {
	Role        string `json:"role"`
	Content     string `json:"content"`
	ContentHTML string `json:"content_html"`
}

type completionChoice struct {
	Index        int               `json:"index"`
	Message      completionMessage `json:"message"`
	FinishReason string            `json:"finish_reason"`
}

type completionResponse struct {
	ID      string             `json:"id"`
	Object  string             `json:"object"`
	Created int64              `json:"created"`
	Model   string             `json:"model"`
	Choices []completionChoice `json:"choices"`
	Usage   llm.Usage          `json:"usage"`
}

// handleCompletions is the stateless pass-through surface: the client owns
// the full message list; nothing is read from or written to session memory.
func handleCompletions(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req llm.Request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if len(req.Messages) == 0 {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "messages is required and must not be empty")
			return
		}

		// ?stream= overrides the body flag when present.
		if q := r.URL.Query().Get("stream"); q != "" {
			req.Stream = q == "true"
		}

		if req.Stream {
			streamCompletion(w, r, deps, req)
			return
		}

		completion, err := deps.Model.Complete(r.Context(), req)
		if err != nil {
			writeCompletionError(w, err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(toResponse(completion))
	}
}

func toResponse(c *llm.Completion) completionResponse {
	resp := completionResponse{
		ID:      c.ID,
		Object:  c.Object,
		Created: c.Created,
		Model:   c.Model,
		Choices: make([]completionChoice, len(c.Choices)),
		Usage:   c.Usage,
	}
	for i, choice := range c.Choices {
		html, err := render.HTML(choice.Message.Content)
		if err != nil {
			slog.Warn("rendering completion content", "error", err)
		}
		resp.Choices[i] = completionChoice{
			Index:        choice.Index,
			FinishReason: choice.FinishReason,
			Message: completionMessage{
				Role:        choice.Message.Role,
				Content:     choice.Message.Content,
				ContentHTML: html,
			},
		}
	}
	return resp
}

// streamCompletion relays the upstream SSE body frame by frame. Frames are
// `data: <json>\n\n`, terminated by `data: [DONE]\n\n`.
func streamCompletion(w http.ResponseWriter, r *http.Request, deps Deps, req llm.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		httpError(w, http.StatusInternalServerError, "api_error", "streaming not supported")
		return
	}

	rc, err := deps.Model.Stream(r.Context(), req)
	if err != nil {
		writeCompletionError(w, err)
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	reader := bufio.NewReader(rc)
	for {
		line, err := reader.ReadBytes('\n')
		if len(line) > 0 {
			w.Write(line)
			flusher.Flush()
		}
		if err != nil {
			if err != io.EOF {
				slog.Error("upstream stream read error", "error", err)
				errPayload, marshalErr := json.Marshal(map[string]any{
					"error": map[string]any{
						"message": "upstream read error",
						"type":    "server_error",
					},
				})
				if marshalErr == nil {
					fmt.Fprintf(w, "data: %s\n\n", errPayload)
					flusher.Flush()
				}
			}
			return
		}
	}
}

func writeCompletionError(w http.ResponseWriter, err error) {
	var upstream *llm.UpstreamError
	switch {
	case errors.As(err, &upstream):
		httpError(w, http.StatusBadGateway, "api_error", "upstream error: %s", upstream.Message)
	case errors.Is(err, llm.ErrMalformedResponse):
		httpError(w, http.StatusBadGateway, "api_error", "malformed upstream response")
	default:
		httpError(w, http.StatusInternalServerError, "api_error", "completion failed")
	}
}
