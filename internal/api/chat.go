package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/docchat/docchat/internal/document"
	"github.com/docchat/docchat/internal/llm"
)

type chatRequest struct {
	Message   string `json:"message"`
	UseRAG    bool   `json:"useRAG"`
	SessionID string `json:"sessionId"`
}

type chatResponse struct {
	Reply     string   `json:"reply"`
	Sources   []string `json:"sources"`
	SessionID string   `json:"sessionId"`
}

type chatErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Reply   string `json:"reply"`
}

func handleChat(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			chatError(w, http.StatusBadRequest, "invalid_request", "invalid request body")
			return
		}
		if req.Message == "" {
			chatError(w, http.StatusBadRequest, "invalid_request", "message is required")
			return
		}
		if req.SessionID == "" {
			req.SessionID = uuid.New().String()
		}

		reply, err := deps.Chat.Handle(r.Context(), req.SessionID, req.Message, req.UseRAG)
		if err != nil {
			writeChatError(w, err)
			return
		}

		if reply.Sources == nil {
			reply.Sources = []string{}
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(chatResponse{
			Reply:     reply.Text,
			Sources:   reply.Sources,
			SessionID: req.SessionID,
		})
	}
}

// writeChatError maps orchestrator failures onto the error envelope. The
// envelope carries a user-safe message; session history is already known to
// be untouched by the time an error reaches here.
func writeChatError(w http.ResponseWriter, err error) {
	var upstream *llm.UpstreamError
	switch {
	case errors.Is(err, document.ErrUnavailable):
		chatError(w, http.StatusServiceUnavailable, "document_unavailable",
			"the source document could not be loaded")
	case errors.As(err, &upstream):
		chatError(w, http.StatusBadGateway, "model_call_failed", upstream.Message)
	case errors.Is(err, llm.ErrMalformedResponse):
		chatError(w, http.StatusBadGateway, "model_call_failed",
			"the model returned an unusable response")
	default:
		chatError(w, http.StatusInternalServerError, "internal_error",
			"something went wrong handling the request")
	}
}

func chatError(w http.ResponseWriter, code int, kind, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(chatErrorResponse{
		Error:   kind,
		Message: message,
	})
}
