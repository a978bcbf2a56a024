package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/docchat/docchat/internal/chat"
	"github.com/docchat/docchat/internal/document"
	"github.com/docchat/docchat/internal/llm"
	"github.com/docchat/docchat/internal/retrieval"
	"github.com/docchat/docchat/internal/session"
)

// upstreamRequest captures what the mock model endpoint received.
type upstreamRequest struct {
	Messages []llm.Message `json:"messages"`
}

// newStack wires the full pipeline against a mock model endpoint and a
// handbook written to disk. It returns the handler and the slice of
// captured upstream requests.
func newStack(t *testing.T, handbook string) (http.Handler, *[]upstreamRequest) {
	t.Helper()

	var seen []upstreamRequest
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req upstreamRequest
		json.NewDecoder(r.Body).Decode(&req)
		seen = append(seen, req)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"cmpl-1","choices":[{"message":{"role":"assistant","content":"Per the handbook, 15 days."}}]}`)
	}))
	t.Cleanup(upstream.Close)

	docPath := filepath.Join(t.TempDir(), "handbook.txt")
	if handbook != "" {
		if err := os.WriteFile(docPath, []byte(handbook), 0o644); err != nil {
			t.Fatalf("writing handbook: %v", err)
		}
	}

	client := llm.New(upstream.URL, "test-key", "gpt-4o", "2024-02-15-preview")
	store := session.NewMemoryStore(0)
	t.Cleanup(func() { store.Close() })
	provider := document.NewFileProvider(docPath, 800)
	orchestrator := chat.New(client, store, provider, retrieval.New(3))

	h := NewHandler(Deps{
		Chat:           orchestrator,
		Model:          client,
		AllowedOrigins: []string{"http://localhost:5173"},
	})
	return h, &seen
}

func postChat(t *testing.T, h http.Handler, body string) (*httptest.ResponseRecorder, chatResponse) {
	t.Helper()
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(body)))
	var resp chatResponse
	json.NewDecoder(rr.Body).Decode(&resp)
	return rr, resp
}

func TestEndToEnd_RAGChatWithMemory(t *testing.T) {
	h, seen := newStack(t, "The vacation policy allows 15 days per year. Expense reports are due monthly.")

	rr, resp := postChat(t, h, `{"message":"What is the vacation policy?","useRAG":true,"sessionId":"s1"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d (body %s)", rr.Code, rr.Body)
	}
	if resp.Reply == "" {
		t.Error("reply is empty")
	}
	foundSource := false
	for _, s := range resp.Sources {
		if strings.Contains(s, "vacation policy allows 15 days") {
			foundSource = true
		}
	}
	if !foundSource {
		t.Errorf("sources = %v, want the vacation chunk", resp.Sources)
	}

	// Second turn in the same session: the composed prompt must include
	// the prior exchange.
	rr, _ = postChat(t, h, `{"message":"And how do I request them?","useRAG":true,"sessionId":"s1"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("second turn status = %d", rr.Code)
	}
	if len(*seen) != 2 {
		t.Fatalf("upstream called %d times, want 2", len(*seen))
	}
	second := (*seen)[1].Messages
	var haveFirstQuestion, haveFirstAnswer bool
	for _, m := range second {
		if m.Role == "user" && m.Content == "What is the vacation policy?" {
			haveFirstQuestion = true
		}
		if m.Role == "assistant" && m.Content == "Per the handbook, 15 days." {
			haveFirstAnswer = true
		}
	}
	if !haveFirstQuestion || !haveFirstAnswer {
		t.Errorf("second prompt missing prior turn: %+v", second)
	}
}

func TestEndToEnd_MissingDocument(t *testing.T) {
	h, seen := newStack(t, "")

	rr, _ := postChat(t, h, `{"message":"What is the vacation policy?","useRAG":true,"sessionId":"s1"}`)
	if rr.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rr.Code)
	}
	if len(*seen) != 0 {
		t.Error("model was called despite missing document")
	}
}

func TestEndToEnd_SystemPromptCarriesExcerpts(t *testing.T) {
	h, seen := newStack(t, "The vacation policy allows 15 days per year.")

	postChat(t, h, `{"message":"What is the vacation policy?","useRAG":true,"sessionId":"s1"}`)
	if len(*seen) != 1 {
		t.Fatalf("upstream called %d times, want 1", len(*seen))
	}
	msgs := (*seen)[0].Messages
	if msgs[0].Role != "system" || !strings.Contains(msgs[0].Content, "vacation policy allows 15 days") {
		t.Errorf("system message = %+v, want excerpt embedded", msgs[0])
	}
}
