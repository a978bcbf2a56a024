// Package chat composes prompts from session history and retrieved document
// excerpts, calls the model, and records the exchange.
package chat

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/docchat/docchat/internal/document"
	"github.com/docchat/docchat/internal/llm"
	"github.com/docchat/docchat/internal/retrieval"
	"github.com/docchat/docchat/internal/session"
)

const genericPrompt = "You are a helpful assistant. Answer the user's questions clearly and concisely."

const noMatchPrompt = "You are an assistant answering questions about a document. " +
	"No relevant excerpts were found for the user's question. " +
	"Tell the user you do not know the answer based on the document; do not invent one."

const groundedPromptHeader = "You are an assistant answering questions about a document. " +
	"Answer using only the excerpts below. " +
	"If the excerpts do not contain the answer, say you do not know.\n\nExcerpts:\n"

// Completer is the model client dependency.
type Completer interface {
	Complete(ctx context.Context, req llm.Request) (*llm.Completion, error)
}

// Reply is the outcome of a successful chat turn.
type Reply struct {
	Text    string
	Sources []string
}

// Orchestrator handles a chat turn end to end: history, optional retrieval,
// prompt composition, model call, history persistence.
type Orchestrator struct {
	client    Completer
	sessions  session.Store
	document  document.Provider
	retriever *retrieval.Retriever
}

// New wires an Orchestrator. document may be nil only if callers never
// enable retrieval.
func New(client Completer, sessions session.Store, doc document.Provider, retriever *retrieval.Retriever) *Orchestrator {
	return &Orchestrator{
		client:    client,
		sessions:  sessions,
		document:  doc,
		retriever: retriever,
	}
}

// Handle runs one chat turn. With useRAG set, the source document is loaded
// (once) and the top-scoring excerpts are injected into the system prompt;
// a missing document aborts the turn before any model call. On model
// failure the session history is left untouched.
func (o *Orchestrator) Handle(ctx context.Context, sessionID, userText string, useRAG bool) (Reply, error) {
	history, err := o.sessions.History(ctx, sessionID)
	if err != nil {
		return Reply{}, fmt.Errorf("loading session history: %w", err)
	}

	var sources []string
	if useRAG {
		chunks, err := o.document.Chunks(ctx)
		if err != nil {
			return Reply{}, err
		}
		sources = o.retriever.Retrieve(userText, chunks)
		slog.Debug("retrieval complete", "session", sessionID, "sources", len(sources))
	}

	messages := composeMessages(history, userText, useRAG, sources)

	completion, err := o.client.Complete(ctx, llm.Request{Messages: messages})
	if err != nil {
		return Reply{}, err
	}
	replyText := completion.Reply()

	err = o.sessions.Append(ctx, sessionID,
		session.Turn{Role: session.RoleUser, Content: userText},
		session.Turn{Role: session.RoleAssistant, Content: replyText},
	)
	if err != nil {
		return Reply{}, fmt.Errorf("recording exchange: %w", err)
	}

	return Reply{Text: replyText, Sources: sources}, nil
}

// composeMessages builds the full message list: system instruction, prior
// history, then the new user turn.
func composeMessages(history []session.Turn, userText string, useRAG bool, sources []string) []llm.Message {
	messages := make([]llm.Message, 0, len(history)+2)
	messages = append(messages, llm.Message{Role: session.RoleSystem, Content: systemInstruction(useRAG, sources)})
	for _, turn := range history {
		messages = append(messages, llm.Message{Role: turn.Role, Content: turn.Content})
	}
	return append(messages, llm.Message{Role: session.RoleUser, Content: userText})
}

func systemInstruction(useRAG bool, sources []string) string {
	switch {
	case useRAG && len(sources) > 0:
		var sb strings.Builder
		sb.WriteString(groundedPromptHeader)
		for i, src := range sources {
			fmt.Fprintf(&sb, "%d. %s\n", i+1, src)
		}
		return sb.String()
	case useRAG:
		return noMatchPrompt
	default:
		return genericPrompt
	}
}
