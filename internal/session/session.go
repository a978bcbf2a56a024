// Package session keeps per-conversation message history keyed by an opaque
// client-supplied session ID.
package session

import "context"

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Turn is a single message in a conversation. Turns are appended and never
// mutated or removed.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Store records conversation history. Sessions are created lazily: History
// for an unseen session returns an empty slice, and the first Append brings
// the session into existence. Implementations must serialize appends per
// session so concurrent requests cannot interleave a session's turns.
type Store interface {
	History(ctx context.Context, sessionID string) ([]Turn, error)
	Append(ctx context.Context, sessionID string, turns ...Turn) error
	Close() error
}
