// Package memory stores conversation transcripts replayed into answering prompts.
package memory

import (
	"context"

	"github.com/insight-router/backend/pkg/utils"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one message of a transcript.
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// DefaultWindow is the number of recent turns replayed into a prompt.
const DefaultWindow = 10

// Store persists transcripts by conversation key.
//
// Append performs its read-modify-write atomically for a key, so concurrent
// requests sharing a conversation never lose each other's turns.
type Store interface {
	Load(ctx context.Context, key string) ([]Turn, error)
	Append(ctx context.Context, key string, turns ...Turn) error
}

// Key names the transcript for a backend and session. An empty session maps to
// a single transcript shared by every caller of the backend.
func Key(backend, session string) string {
	if session == "" {
		return backend
	}
	return backend + "_" + utils.ShortHash(session)
}

// Window returns the last n turns, oldest first.
func Window(turns []Turn, n int) []Turn {
	if n <= 0 || len(turns) == 0 {
		return nil
	}
	if len(turns) <= n {
		out := make([]Turn, len(turns))
		copy(out, turns)
		return out
	}
	out := make([]Turn, n)
	copy(out, turns[len(turns)-n:])
	return out
}
