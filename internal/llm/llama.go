package llm

import (
	"context"
	"strings"

	"github.com/insight-router/backend/internal/memory"
)

// InvokeRequest is a raw-text completion request.
type InvokeRequest struct {
	Prompt      string
	MaxTokens   int
	Temperature float32
}

// Invoker carries a framed Llama prompt to a model host.
type Invoker interface {
	Invoke(ctx context.Context, req InvokeRequest) (string, error)
}

// LlamaCompleter frames prompts with Llama 3 role tags and sends them through
// a raw-completion Invoker.
type LlamaCompleter struct {
	invoker Invoker
}

func NewLlamaCompleter(invoker Invoker) *LlamaCompleter {
	return &LlamaCompleter{invoker: invoker}
}

func (c *LlamaCompleter) Complete(ctx context.Context, p Prompt) (string, error) {
	return c.invoker.Invoke(ctx, InvokeRequest{
		Prompt:      FormatLlamaPrompt(p),
		MaxTokens:   p.MaxTokens,
		Temperature: p.Temperature,
	})
}

// FormatLlamaPrompt renders the system message, each history turn once and the
// user message, ending with an open assistant header.
func FormatLlamaPrompt(p Prompt) string {
	var b strings.Builder
	b.WriteString("<|begin_of_text|>")
	if p.System != "" {
		writeLlamaTurn(&b, "system", p.System)
	}
	for _, turn := range p.History {
		role := "user"
		if turn.Role == memory.RoleAssistant {
			role = "assistant"
		}
		writeLlamaTurn(&b, role, turn.Content)
	}
	writeLlamaTurn(&b, "user", p.User)
	b.WriteString("<|start_header_id|>assistant<|end_header_id|>\n\n")
	return b.String()
}

func writeLlamaTurn(b *strings.Builder, role, content string) {
	b.WriteString("<|start_header_id|>")
	b.WriteString(role)
	b.WriteString("<|end_header_id|>\n\n")
	b.WriteString(strings.TrimSpace(content))
	b.WriteString("<|eot_id|>")
}
