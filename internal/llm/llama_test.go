package llm

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/insight-router/backend/internal/memory"
)

type recordingInvoker struct {
	reqs  []InvokeRequest
	reply string
}

func (r *recordingInvoker) Invoke(ctx context.Context, req InvokeRequest) (string, error) {
	r.reqs = append(r.reqs, req)
	return r.reply, nil
}

func TestFormatLlamaPromptFramesEachTurnOnce(t *testing.T) {
	prompt := FormatLlamaPrompt(Prompt{
		System: "be brief",
		History: []memory.Turn{
			{Role: memory.RoleUser, Content: "earlier question"},
			{Role: memory.RoleAssistant, Content: "earlier answer"},
		},
		User: "new question",
	})

	want := "<|begin_of_text|>" +
		"<|start_header_id|>system<|end_header_id|>\n\nbe brief<|eot_id|>" +
		"<|start_header_id|>user<|end_header_id|>\n\nearlier question<|eot_id|>" +
		"<|start_header_id|>assistant<|end_header_id|>\n\nearlier answer<|eot_id|>" +
		"<|start_header_id|>user<|end_header_id|>\n\nnew question<|eot_id|>" +
		"<|start_header_id|>assistant<|end_header_id|>\n\n"
	assert.Equal(t, want, prompt)
	assert.Equal(t, 1, strings.Count(prompt, "earlier answer"))
}

func TestFormatLlamaPromptWithoutSystem(t *testing.T) {
	prompt := FormatLlamaPrompt(Prompt{User: "hi"})
	assert.NotContains(t, prompt, "system")
	assert.True(t, strings.HasSuffix(prompt, "<|start_header_id|>assistant<|end_header_id|>\n\n"))
}

func TestLlamaCompleterPassesBudget(t *testing.T) {
	invoker := &recordingInvoker{reply: "3"}
	completer := NewLlamaCompleter(invoker)

	out, err := completer.Complete(context.Background(), Prompt{User: "q", MaxTokens: 5, Temperature: 0.1})
	require.NoError(t, err)
	assert.Equal(t, "3", out)

	require.Len(t, invoker.reqs, 1)
	assert.Equal(t, 5, invoker.reqs[0].MaxTokens)
	assert.InDelta(t, 0.1, invoker.reqs[0].Temperature, 1e-6)
}
