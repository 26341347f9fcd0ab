package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/insight-router/backend/internal/memory"
)

func chatCompletionBody(content string) map[string]interface{} {
	return map[string]interface{}{
		"id":      "chatcmpl-test",
		"object":  "chat.completion",
		"created": 1700000000,
		"model":   "gpt-4o-mini",
		"choices": []map[string]interface{}{
			{
				"index":         0,
				"message":       map[string]string{"role": "assistant", "content": content},
				"finish_reason": "stop",
			},
		},
		"usage": map[string]int{"prompt_tokens": 10, "completion_tokens": 2, "total_tokens": 12},
	}
}

func TestOpenAICompleterMessageOrder(t *testing.T) {
	var got openai.ChatCompletionRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(chatCompletionBody("Revenue is up."))
	}))
	defer server.Close()

	completer := NewOpenAICompleter("test-key", server.URL+"/v1", "gpt-4o-mini")
	out, err := completer.Complete(context.Background(), Prompt{
		System: "sys",
		History: []memory.Turn{
			{Role: memory.RoleUser, Content: "u1"},
			{Role: memory.RoleAssistant, Content: "a1"},
		},
		User:      "question",
		MaxTokens: 42,
	})
	require.NoError(t, err)
	assert.Equal(t, "Revenue is up.", out)

	require.Len(t, got.Messages, 4)
	assert.Equal(t, openai.ChatMessageRoleSystem, got.Messages[0].Role)
	assert.Equal(t, openai.ChatMessageRoleUser, got.Messages[1].Role)
	assert.Equal(t, openai.ChatMessageRoleAssistant, got.Messages[2].Role)
	assert.Equal(t, "question", got.Messages[3].Content)
	assert.Equal(t, 42, got.MaxTokens)
	assert.Equal(t, "gpt-4o-mini", got.Model)
}

func TestOpenAIAuthErrorIsNotRetried(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":{"message":"Incorrect API key provided","type":"invalid_request_error","code":"invalid_api_key"}}`))
	}))
	defer server.Close()

	gw := NewGateway(BackendOpenAI, NewOpenAICompleter("bad", server.URL+"/v1", "gpt-4o-mini"), newMemStore(), GatewayConfig{
		RetryLimit: 3,
		Timeout:    5 * time.Second,
	})

	_, err := gw.Generate(context.Background(), Request{Kind: KindIntent, Question: "q"})
	require.Error(t, err)
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
}
