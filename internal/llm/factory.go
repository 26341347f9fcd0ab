package llm

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/insight-router/backend/internal/memory"
	"github.com/insight-router/backend/pkg/config"
	"github.com/insight-router/backend/pkg/logger"
)

const (
	LlamaTransportBedrock = "bedrock"
	LlamaTransportOllama  = "ollama"
)

// NewGateways builds one gateway per configured backend. store may be nil for
// callers that never issue general requests. A Llama transport that cannot be
// initialized is left out of the registry so requests for it get the
// invalid-backend answer.
func NewGateways(ctx context.Context, cfg config.LLMConfig, store memory.Store, window int) (Gateways, error) {
	gwCfg := GatewayConfig{
		RetryLimit:      cfg.RetryLimit,
		Timeout:         time.Duration(cfg.TimeoutSec) * time.Second,
		Temperature:     cfg.Temperature,
		AnswerMaxTokens: cfg.AnswerMaxTokens,
		IntentMaxTokens: cfg.IntentMaxTokens,
		HistoryWindow:   window,
	}

	gateways := Gateways{}

	if cfg.OpenAI.APIKey == "" {
		logger.Warn("OpenAI API key not set; openai requests will fail")
	}
	gateways[BackendOpenAI] = NewGateway(BackendOpenAI,
		NewOpenAICompleter(cfg.OpenAI.APIKey, cfg.OpenAI.BaseURL, cfg.OpenAI.Model),
		store, gwCfg)

	invoker, err := newLlamaInvoker(ctx, cfg.Llama)
	if err != nil {
		logger.Warn("Llama backend disabled", zap.String("transport", cfg.Llama.Transport), zap.Error(err))
		return gateways, nil
	}
	gateways[BackendLlama] = NewGateway(BackendLlama, NewLlamaCompleter(invoker), store, gwCfg)

	return gateways, nil
}

func newLlamaInvoker(ctx context.Context, cfg config.LlamaConfig) (Invoker, error) {
	switch cfg.Transport {
	case LlamaTransportBedrock, "":
		return NewBedrockInvoker(ctx, cfg.Region, cfg.Model)
	case LlamaTransportOllama:
		return NewOllamaInvoker(cfg.OllamaURL, cfg.Model), nil
	default:
		return nil, fmt.Errorf("unknown llama transport %q", cfg.Transport)
	}
}
