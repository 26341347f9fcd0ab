package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/insight-router/backend/internal/memory"
	"github.com/insight-router/backend/internal/metrics"
	"github.com/insight-router/backend/pkg/circuitbreaker"
	"github.com/insight-router/backend/pkg/logger"
	"github.com/insight-router/backend/pkg/retry"
)

// NoAnswer is returned in place of empty model output. It is data, not an error.
const NoAnswer = "no answer"

var ErrUnknownPromptKind = errors.New("unknown prompt kind")

type Kind string

const (
	KindIntent  Kind = "intent"
	KindGeneral Kind = "general"

	kindSelect Kind = "select"
	kindPlot   Kind = "plot"
	kindIDA    Kind = "ida"
)

const (
	selectMaxTokens = 64
	plotMaxTokens   = 1024
	idaMaxTokens    = 1024
)

// Prompt is a fully rendered request handed to a Completer.
type Prompt struct {
	System      string
	History     []memory.Turn
	User        string
	MaxTokens   int
	Temperature float32
}

// Completer is the capability a backend supplies: one prompt in, raw text out.
type Completer interface {
	Complete(ctx context.Context, prompt Prompt) (string, error)
}

type Request struct {
	Kind     Kind
	Question string
	Context  string
	// ConversationID is the caller's session. General calls read and extend
	// the transcript keyed by it.
	ConversationID string
	MaxTokens      int
}

type GatewayConfig struct {
	RetryLimit      int
	Timeout         time.Duration
	Temperature     float32
	AnswerMaxTokens int
	IntentMaxTokens int
	HistoryWindow   int
}

type Gateway struct {
	backend     Backend
	completer   Completer
	memory      memory.Store
	cfg         GatewayConfig
	cb          *circuitbreaker.CircuitBreaker
	retryConfig retry.Config
}

func NewGateway(backend Backend, completer Completer, store memory.Store, cfg GatewayConfig) *Gateway {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.AnswerMaxTokens <= 0 {
		cfg.AnswerMaxTokens = 512
	}
	if cfg.IntentMaxTokens <= 0 {
		cfg.IntentMaxTokens = 5
	}
	if cfg.HistoryWindow == 0 {
		cfg.HistoryWindow = memory.DefaultWindow
	}

	cb := circuitbreaker.NewCircuitBreaker("llm-"+backend.String(), circuitbreaker.Config{
		FailureThreshold: 5,
		SuccessThreshold: 2,
		OpenTimeout:      30 * time.Second,
		HalfOpenMaxCalls: 2,
		IsFailure: func(err error) bool {
			return err != nil && !errors.Is(err, context.Canceled)
		},
		OnStateChange: func(_ string, _, to circuitbreaker.State) {
			metrics.LLMBreakerState.WithLabelValues(backend.String()).Set(float64(to))
		},
		Logger: logger.GetLogger(),
	})

	retryConfig := retry.Config{
		MaxAttempts:    cfg.RetryLimit,
		InitialDelay:   500 * time.Millisecond,
		MaxDelay:       5 * time.Second,
		Multiplier:     2.0,
		JitterFraction: 0.1,
		Logger:         logger.GetLogger(),
	}

	logger.Info("LLM gateway initialized",
		zap.String("backend", backend.String()),
		zap.Int("retry_limit", cfg.RetryLimit),
		zap.Duration("timeout", cfg.Timeout),
	)

	return &Gateway{
		backend:     backend,
		completer:   completer,
		memory:      store,
		cfg:         cfg,
		cb:          cb,
		retryConfig: retryConfig,
	}
}

func (g *Gateway) Backend() Backend {
	return g.backend
}

// Generate answers an intent or general request. Intent calls never touch the
// transcript. General calls replay the recent window and record the exchange
// when the model produced text.
func (g *Gateway) Generate(ctx context.Context, req Request) (string, error) {
	switch req.Kind {
	case KindIntent:
		system, user := renderIntent(req.Question)
		return g.complete(ctx, req.Kind, Prompt{
			System:    system,
			User:      user,
			MaxTokens: pick(req.MaxTokens, g.cfg.IntentMaxTokens),
		})

	case KindGeneral:
		key := memory.Key(g.backend.String(), req.ConversationID)

		history, err := g.memory.Load(ctx, key)
		if err != nil {
			return "", fmt.Errorf("failed to load conversation: %w", err)
		}

		system, user := renderGeneral(req.Question, req.Context)
		answer, err := g.complete(ctx, req.Kind, Prompt{
			System:    system,
			History:   memory.Window(history, g.cfg.HistoryWindow),
			User:      user,
			MaxTokens: pick(req.MaxTokens, g.cfg.AnswerMaxTokens),
		})
		if err != nil || answer == NoAnswer {
			return answer, err
		}

		err = g.memory.Append(ctx, key,
			memory.Turn{Role: memory.RoleUser, Content: req.Question},
			memory.Turn{Role: memory.RoleAssistant, Content: answer},
		)
		if err != nil {
			logger.Error("Failed to persist conversation",
				zap.String("backend", g.backend.String()),
				zap.String("key", key),
				zap.Error(err),
			)
		}
		return answer, nil

	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownPromptKind, req.Kind)
	}
}

// SelectRelevant asks the model which candidate best serves the question and
// returns its reply trimmed. Matching the reply to a candidate is up to the caller.
func (g *Gateway) SelectRelevant(ctx context.Context, candidates []Candidate, question string) (string, error) {
	system, user := renderSelection(candidates, question)
	return g.complete(ctx, kindSelect, Prompt{
		System:    system,
		User:      user,
		MaxTokens: selectMaxTokens,
	})
}

// GeneratePlotCode returns the model's raw reply; extracting the code block is
// left to the plot package.
func (g *Gateway) GeneratePlotCode(ctx context.Context, question string, shape DatasetShape, description string) (string, error) {
	system, user := renderPlot(question, shape, description)
	return g.complete(ctx, kindPlot, Prompt{
		System:    system,
		User:      user,
		MaxTokens: plotMaxTokens,
	})
}

// ExtractIDA distills a source document into Insights, Direction and Action
// sections. The call is stateless.
func (g *Gateway) ExtractIDA(ctx context.Context, document string) (string, error) {
	system, user := renderIDA(document)
	return g.complete(ctx, kindIDA, Prompt{
		System:    system,
		User:      user,
		MaxTokens: idaMaxTokens,
	})
}

func (g *Gateway) complete(ctx context.Context, kind Kind, prompt Prompt) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
	defer cancel()

	prompt.Temperature = g.cfg.Temperature
	start := time.Now()

	var text string
	err := g.cb.Execute(ctx, func() error {
		return retry.Do(ctx, g.retryConfig, func() error {
			out, err := g.completer.Complete(ctx, prompt)
			if err != nil {
				return err
			}
			text = out
			return nil
		})
	})

	metrics.LLMCallDuration.WithLabelValues(g.backend.String(), string(kind)).Observe(time.Since(start).Seconds())

	if err != nil {
		metrics.LLMCallTotal.WithLabelValues(g.backend.String(), string(kind), "error").Inc()
		logger.Error("LLM call failed",
			zap.String("backend", g.backend.String()),
			zap.String("kind", string(kind)),
			zap.Error(err),
		)
		return "", fmt.Errorf("%s %s call failed: %w", g.backend, kind, err)
	}

	text = strings.TrimSpace(text)
	if text == "" {
		metrics.LLMCallTotal.WithLabelValues(g.backend.String(), string(kind), "empty").Inc()
		logger.Warn("LLM returned no text",
			zap.String("backend", g.backend.String()),
			zap.String("kind", string(kind)),
		)
		return NoAnswer, nil
	}

	metrics.LLMCallTotal.WithLabelValues(g.backend.String(), string(kind), "ok").Inc()
	logger.Debug("LLM answer retrieved",
		zap.String("backend", g.backend.String()),
		zap.String("kind", string(kind)),
		zap.Int("length", len(text)),
		zap.Duration("duration", time.Since(start)),
	)

	return text, nil
}

func pick(v, fallback int) int {
	if v > 0 {
		return v
	}
	return fallback
}
