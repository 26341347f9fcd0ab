// Package intent classifies a question into one of the three handling paths.
package intent

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/insight-router/backend/internal/llm"
	"github.com/insight-router/backend/internal/metrics"
	"github.com/insight-router/backend/pkg/logger"
)

type Intent int

const (
	AnswerQuestion Intent = iota + 1
	GenerateGraph
	CreateTask
)

func (i Intent) String() string {
	switch i {
	case AnswerQuestion:
		return "answer_question"
	case GenerateGraph:
		return "generate_graph"
	case CreateTask:
		return "create_task"
	default:
		return "unknown"
	}
}

var ErrUnrecognizedIntent = errors.New("unrecognized intent")

// RoutingError carries the classifier output that could not be mapped.
type RoutingError struct {
	Output string
}

func (e *RoutingError) Error() string {
	return fmt.Sprintf("something went wrong when finding intent: classifier returned %q", e.Output)
}

func (e *RoutingError) Unwrap() error {
	return ErrUnrecognizedIntent
}

// Generator is the part of the model gateway the router needs.
type Generator interface {
	Generate(ctx context.Context, req llm.Request) (string, error)
}

type Router struct{}

func NewRouter() *Router {
	return &Router{}
}

// Classify makes one intent call. The trimmed output must be exactly "1", "2"
// or "3"; anything else is a *RoutingError and is never coerced or retried.
func (r *Router) Classify(ctx context.Context, gen Generator, question string) (Intent, error) {
	out, err := gen.Generate(ctx, llm.Request{Kind: llm.KindIntent, Question: question})
	if err != nil {
		return 0, fmt.Errorf("failed to classify intent: %w", err)
	}

	var found Intent
	switch strings.TrimSpace(out) {
	case "1":
		found = AnswerQuestion
	case "2":
		found = GenerateGraph
	case "3":
		found = CreateTask
	default:
		metrics.IntentTotal.WithLabelValues("unrecognized").Inc()
		logger.Warn("Unrecognized intent", zap.String("output", logger.Truncate(out, 50)))
		return 0, &RoutingError{Output: out}
	}

	metrics.IntentTotal.WithLabelValues(found.String()).Inc()
	logger.Info("Found intent", zap.String("intent", found.String()))

	return found, nil
}
