package query

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/insight-router/backend/internal/contextstore"
	"github.com/insight-router/backend/internal/intent"
	"github.com/insight-router/backend/internal/llm"
	"github.com/insight-router/backend/internal/metrics"
	"github.com/insight-router/backend/internal/plot"
	"github.com/insight-router/backend/internal/storage/models"
	"github.com/insight-router/backend/pkg/logger"
)

// Guidance answers returned with HTTP 200 for user input problems.
const (
	AnswerInvalidBackend     = "Please provide valid llm_type!"
	AnswerInvalidCollections = "Please provide valid collections_names!"
	AnswerInvalidIDAFile     = "Please provide valid ida_file_name!"
	AnswerNoDataset          = "Could not find a dataset relevant to your question."
	AnswerTaskCreated        = "I will create task you requested!"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 100
)

var DefaultCollections = []string{"sales", "company"}

// PlotError is a failed chart synthesis. Status is the synthesizer's reason.
type PlotError struct {
	Status   string
	Attempts int
}

func (e *PlotError) Error() string {
	return e.Status
}

// QueryRecorder persists processed requests for the history endpoint.
type QueryRecorder interface {
	InsertQueryRecord(ctx context.Context, record *models.QueryRecord) error
	GetQueryHistory(ctx context.Context, sessionID string, limit int) ([]models.QueryRecord, error)
}

type Synthesizer interface {
	Synthesize(ctx context.Context, job plot.Job) plot.Result
}

type Options struct {
	PlotOutputDir string
}

type Engine struct {
	gateways llm.Gateways
	contexts *contextstore.Store
	router   *intent.Router
	synth    Synthesizer
	recorder QueryRecorder
	plotDir  string
}

type QueryRequest struct {
	Question    string
	Collections []string
	Backend     string
	SessionID   string
}

type IDARequest struct {
	Question  string
	FileName  string
	Backend   string
	SessionID string
}

// QueryResponse carries either a text answer or the path of a generated chart.
type QueryResponse struct {
	ID        string
	Intent    intent.Intent
	Answer    string
	ImagePath string
	LatencyMS int
}

// NewEngine wires the pipeline. recorder may be nil to disable query history.
func NewEngine(gateways llm.Gateways, contexts *contextstore.Store, router *intent.Router, synth Synthesizer, recorder QueryRecorder, opts Options) *Engine {
	if opts.PlotOutputDir == "" {
		opts.PlotOutputDir = "./graphs"
	}
	return &Engine{
		gateways: gateways,
		contexts: contexts,
		router:   router,
		synth:    synth,
		recorder: recorder,
		plotDir:  opts.PlotOutputDir,
	}
}

// ProcessQuery classifies the question and runs the matching path.
func (e *Engine) ProcessQuery(ctx context.Context, req QueryRequest) (*QueryResponse, error) {
	startTime := time.Now()
	resp := &QueryResponse{ID: uuid.New().String()}

	logger.Info("Processing query",
		zap.String("query_id", resp.ID),
		zap.String("question", logger.Truncate(req.Question, 200)),
		zap.Strings("collections", req.Collections),
		zap.String("llm_type", req.Backend),
	)

	err := e.process(ctx, req, resp)
	e.finish(ctx, startTime, req.Question, req.Backend, req.SessionID, resp, err)

	if err != nil {
		return nil, err
	}
	return resp, nil
}

func (e *Engine) process(ctx context.Context, req QueryRequest, resp *QueryResponse) error {
	gw, err := e.gateways.Get(req.Backend)
	if errors.Is(err, llm.ErrUnknownBackend) {
		resp.Answer = AnswerInvalidBackend
		return nil
	}
	if err != nil {
		return err
	}

	found, err := e.router.Classify(ctx, gw, req.Question)
	if err != nil {
		return err
	}
	resp.Intent = found

	switch found {
	case intent.AnswerQuestion:
		return e.answer(ctx, gw, req, resp)
	case intent.GenerateGraph:
		return e.graph(ctx, gw, req, resp)
	case intent.CreateTask:
		resp.Answer = AnswerTaskCreated
		return nil
	default:
		return &intent.RoutingError{Output: found.String()}
	}
}

func (e *Engine) answer(ctx context.Context, gw *llm.Gateway, req QueryRequest, resp *QueryResponse) error {
	bundle, err := e.contexts.Resolve(req.Collections)
	if errors.Is(err, contextstore.ErrCollectionNotFound) {
		logger.Warn("Invalid collections requested", zap.Strings("collections", req.Collections), zap.Error(err))
		resp.Answer = AnswerInvalidCollections
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load context: %w", err)
	}
	if bundle.Empty() {
		resp.Answer = AnswerInvalidCollections
		return nil
	}

	answer, err := gw.Generate(ctx, llm.Request{
		Kind:           llm.KindGeneral,
		Question:       req.Question,
		Context:        bundle.Render(),
		ConversationID: req.SessionID,
	})
	if err != nil {
		return fmt.Errorf("failed to generate answer: %w", err)
	}

	logger.Info("Answer generated", zap.String("answer", logger.Truncate(answer, 100)))
	resp.Answer = answer
	return nil
}

func (e *Engine) graph(ctx context.Context, gw *llm.Gateway, req QueryRequest, resp *QueryResponse) error {
	descriptors, err := e.contexts.GraphDescriptors()
	if err != nil {
		return fmt.Errorf("failed to load dataset descriptions: %w", err)
	}
	if len(descriptors) == 0 {
		resp.Answer = AnswerNoDataset
		return nil
	}

	candidates := make([]llm.Candidate, len(descriptors))
	for i, d := range descriptors {
		candidates[i] = llm.Candidate{Name: d.Name, Description: d.Description}
	}

	reply, err := gw.SelectRelevant(ctx, candidates, req.Question)
	if err != nil {
		return fmt.Errorf("failed to select dataset: %w", err)
	}

	selected, ok := matchDescriptor(descriptors, reply)
	if !ok {
		logger.Warn("Selection did not match any dataset", zap.String("reply", logger.Truncate(reply, 200)))
		resp.Answer = AnswerNoDataset
		return nil
	}
	logger.Info("Found graph dataset", zap.String("description", selected.Name), zap.String("csv", selected.CSVPath))

	result := e.synth.Synthesize(ctx, plot.Job{
		Question:    req.Question,
		CSVPath:     selected.CSVPath,
		Description: selected.Description,
		OutputPath:  filepath.Join(e.plotDir, resp.ID+".png"),
		Generator:   gw,
	})
	if !result.OK {
		return &PlotError{Status: result.Status, Attempts: result.Attempts}
	}

	resp.ImagePath = result.ImagePath
	return nil
}

// AnswerFromIDA answers from one insight/direction/action document without
// classifying the question.
func (e *Engine) AnswerFromIDA(ctx context.Context, req IDARequest) (*QueryResponse, error) {
	startTime := time.Now()
	resp := &QueryResponse{ID: uuid.New().String(), Intent: intent.AnswerQuestion}

	logger.Info("Processing IDA query",
		zap.String("query_id", resp.ID),
		zap.String("question", logger.Truncate(req.Question, 200)),
		zap.String("ida_file_name", req.FileName),
	)

	err := e.answerIDA(ctx, req, resp)
	e.finish(ctx, startTime, req.Question, req.Backend, req.SessionID, resp, err)

	if err != nil {
		return nil, err
	}
	return resp, nil
}

func (e *Engine) answerIDA(ctx context.Context, req IDARequest, resp *QueryResponse) error {
	gw, err := e.gateways.Get(req.Backend)
	if errors.Is(err, llm.ErrUnknownBackend) {
		resp.Answer = AnswerInvalidBackend
		return nil
	}
	if err != nil {
		return err
	}

	bundle, err := e.contexts.ResolveIDA(req.FileName)
	if errors.Is(err, contextstore.ErrCollectionNotFound) {
		resp.Answer = AnswerInvalidIDAFile
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load ida document: %w", err)
	}

	answer, err := gw.Generate(ctx, llm.Request{
		Kind:           llm.KindGeneral,
		Question:       req.Question,
		Context:        bundle.Render(),
		ConversationID: req.SessionID,
	})
	if err != nil {
		return fmt.Errorf("failed to generate answer: %w", err)
	}

	resp.Answer = answer
	return nil
}

// History returns the most recent records for a session, newest first.
func (e *Engine) History(ctx context.Context, sessionID string, limit int) ([]models.QueryRecord, error) {
	if e.recorder == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	return e.recorder.GetQueryHistory(ctx, sessionID, limit)
}

func (e *Engine) finish(ctx context.Context, startTime time.Time, question, backend, sessionID string, resp *QueryResponse, err error) {
	latency := time.Since(startTime)
	resp.LatencyMS = int(latency.Milliseconds())

	status := "ok"
	switch {
	case err != nil:
		status = "error"
	case isGuidance(resp.Answer):
		status = "guidance"
	}

	intentLabel := "none"
	if resp.Intent != 0 {
		intentLabel = resp.Intent.String()
	}

	metrics.QueryTotal.WithLabelValues(status).Inc()
	metrics.QueryDuration.WithLabelValues(intentLabel).Observe(latency.Seconds())

	if err != nil {
		logger.Error("Query failed",
			zap.String("query_id", resp.ID),
			zap.String("intent", intentLabel),
			zap.Error(err),
		)
	} else {
		logger.Info("Query processed",
			zap.String("query_id", resp.ID),
			zap.String("intent", intentLabel),
			zap.String("status", status),
			zap.Int("latency_ms", resp.LatencyMS),
		)
	}

	if e.recorder == nil {
		return
	}

	answer := resp.Answer
	if err != nil {
		answer = err.Error()
	}
	record := &models.QueryRecord{
		ID:        resp.ID,
		SessionID: sessionID,
		Backend:   backend,
		Intent:    intentLabel,
		Question:  question,
		Answer:    answer,
		Graph:     resp.ImagePath != "",
		Status:    status,
		LatencyMS: resp.LatencyMS,
		CreatedAt: time.Now(),
	}

	// Recording failures are logged only.
	if err := e.recorder.InsertQueryRecord(context.WithoutCancel(ctx), record); err != nil {
		logger.Warn("Failed to record query", zap.String("query_id", resp.ID), zap.Error(err))
	}
}

func isGuidance(answer string) bool {
	switch answer {
	case AnswerInvalidBackend, AnswerInvalidCollections, AnswerInvalidIDAFile, AnswerNoDataset:
		return true
	}
	return false
}

// matchDescriptor maps the model's selection reply to a dataset: an exact name
// first, then the first name mentioned anywhere in the reply.
func matchDescriptor(descriptors []contextstore.Descriptor, reply string) (contextstore.Descriptor, bool) {
	cleaned := strings.Trim(strings.TrimSpace(reply), "`'\".")

	for _, d := range descriptors {
		if d.Name == cleaned {
			return d, true
		}
	}

	// Otherwise take the name mentioned first in the reply; at the same
	// position the longer name wins.
	lower := strings.ToLower(reply)
	best, bestAt := -1, -1
	for i, d := range descriptors {
		at := strings.Index(lower, strings.ToLower(d.Name))
		if at < 0 {
			continue
		}
		if best < 0 || at < bestAt || (at == bestAt && len(d.Name) > len(descriptors[best].Name)) {
			best, bestAt = i, at
		}
	}
	if best < 0 {
		return contextstore.Descriptor{}, false
	}
	return descriptors[best], true
}
