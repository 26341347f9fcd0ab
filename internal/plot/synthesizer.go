package plot

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/insight-router/backend/internal/llm"
	"github.com/insight-router/backend/internal/metrics"
	"github.com/insight-router/backend/pkg/logger"
)

const StatusSuccess = "Plot generated successfully"

// CodeGenerator is the part of the model gateway the synthesizer needs.
type CodeGenerator interface {
	GeneratePlotCode(ctx context.Context, question string, shape llm.DatasetShape, description string) (string, error)
}

// Job binds a question to one dataset and a request-unique output path.
type Job struct {
	Question    string
	CSVPath     string
	Description string
	OutputPath  string
	Generator   CodeGenerator
}

// Result reports a synthesis outcome. Status is the failure reason when OK is false.
type Result struct {
	OK        bool
	Status    string
	ImagePath string
	Attempts  int
}

type Synthesizer struct {
	executor   Executor
	retryLimit int
}

func NewSynthesizer(executor Executor, retryLimit int) *Synthesizer {
	if retryLimit <= 0 {
		retryLimit = 1
	}
	return &Synthesizer{executor: executor, retryLimit: retryLimit}
}

// Synthesize never returns an error: every failure becomes a status. Each
// attempt asks for fresh code, extracts it and runs it.
func (s *Synthesizer) Synthesize(ctx context.Context, job Job) Result {
	dataset, err := LoadDataset(job.CSVPath)
	if err != nil {
		return s.fail(job, 0, fmt.Errorf("error loading data: %w", err))
	}

	if err := os.MkdirAll(filepath.Dir(job.OutputPath), 0o755); err != nil {
		return s.fail(job, 0, fmt.Errorf("failed to create output dir: %w", err))
	}

	var lastErr error
	attempts := 0
	for attempts < s.retryLimit {
		if ctx.Err() != nil {
			lastErr = ctx.Err()
			break
		}
		attempts++

		lastErr = s.attempt(ctx, job, dataset)
		if lastErr == nil {
			metrics.PlotTotal.WithLabelValues("ok").Inc()
			logger.Info("Plot generated",
				zap.String("dataset", filepath.Base(job.CSVPath)),
				zap.Int("attempts", attempts),
			)
			return Result{OK: true, Status: StatusSuccess, ImagePath: job.OutputPath, Attempts: attempts}
		}

		logger.Warn("Plot attempt failed",
			zap.Int("attempt", attempts),
			zap.Int("retry_limit", s.retryLimit),
			zap.Error(lastErr),
		)
		os.Remove(job.OutputPath)
	}

	return s.fail(job, attempts, lastErr)
}

func (s *Synthesizer) attempt(ctx context.Context, job Job, dataset *Dataset) error {
	reply, err := job.Generator.GeneratePlotCode(ctx, job.Question, dataset.Shape(), job.Description)
	if err != nil {
		return err
	}
	if reply == llm.NoAnswer {
		return errors.New("model returned no code")
	}

	code, err := ExtractCode(reply)
	if err != nil {
		return err
	}

	return s.executor.Execute(ctx, ExecRequest{
		Code:       code,
		CSVPath:    job.CSVPath,
		OutputPath: job.OutputPath,
	})
}

func (s *Synthesizer) fail(job Job, attempts int, err error) Result {
	metrics.PlotTotal.WithLabelValues("error").Inc()
	status := fmt.Sprintf("Error generating plot: %v", err)
	logger.Error("Plot generation failed",
		zap.String("dataset", filepath.Base(job.CSVPath)),
		zap.Int("attempts", attempts),
		zap.Error(err),
	)
	return Result{Status: status, Attempts: attempts}
}
