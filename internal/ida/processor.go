package ida

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/insight-router/backend/internal/llm"
	"github.com/insight-router/backend/internal/metrics"
	"github.com/insight-router/backend/pkg/logger"
)

// Extractor turns a source document into an Insights/Direction/Action report.
type Extractor interface {
	ExtractIDA(ctx context.Context, document string) (string, error)
}

var errEmptyReport = errors.New("model returned no report")

type Config struct {
	InputDir    string
	OutputDir   string
	Concurrency int
	// MaxInputChars truncates long sources before extraction. Zero means no limit.
	MaxInputChars int
}

// Result describes one input file. Output is empty when the file was skipped
// or failed.
type Result struct {
	Source string
	Output string
	Err    error
}

type Processor struct {
	extractor Extractor
	cfg       Config
}

func NewProcessor(extractor Extractor, cfg Config) *Processor {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	return &Processor{extractor: extractor, cfg: cfg}
}

// Run extracts every supported file of the input directory into
// <stem>_ida_<index>.txt, where index is the file's position in the sorted
// listing. A failing file is logged and reported in its Result; it does not
// stop the others.
func (p *Processor) Run(ctx context.Context) ([]Result, error) {
	entries, err := os.ReadDir(p.cfg.InputDir)
	if err != nil {
		return nil, fmt.Errorf("failed to list input dir: %w", err)
	}
	if err := os.MkdirAll(p.cfg.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output dir: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	logger.Info("IDA extraction started",
		zap.String("input_dir", p.cfg.InputDir),
		zap.String("output_dir", p.cfg.OutputDir),
		zap.Int("files", len(entries)),
		zap.Int("concurrency", p.cfg.Concurrency),
	)
	start := time.Now()

	var (
		mu      sync.Mutex
		results []Result
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.Concurrency)

	for index, entry := range entries {
		if entry.IsDir() {
			continue
		}
		index, name := index, entry.Name()

		g.Go(func() error {
			res := p.processFile(gctx, index, name)
			if errors.Is(res.Err, ErrUnsupported) {
				return nil
			}

			mu.Lock()
			results = append(results, res)
			mu.Unlock()

			// Only cancellation aborts the batch.
			if errors.Is(res.Err, context.Canceled) {
				return res.Err
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return results, err
	}

	sort.Slice(results, func(i, j int) bool { return results[i].Source < results[j].Source })

	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
		}
	}
	logger.Info("IDA extraction finished",
		zap.Int("processed", len(results)-failed),
		zap.Int("failed", failed),
		zap.Duration("duration", time.Since(start)),
	)

	return results, nil
}

func (p *Processor) processFile(ctx context.Context, index int, name string) Result {
	src := filepath.Join(p.cfg.InputDir, name)
	res := Result{Source: src}

	text, err := LoadSource(src)
	if err != nil {
		if !errors.Is(err, ErrUnsupported) {
			logger.Warn("Skipping source file", zap.String("file", name), zap.Error(err))
		}
		res.Err = err
		return res
	}

	text = truncate(text, p.cfg.MaxInputChars)

	report, err := p.extractor.ExtractIDA(ctx, text)
	if err != nil {
		logger.Error("Extraction failed", zap.String("file", name), zap.Error(err))
		res.Err = err
		return res
	}
	if report == llm.NoAnswer {
		logger.Warn("Extraction returned no report", zap.String("file", name))
		res.Err = errEmptyReport
		return res
	}

	stem := strings.TrimSuffix(name, filepath.Ext(name))
	out := filepath.Join(p.cfg.OutputDir, fmt.Sprintf("%s_ida_%d.txt", stem, index))
	if err := os.WriteFile(out, []byte(report), 0o644); err != nil {
		res.Err = fmt.Errorf("failed to write %s: %w", out, err)
		logger.Error("Failed to write IDA file", zap.String("path", out), zap.Error(err))
		return res
	}

	metrics.DocumentsProcessed.Inc()
	logger.Info("Extracted IDA file", zap.String("source", name), zap.String("output", out))

	res.Output = out
	return res
}

func truncate(s string, n int) string {
	if n <= 0 {
		return s
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
