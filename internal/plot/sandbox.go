package plot

import (
	"bytes"
	"context"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/insight-router/backend/pkg/logger"
)

//go:embed harness.py
var harnessScript []byte

var (
	ErrExecutionTimeout = errors.New("plot execution timed out")
	ErrNoImage          = errors.New("plot code produced no image")
)

// ExecRequest is one run of generated code against a dataset.
type ExecRequest struct {
	Code       string
	CSVPath    string
	OutputPath string
}

type Executor interface {
	Execute(ctx context.Context, req ExecRequest) error
}

// ExecError is a non-zero exit of the harness. Message is the exception line
// the harness prints last.
type ExecError struct {
	ExitCode int
	Message  string
	Stderr   string
}

func (e *ExecError) Error() string {
	return fmt.Sprintf("plot code failed (exit %d): %s", e.ExitCode, e.Message)
}

type ExecutorConfig struct {
	Python         string
	Timeout        time.Duration
	CPUSeconds     int
	MemoryLimitMB  int
	MaxOutputBytes int64
}

// PythonExecutor runs generated code in a fresh python3 process with a
// scratch working directory, a minimal environment, a wall-clock deadline and
// CPU and address-space limits applied by the harness.
type PythonExecutor struct {
	cfg ExecutorConfig
}

func NewPythonExecutor(cfg ExecutorConfig) *PythonExecutor {
	if cfg.Python == "" {
		cfg.Python = "python3"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxOutputBytes <= 0 {
		cfg.MaxOutputBytes = 64 * 1024
	}
	return &PythonExecutor{cfg: cfg}
}

func (e *PythonExecutor) Execute(ctx context.Context, req ExecRequest) error {
	csvPath, err := filepath.Abs(req.CSVPath)
	if err != nil {
		return fmt.Errorf("failed to resolve dataset path: %w", err)
	}
	outputPath, err := filepath.Abs(req.OutputPath)
	if err != nil {
		return fmt.Errorf("failed to resolve output path: %w", err)
	}

	workDir, err := os.MkdirTemp("", "plot-*")
	if err != nil {
		return fmt.Errorf("failed to create work dir: %w", err)
	}
	defer os.RemoveAll(workDir)

	harnessPath := filepath.Join(workDir, "harness.py")
	if err := os.WriteFile(harnessPath, harnessScript, 0o600); err != nil {
		return fmt.Errorf("failed to write harness: %w", err)
	}
	codePath := filepath.Join(workDir, "generated_plot.py")
	if err := os.WriteFile(codePath, []byte(req.Code), 0o600); err != nil {
		return fmt.Errorf("failed to write plot code: %w", err)
	}

	execCtx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	cmd := exec.CommandContext(execCtx, e.cfg.Python, "-I", harnessPath,
		"--csv", csvPath,
		"--code", codePath,
		"--output", outputPath,
		"--cpu", strconv.Itoa(e.cfg.CPUSeconds),
		"--mem", strconv.Itoa(e.cfg.MemoryLimitMB),
	)
	cmd.Dir = workDir
	cmd.Env = e.environment(workDir)

	var stdoutBuf, stderrBuf bytes.Buffer
	cmd.Stdout = &limitedWriter{w: &stdoutBuf, max: e.cfg.MaxOutputBytes}
	cmd.Stderr = &limitedWriter{w: &stderrBuf, max: e.cfg.MaxOutputBytes}

	start := time.Now()
	err = cmd.Run()
	duration := time.Since(start)

	if execCtx.Err() == context.DeadlineExceeded {
		logger.Warn("Plot execution killed (timeout)", zap.Duration("timeout", e.cfg.Timeout))
		return fmt.Errorf("%w after %s", ErrExecutionTimeout, e.cfg.Timeout)
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			stderr := stderrBuf.String()
			logger.Warn("Plot code failed",
				zap.Int("exit_code", exitErr.ExitCode()),
				zap.String("stderr", logger.Truncate(stderr, 2000)),
			)
			return &ExecError{
				ExitCode: exitErr.ExitCode(),
				Message:  lastLine(stderr),
				Stderr:   stderr,
			}
		}
		return fmt.Errorf("failed to run python: %w", err)
	}

	if _, err := os.Stat(outputPath); err != nil {
		return ErrNoImage
	}

	logger.Debug("Plot code executed",
		zap.Duration("duration", duration),
		zap.Int("stdout_bytes", stdoutBuf.Len()),
	)

	return nil
}

func (e *PythonExecutor) environment(workDir string) []string {
	env := []string{
		"HOME=" + workDir,
		"TMPDIR=" + workDir,
		"MPLBACKEND=Agg",
		"MPLCONFIGDIR=" + workDir,
		"LANG=C.UTF-8",
	}
	if path := os.Getenv("PATH"); path != "" {
		env = append(env, "PATH="+path)
	}
	return env
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}

// limitedWriter caps captured output and silently discards the rest.
type limitedWriter struct {
	w         io.Writer
	max       int64
	written   int64
	truncated bool
}

func (lw *limitedWriter) Write(p []byte) (int, error) {
	n := len(p)

	if lw.written >= lw.max {
		lw.truncated = true
		return n, nil
	}

	remaining := lw.max - lw.written
	if int64(n) > remaining {
		lw.truncated = true
		written, err := lw.w.Write(p[:remaining])
		lw.written += int64(written)
		return n, err
	}

	written, err := lw.w.Write(p)
	lw.written += int64(written)
	return written, err
}
