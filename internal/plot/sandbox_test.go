package plot

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// requirePython skips unless python3 with pandas and matplotlib is available.
func requirePython(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("python3"); err != nil {
		t.Skip("python3 not installed")
	}
	if err := exec.Command("python3", "-I", "-c", "import pandas, numpy, matplotlib").Run(); err != nil {
		t.Skip("pandas, numpy or matplotlib not installed")
	}
}

func sandboxFixture(t *testing.T) (csvPath, outputPath string) {
	t.Helper()
	dir := t.TempDir()
	csvPath = filepath.Join(dir, "sales.csv")
	require.NoError(t, os.WriteFile(csvPath, []byte("month,revenue\n1,10\n2,20\n3,15\n"), 0o644))
	return csvPath, filepath.Join(dir, "out.png")
}

func TestPythonExecutorWritesImage(t *testing.T) {
	requirePython(t)
	csvPath, outputPath := sandboxFixture(t)

	executor := NewPythonExecutor(ExecutorConfig{Timeout: 60 * time.Second, CPUSeconds: 30, MemoryLimitMB: 2048})
	err := executor.Execute(context.Background(), ExecRequest{
		Code:       "plt.plot(df['month'], df['revenue'])",
		CSVPath:    csvPath,
		OutputPath: outputPath,
	})
	require.NoError(t, err)

	data, err := os.ReadFile(outputPath)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, []byte("\x89PNG")))
}

func TestPythonExecutorReportsException(t *testing.T) {
	requirePython(t)
	csvPath, outputPath := sandboxFixture(t)

	executor := NewPythonExecutor(ExecutorConfig{Timeout: 60 * time.Second})
	err := executor.Execute(context.Background(), ExecRequest{
		Code:       "df['missing_column'].plot()",
		CSVPath:    csvPath,
		OutputPath: outputPath,
	})

	var execErr *ExecError
	require.True(t, errors.As(err, &execErr), "got %v", err)
	assert.Equal(t, 1, execErr.ExitCode)
	assert.Contains(t, execErr.Message, "KeyError")
}

func TestPythonExecutorTimeout(t *testing.T) {
	requirePython(t)
	csvPath, outputPath := sandboxFixture(t)

	executor := NewPythonExecutor(ExecutorConfig{Timeout: 3 * time.Second})
	err := executor.Execute(context.Background(), ExecRequest{
		Code:       "import time\ntime.sleep(30)",
		CSVPath:    csvPath,
		OutputPath: outputPath,
	})
	assert.ErrorIs(t, err, ErrExecutionTimeout)
}

func TestLimitedWriterCapsOutput(t *testing.T) {
	var buf bytes.Buffer
	lw := &limitedWriter{w: &buf, max: 5}

	n, err := lw.Write([]byte("hello world"))
	require.NoError(t, err)
	assert.Equal(t, 11, n)
	assert.Equal(t, "hello", buf.String())
	assert.True(t, lw.truncated)

	n, err = lw.Write([]byte("more"))
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, "hello", buf.String())
}
