package plot

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/insight-router/backend/internal/llm"
)

type scriptedGenerator struct {
	replies []string
	calls   int
	shape   llm.DatasetShape
}

func (g *scriptedGenerator) GeneratePlotCode(ctx context.Context, question string, shape llm.DatasetShape, description string) (string, error) {
	g.shape = shape
	reply := g.replies[len(g.replies)-1]
	if g.calls < len(g.replies) {
		reply = g.replies[g.calls]
	}
	g.calls++
	return reply, nil
}

// fakeExecutor writes a placeholder image unless the code contains "boom".
type fakeExecutor struct {
	runs []ExecRequest
}

func (f *fakeExecutor) Execute(ctx context.Context, req ExecRequest) error {
	f.runs = append(f.runs, req)
	if req.Code == "boom" {
		return &ExecError{ExitCode: 1, Message: "NameError: name 'boom' is not defined"}
	}
	return os.WriteFile(req.OutputPath, []byte("png"), 0o644)
}

func newJob(t *testing.T, gen CodeGenerator) Job {
	t.Helper()
	dir := t.TempDir()
	csvPath := filepath.Join(dir, "sales.csv")
	require.NoError(t, os.WriteFile(csvPath, []byte("month,revenue\n1,10\n2,20\n"), 0o644))

	return Job{
		Question:    "plot revenue by month",
		CSVPath:     csvPath,
		Description: "monthly revenue",
		OutputPath:  filepath.Join(dir, "graphs", "out.png"),
		Generator:   gen,
	}
}

func TestSynthesizeSucceedsFirstAttempt(t *testing.T) {
	gen := &scriptedGenerator{replies: []string{"```python\nplt.plot(df['month'], df['revenue'])\n```"}}
	exec := &fakeExecutor{}
	job := newJob(t, gen)

	result := NewSynthesizer(exec, 3).Synthesize(context.Background(), job)

	require.True(t, result.OK, result.Status)
	assert.Equal(t, job.OutputPath, result.ImagePath)
	assert.Equal(t, 1, result.Attempts)
	assert.FileExists(t, job.OutputPath)

	require.Len(t, exec.runs, 1)
	assert.Equal(t, "plt.plot(df['month'], df['revenue'])", exec.runs[0].Code)
	assert.Equal(t, 2, gen.shape.Rows)
}

func TestSynthesizeRetriesUntilSuccess(t *testing.T) {
	gen := &scriptedGenerator{replies: []string{
		"```python\na\n```\n```python\nb\n```",
		"boom",
		"plt.plot(df['revenue'])",
	}}
	exec := &fakeExecutor{}

	result := NewSynthesizer(exec, 3).Synthesize(context.Background(), newJob(t, gen))

	require.True(t, result.OK, result.Status)
	assert.Equal(t, 3, result.Attempts)
	assert.Equal(t, 3, gen.calls)
	assert.Len(t, exec.runs, 2)
}

func TestSynthesizeReportsLastFailure(t *testing.T) {
	gen := &scriptedGenerator{replies: []string{"boom"}}

	result := NewSynthesizer(&fakeExecutor{}, 2).Synthesize(context.Background(), newJob(t, gen))

	assert.False(t, result.OK)
	assert.Equal(t, 2, result.Attempts)
	assert.Contains(t, result.Status, "NameError")
	assert.Empty(t, result.ImagePath)
}

func TestSynthesizeNoAnswerIsFailure(t *testing.T) {
	gen := &scriptedGenerator{replies: []string{llm.NoAnswer}}

	result := NewSynthesizer(&fakeExecutor{}, 1).Synthesize(context.Background(), newJob(t, gen))

	assert.False(t, result.OK)
	assert.Contains(t, result.Status, "no code")
}

func TestSynthesizeMissingDataset(t *testing.T) {
	gen := &scriptedGenerator{replies: []string{"plt.plot([1])"}}
	job := newJob(t, gen)
	job.CSVPath = filepath.Join(t.TempDir(), "absent.csv")

	result := NewSynthesizer(&fakeExecutor{}, 3).Synthesize(context.Background(), job)

	assert.False(t, result.OK)
	assert.Zero(t, gen.calls)
	assert.Contains(t, result.Status, "error loading data")
}

func TestSynthesizeStopsOnCancelledContext(t *testing.T) {
	gen := &scriptedGenerator{replies: []string{"plt.plot([1])"}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result := NewSynthesizer(&fakeExecutor{}, 3).Synthesize(ctx, newJob(t, gen))

	assert.False(t, result.OK)
	assert.Zero(t, result.Attempts)
	assert.True(t, errors.Is(ctx.Err(), context.Canceled))
}
