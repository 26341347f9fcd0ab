package ida

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/insight-router/backend/internal/llm"
)

type fakeExtractor struct {
	mu    sync.Mutex
	seen  []string
	fail  string
	reply func(doc string) string
}

func (f *fakeExtractor) ExtractIDA(_ context.Context, doc string) (string, error) {
	f.mu.Lock()
	f.seen = append(f.seen, doc)
	f.mu.Unlock()

	if f.fail != "" && strings.Contains(doc, f.fail) {
		return "", errors.New("model unavailable")
	}
	if f.reply != nil {
		return f.reply(doc), nil
	}
	return "Insights:\n- " + doc, nil
}

func TestProcessorRun(t *testing.T) {
	in, out := t.TempDir(), filepath.Join(t.TempDir(), "ida")
	writeFile(t, in, "b_notes.txt", "notes body")
	writeFile(t, in, "a_sales.csv", "m,v\nJan,1\n")
	writeFile(t, in, "c_logo.png", "binary")
	require.NoError(t, os.Mkdir(filepath.Join(in, "nested"), 0o755))

	p := NewProcessor(&fakeExtractor{}, Config{InputDir: in, OutputDir: out, Concurrency: 2})
	results, err := p.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, filepath.Join(out, "a_sales_ida_0.txt"), results[0].Output)
	assert.Equal(t, filepath.Join(out, "b_notes_ida_1.txt"), results[1].Output)

	data, err := os.ReadFile(results[1].Output)
	require.NoError(t, err)
	assert.Equal(t, "Insights:\n- notes body", string(data))

	data, err = os.ReadFile(results[0].Output)
	require.NoError(t, err)
	assert.Contains(t, string(data), "| Jan | 1 |")
}

func TestProcessorRun_FailuresDoNotStopBatch(t *testing.T) {
	in, out := t.TempDir(), t.TempDir()
	writeFile(t, in, "bad.txt", "poison")
	writeFile(t, in, "good.txt", "fine")

	p := NewProcessor(&fakeExtractor{fail: "poison"}, Config{InputDir: in, OutputDir: out, Concurrency: 4})
	results, err := p.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Error(t, results[0].Err)
	assert.Empty(t, results[0].Output)
	assert.NoError(t, results[1].Err)
	assert.FileExists(t, filepath.Join(out, "good_ida_1.txt"))
	assert.NoFileExists(t, filepath.Join(out, "bad_ida_0.txt"))
}

func TestProcessorRun_NoAnswerIsNotWritten(t *testing.T) {
	in, out := t.TempDir(), t.TempDir()
	writeFile(t, in, "empty.txt", "x")

	p := NewProcessor(&fakeExtractor{reply: func(string) string { return llm.NoAnswer }}, Config{InputDir: in, OutputDir: out})
	results, err := p.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.ErrorIs(t, results[0].Err, errEmptyReport)
	assert.NoFileExists(t, filepath.Join(out, "empty_ida_0.txt"))
}

func TestProcessorRun_TruncatesInput(t *testing.T) {
	in := t.TempDir()
	writeFile(t, in, "long.txt", "abcdefghij")

	ex := &fakeExtractor{}
	p := NewProcessor(ex, Config{InputDir: in, OutputDir: t.TempDir(), MaxInputChars: 4})
	_, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"abcd"}, ex.seen)
}

func TestProcessorRun_MissingInputDir(t *testing.T) {
	p := NewProcessor(&fakeExtractor{}, Config{InputDir: filepath.Join(t.TempDir(), "nope"), OutputDir: t.TempDir()})
	_, err := p.Run(context.Background())
	assert.Error(t, err)
}
