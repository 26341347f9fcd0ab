package memory

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStoreLoadMissingIsEmpty(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	turns, err := store.Load(context.Background(), "openai")
	require.NoError(t, err)
	assert.Empty(t, turns)
}

func TestFileStoreAppendPersistsInOrder(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, store.Append(ctx, "openai",
		Turn{Role: RoleUser, Content: "What are the sales trends?"},
		Turn{Role: RoleAssistant, Content: "Up 4%."},
	))
	require.NoError(t, store.Append(ctx, "openai", Turn{Role: RoleUser, Content: "And churn?"}))

	reopened, err := NewFileStore(dir)
	require.NoError(t, err)
	turns, err := reopened.Load(ctx, "openai")
	require.NoError(t, err)
	assert.Equal(t, []Turn{
		{Role: RoleUser, Content: "What are the sales trends?"},
		{Role: RoleAssistant, Content: "Up 4%."},
		{Role: RoleUser, Content: "And churn?"},
	}, turns)

	_, err = os.Stat(filepath.Join(dir, "openai.json"))
	assert.NoError(t, err)
}

func TestFileStoreCorruptTranscriptIsDiscarded(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "llama.json"), []byte("{not json"), 0o644))

	store, err := NewFileStore(dir)
	require.NoError(t, err)
	ctx := context.Background()

	turns, err := store.Load(ctx, "llama")
	require.NoError(t, err)
	assert.Empty(t, turns)

	require.NoError(t, store.Append(ctx, "llama", Turn{Role: RoleUser, Content: "hi"}))
	turns, err = store.Load(ctx, "llama")
	require.NoError(t, err)
	assert.Equal(t, []Turn{{Role: RoleUser, Content: "hi"}}, turns)
}

func TestFileStoreConcurrentAppendsKeepEveryTurn(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, store.Append(ctx, "openai", Turn{Role: RoleUser, Content: fmt.Sprint(i)}))
		}(i)
	}
	wg.Wait()

	turns, err := store.Load(ctx, "openai")
	require.NoError(t, err)
	assert.Len(t, turns, 20)
}

func TestFileStoreRejectsPathLikeKeys(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	err = store.Append(context.Background(), "../escape", Turn{Role: RoleUser, Content: "x"})
	assert.Error(t, err)
}
