package contextstore

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestWatchInvalidatesChangedFiles(t *testing.T) {
	f := newFixture(t)
	writeFile(t, f.general, "sales.txt", "old")

	_, err := f.store.Resolve([]string{"sales"})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done, err := f.store.Watch(ctx)
	require.NoError(t, err)

	writeFile(t, f.general, "sales.txt", "new")

	assert.Eventually(t, func() bool {
		bundle, err := f.store.Resolve([]string{"sales"})
		if err != nil {
			return false
		}
		return bundle.Documents[0].Content == "new"
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not stop")
	}
}

func TestWatchSkipsMissingDirectories(t *testing.T) {
	store := New(Options{GeneralDir: filepath.Join(t.TempDir(), "absent")})

	ctx, cancel := context.WithCancel(context.Background())
	done, err := store.Watch(ctx)
	require.NoError(t, err)

	cancel()
	<-done
}

func TestDirectoryCreatedAfterWatchStaysFresh(t *testing.T) {
	root := t.TempDir()
	general := filepath.Join(root, "general")
	store := New(Options{GeneralDir: general})

	ctx, cancel := context.WithCancel(context.Background())
	done, err := store.Watch(ctx)
	require.NoError(t, err)
	defer func() {
		cancel()
		<-done
	}()

	require.NoError(t, os.MkdirAll(general, 0o755))
	writeFile(t, general, "sales.txt", "v1")

	bundle, err := store.Resolve([]string{"sales"})
	require.NoError(t, err)
	assert.Equal(t, "v1", bundle.Documents[0].Content)

	writeFile(t, general, "sales.txt", "v2 after edit")

	bundle, err = store.Resolve([]string{"sales"})
	require.NoError(t, err)
	assert.Equal(t, "v2 after edit", bundle.Documents[0].Content)
}
