package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/insight-router/backend/pkg/logger"
)

// FileStore keeps each transcript as a JSON array in <dir>/<key>.json.
type FileStore struct {
	dir string

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create chat history dir: %w", err)
	}

	logger.Info("File transcript store initialized", zap.String("dir", dir))

	return &FileStore{
		dir:   dir,
		locks: make(map[string]*sync.Mutex),
	}, nil
}

func (s *FileStore) Load(ctx context.Context, key string) ([]Turn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	lock := s.lockFor(key)
	lock.Lock()
	defer lock.Unlock()

	return s.read(key)
}

func (s *FileStore) Append(ctx context.Context, key string, turns ...Turn) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	lock := s.lockFor(key)
	lock.Lock()
	defer lock.Unlock()

	existing, err := s.read(key)
	if err != nil {
		return err
	}

	return s.persist(key, append(existing, turns...))
}

func (s *FileStore) read(key string) ([]Turn, error) {
	path, err := s.path(key)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read transcript: %w", err)
	}

	var turns []Turn
	if err := json.Unmarshal(data, &turns); err != nil {
		logger.Warn("Invalid transcript file, resetting chat history",
			zap.String("path", path),
			zap.Error(err),
		)
		return nil, nil
	}

	return turns, nil
}

// persist overwrites the transcript through a temp file so readers never see
// a partially written array.
func (s *FileStore) persist(key string, turns []Turn) error {
	path, err := s.path(key)
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(turns, "", "    ")
	if err != nil {
		return fmt.Errorf("failed to marshal transcript: %w", err)
	}

	tmp, err := os.CreateTemp(s.dir, ".transcript-*")
	if err != nil {
		return fmt.Errorf("failed to create temp transcript: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write transcript: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close transcript: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace transcript: %w", err)
	}

	logger.Debug("Transcript persisted", zap.String("key", key), zap.Int("turns", len(turns)))
	return nil
}

func (s *FileStore) path(key string) (string, error) {
	if key == "" || strings.ContainsAny(key, `/\`) || key == "." || key == ".." {
		return "", fmt.Errorf("invalid conversation key %q", key)
	}
	return filepath.Join(s.dir, key+".json"), nil
}

func (s *FileStore) lockFor(key string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.locks[key]
	if !ok {
		l = &sync.Mutex{}
		s.locks[key] = l
	}
	return l
}
