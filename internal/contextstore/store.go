// Package contextstore loads the text documents fed to answering prompts and
// the dataset descriptions used to pick a chart source.
package contextstore

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/insight-router/backend/internal/metrics"
	"github.com/insight-router/backend/pkg/logger"
)

// IDAKeyword expands to every document in the IDA directory.
const IDAKeyword = "ida"

var ErrCollectionNotFound = errors.New("collection not found")

type Document struct {
	Name    string
	Content string
}

// Bundle is the ordered set of documents for one answering call.
type Bundle struct {
	Documents []Document
}

func (b Bundle) Empty() bool {
	return len(b.Documents) == 0
}

// Render concatenates each document as its file name, a blank line, the
// content and a blank line, joined by newlines.
func (b Bundle) Render() string {
	parts := make([]string, 0, len(b.Documents))
	for _, d := range b.Documents {
		parts = append(parts, d.Name+"\n\n"+d.Content+"\n\n")
	}
	return strings.Join(parts, "\n")
}

func (b Bundle) Names() []string {
	names := make([]string, 0, len(b.Documents))
	for _, d := range b.Documents {
		names = append(names, d.Name)
	}
	return names
}

// Descriptor pairs a dataset description file with the CSV it describes.
type Descriptor struct {
	Name        string
	CSVPath     string
	Description string
}

type Options struct {
	GeneralDir        string
	IDADir            string
	GraphDir          string
	DescriptionSuffix string
}

// cacheEntry is a file's content together with the metadata it was read
// under. A hit is served only while the file still reports the same size and
// modification time.
type cacheEntry struct {
	content string
	size    int64
	modTime time.Time
}

type Store struct {
	opts Options

	mu    sync.RWMutex
	cache map[string]cacheEntry
	// gens is bumped by Invalidate; a read started under an older generation
	// does not populate the cache.
	gens map[string]uint64
}

func New(opts Options) *Store {
	if opts.DescriptionSuffix == "" {
		opts.DescriptionSuffix = "txt"
	}

	logger.Info("Context store initialized",
		zap.String("general_dir", opts.GeneralDir),
		zap.String("ida_dir", opts.IDADir),
		zap.String("graph_dir", opts.GraphDir),
	)

	return &Store{
		opts:  opts,
		cache: make(map[string]cacheEntry),
		gens:  make(map[string]uint64),
	}
}

func (s *Store) Options() Options {
	return s.opts
}

// Resolve loads the named collections in order. Any missing file fails the
// whole resolution.
func (s *Store) Resolve(names []string) (Bundle, error) {
	var bundle Bundle

	for _, name := range names {
		if name == IDAKeyword {
			docs, err := s.readDir(s.opts.IDADir)
			if err != nil {
				return Bundle{}, err
			}
			bundle.Documents = append(bundle.Documents, docs...)
			continue
		}

		if !validName(name) {
			return Bundle{}, fmt.Errorf("%w: %q", ErrCollectionNotFound, name)
		}

		fileName := name + ".txt"
		content, err := s.read(filepath.Join(s.opts.GeneralDir, fileName))
		if err != nil {
			return Bundle{}, err
		}
		bundle.Documents = append(bundle.Documents, Document{Name: fileName, Content: content})
	}

	logger.Debug("Context resolved",
		zap.Strings("collections", names),
		zap.Int("documents", len(bundle.Documents)),
	)

	return bundle, nil
}

// ResolveIDA loads a single document from the IDA directory.
func (s *Store) ResolveIDA(fileName string) (Bundle, error) {
	if !validName(fileName) {
		return Bundle{}, fmt.Errorf("%w: %q", ErrCollectionNotFound, fileName)
	}

	content, err := s.read(filepath.Join(s.opts.IDADir, fileName))
	if err != nil {
		return Bundle{}, err
	}

	return Bundle{Documents: []Document{{Name: fileName, Content: content}}}, nil
}

// GraphDescriptors lists every description file in the graph directory, sorted
// by name. The CSV path comes from the text before the first underscore.
func (s *Store) GraphDescriptors() ([]Descriptor, error) {
	entries, err := os.ReadDir(s.opts.GraphDir)
	if err != nil {
		return nil, fmt.Errorf("failed to list graph data: %w", err)
	}

	var descriptors []Descriptor
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), s.opts.DescriptionSuffix) {
			continue
		}

		text, err := s.read(filepath.Join(s.opts.GraphDir, entry.Name()))
		if err != nil {
			return nil, err
		}

		base := strings.SplitN(entry.Name(), "_", 2)[0]
		descriptors = append(descriptors, Descriptor{
			Name:        entry.Name(),
			CSVPath:     filepath.Join(s.opts.GraphDir, base+".csv"),
			Description: text,
		})
	}

	return descriptors, nil
}

// Invalidate drops a cached file so the next read goes to disk. Reads already
// in flight for the path will not store their result.
func (s *Store) Invalidate(path string) {
	path = filepath.Clean(path)

	s.mu.Lock()
	_, ok := s.cache[path]
	delete(s.cache, path)
	s.gens[path]++
	s.mu.Unlock()

	if ok {
		logger.Debug("Context cache invalidated", zap.String("path", path))
	}
}

func (s *Store) readDir(dir string) ([]Document, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to list %s: %v", ErrCollectionNotFound, dir, err)
	}

	docs := make([]Document, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		content, err := s.read(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, err
		}
		docs = append(docs, Document{Name: entry.Name(), Content: content})
	}
	return docs, nil
}

// read returns the current content of path. Every call stats the file, so an
// edit is seen on the next read whether or not a watcher is running.
func (s *Store) read(path string) (string, error) {
	path = filepath.Clean(path)

	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("%w: %s", ErrCollectionNotFound, filepath.Base(path))
	}
	if err != nil {
		return "", fmt.Errorf("failed to stat %s: %w", path, err)
	}

	s.mu.RLock()
	entry, ok := s.cache[path]
	gen := s.gens[path]
	s.mu.RUnlock()

	if ok && entry.size == info.Size() && entry.modTime.Equal(info.ModTime()) {
		metrics.CacheHits.WithLabelValues("context").Inc()
		return entry.content, nil
	}
	metrics.CacheMisses.WithLabelValues("context").Inc()

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("%w: %s", ErrCollectionNotFound, filepath.Base(path))
	}
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", path, err)
	}

	content := string(data)
	s.store(path, gen, cacheEntry{content: content, size: info.Size(), modTime: info.ModTime()})

	return content, nil
}

// store caches entry unless path was invalidated after gen was observed.
func (s *Store) store(path string, gen uint64, entry cacheEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.gens[path] != gen {
		return
	}
	s.cache[path] = entry
}

func validName(name string) bool {
	return name != "" && name != "." && name != ".." && !strings.ContainsAny(name, `/\`)
}
