package cache

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// IOError reports a failure to read or write the cache file. Load failures
// are recoverable (the caller proceeds with an empty cache); save failures
// are fatal to the run.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("cache %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}

// fileEntry is the on-disk shape of one entry. Field order here is the
// serialization order.
type fileEntry struct {
	Cites     int    `yaml:"cites"`
	Updated   string `yaml:"updated,omitempty"`
	Attempted string `yaml:"attempted,omitempty"`
	Query     string `yaml:"query,omitempty"`
	URL       string `yaml:"url,omitempty"`
}

// Store reads and writes the cache file. The file is YAML so owners can
// inspect and hand-edit it; keys are serialized in sorted order so repeated
// saves of the same cache are byte-identical and diffs stay reviewable.
type Store struct {
	path   string
	logger *zap.Logger
}

// NewStore creates a store for the given file path, ensuring the parent
// directory exists.
func NewStore(path string, logger *zap.Logger) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("cache path is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create cache dir %s: %w", dir, err)
		}
	}
	return &Store{path: path, logger: logger}, nil
}

// Path returns the cache file location.
func (s *Store) Path() string {
	return s.path
}

// Load reads the cache file. A missing file yields an empty cache (first
// run); unreadable or malformed content yields an *IOError so the caller
// can decide to continue with an empty cache.
func (s *Store) Load(ctx context.Context) (*Cache, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context canceled: %w", err)
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			s.logger.Debug("Cache file not found; starting empty", zap.String("path", s.path))
			return New(), nil
		}
		return nil, &IOError{Op: "read", Path: s.path, Err: err}
	}

	raw := make(map[string]fileEntry)
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, &IOError{Op: "parse", Path: s.path, Err: err}
	}

	c := New()
	for key, fe := range raw {
		entry, err := fe.toEntry()
		if err != nil {
			return nil, &IOError{Op: "parse", Path: s.path, Err: fmt.Errorf("entry %q: %w", key, err)}
		}
		c.entries[key] = entry
	}
	s.logger.Debug("Cache loaded", zap.String("path", s.path), zap.Int("entries", c.Len()))
	return c, nil
}

// Save atomically replaces the cache file: full write to a temp file in the
// same directory, then rename. A crash mid-write never leaves a truncated
// cache behind.
func (s *Store) Save(ctx context.Context, c *Cache) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context canceled: %w", err)
	}

	data, err := marshal(c)
	if err != nil {
		return &IOError{Op: "encode", Path: s.path, Err: err}
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return &IOError{Op: "write", Path: s.path, Err: err}
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.path)+".*")
	if err != nil {
		return &IOError{Op: "write", Path: s.path, Err: err}
	}
	tmpName := tmp.Name()
	cleanup := func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}

	if _, err := tmp.Write(data); err != nil {
		cleanup()
		return &IOError{Op: "write", Path: tmpName, Err: err}
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return &IOError{Op: "sync", Path: tmpName, Err: err}
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return &IOError{Op: "close", Path: tmpName, Err: err}
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		_ = os.Remove(tmpName)
		return &IOError{Op: "chmod", Path: tmpName, Err: err}
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		_ = os.Remove(tmpName)
		return &IOError{Op: "rename", Path: s.path, Err: err}
	}
	s.logger.Debug("Cache saved", zap.String("path", s.path), zap.Int("entries", c.Len()))
	return nil
}

func (fe fileEntry) toEntry() (*Entry, error) {
	if fe.Cites < 0 {
		return nil, fmt.Errorf("negative cite count %d", fe.Cites)
	}
	entry := &Entry{
		Query: fe.Query,
		Cites: fe.Cites,
		URL:   fe.URL,
	}
	var err error
	if entry.Updated, err = parseTime(fe.Updated); err != nil {
		return nil, fmt.Errorf("updated: %w", err)
	}
	if entry.Attempted, err = parseTime(fe.Attempted); err != nil {
		return nil, fmt.Errorf("attempted: %w", err)
	}
	return entry, nil
}

func fromEntry(e *Entry) fileEntry {
	return fileEntry{
		Cites:     e.Cites,
		Updated:   formatTime(e.Updated),
		Attempted: formatTime(e.Attempted),
		Query:     e.Query,
		URL:       e.URL,
	}
}

func marshal(c *Cache) ([]byte, error) {
	root := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	for _, key := range c.Keys() {
		entry, _ := c.Get(key)
		valNode := &yaml.Node{}
		if err := valNode.Encode(fromEntry(entry)); err != nil {
			return nil, fmt.Errorf("encode entry %q: %w", key, err)
		}
		keyNode := &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: key}
		root.Content = append(root.Content, keyNode, valNode)
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(root); err != nil {
		return nil, fmt.Errorf("encode cache: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("flush cache encoder: %w", err)
	}
	return buf.Bytes(), nil
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Truncate(time.Second).Format(time.RFC3339)
}
