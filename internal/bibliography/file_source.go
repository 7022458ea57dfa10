package bibliography

import (
	"context"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// fileRecord is one list item in the publications YAML file.
type fileRecord struct {
	Key     string   `yaml:"key,omitempty"`
	Title   string   `yaml:"title"`
	Authors []string `yaml:"authors,omitempty"`
	Query   string   `yaml:"query,omitempty"`
}

// FileSource loads records from a YAML publication list. Records without an
// explicit key get one derived from their authors and title, so the same
// publication maps to the same cache entry on every run.
type FileSource struct {
	path   string
	hasher Hasher
	logger *zap.Logger
}

// NewFileSource creates a source for the given file path.
func NewFileSource(path string, hasher Hasher, logger *zap.Logger) (*FileSource, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("bibliography path is required")
	}
	if hasher == nil {
		return nil, fmt.Errorf("hasher is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FileSource{path: path, hasher: hasher, logger: logger}, nil
}

// Records reads and validates the publication list, preserving file order.
// Records lacking both a title and a query are skipped with a warning, as
// are duplicate keys (first occurrence wins).
func (s *FileSource) Records(ctx context.Context) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context canceled: %w", err)
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("read bibliography %s: %w", s.path, err)
	}

	var raw []fileRecord
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse bibliography %s: %w", s.path, err)
	}

	records := make([]Record, 0, len(raw))
	seen := make(map[string]struct{}, len(raw))
	for i, fr := range raw {
		rec := Record{
			Key:     strings.TrimSpace(fr.Key),
			Title:   strings.TrimSpace(fr.Title),
			Authors: trimAll(fr.Authors),
			Query:   strings.TrimSpace(fr.Query),
		}
		if rec.Title == "" && rec.Query == "" {
			s.logger.Warn("Skipping bibliography record without title or query",
				zap.Int("index", i))
			continue
		}
		if rec.Key == "" {
			rec.Key, err = s.deriveKey(rec)
			if err != nil {
				return nil, fmt.Errorf("derive key for record %d: %w", i, err)
			}
		}
		if _, dup := seen[rec.Key]; dup {
			s.logger.Warn("Skipping duplicate bibliography key",
				zap.String("key", rec.Key),
				zap.String("title", rec.Title))
			continue
		}
		seen[rec.Key] = struct{}{}
		records = append(records, rec)
	}

	s.logger.Debug("Bibliography loaded",
		zap.String("path", s.path),
		zap.Int("records", len(records)))
	return records, nil
}

func (s *FileSource) deriveKey(rec Record) (string, error) {
	digest, err := s.hasher.HashFields(rec.AuthorList(), rec.Title)
	if err != nil {
		return "", err
	}
	if len(digest) > keyLen {
		digest = digest[:keyLen]
	}
	return digest, nil
}

func trimAll(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	out := make([]string, 0, len(in))
	for _, v := range in {
		if t := strings.TrimSpace(v); t != "" {
			out = append(out, t)
		}
	}
	return out
}
