// Package corpus loads prior documents from JSON files on disk.
package corpus

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/xeipuuv/gojsonschema"

	"priorart/internal/domain"
	"priorart/internal/logger"
)

// record mirrors one entry of a corpus file: a patent-shaped document.
type record struct {
	ID       string            `json:"id"`
	Title    string            `json:"title"`
	Abstract string            `json:"abstract"`
	Claims   []string          `json:"claims"`
	Metadata map[string]string `json:"metadata"`
}

// Loader discovers corpus files with include/exclude globs and parses
// them into source documents. Each file holds a JSON array of records.
type Loader struct {
	includes []string
	excludes []string
	schema   *gojsonschema.Schema
}

func NewLoader(includes, excludes []string) (*Loader, error) {
	if len(includes) == 0 {
		includes = []string{"**/*.json"}
	}
	schema, err := compileRecordSchema()
	if err != nil {
		return nil, fmt.Errorf("failed to compile record schema: %w", err)
	}
	return &Loader{
		includes: includes,
		excludes: excludes,
		schema:   schema,
	}, nil
}

func (l *Loader) Load(dir string) ([]domain.SourceDocument, error) {
	root, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}

	paths, err := l.discover(root)
	if err != nil {
		return nil, fmt.Errorf("failed to scan corpus dir %s: %w", dir, err)
	}

	var docs []domain.SourceDocument
	for _, path := range paths {
		fileDocs, err := l.loadFile(root, path)
		if err != nil {
			return nil, err
		}
		docs = append(docs, fileDocs...)
	}

	logger.Info("loaded %d documents from %d corpus files in %s", len(docs), len(paths), dir)
	return docs, nil
}

func (l *Loader) discover(root string) ([]string, error) {
	var paths []string

	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		relPath, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}

		if info.IsDir() {
			if l.matches(l.excludes, relPath+"/") {
				return filepath.SkipDir
			}
			return nil
		}

		if l.matches(l.includes, relPath) && !l.matches(l.excludes, relPath) {
			paths = append(paths, path)
		}
		return nil
	})

	return paths, err
}

func (l *Loader) matches(patterns []string, path string) bool {
	for _, pattern := range patterns {
		matched, err := doublestar.Match(pattern, path)
		if err == nil && matched {
			return true
		}
	}
	return false
}

func (l *Loader) loadFile(root, path string) ([]domain.SourceDocument, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	var raws []json.RawMessage
	if err := json.Unmarshal(data, &raws); err != nil {
		return nil, fmt.Errorf("corpus file %s is not a JSON array of records: %w", path, err)
	}

	relPath, err := filepath.Rel(root, path)
	if err != nil {
		relPath = path
	}

	docs := make([]domain.SourceDocument, 0, len(raws))
	for i, raw := range raws {
		violations, err := validateRecord(l.schema, raw)
		if err != nil {
			return nil, fmt.Errorf("failed to validate record %d in %s: %w", i, path, err)
		}
		if violations != "" {
			logger.Warn("skipping record %d in %s: %s", i, relPath, violations)
			continue
		}

		var rec record
		if err := json.Unmarshal(raw, &rec); err != nil {
			return nil, fmt.Errorf("failed to parse record %d in %s: %w", i, path, err)
		}

		text := rec.text()
		if text == "" {
			logger.Warn("skipping record %s in %s: no text", rec.ID, relPath)
			continue
		}

		docs = append(docs, domain.SourceDocument{
			ID:       rec.ID,
			Text:     text,
			Metadata: rec.documentMetadata(relPath),
		})
	}

	return docs, nil
}

// text assembles the document body: title, abstract and claims joined by
// blank lines, empty parts skipped.
func (r record) text() string {
	fields := make([]string, 0, 2+len(r.Claims))
	fields = append(fields, r.Title, r.Abstract)
	fields = append(fields, r.Claims...)

	parts := make([]string, 0, len(fields))
	for _, field := range fields {
		if trimmed := strings.TrimSpace(field); trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	return strings.Join(parts, "\n\n")
}

func (r record) documentMetadata(relPath string) map[string]string {
	meta := make(map[string]string, len(r.Metadata)+2)
	for k, v := range r.Metadata {
		meta[k] = v
	}
	meta["title"] = r.Title
	meta["path"] = relPath
	return meta
}
