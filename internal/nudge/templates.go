package nudge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/lalithlochan/tandem/internal/db"
)

// TemplateSet maps a nudge kind to its template. A set is loaded at the
// start of each cycle and passed down; nothing caches it between cycles.
type TemplateSet map[string]Document

// Lookup returns the template for kind.
func (s TemplateSet) Lookup(kind string) (Document, bool) {
	doc, ok := s[kind]
	return doc, ok
}

// TemplateSource loads the current templates.
type TemplateSource interface {
	Load(ctx context.Context) (TemplateSet, error)
}

// TemplateLister is the slice of the repository DBTemplates needs.
type TemplateLister interface {
	ListTemplates(ctx context.Context) ([]db.Template, error)
}

// DBTemplates reads templates from the nudge_templates table. A stored body
// that fails to decode or validate is logged and left out of the set, which
// makes that kind skip rather than failing the cycle.
type DBTemplates struct {
	repo   TemplateLister
	logger *zap.Logger
}

func NewDBTemplates(repo TemplateLister, logger *zap.Logger) *DBTemplates {
	return &DBTemplates{repo: repo, logger: logger}
}

func (s *DBTemplates) Load(ctx context.Context) (TemplateSet, error) {
	rows, err := s.repo.ListTemplates(ctx)
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}

	set := make(TemplateSet, len(rows))
	for _, row := range rows {
		var doc Document
		if err := json.Unmarshal(row.Body, &doc); err != nil {
			s.logger.Error("skipping undecodable template", zap.String("kind", row.Kind), zap.Error(err))
			continue
		}
		if err := doc.Validate(); err != nil {
			s.logger.Error("skipping invalid template", zap.String("kind", row.Kind), zap.Error(err))
			continue
		}
		set[row.Kind] = doc
	}

	return set, nil
}

// FileTemplates reads templates from a YAML file keyed by kind. The file is
// re-read on every Load so edits apply to the next cycle.
type FileTemplates struct {
	path string
}

func NewFileTemplates(path string) *FileTemplates {
	return &FileTemplates{path: path}
}

func (s *FileTemplates) Load(ctx context.Context) (TemplateSet, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("templates: read %s: %w", s.path, err)
	}
	set, err := ParseTemplatesYAML(data)
	if err != nil {
		return nil, fmt.Errorf("templates: %s: %w", s.path, err)
	}
	return set, nil
}

// ParseTemplatesYAML decodes and validates a kind -> document mapping.
func ParseTemplatesYAML(data []byte) (TemplateSet, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fmt.Errorf("template file is empty")
	}

	var set TemplateSet
	if err := yaml.Unmarshal(data, &set); err != nil {
		return nil, fmt.Errorf("decode templates: %w", err)
	}

	for kind, doc := range set {
		if !IsKind(kind) {
			return nil, fmt.Errorf("unknown nudge kind %q", kind)
		}
		if err := doc.Validate(); err != nil {
			return nil, fmt.Errorf("%s: %w", kind, err)
		}
	}

	return set, nil
}
