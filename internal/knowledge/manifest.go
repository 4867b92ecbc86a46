package knowledge

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/taurusduan/ragflow-plus/internal/storage"
)

// ErrInvalidManifest is returned when a manifest fails validation.
var ErrInvalidManifest = errors.New("invalid knowledge manifest")

var validate = validator.New()

// Manifest lists the knowledge bases to load and their source documents.
type Manifest struct {
	KnowledgeBases []KnowledgeBaseSource `yaml:"knowledge_bases" validate:"dive"`

	dir string
}

// KnowledgeBaseSource describes one knowledge base and where its documents live.
type KnowledgeBaseSource struct {
	ID             string `yaml:"id" validate:"required"`
	TenantID       string `yaml:"tenant_id" validate:"required"`
	Name           string `yaml:"name"`
	EmbeddingModel string `yaml:"embedding_model" validate:"required"`
	Parser         string `yaml:"parser" validate:"omitempty,oneof=naive table knowledge_graph"`
	// Documents are file paths or glob patterns relative to the manifest.
	Documents []string `yaml:"documents" validate:"min=1,dive,required"`
	// Fields is the tabular schema. Table knowledge bases load CSV files
	// whose header names these fields.
	Fields []FieldSource `yaml:"fields" validate:"required_if=Parser table,dive"`
}

// FieldSource is a tabular column and its display label.
type FieldSource struct {
	Name  string `yaml:"name" validate:"required,lowercase"`
	Label string `yaml:"label"`
}

// ParserID returns the parser, defaulting to naive.
func (s KnowledgeBaseSource) ParserID() string {
	if s.Parser == "" {
		return storage.ParserNaive
	}
	return s.Parser
}

// FieldMap returns the fields as stored on the knowledge base.
func (s KnowledgeBaseSource) FieldMap() []storage.Field {
	fields := make([]storage.Field, len(s.Fields))
	for i, f := range s.Fields {
		fields[i] = storage.Field{Name: f.Name, Label: f.Label}
		if f.Label == "" {
			fields[i].Label = f.Name
		}
	}
	return fields
}

// LoadManifest reads and validates the manifest at path. Document paths
// resolve relative to its directory.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read knowledge manifest: %w", err)
	}
	return ParseManifest(data, filepath.Dir(path))
}

// ParseManifest decodes a manifest whose documents live under dir.
func ParseManifest(data []byte, dir string) (*Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidManifest, err)
	}
	if err := validate.Struct(m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidManifest, err)
	}

	seen := make(map[string]bool, len(m.KnowledgeBases))
	for i := range m.KnowledgeBases {
		kb := &m.KnowledgeBases[i]
		if seen[kb.ID] {
			return nil, fmt.Errorf("%w: duplicate knowledge base %q", ErrInvalidManifest, kb.ID)
		}
		seen[kb.ID] = true
		if kb.Name == "" {
			kb.Name = kb.ID
		}
	}
	m.dir = dir
	return &m, nil
}

// Files expands the document patterns of src into sorted, unique paths.
func (m *Manifest) Files(src KnowledgeBaseSource) ([]string, error) {
	seen := make(map[string]bool)
	var files []string
	for _, pattern := range src.Documents {
		if !filepath.IsAbs(pattern) {
			pattern = filepath.Join(m.dir, pattern)
		}
		matches, err := filepath.Glob(pattern)
		if err != nil {
			return nil, fmt.Errorf("bad document pattern %q: %w", pattern, err)
		}
		if len(matches) == 0 {
			return nil, fmt.Errorf("document pattern %q matches no file", pattern)
		}
		for _, f := range matches {
			if !seen[f] {
				seen[f] = true
				files = append(files, f)
			}
		}
	}
	sort.Strings(files)
	return files, nil
}

// DocumentName is the name a file is stored and cited under.
func (m *Manifest) DocumentName(path string) string {
	if rel, err := filepath.Rel(m.dir, path); err == nil && !strings.HasPrefix(rel, "..") {
		return filepath.ToSlash(rel)
	}
	return filepath.Base(path)
}
