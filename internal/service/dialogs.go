package service

import (
	"context"
	"fmt"
	"os"
	"slices"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/taurusduan/ragflow-plus/internal/rag"
)

// dialogFile is the YAML layout of a dialogs file:
//
//	dialogs:
//	  - id: support
//	    tenant_id: acme
//	    kb_ids: [manuals]
//	    prompt_config:
//	      system: "Answer with {knowledge}"
//	      parameters: [{key: knowledge}]
type dialogFile struct {
	Dialogs []rag.Dialog `yaml:"dialogs"`
}

// DialogRegistry holds the dialog configurations served by the API.
type DialogRegistry struct {
	mu      sync.RWMutex
	dialogs map[string]rag.Dialog
	order   []string // Registration order, listed as create_time
}

// NewDialogRegistry creates an empty registry.
func NewDialogRegistry() *DialogRegistry {
	return &DialogRegistry{dialogs: make(map[string]rag.Dialog)}
}

// LoadDialogs reads and validates the dialogs file at path.
func LoadDialogs(path string) (*DialogRegistry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read dialogs file: %w", err)
	}
	reg, err := ParseDialogs(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return reg, nil
}

// ParseDialogs builds a registry from YAML.
func ParseDialogs(data []byte) (*DialogRegistry, error) {
	var f dialogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: failed to parse dialogs: %w", ErrInvalidInput, err)
	}
	reg := NewDialogRegistry()
	for _, d := range f.Dialogs {
		if err := reg.Add(d); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

// Add validates and registers d.
func (r *DialogRegistry) Add(d rag.Dialog) error {
	if err := d.Validate(); err != nil {
		return fmt.Errorf("%w: dialog %q: %w", ErrInvalidInput, d.ID, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.dialogs[d.ID]; ok {
		return fmt.Errorf("%w: duplicate dialog %q", ErrInvalidInput, d.ID)
	}
	r.dialogs[d.ID] = d
	r.order = append(r.order, d.ID)
	return nil
}

// Get returns the dialog id.
func (r *DialogRegistry) Get(_ context.Context, id string) (rag.Dialog, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.dialogs[id]
	if !ok {
		return rag.Dialog{}, fmt.Errorf("%w: dialog %q", ErrNotFound, id)
	}
	return d, nil
}

// IDs returns the registered dialog ids, sorted.
func (r *DialogRegistry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.dialogs))
	for id := range r.dialogs {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Orderings accepted by List.
const (
	OrderByCreateTime = "create_time"
	OrderByID         = "id"
	OrderByName       = "name"
)

// ListQuery filters, orders and paginates a dialog listing.
type ListQuery struct {
	ID      string // Exact id match when set
	Name    string // Exact name match when set
	OrderBy string `validate:"omitempty,oneof=create_time id name"`
	Desc    bool
	// Page is 1-based. Results are paginated only when Page and PageSize
	// are both positive.
	Page     int `validate:"gte=0"`
	PageSize int `validate:"gte=0"`
}

// List returns the dialogs of tenantID matching q. OrderBy defaults to
// create_time; ties keep registration order.
func (r *DialogRegistry) List(_ context.Context, tenantID string, q ListQuery) ([]rag.Dialog, error) {
	if tenantID == "" {
		return nil, &ValidationError{Field: "tenant_id", Message: "is required"}
	}
	if err := validate.Struct(q); err != nil {
		return nil, validationError(err)
	}

	r.mu.RLock()
	dialogs := make([]rag.Dialog, 0, len(r.order))
	pos := make(map[string]int, len(r.order))
	for i, id := range r.order {
		d := r.dialogs[id]
		pos[id] = i
		if d.TenantID != tenantID || (q.ID != "" && d.ID != q.ID) || (q.Name != "" && d.Name != q.Name) {
			continue
		}
		dialogs = append(dialogs, d)
	}
	r.mu.RUnlock()

	slices.SortStableFunc(dialogs, func(a, b rag.Dialog) int {
		var c int
		switch q.OrderBy {
		case OrderByID:
			c = strings.Compare(a.ID, b.ID)
		case OrderByName:
			c = strings.Compare(a.Name, b.Name)
		default:
			c = pos[a.ID] - pos[b.ID]
		}
		if q.Desc {
			return -c
		}
		return c
	})

	if q.Page > 0 && q.PageSize > 0 {
		start := (q.Page - 1) * q.PageSize
		if start >= len(dialogs) {
			return []rag.Dialog{}, nil
		}
		dialogs = dialogs[start:min(start+q.PageSize, len(dialogs))]
	}
	return dialogs, nil
}
