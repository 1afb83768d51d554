package page

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"babil/internal/models"
)

// MemoryRepository keeps pages in process memory.
type MemoryRepository struct {
	mu    sync.RWMutex
	pages map[string]*models.Page
}

// NewMemoryRepository creates an empty in-memory repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{pages: make(map[string]*models.Page)}
}

func (r *MemoryRepository) Create(ctx context.Context, p *models.Page) error {
	if err := validNew(p); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.pages[p.Name]; ok {
		return fmt.Errorf("%w: %s", ErrConflict, p.Name)
	}
	stored := clonePage(p)
	first := stored.History[0]
	stored.History = nil
	applyRevision(stored, first)
	stored.CreatedAt = first.CreatedAt
	r.pages[p.Name] = stored
	return nil
}

func (r *MemoryRepository) Get(ctx context.Context, name string) (*models.Page, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.pages[name]
	if !ok {
		return nil, ErrNotFound
	}
	return clonePage(p), nil
}

func (r *MemoryRepository) Exists(ctx context.Context, name string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.pages[name]
	return ok, nil
}

func (r *MemoryRepository) Append(ctx context.Context, name string, rev models.Revision) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.pages[name]
	if !ok {
		return ErrNotFound
	}
	if rev.Index != len(p.History) {
		return fmt.Errorf("%w: revision %d on history of %d", ErrConflict, rev.Index, len(p.History))
	}
	// Copy on write so pages handed out earlier keep their snapshot.
	next := clonePage(p)
	applyRevision(next, rev)
	r.pages[name] = next
	return nil
}

func (r *MemoryRepository) Names(ctx context.Context) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.pages))
	for name := range r.pages {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (r *MemoryRepository) List(ctx context.Context) ([]models.Page, error) {
	names, _ := r.Names(ctx)
	r.mu.RLock()
	defer r.mu.RUnlock()
	pages := make([]models.Page, 0, len(names))
	for _, name := range names {
		if p, ok := r.pages[name]; ok {
			pages = append(pages, *clonePage(p))
		}
	}
	return pages, nil
}
