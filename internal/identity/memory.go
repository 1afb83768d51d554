package identity

import (
	"context"
	"sync"

	"babil/internal/models"
)

// MemoryRepository keeps identities in process memory.
type MemoryRepository struct {
	mu    sync.RWMutex
	ids   map[string]models.Identity
	edits map[string][]models.Modification
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		ids:   make(map[string]models.Identity),
		edits: make(map[string][]models.Modification),
	}
}

func (r *MemoryRepository) Find(ctx context.Context, key string) (*models.Identity, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.ids[key]
	if !ok {
		return nil, ErrNotFound
	}
	return &id, nil
}

func (r *MemoryRepository) Create(ctx context.Context, id *models.Identity) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.ids[id.Token]; ok {
		return ErrExists
	}
	r.ids[id.Token] = *id
	return nil
}

func (r *MemoryRepository) SetFlags(ctx context.Context, key string, writeAllowed, isAdmin bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.ids[key]
	if !ok {
		return ErrNotFound
	}
	id.WriteAllowed = writeAllowed
	id.IsAdmin = isAdmin
	r.ids[key] = id
	return nil
}

func (r *MemoryRepository) AddModification(ctx context.Context, key string, m models.Modification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.ids[key]; !ok {
		return ErrNotFound
	}
	r.edits[key] = append(r.edits[key], m)
	return nil
}

func (r *MemoryRepository) Modifications(ctx context.Context, key string, limit int) ([]models.Modification, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return newestFirst(r.edits[key], limit), nil
}

func newestFirst(edits []models.Modification, limit int) []models.Modification {
	n := len(edits)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]models.Modification, 0, n)
	for i := len(edits) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, edits[i])
	}
	return out
}
