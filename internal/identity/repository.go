// Package identity maps self-chosen tokens to permissions and edit records.
package identity

import (
	"context"
	"errors"

	"babil/internal/models"
)

var (
	// ErrNotFound is returned for an unknown token.
	ErrNotFound = errors.New("identity not found")
	// ErrExists is returned when registering a token twice.
	ErrExists = errors.New("identity already exists")
)

// Repository stores identities keyed by their (possibly digested) token.
type Repository interface {
	Find(ctx context.Context, key string) (*models.Identity, error)
	Create(ctx context.Context, id *models.Identity) error
	SetFlags(ctx context.Context, key string, writeAllowed, isAdmin bool) error
	AddModification(ctx context.Context, key string, m models.Modification) error
	// Modifications lists edits most recent first; limit <= 0 means all.
	Modifications(ctx context.Context, key string, limit int) ([]models.Modification, error)
}
