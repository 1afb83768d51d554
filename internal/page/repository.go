// Package page stores wiki pages together with their revision history.
package page

import (
	"context"
	"errors"

	"babil/internal/models"
)

var (
	// ErrNotFound is returned for an unknown page name.
	ErrNotFound = errors.New("page not found")
	// ErrConflict is returned when a page already exists, or when an appended
	// revision does not sit directly on top of the stored history.
	ErrConflict = errors.New("page conflict")
)

// Repository is the document store behind the wiki. Implementations must make
// Create and Append atomic: the revision and the page cache become visible
// together or not at all.
type Repository interface {
	// Create stores a new page whose History holds its first revision.
	Create(ctx context.Context, p *models.Page) error
	// Get returns the page with its full history, oldest first.
	Get(ctx context.Context, name string) (*models.Page, error)
	Exists(ctx context.Context, name string) (bool, error)
	// Append adds rev on top of the page history and refreshes the cache.
	// rev.Index must equal the current history length.
	Append(ctx context.Context, name string, rev models.Revision) error
	// Names lists every page name in ascending order.
	Names(ctx context.Context) ([]string, error)
	// List returns every page with its history, ordered by name.
	List(ctx context.Context) ([]models.Page, error)
}

// applyRevision refreshes the page cache from rev and appends it.
func applyRevision(p *models.Page, rev models.Revision) {
	p.Title = rev.Title
	p.Format = rev.Format
	p.CurrentMarkdown = rev.Markdown
	p.CurrentHTML = rev.HTML
	p.CurrentPlainText = rev.PlainText
	p.UpdatedAt = rev.CreatedAt
	p.History = append(p.History, rev)
}

// validNew checks the shape Create expects.
func validNew(p *models.Page) error {
	if p == nil || len(p.History) != 1 || p.History[0].Index != 0 {
		return errors.New("new page must carry exactly its first revision")
	}
	return nil
}

func clonePage(p *models.Page) *models.Page {
	c := *p
	c.History = append([]models.Revision(nil), p.History...)
	return &c
}
