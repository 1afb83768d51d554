package wiki

import (
	"errors"
	"fmt"

	"babil/internal/page"
)

var (
	// ErrValidation marks blank required fields, bad page names and unknown
	// markup formats. The message is fit to show next to the form.
	ErrValidation = errors.New("invalid input")
	// ErrConflict marks a page name that is already taken.
	ErrConflict = errors.New("page already exists")
	// ErrNotFound marks an unknown page or revision.
	ErrNotFound = errors.New("not found")
	// ErrEmptyCatalog is returned when picking a random page from an empty wiki.
	ErrEmptyCatalog = errors.New("the wiki has no pages yet")
	// ErrCorrupt marks a stored page without any revision.
	ErrCorrupt = errors.New("page has no revisions")
)

// storeErr maps repository errors onto the wiki taxonomy.
func storeErr(name string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, page.ErrNotFound):
		return fmt.Errorf("%w: page %q: %w", ErrNotFound, name, err)
	case errors.Is(err, page.ErrConflict):
		return fmt.Errorf("%w: %q: %w", ErrConflict, name, err)
	}
	return fmt.Errorf("page %q: %w", name, err)
}

func errorKind(err error) string {
	switch {
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrCorrupt):
		return "corrupt"
	}
	return "internal"
}
