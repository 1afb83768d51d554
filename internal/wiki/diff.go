package wiki

import (
	"context"
	"fmt"

	"github.com/sergi/go-diff/diffmatchpatch"

	"babil/internal/models"
)

// DiffOp says what happened to a span of markup between two revisions.
type DiffOp string

const (
	DiffEqual  DiffOp = "equal"
	DiffInsert DiffOp = "insert"
	DiffDelete DiffOp = "delete"
)

// DiffSegment is a run of markup with one DiffOp.
type DiffSegment struct {
	Op   DiffOp
	Text string
}

// Diff compares the markup of two revisions of a page.
func (s *RevisionStore) Diff(ctx context.Context, name string, from, to int) ([]DiffSegment, error) {
	history, err := s.History(ctx, name)
	if err != nil {
		return nil, err
	}
	a, err := pick(history, name, from)
	if err != nil {
		return nil, err
	}
	b, err := pick(history, name, to)
	if err != nil {
		return nil, err
	}

	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMain(a.Markdown, b.Markdown, true)
	diffs = dmp.DiffCleanupSemantic(diffs)

	segments := make([]DiffSegment, 0, len(diffs))
	for _, d := range diffs {
		var op DiffOp
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			op = DiffInsert
		case diffmatchpatch.DiffDelete:
			op = DiffDelete
		default:
			op = DiffEqual
		}
		segments = append(segments, DiffSegment{Op: op, Text: d.Text})
	}
	return segments, nil
}

func pick(history []models.Revision, name string, index int) (models.Revision, error) {
	if index < 0 || index >= len(history) {
		return models.Revision{}, fmt.Errorf("%w: revision %d of %q", ErrNotFound, index, name)
	}
	return history[index], nil
}
