package wiki

import (
	"container/heap"
	"context"

	"babil/internal/models"
	"babil/internal/page"
)

// FeedEntry is one line of the recent changes view.
type FeedEntry struct {
	PageName  string
	PageTitle string
	Revision  models.Revision
}

// Feed derives recent changes from page histories. It never writes.
type Feed struct {
	repo page.Repository
}

func NewFeed(repo page.Repository) *Feed {
	return &Feed{repo: repo}
}

// cursor walks one page history from newest to oldest.
type cursor struct {
	page *models.Page
	pos  int
}

func (c cursor) rev() models.Revision { return c.page.History[c.pos] }

// cursorHeap pops the newest revision across all pages. Equal timestamps pop
// in page name order.
type cursorHeap []cursor

func (h cursorHeap) Len() int { return len(h) }
func (h cursorHeap) Less(i, j int) bool {
	a, b := h[i].rev().CreatedAt, h[j].rev().CreatedAt
	if !a.Equal(b) {
		return a.After(b)
	}
	return h[i].page.Name < h[j].page.Name
}
func (h cursorHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *cursorHeap) Push(x any)   { *h = append(*h, x.(cursor)) }
func (h *cursorHeap) Pop() any {
	old := *h
	c := old[len(old)-1]
	*h = old[:len(old)-1]
	return c
}

// LastEdits returns up to limit edits, newest first. A run of consecutive
// edits by one editor on one page shows up once, as its newest edit; the
// same editor coming back after someone else starts a new entry.
func (f *Feed) LastEdits(ctx context.Context, limit int) ([]FeedEntry, error) {
	if limit <= 0 {
		return nil, nil
	}
	pages, err := f.repo.List(ctx)
	if err != nil {
		return nil, err
	}

	h := make(cursorHeap, 0, len(pages))
	for i := range pages {
		if n := len(pages[i].History); n > 0 {
			h = append(h, cursor{page: &pages[i], pos: n - 1})
		}
	}
	heap.Init(&h)

	type runKey struct{ page, editor string }
	var prev *runKey
	entries := make([]FeedEntry, 0, limit)

	for h.Len() > 0 && len(entries) < limit {
		c := h[0]
		rev := c.rev()
		key := runKey{page: c.page.Name, editor: rev.Editor}

		if prev == nil || *prev != key {
			entries = append(entries, FeedEntry{PageName: c.page.Name, PageTitle: c.page.Title, Revision: rev})
		}
		prev = &key

		if c.pos == 0 {
			heap.Pop(&h)
		} else {
			h[0].pos--
			heap.Fix(&h, 0)
		}
	}
	return entries, nil
}
