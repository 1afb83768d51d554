// Package wiki is the page engine: append-only revision histories, the page
// catalog with its search and index views, and the recent changes feed.
package wiki

import (
	"log/slog"

	"babil/internal/audio"
	"babil/internal/markup"
	"babil/internal/page"
)

// Engine bundles the components that share one page repository.
type Engine struct {
	Revisions *RevisionStore
	Catalog   *Catalog
	Feed      *Feed
}

// New wires an engine over repo. scheduler may be nil.
func New(repo page.Repository, renderer *markup.Renderer, scheduler audio.Scheduler, logger *slog.Logger) *Engine {
	revisions := NewRevisionStore(repo, renderer, scheduler, logger)
	return &Engine{
		Revisions: revisions,
		Catalog:   NewCatalog(repo, revisions, renderer),
		Feed:      NewFeed(repo),
	}
}
