package viewmodels

import (
	"html/template"
	"time"

	"babil/internal/identity"
	"babil/internal/models"
	"babil/internal/wiki"
)

// Viewer describes the visitor of a page.
type Viewer struct {
	Token    string
	Key      string // profile key, a digest when tokens are hashed
	LoggedIn bool
	CanWrite bool
	IsAdmin  bool
}

// RevisionRow is one line of the history table, newest first.
type RevisionRow struct {
	Index     int
	Title     string
	Editor    string
	CreatedAt time.Time
	Current   bool
}

// PageForm holds what the visitor typed into the create or edit form.
type PageForm struct {
	Name     string
	Title    string
	Markdown string
	Format   models.Format
}

// PageData is a unified struct to hold all possible data for any page.
type PageData struct {
	Viewer   Viewer
	Heading  string
	Message  string
	Page     *models.Page
	Content  template.HTML
	HasAudio bool
	Form     PageForm
	Formats  []models.Format

	Revisions []RevisionRow
	Diff      []wiki.DiffSegment
	DiffFrom  int
	DiffTo    int

	Query   string
	Results []wiki.SearchResult
	Feed    []wiki.FeedEntry
	Groups  []wiki.InitialGroup
	Profile *identity.Profile

	PageCount int
}
