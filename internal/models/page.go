package models

import "time"

// Page represents a single wiki page and the cached render of its latest revision.
type Page struct {
	Name             string
	Title            string
	Format           Format
	CurrentMarkdown  string
	CurrentHTML      string
	CurrentPlainText string
	CreatedAt        time.Time
	UpdatedAt        time.Time
	History          []Revision
}

// Latest returns the top of the page history.
func (p *Page) Latest() (Revision, bool) {
	if len(p.History) == 0 {
		return Revision{}, false
	}
	return p.History[len(p.History)-1], true
}

// Format names the markup language a revision is written in.
type Format string

const (
	FormatMarkdown Format = "markdown"
	FormatOrg      Format = "org"
)
