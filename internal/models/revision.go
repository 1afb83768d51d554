package models

import "time"

// Revision represents one immutable version of a page's content.
type Revision struct {
	ID        string
	PageName  string
	Index     int
	Title     string
	Markdown  string
	HTML      string
	PlainText string
	Format    Format
	Editor    string
	CreatedAt time.Time
}
