package models

import "time"

// Artifact describes the synthesized audio rendering of a page title.
type Artifact struct {
	PageName  string
	Path      string
	Size      int64
	UpdatedAt time.Time
}
