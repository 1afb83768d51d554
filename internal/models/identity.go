package models

import "time"

// Identity represents a user. The token is both the identifier and the secret.
type Identity struct {
	Token        string
	WriteAllowed bool
	IsAdmin      bool
	CreatedAt    time.Time
}

// Modification records that an identity edited a page.
type Modification struct {
	PageName string
	At       time.Time
}
