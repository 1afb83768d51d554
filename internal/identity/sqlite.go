package identity

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"babil/internal/database"
	"babil/internal/models"
)

// SQLRepository provides access to the identity storage in SQLite.
type SQLRepository struct {
	DB *sql.DB
}

// NewSQLRepository creates a new identity repository.
func NewSQLRepository(db *sql.DB) *SQLRepository {
	return &SQLRepository{DB: db}
}

// Find finds an identity by its key.
func (r *SQLRepository) Find(ctx context.Context, key string) (*models.Identity, error) {
	var id models.Identity
	var created int64
	err := r.DB.QueryRowContext(ctx, "SELECT token, write_allowed, is_admin, created_at FROM identities WHERE token = ?", key).
		Scan(&id.Token, &id.WriteAllowed, &id.IsAdmin, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	id.CreatedAt = time.Unix(0, created).UTC()
	return &id, nil
}

// Create registers a new identity.
func (r *SQLRepository) Create(ctx context.Context, id *models.Identity) error {
	_, err := r.DB.ExecContext(ctx, "INSERT INTO identities (token, write_allowed, is_admin, created_at) VALUES (?, ?, ?, ?)",
		id.Token, id.WriteAllowed, id.IsAdmin, id.CreatedAt.UnixNano())
	if database.IsConstraint(err) {
		return ErrExists
	}
	return err
}

// SetFlags updates the moderation flags of an identity.
func (r *SQLRepository) SetFlags(ctx context.Context, key string, writeAllowed, isAdmin bool) error {
	res, err := r.DB.ExecContext(ctx, "UPDATE identities SET write_allowed = ?, is_admin = ? WHERE token = ?", writeAllowed, isAdmin, key)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// AddModification records an edit.
func (r *SQLRepository) AddModification(ctx context.Context, key string, m models.Modification) error {
	res, err := r.DB.ExecContext(ctx,
		"INSERT INTO modifications (token, page_name, created_at) SELECT ?, ?, ? WHERE EXISTS (SELECT 1 FROM identities WHERE token = ?)",
		key, m.PageName, m.At.UnixNano(), key)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Modifications lists edits, most recent first.
func (r *SQLRepository) Modifications(ctx context.Context, key string, limit int) ([]models.Modification, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := r.DB.QueryContext(ctx, "SELECT page_name, created_at FROM modifications WHERE token = ? ORDER BY id DESC LIMIT ?", key, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var edits []models.Modification
	for rows.Next() {
		var m models.Modification
		var at int64
		if err := rows.Scan(&m.PageName, &at); err != nil {
			return nil, err
		}
		m.At = time.Unix(0, at).UTC()
		edits = append(edits, m)
	}
	return edits, rows.Err()
}
