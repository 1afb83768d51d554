package page

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"babil/internal/database"
	"babil/internal/models"
)

// SQLRepository provides access to the page storage in SQLite.
type SQLRepository struct {
	DB *sql.DB
}

// NewSQLRepository creates a new page repository.
func NewSQLRepository(db *sql.DB) *SQLRepository {
	return &SQLRepository{DB: db}
}

// Create creates a new page and its initial revision in a transaction.
func (r *SQLRepository) Create(ctx context.Context, p *models.Page) error {
	if err := validNew(p); err != nil {
		return err
	}
	rev := p.History[0]

	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("error starting transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		"INSERT INTO pages (name, title, format, current_markdown, current_html, current_plain_text, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)",
		p.Name, rev.Title, string(rev.Format), rev.Markdown, rev.HTML, rev.PlainText, rev.CreatedAt.UnixNano(), rev.CreatedAt.UnixNano())
	if err != nil {
		if database.IsConstraint(err) {
			return fmt.Errorf("%w: %s", ErrConflict, p.Name)
		}
		return fmt.Errorf("error creating page: %w", err)
	}

	if err := insertRevision(ctx, tx, p.Name, rev); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("error committing transaction: %w", err)
	}
	return nil
}

// Append inserts a revision and updates the page cache in a transaction.
func (r *SQLRepository) Append(ctx context.Context, name string, rev models.Revision) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("error starting transaction: %w", err)
	}
	defer tx.Rollback()

	var count int
	err = tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM revisions WHERE page_name = ?", name).Scan(&count)
	if err != nil {
		return fmt.Errorf("error counting revisions: %w", err)
	}
	if count == 0 {
		return ErrNotFound
	}
	if rev.Index != count {
		return fmt.Errorf("%w: revision %d on history of %d", ErrConflict, rev.Index, count)
	}

	if err := insertRevision(ctx, tx, name, rev); err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx,
		"UPDATE pages SET title = ?, format = ?, current_markdown = ?, current_html = ?, current_plain_text = ?, updated_at = ? WHERE name = ?",
		rev.Title, string(rev.Format), rev.Markdown, rev.HTML, rev.PlainText, rev.CreatedAt.UnixNano(), name)
	if err != nil {
		return fmt.Errorf("error updating page cache: %w", err)
	}

	return tx.Commit()
}

func insertRevision(ctx context.Context, tx *sql.Tx, name string, rev models.Revision) error {
	_, err := tx.ExecContext(ctx,
		"INSERT INTO revisions (id, page_name, idx, title, markdown, html, plain_text, format, editor, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
		rev.ID, name, rev.Index, rev.Title, rev.Markdown, rev.HTML, rev.PlainText, string(rev.Format), rev.Editor, rev.CreatedAt.UnixNano())
	if err != nil {
		if database.IsConstraint(err) {
			return fmt.Errorf("%w: revision %d of %s", ErrConflict, rev.Index, name)
		}
		return fmt.Errorf("error creating revision: %w", err)
	}
	return nil
}

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// readTx runs fn in a read-only transaction so the page cache and the
// history it reads come from the same state. fn must only use tx: the pool
// holds a single connection.
func (r *SQLRepository) readTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := r.DB.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return fmt.Errorf("error starting transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// Get loads a page and its history.
func (r *SQLRepository) Get(ctx context.Context, name string) (*models.Page, error) {
	var p *models.Page
	err := r.readTx(ctx, func(tx *sql.Tx) error {
		var err error
		p, err = getPage(ctx, tx, name)
		if err != nil {
			return err
		}
		p.History, err = listRevisions(ctx, tx, name)
		return err
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

const pageColumns = "name, title, format, current_markdown, current_html, current_plain_text, created_at, updated_at"

const revisionColumns = "id, page_name, idx, title, markdown, html, plain_text, format, editor, created_at"

type scanner interface {
	Scan(dest ...any) error
}

func scanPage(row scanner) (*models.Page, error) {
	var p models.Page
	var format string
	var created, updated int64
	if err := row.Scan(&p.Name, &p.Title, &format, &p.CurrentMarkdown, &p.CurrentHTML, &p.CurrentPlainText, &created, &updated); err != nil {
		return nil, err
	}
	p.Format = models.Format(format)
	p.CreatedAt = time.Unix(0, created).UTC()
	p.UpdatedAt = time.Unix(0, updated).UTC()
	return &p, nil
}

func scanRevision(row scanner) (models.Revision, error) {
	var rev models.Revision
	var format string
	var created int64
	if err := row.Scan(&rev.ID, &rev.PageName, &rev.Index, &rev.Title, &rev.Markdown, &rev.HTML, &rev.PlainText, &format, &rev.Editor, &created); err != nil {
		return models.Revision{}, err
	}
	rev.Format = models.Format(format)
	rev.CreatedAt = time.Unix(0, created).UTC()
	return rev, nil
}

func getPage(ctx context.Context, q querier, name string) (*models.Page, error) {
	p, err := scanPage(q.QueryRowContext(ctx, "SELECT "+pageColumns+" FROM pages WHERE name = ?", name))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return p, err
}

// listRevisions lists the revisions of a page, oldest first.
func listRevisions(ctx context.Context, q querier, name string) ([]models.Revision, error) {
	rows, err := q.QueryContext(ctx,
		"SELECT "+revisionColumns+" FROM revisions WHERE page_name = ? ORDER BY idx ASC", name)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var revisions []models.Revision
	for rows.Next() {
		rev, err := scanRevision(rows)
		if err != nil {
			return nil, err
		}
		revisions = append(revisions, rev)
	}
	return revisions, rows.Err()
}

func (r *SQLRepository) Exists(ctx context.Context, name string) (bool, error) {
	var one int
	err := r.DB.QueryRowContext(ctx, "SELECT 1 FROM pages WHERE name = ?", name).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}

// Names lists all page names.
func (r *SQLRepository) Names(ctx context.Context) ([]string, error) {
	rows, err := r.DB.QueryContext(ctx, "SELECT name FROM pages ORDER BY name ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// List loads every page with its history from a single snapshot.
func (r *SQLRepository) List(ctx context.Context) ([]models.Page, error) {
	var pages []models.Page
	err := r.readTx(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, "SELECT "+pageColumns+" FROM pages ORDER BY name ASC")
		if err != nil {
			return err
		}
		index := make(map[string]int)
		for rows.Next() {
			p, err := scanPage(rows)
			if err != nil {
				rows.Close()
				return err
			}
			index[p.Name] = len(pages)
			pages = append(pages, *p)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		rows, err = tx.QueryContext(ctx, "SELECT "+revisionColumns+" FROM revisions ORDER BY page_name ASC, idx ASC")
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			rev, err := scanRevision(rows)
			if err != nil {
				return err
			}
			if i, ok := index[rev.PageName]; ok {
				pages[i].History = append(pages[i].History, rev)
			}
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return pages, nil
}
