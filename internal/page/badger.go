package page

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"

	"babil/internal/models"
)

const pageKeyPrefix = "page/"

// BadgerRepository stores each page, history included, as one JSON document.
type BadgerRepository struct {
	DB *badger.DB
}

// NewBadgerRepository creates a repository over an open badger database.
func NewBadgerRepository(db *badger.DB) *BadgerRepository {
	return &BadgerRepository{DB: db}
}

func pageKey(name string) []byte {
	return []byte(pageKeyPrefix + name)
}

func loadPage(txn *badger.Txn, name string) (*models.Page, error) {
	item, err := txn.Get(pageKey(name))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var p models.Page
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &p)
	})
	if err != nil {
		return nil, fmt.Errorf("decode page %s: %w", name, err)
	}
	return &p, nil
}

func storePage(txn *badger.Txn, p *models.Page) error {
	b, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode page %s: %w", p.Name, err)
	}
	return txn.Set(pageKey(p.Name), b)
}

func (r *BadgerRepository) Create(ctx context.Context, p *models.Page) error {
	if err := validNew(p); err != nil {
		return err
	}
	err := r.DB.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(pageKey(p.Name)); err == nil {
			return fmt.Errorf("%w: %s", ErrConflict, p.Name)
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		stored := clonePage(p)
		first := stored.History[0]
		stored.History = nil
		applyRevision(stored, first)
		stored.CreatedAt = first.CreatedAt
		return storePage(txn, stored)
	})
	if errors.Is(err, badger.ErrConflict) {
		return fmt.Errorf("%w: %s", ErrConflict, p.Name)
	}
	return err
}

func (r *BadgerRepository) Get(ctx context.Context, name string) (*models.Page, error) {
	var p *models.Page
	err := r.DB.View(func(txn *badger.Txn) error {
		var err error
		p, err = loadPage(txn, name)
		return err
	})
	return p, err
}

func (r *BadgerRepository) Exists(ctx context.Context, name string) (bool, error) {
	err := r.DB.View(func(txn *badger.Txn) error {
		_, err := txn.Get(pageKey(name))
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	return err == nil, err
}

func (r *BadgerRepository) Append(ctx context.Context, name string, rev models.Revision) error {
	err := r.DB.Update(func(txn *badger.Txn) error {
		p, err := loadPage(txn, name)
		if err != nil {
			return err
		}
		if rev.Index != len(p.History) {
			return fmt.Errorf("%w: revision %d on history of %d", ErrConflict, rev.Index, len(p.History))
		}
		applyRevision(p, rev)
		return storePage(txn, p)
	})
	if errors.Is(err, badger.ErrConflict) {
		return fmt.Errorf("%w: concurrent append to %s", ErrConflict, name)
	}
	return err
}

func (r *BadgerRepository) Names(ctx context.Context) ([]string, error) {
	var names []string
	err := r.DB.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		prefix := []byte(pageKeyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			names = append(names, string(it.Item().Key()[len(prefix):]))
		}
		return nil
	})
	return names, err
}

func (r *BadgerRepository) List(ctx context.Context) ([]models.Page, error) {
	var pages []models.Page
	err := r.DB.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		prefix := []byte(pageKeyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var p models.Page
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &p)
			}); err != nil {
				return err
			}
			pages = append(pages, p)
		}
		return nil
	})
	return pages, err
}
