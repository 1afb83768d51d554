package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"

	"babil/internal/models"
)

const identityKeyPrefix = "identity/"

// record is the stored document: flags plus the edit log.
type record struct {
	Identity      models.Identity
	Modifications []models.Modification
}

// BadgerRepository stores each identity as one JSON document.
type BadgerRepository struct {
	DB *badger.DB
}

func NewBadgerRepository(db *badger.DB) *BadgerRepository {
	return &BadgerRepository{DB: db}
}

func identityKey(key string) []byte {
	return []byte(identityKeyPrefix + key)
}

func load(txn *badger.Txn, key string) (*record, error) {
	item, err := txn.Get(identityKey(key))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var rec record
	if err := item.Value(func(val []byte) error { return json.Unmarshal(val, &rec) }); err != nil {
		return nil, fmt.Errorf("decode identity: %w", err)
	}
	return &rec, nil
}

func store(txn *badger.Txn, key string, rec *record) error {
	b, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return txn.Set(identityKey(key), b)
}

func (r *BadgerRepository) Find(ctx context.Context, key string) (*models.Identity, error) {
	var id *models.Identity
	err := r.DB.View(func(txn *badger.Txn) error {
		rec, err := load(txn, key)
		if err != nil {
			return err
		}
		id = &rec.Identity
		return nil
	})
	return id, err
}

func (r *BadgerRepository) Create(ctx context.Context, id *models.Identity) error {
	err := r.DB.Update(func(txn *badger.Txn) error {
		if _, err := load(txn, id.Token); err == nil {
			return ErrExists
		} else if !errors.Is(err, ErrNotFound) {
			return err
		}
		return store(txn, id.Token, &record{Identity: *id})
	})
	if errors.Is(err, badger.ErrConflict) {
		return ErrExists
	}
	return err
}

func (r *BadgerRepository) update(key string, fn func(rec *record)) error {
	for {
		err := r.DB.Update(func(txn *badger.Txn) error {
			rec, err := load(txn, key)
			if err != nil {
				return err
			}
			fn(rec)
			return store(txn, key, rec)
		})
		// Optimistic transactions lose to concurrent writers; replay them.
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
	}
}

func (r *BadgerRepository) SetFlags(ctx context.Context, key string, writeAllowed, isAdmin bool) error {
	return r.update(key, func(rec *record) {
		rec.Identity.WriteAllowed = writeAllowed
		rec.Identity.IsAdmin = isAdmin
	})
}

func (r *BadgerRepository) AddModification(ctx context.Context, key string, m models.Modification) error {
	return r.update(key, func(rec *record) {
		rec.Modifications = append(rec.Modifications, m)
	})
}

func (r *BadgerRepository) Modifications(ctx context.Context, key string, limit int) ([]models.Modification, error) {
	var edits []models.Modification
	err := r.DB.View(func(txn *badger.Txn) error {
		rec, err := load(txn, key)
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		edits = newestFirst(rec.Modifications, limit)
		return nil
	})
	return edits, err
}
