package memorystore

import (
	"encoding/json"

	"github.com/dgraph-io/badger/v4"
	"github.com/rs/zerolog"
)

// BadgerStore is the supplemental durable backend (SPEC_FULL.md §3 "Durable
// memory backend"): an embedded, single-process KV store for installations
// that want state to survive process restarts at higher volume than one
// JSON file comfortably holds. It is strictly additive — Store's default
// implementation stays JSONStore.
type BadgerStore struct {
	db  *badger.DB
	log zerolog.Logger
}

// OpenBadgerStore opens (creating if absent) a Badger database rooted at
// dir. Badger is single-process/embedded, so this never implies
// cross-process clustering (spec.md Non-goals).
func OpenBadgerStore(dir string, log zerolog.Logger) (*BadgerStore, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	return &BadgerStore{db: db, log: log.With().Str("component", "badger_store").Logger()}, nil
}

func (s *BadgerStore) Get(key string, out any) error {
	return s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err == badger.ErrKeyNotFound {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, out)
		})
	})
}

func (s *BadgerStore) Set(key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), raw)
	})
}

func (s *BadgerStore) Delete(key string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
}

func (s *BadgerStore) Close() error {
	return s.db.Close()
}
