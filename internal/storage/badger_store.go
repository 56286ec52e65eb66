package storage

import (
	"context"
	"encoding/json"
	"path/filepath"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/wanghui5801/fleetmon/internal/models"
)

const (
	nodePrefix   = "node:"
	clientPrefix = "client:"
	credKey      = "auth:admin"
)

// BadgerStore implements Store with Badger DB.
type BadgerStore struct {
	db *badger.DB
}

func NewBadgerStore(path string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(filepath.Clean(path))
	opts.Logger = nil                         // badger's own logger is too chatty
	opts = opts.WithValueLogFileSize(1 << 20) // smaller value log for local deployments
	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	return &BadgerStore{db: db}, nil
}

func (s *BadgerStore) Close() error {
	return s.db.Close()
}

func nodeKey(id string) []byte     { return []byte(nodePrefix + id) }
func clientKey(name string) []byte { return []byte(clientPrefix + name) }

func (s *BadgerStore) SaveNode(ctx context.Context, n *models.Node) error {
	return s.put(nodeKey(n.ID), n)
}

func (s *BadgerStore) GetNode(ctx context.Context, id string) (*models.Node, error) {
	var out models.Node
	if err := s.get(nodeKey(id), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *BadgerStore) ListNodes(ctx context.Context) ([]models.Node, error) {
	var out []models.Node
	err := s.scan(nodePrefix, func(v []byte) error {
		var n models.Node
		if err := json.Unmarshal(v, &n); err != nil {
			return err
		}
		out = append(out, n)
		return nil
	})
	return out, err
}

func (s *BadgerStore) DeleteNode(ctx context.Context, id string) error {
	return s.delete(nodeKey(id))
}

func (s *BadgerStore) SaveClient(ctx context.Context, c *models.AllowedClient) error {
	return s.put(clientKey(c.Name), c)
}

func (s *BadgerStore) ListClients(ctx context.Context) ([]models.AllowedClient, error) {
	var out []models.AllowedClient
	err := s.scan(clientPrefix, func(v []byte) error {
		var c models.AllowedClient
		if err := json.Unmarshal(v, &c); err != nil {
			return err
		}
		out = append(out, c)
		return nil
	})
	return out, err
}

func (s *BadgerStore) DeleteClient(ctx context.Context, name string) error {
	return s.delete(clientKey(name))
}

func (s *BadgerStore) SaveCredential(ctx context.Context, hash []byte) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(credKey), hash)
	})
}

func (s *BadgerStore) GetCredential(ctx context.Context) ([]byte, error) {
	var out []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(credKey))
		if err != nil {
			if err == badger.ErrKeyNotFound {
				return ErrNotFound
			}
			return err
		}
		out, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ---------- badger plumbing ----------

func (s *BadgerStore) put(key []byte, v any) error {
	return s.db.Update(func(txn *badger.Txn) error {
		data, err := json.Marshal(v)
		if err != nil {
			return err
		}
		return txn.Set(key, data)
	})
}

func (s *BadgerStore) get(key []byte, v any) error {
	return s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			if err == badger.ErrKeyNotFound {
				return ErrNotFound
			}
			return err
		}
		return item.Value(func(data []byte) error {
			return json.Unmarshal(data, v)
		})
	})
}

func (s *BadgerStore) delete(key []byte) error {
	return s.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get(key)
		if err == badger.ErrKeyNotFound {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		return txn.Delete(key)
	})
}

func (s *BadgerStore) scan(prefix string, fn func(v []byte) error) error {
	return s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		p := []byte(prefix)
		for it.Seek(p); it.ValidForPrefix(p); it.Next() {
			if err := it.Item().Value(fn); err != nil {
				return err
			}
		}
		return nil
	})
}
