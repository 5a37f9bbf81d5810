package storage

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"sort"

	"github.com/devghori1264/feederbalancer/internal/models"
	badger "github.com/dgraph-io/badger/v4"
)

var (
	ErrNotFound = errors.New("not found")
)

// CommandStore interface (kept minimal, allows swapping implementations).
// Commands are never deleted.
type CommandStore interface {
	PutCommand(ctx context.Context, c *models.Command) error
	GetCommand(ctx context.Context, id string) (*models.Command, error)
	ListCommands(ctx context.Context) ([]*models.Command, error)
	Close() error
}

// BadgerStore implements CommandStore with Badger DB so the audit trail
// survives restarts.
type BadgerStore struct {
	db *badger.DB
}

func NewBadgerStore(path string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(filepath.Clean(path))
	opts.Logger = nil                         // disable badger logs for test clarity
	opts = opts.WithValueLogFileSize(1 << 20) // smaller value log for local dev
	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	return &BadgerStore{db: db}, nil
}

func (s *BadgerStore) Close() error {
	return s.db.Close()
}

const commandPrefix = "command:"

func commandKey(id string) []byte {
	return []byte(commandPrefix + id)
}

func (s *BadgerStore) PutCommand(ctx context.Context, c *models.Command) error {
	return s.db.Update(func(txn *badger.Txn) error {
		data, err := json.Marshal(c)
		if err != nil {
			return err
		}
		return txn.Set(commandKey(c.ID), data)
	})
}

func (s *BadgerStore) GetCommand(ctx context.Context, id string) (*models.Command, error) {
	var out models.Command
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(commandKey(id))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return ErrNotFound
			}
			return err
		}
		return item.Value(func(v []byte) error {
			return json.Unmarshal(v, &out)
		})
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// ListCommands returns every stored command, oldest first.
func (s *BadgerStore) ListCommands(ctx context.Context) ([]*models.Command, error) {
	var out []*models.Command
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		prefix := []byte(commandPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var c models.Command
			if err := it.Item().Value(func(v []byte) error {
				return json.Unmarshal(v, &c)
			}); err != nil {
				return err
			}
			out = append(out, &c)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sortCommands(out)
	return out, nil
}

func sortCommands(cs []*models.Command) {
	sort.SliceStable(cs, func(i, j int) bool {
		if cs[i].Timestamp.Equal(cs[j].Timestamp) {
			return cs[i].ID < cs[j].ID
		}
		return cs[i].Timestamp.Before(cs[j].Timestamp)
	})
}
