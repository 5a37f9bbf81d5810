package storage

import (
	"context"
	"sync"

	"github.com/devghori1264/feederbalancer/internal/models"
)

// MemoryStore is the process-lifetime CommandStore.
type MemoryStore struct {
	mu       sync.RWMutex
	commands map[string]*models.Command
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{commands: make(map[string]*models.Command)}
}

func (s *MemoryStore) PutCommand(ctx context.Context, c *models.Command) error {
	cp := cloneCommand(c)
	s.mu.Lock()
	s.commands[c.ID] = cp
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) GetCommand(ctx context.Context, id string) (*models.Command, error) {
	s.mu.RLock()
	c, ok := s.commands[id]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return cloneCommand(c), nil
}

func (s *MemoryStore) ListCommands(ctx context.Context) ([]*models.Command, error) {
	s.mu.RLock()
	out := make([]*models.Command, 0, len(s.commands))
	for _, c := range s.commands {
		out = append(out, cloneCommand(c))
	}
	s.mu.RUnlock()
	sortCommands(out)
	return out, nil
}

func (s *MemoryStore) Close() error { return nil }

// cloneCommand copies the slices and the top level of params. Params values
// are treated as immutable once stored.
func cloneCommand(c *models.Command) *models.Command {
	cp := *c
	cp.NodeIDs = append([]string(nil), c.NodeIDs...)
	if c.Params != nil {
		cp.Params = make(map[string]any, len(c.Params))
		for k, v := range c.Params {
			cp.Params[k] = v
		}
	}
	return &cp
}
