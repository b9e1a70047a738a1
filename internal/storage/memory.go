package storage

import (
	"context"
	"sync"

	"duebot/internal/task"
)

type memoryStore struct {
	*task.MemStore

	mu    sync.Mutex
	audit []AuditEntry
}

func newMemory(cfg Config) *memoryStore {
	return &memoryStore{MemStore: task.NewMemStore(cfg.now)}
}

func (s *memoryStore) AppendAudit(_ context.Context, e AuditEntry) error {
	s.mu.Lock()
	s.audit = append(s.audit, e)
	s.mu.Unlock()
	return nil
}

func (s *memoryStore) Audit(_ context.Context, limit int) ([]AuditEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return lastN(s.audit, limit), nil
}

func (s *memoryStore) Close() error { return nil }
