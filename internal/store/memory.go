package store

import (
	"context"
	"errors"
	"sort"
	"sync"
)

type memoryKey struct {
	userID string
	typ    RecordType
}

// Memory is an in-process Store used by tests and the `--store memory` mode.
type Memory struct {
	mu      sync.RWMutex
	records map[memoryKey]Record
}

func NewMemory() *Memory {
	return &Memory{records: make(map[memoryKey]Record)}
}

func (m *Memory) Get(_ context.Context, userID string, typ RecordType) (*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.records[memoryKey{userID: userID, typ: typ}]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneRecord(rec), nil
}

func (m *Memory) Put(_ context.Context, rec *Record) error {
	if rec == nil || rec.UserID == "" || rec.Type == "" {
		return errors.New("record user id and type are required")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[memoryKey{userID: rec.UserID, typ: rec.Type}] = *cloneRecord(*rec)
	return nil
}

func (m *Memory) List(_ context.Context, userID string) ([]*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*Record
	for key, rec := range m.records {
		if key.userID == userID {
			out = append(out, cloneRecord(rec))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Type < out[j].Type })
	return out, nil
}

func (m *Memory) Close() error { return nil }

func cloneRecord(rec Record) *Record {
	rec.Data = append([]byte(nil), rec.Data...)
	return &rec
}
