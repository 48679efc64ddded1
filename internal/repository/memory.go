package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// MemoryDocuments is a process-local document store. Documents round-trip
// through JSON so callers never share memory with stored values. It has no
// transaction support; every write is a whole-document replace.
type MemoryDocuments struct {
	mu    sync.RWMutex
	docs  map[string]map[string][]byte
	order map[string][]string
}

// NewMemoryDocuments constructs an empty MemoryDocuments.
func NewMemoryDocuments() *MemoryDocuments {
	return &MemoryDocuments{
		docs:  make(map[string]map[string][]byte),
		order: make(map[string][]string),
	}
}

func (m *MemoryDocuments) Get(ctx context.Context, collection, id string, dst any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.RLock()
	body, ok := m.docs[collection][id]
	m.mu.RUnlock()
	if !ok {
		return ErrNotFound
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return fmt.Errorf("decode %s/%s: %w", collection, id, err)
	}
	return nil
}

func (m *MemoryDocuments) Replace(ctx context.Context, collection, id string, doc any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode %s/%s: %w", collection, id, err)
	}
	m.put(collection, id, body)
	return nil
}

func (m *MemoryDocuments) Create(ctx context.Context, collection string, doc any) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	id := uuid.New().String()
	if setter, ok := doc.(IDSetter); ok {
		setter.SetID(id)
	}
	body, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("encode %s: %w", collection, err)
	}
	m.put(collection, id, body)
	return id, nil
}

func (m *MemoryDocuments) List(ctx context.Context, collection string) ([]json.RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	bodies := make([]json.RawMessage, 0, len(m.order[collection]))
	for _, id := range m.order[collection] {
		bodies = append(bodies, append(json.RawMessage(nil), m.docs[collection][id]...))
	}
	return bodies, nil
}

func (m *MemoryDocuments) put(collection, id string, body []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()

	bucket, ok := m.docs[collection]
	if !ok {
		bucket = make(map[string][]byte)
		m.docs[collection] = bucket
	}
	if _, exists := bucket[id]; !exists {
		m.order[collection] = append(m.order[collection], id)
	}
	bucket[id] = body
}
