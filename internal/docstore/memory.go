package docstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

type memoryEntry struct {
	fields  Fields
	seq     int64
	updated time.Time
}

// Memory is an in-process Store used for local runs and tests. Values are
// deep-copied on the way in and out.
type Memory struct {
	mu          sync.Mutex
	collections map[string]map[string]*memoryEntry
	seq         int64
	writes      int

	// Fail, when set, is consulted before every operation; a non-nil result
	// is returned instead of performing it.
	Fail func(op, collection string) error
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{collections: make(map[string]map[string]*memoryEntry)}
}

// Writes reports how many successful write operations were performed.
func (m *Memory) Writes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}

func (m *Memory) fail(op, collection string) error {
	if m.Fail == nil {
		return nil
	}
	return m.Fail(op, collection)
}

func (m *Memory) collection(name string) map[string]*memoryEntry {
	c, ok := m.collections[name]
	if !ok {
		c = make(map[string]*memoryEntry)
		m.collections[name] = c
	}
	return c
}

func (m *Memory) Get(ctx context.Context, collection, id string) (Document, error) {
	if err := ctx.Err(); err != nil {
		return Document{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("get", collection); err != nil {
		return Document{}, err
	}

	e, ok := m.collection(collection)[id]
	if !ok {
		return Document{}, ErrNotFound
	}
	return Document{ID: id, Fields: e.fields.Clone(), UpdateTime: e.updated}, nil
}

func (m *Memory) Set(ctx context.Context, collection, id string, fields Fields) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("set", collection); err != nil {
		return err
	}

	m.mergeLocked(collection, id, fields)
	return nil
}

func (m *Memory) Create(ctx context.Context, collection string, fields Fields) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("create", collection); err != nil {
		return "", err
	}

	id := uuid.NewString()
	m.mergeLocked(collection, id, fields)
	return id, nil
}

func (m *Memory) Query(ctx context.Context, collection string, filters ...Filter) ([]Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("query", collection); err != nil {
		return nil, err
	}

	type hit struct {
		doc Document
		seq int64
	}
	var hits []hit
	for id, e := range m.collection(collection) {
		if !matches(e.fields, filters) {
			continue
		}
		hits = append(hits, hit{
			doc: Document{ID: id, Fields: e.fields.Clone(), UpdateTime: e.updated},
			seq: e.seq,
		})
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].seq < hits[j].seq })

	docs := make([]Document, len(hits))
	for i, h := range hits {
		docs[i] = h.doc
	}
	return docs, nil
}

func (m *Memory) Update(ctx context.Context, collection, id string, fn UpdateFunc) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("update", collection); err != nil {
		return err
	}

	e, ok := m.collection(collection)[id]
	if !ok {
		return ErrNotFound
	}
	changes, err := fn(Document{ID: id, Fields: e.fields.Clone(), UpdateTime: e.updated})
	if err != nil {
		return err
	}
	m.mergeLocked(collection, id, changes)
	return nil
}

func (m *Memory) Close() error { return nil }

func (m *Memory) mergeLocked(collection, id string, fields Fields) {
	c := m.collection(collection)
	e, ok := c[id]
	if !ok {
		m.seq++
		e = &memoryEntry{fields: Fields{}, seq: m.seq}
		c[id] = e
	}
	e.fields.Merge(fields.Clone())
	e.updated = time.Now()
	m.writes++
}

func matches(fields Fields, filters []Filter) bool {
	for _, f := range filters {
		if !equalValues(fields[f.Field], f.Value) {
			return false
		}
	}
	return true
}
