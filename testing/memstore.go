package testing

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"sync"
	"time"

	"igstore/storage"

	"github.com/google/uuid"
)

// MemoryStore is a storage.Store kept in process memory. Documents are copied on the way in and
// out so callers never share maps with the store.
type MemoryStore struct {
	mu     sync.Mutex
	docs   map[string]map[string]map[string]interface{}
	errs   map[string]error
	closed bool
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		docs: map[string]map[string]map[string]interface{}{},
		errs: map[string]error{},
	}
}

// SetError makes every subsequent call of op ("Get", "Query", "Set", "Update", "Delete", "Add")
// fail with err. A nil err clears the failure.
func (m *MemoryStore) SetError(op string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.errs, op)
		return
	}
	m.errs[op] = err
}

// Count gives the number of documents in collection.
func (m *MemoryStore) Count(collection string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.docs[collection])
}

// Closed reports whether Close was called.
func (m *MemoryStore) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

func (m *MemoryStore) Get(ctx context.Context, collection, id string) (*storage.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail(ctx, "Get"); err != nil {
		return nil, err
	}
	data, ok := m.docs[collection][id]
	if !ok {
		return nil, storage.ErrNoDocument
	}
	return &storage.Document{ID: id, Data: copyData(data)}, nil
}

func (m *MemoryStore) Query(ctx context.Context, collection string, filters []storage.Filter, order *storage.Order) ([]*storage.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail(ctx, "Query"); err != nil {
		return nil, err
	}
	docs := []*storage.Document{}
	for id, data := range m.docs[collection] {
		if matches(data, filters) {
			docs = append(docs, &storage.Document{ID: id, Data: copyData(data)})
		}
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].ID < docs[j].ID })
	if order != nil {
		sort.SliceStable(docs, func(i, j int) bool {
			c := compare(docs[i].Data[order.Path], docs[j].Data[order.Path])
			if order.Direction == storage.Desc {
				return c > 0
			}
			return c < 0
		})
	}
	return docs, nil
}

func (m *MemoryStore) Set(ctx context.Context, collection, id string, data map[string]interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail(ctx, "Set"); err != nil {
		return err
	}
	m.collection(collection)[id] = copyData(data)
	return nil
}

func (m *MemoryStore) Update(ctx context.Context, collection, id string, fields map[string]interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail(ctx, "Update"); err != nil {
		return err
	}
	data, ok := m.docs[collection][id]
	if !ok {
		return storage.ErrNoDocument
	}
	for k, v := range fields {
		data[k] = v
	}
	return nil
}

func (m *MemoryStore) Delete(ctx context.Context, collection, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail(ctx, "Delete"); err != nil {
		return err
	}
	delete(m.docs[collection], id)
	return nil
}

func (m *MemoryStore) Add(ctx context.Context, collection string, data map[string]interface{}) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail(ctx, "Add"); err != nil {
		return "", err
	}
	id := uuid.New().String()
	m.collection(collection)[id] = copyData(data)
	return id, nil
}

func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *MemoryStore) fail(ctx context.Context, op string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return m.errs[op]
}

func (m *MemoryStore) collection(name string) map[string]map[string]interface{} {
	c, ok := m.docs[name]
	if !ok {
		c = map[string]map[string]interface{}{}
		m.docs[name] = c
	}
	return c
}

func copyData(data map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(data))
	for k, v := range data {
		out[k] = v
	}
	return out
}

func matches(data map[string]interface{}, filters []storage.Filter) bool {
	for _, f := range filters {
		v, ok := data[f.Path]
		if !ok {
			return false
		}
		switch f.Op {
		case "==":
			if !reflect.DeepEqual(v, f.Value) {
				return false
			}
		case "!=":
			if reflect.DeepEqual(v, f.Value) {
				return false
			}
		case "<":
			if compare(v, f.Value) >= 0 {
				return false
			}
		case "<=":
			if compare(v, f.Value) > 0 {
				return false
			}
		case ">":
			if compare(v, f.Value) <= 0 {
				return false
			}
		case ">=":
			if compare(v, f.Value) < 0 {
				return false
			}
		default:
			panic(fmt.Sprintf("MemoryStore: unsupported operator %q", f.Op))
		}
	}
	return true
}

// compare orders the value types the gateway stores: times, strings and integers.
func compare(a, b interface{}) int {
	switch x := a.(type) {
	case time.Time:
		y, _ := b.(time.Time)
		switch {
		case x.Before(y):
			return -1
		case x.After(y):
			return 1
		}
		return 0
	case string:
		y, _ := b.(string)
		switch {
		case x < y:
			return -1
		case x > y:
			return 1
		}
		return 0
	case int64:
		y, _ := b.(int64)
		switch {
		case x < y:
			return -1
		case x > y:
			return 1
		}
		return 0
	case int:
		y, _ := b.(int)
		return compare(int64(x), int64(y))
	}
	return 0
}
