// Package memstore is an in-memory core/store.Store used for local runs,
// demos and tests.
package memstore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/resqmeals/gateway/core/fault"
	"github.com/resqmeals/gateway/core/store"
)

type collection struct {
	docs  map[string]store.Doc
	order []string
}

// Store keeps documents per collection in insertion order.
type Store struct {
	mu   sync.RWMutex
	cols map[string]*collection
	gen  map[string]int
}

// New returns an empty store.
func New() *Store {
	return &Store{cols: map[string]*collection{}, gen: map[string]int{}}
}

// LoadFile builds a store from a JSON file mapping collection names to
// document arrays.
func LoadFile(path string) (*Store, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fault.New(fault.ErrConfiguration, "memstore seed", err)
	}
	var seed map[string][]store.Doc
	if err := json.Unmarshal(raw, &seed); err != nil {
		return nil, fault.Newf(fault.ErrConfiguration, "memstore seed", "parse %s: %v", path, err)
	}
	s := New()
	for name, docs := range seed {
		for _, d := range docs {
			if _, err := s.Put(context.Background(), name, d); err != nil {
				return nil, fmt.Errorf("seed %s: %w", name, err)
			}
		}
	}
	return s, nil
}

// Seed inserts typed values. It panics on documents without _id and is
// meant for fixtures.
func (s *Store) Seed(collection string, docs ...any) *Store {
	for _, d := range docs {
		if _, err := s.Put(context.Background(), collection, d); err != nil {
			panic(err)
		}
	}
	return s
}

// Find scans the collection in insertion order.
func (s *Store) Find(_ context.Context, name string, sel store.Selector, limit int, fields ...string) ([]store.Doc, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []store.Doc{}
	col := s.cols[name]
	if col == nil {
		return out, nil
	}
	for _, id := range col.order {
		if limit > 0 && len(out) >= limit {
			break
		}
		d := col.docs[id]
		if sel != nil && !sel.Match(d) {
			continue
		}
		out = append(out, project(d, fields))
	}
	return out, nil
}

// Get returns a copy of the document.
func (s *Store) Get(_ context.Context, name, id string) (store.Doc, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if col := s.cols[name]; col != nil {
		if d, ok := col.docs[id]; ok {
			return clone(d), nil
		}
	}
	return nil, fault.Newf(fault.ErrNotFound, "get "+name+"/"+id, "missing")
}

// Put stores a copy of doc with a fresh revision. Writing a document whose
// _rev does not match the stored revision is a conflict.
func (s *Store) Put(_ context.Context, name string, doc any) (store.Ack, error) {
	d, err := store.ToDoc(doc)
	if err != nil {
		return store.Ack{}, err
	}
	id, err := store.DocID(d)
	if err != nil {
		return store.Ack{}, err
	}
	d = clone(d)

	s.mu.Lock()
	defer s.mu.Unlock()
	col := s.cols[name]
	if col == nil {
		col = &collection{docs: map[string]store.Doc{}}
		s.cols[name] = col
	}
	if prev, ok := col.docs[id]; ok {
		if rev, _ := d["_rev"].(string); rev != prev["_rev"] {
			return store.Ack{}, fault.Newf(fault.ErrTransport, "put "+name+"/"+id, "document update conflict")
		}
	} else {
		col.order = append(col.order, id)
	}
	key := name + "/" + id
	s.gen[key]++
	rev := fmt.Sprintf("%d-%s", s.gen[key], strings.ReplaceAll(uuid.NewString(), "-", ""))
	d["_rev"] = rev
	col.docs[id] = d
	return store.Ack{OK: true, ID: id, Rev: rev}, nil
}

// Len returns the number of documents in a collection.
func (s *Store) Len(name string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if col := s.cols[name]; col != nil {
		return len(col.docs)
	}
	return 0
}

func project(d store.Doc, fields []string) store.Doc {
	if len(fields) == 0 {
		return clone(d)
	}
	out := store.Doc{}
	for _, f := range fields {
		if v, ok := d[f]; ok {
			out[f] = v
		}
	}
	return clone(out)
}

func clone(d store.Doc) store.Doc {
	raw, err := json.Marshal(d)
	if err != nil {
		return d
	}
	var out store.Doc
	if err := json.Unmarshal(raw, &out); err != nil {
		return d
	}
	return out
}
