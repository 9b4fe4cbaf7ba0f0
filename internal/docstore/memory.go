package docstore

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"fieldops/pkg/platform/sentinel"
)

// Memory is the in-memory Store used by unit tests and dev mode. Documents
// are stored in their generic JSON form so filter evaluation matches the
// Postgres implementation.
type Memory struct {
	mu          sync.RWMutex
	collections map[string]map[string]map[string]any
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{collections: make(map[string]map[string]map[string]any)}
}

func (s *Memory) Get(_ context.Context, collection, id string) (Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, ok := s.collections[collection][id]
	if !ok {
		return Document{}, fmt.Errorf("get %s/%s: %w", collection, id, sentinel.ErrNotFound)
	}
	return Document{Collection: collection, ID: id, Data: clone(data)}, nil
}

func (s *Memory) Query(_ context.Context, collection string, filters []Filter, limit int) ([]Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.collections[collection]))
	for id := range s.collections[collection] {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var out []Document
	for _, id := range ids {
		data := s.collections[collection][id]
		if !matchesAll(data, filters) {
			continue
		}
		out = append(out, Document{Collection: collection, ID: id, Data: clone(data)})
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *Memory) AtomicWrite(_ context.Context, writes []Write) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Validate the whole batch before touching state so a failure leaves
	// nothing applied.
	staged := make([]stagedWrite, 0, len(writes))
	for _, w := range writes {
		sw := stagedWrite{write: w}
		if w.Merge != MergeDelete {
			data, err := encode(w.Data)
			if err != nil {
				return err
			}
			sw.data = data
		}
		if w.Merge == MergeCreate {
			if _, exists := s.collections[w.Collection][w.ID]; exists {
				return fmt.Errorf("create %s/%s: %w", w.Collection, w.ID, sentinel.ErrConflict)
			}
		}
		staged = append(staged, sw)
	}

	for _, sw := range staged {
		w := sw.write
		if s.collections[w.Collection] == nil {
			s.collections[w.Collection] = make(map[string]map[string]any)
		}
		switch w.Merge {
		case MergeDelete:
			delete(s.collections[w.Collection], w.ID)
		case MergeSet:
			existing, ok := s.collections[w.Collection][w.ID]
			if !ok {
				existing = make(map[string]any)
			}
			for k, v := range sw.data {
				existing[k] = v
			}
			s.collections[w.Collection][w.ID] = existing
		default:
			s.collections[w.Collection][w.ID] = sw.data
		}
	}
	return nil
}

type stagedWrite struct {
	write Write
	data  map[string]any
}

func matchesAll(data map[string]any, filters []Filter) bool {
	for _, f := range filters {
		if !matches(data, f) {
			return false
		}
	}
	return true
}

func matches(data map[string]any, f Filter) bool {
	got, ok := lookupField(data, f.Field)
	if !ok {
		return false
	}
	switch f.Op {
	case OpEq:
		return equalJSON(got, f.Value)
	case OpIn:
		for _, candidate := range toSlice(f.Value) {
			if equalJSON(got, candidate) {
				return true
			}
		}
		return false
	case OpArrayContains:
		for _, member := range toSlice(got) {
			if equalJSON(member, f.Value) {
				return true
			}
		}
		return false
	case OpGTE:
		cmp, ok := compare(got, f.Value)
		return ok && cmp >= 0
	case OpLTE:
		cmp, ok := compare(got, f.Value)
		return ok && cmp <= 0
	}
	return false
}

// lookupField resolves dotted paths ("attachment.Amount.value").
func lookupField(data map[string]any, field string) (any, bool) {
	parts := strings.Split(field, ".")
	var cur any = data
	for _, p := range parts {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[p]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

func equalJSON(a, b any) bool {
	if fa, ok := toFloat(a); ok {
		fb, ok := toFloat(b)
		return ok && fa == fb
	}
	return fmt.Sprintf("%v", a) == fmt.Sprintf("%v", b)
}

func compare(a, b any) (int, bool) {
	if fa, ok := toFloat(a); ok {
		fb, ok := toFloat(b)
		if !ok {
			return 0, false
		}
		switch {
		case fa < fb:
			return -1, true
		case fa > fb:
			return 1, true
		}
		return 0, true
	}
	sa, aok := a.(string)
	sb, bok := b.(string)
	if !aok || !bok {
		return 0, false
	}
	return strings.Compare(sa, sb), true
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

func toSlice(v any) []any {
	switch s := v.(type) {
	case []any:
		return s
	case []string:
		out := make([]any, len(s))
		for i, e := range s {
			out[i] = e
		}
		return out
	}
	return nil
}

func clone(data map[string]any) map[string]any {
	out := make(map[string]any, len(data))
	for k, v := range data {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return clone(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	default:
		return v
	}
}
