// Package memstore provides in-memory implementations of the deposit
// repositories. They enforce the same optimistic version check as the GORM
// repositories and hand out copies, so callers never share entity state.
package memstore

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pass/deposit-services/internal/domain/shared"
)

type record interface {
	GetID() uuid.UUID
	GetCreatedAt() time.Time
	GetVersion() int
	SetVersion(version int)
}

// table is a versioned map of entity copies
type table[P record] struct {
	mu         sync.RWMutex
	rows       map[uuid.UUID]P
	clone      func(P) P
	entityType string
}

func newTable[P record](entityType string, clone func(P) P) *table[P] {
	return &table[P]{
		rows:       make(map[uuid.UUID]P),
		clone:      clone,
		entityType: entityType,
	}
}

func (t *table[P]) find(id uuid.UUID) (P, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	row, ok := t.rows[id]
	if !ok {
		var zero P
		return zero, shared.ErrNotFound
	}
	return t.clone(row), nil
}

func (t *table[P]) create(e P) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.rows[e.GetID()]; ok {
		return shared.ErrAlreadyExists
	}
	t.rows[e.GetID()] = t.clone(e)
	return nil
}

func (t *table[P]) update(e P) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	stored, ok := t.rows[e.GetID()]
	if !ok {
		return shared.ErrNotFound
	}
	expected := e.GetVersion()
	if stored.GetVersion() != expected {
		return shared.NewConflictError(t.entityType, e.GetID(), expected)
	}
	e.SetVersion(expected + 1)
	t.rows[e.GetID()] = t.clone(e)
	return nil
}

// list returns copies of matching rows ordered by creation time then ID
func (t *table[P]) list(match func(P) bool, page shared.Page) []P {
	t.mu.RLock()
	matched := make([]P, 0, len(t.rows))
	for _, row := range t.rows {
		if match(row) {
			matched = append(matched, t.clone(row))
		}
	}
	t.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		ci, cj := matched[i].GetCreatedAt(), matched[j].GetCreatedAt()
		if !ci.Equal(cj) {
			return ci.Before(cj)
		}
		return matched[i].GetID().String() < matched[j].GetID().String()
	})

	if page.Offset > 0 {
		if page.Offset >= len(matched) {
			return matched[:0]
		}
		matched = matched[page.Offset:]
	}
	if page.Limit > 0 && page.Limit < len(matched) {
		matched = matched[:page.Limit]
	}
	return matched
}

func (t *table[P]) len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.rows)
}
