// Package crudtest provides an in-memory crud.Store for handler and service
// tests.
package crudtest

import (
	"context"
	"sort"
	"sync"

	"github.com/diagnosis/tourbook/internal/query"
)

// Store keeps records in a map keyed by id. Conditions are matched through
// Field, which returns a record's value for a schema field name. Only eq
// conditions are understood; others never match.
type Store[T any] struct {
	mu     sync.Mutex
	nextID int64
	rows   map[int64]T

	ID    func(*T) *int64
	Field func(*T, string) any
}

func New[T any](id func(*T) *int64, field func(*T, string) any) *Store[T] {
	return &Store[T]{rows: map[int64]T{}, ID: id, Field: field}
}

func (s *Store[T]) matches(rec *T, filters ...query.Filter) bool {
	for _, f := range filters {
		for _, c := range f {
			if c.Op != query.Eq || s.Field(rec, c.Field) != c.Value {
				return false
			}
		}
	}
	return true
}

func (s *Store[T]) Insert(_ context.Context, rec *T) (*T, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	cp := *rec
	*s.ID(&cp) = s.nextID
	s.rows[s.nextID] = cp
	out := cp
	return &out, nil
}

func (s *Store[T]) FindByID(_ context.Context, id int64, _ []string, scope query.Filter) (*T, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.rows[id]
	if !ok || !s.matches(&rec, scope) {
		return nil, nil
	}
	return &rec, nil
}

// Find applies base and the query's own filter, returning rows in id order.
// Sorting, paging and projection are left to the real store.
func (s *Store[T]) Find(_ context.Context, q query.Query, base query.Filter) ([]*T, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]int64, 0, len(s.rows))
	for id := range s.rows {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var out []*T
	for _, id := range ids {
		rec := s.rows[id]
		if s.matches(&rec, base, q.Filter) {
			out = append(out, &rec)
		}
	}
	return out, nil
}

func (s *Store[T]) Update(_ context.Context, id int64, rec *T) (*T, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rows[id]; !ok {
		return nil, nil
	}
	cp := *rec
	*s.ID(&cp) = id
	s.rows[id] = cp
	return &cp, nil
}

func (s *Store[T]) Delete(_ context.Context, id int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rows[id]; !ok {
		return false, nil
	}
	delete(s.rows, id)
	return true, nil
}

func (s *Store[T]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rows)
}
