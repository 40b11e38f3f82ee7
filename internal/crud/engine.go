// Package crud is the generic create/read/update/delete pipeline shared by
// every resource. A resource plugs in through an Entity descriptor and a
// Store.
package crud

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/diagnosis/tourbook/internal/apperr"
	"github.com/diagnosis/tourbook/internal/query"
)

type Op string

const (
	OpCreate Op = "create"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

// Store persists one record type. FindByID returns nil, nil when nothing
// matches. A nil fields slice selects every column.
type Store[T any] interface {
	Insert(ctx context.Context, rec *T) (*T, error)
	FindByID(ctx context.Context, id int64, fields []string, scope query.Filter) (*T, error)
	Find(ctx context.Context, q query.Query, base query.Filter) ([]*T, error)
	Update(ctx context.Context, id int64, rec *T) (*T, error)
	Delete(ctx context.Context, id int64) (bool, error)
}

type Entity[T any] struct {
	// Name is used in messages: "No tour found with that ID".
	Name   string
	Schema query.Schema
	// New returns a record carrying defaults for Create payloads to decode into.
	New      func() *T
	Validate func(rec *T) error
	// Prepare runs before validation. prev is nil on create.
	Prepare func(ctx context.Context, rec, prev *T) error
	// Scope narrows every read, e.g. hiding secret tours.
	Scope     query.Filter
	Populate  func(ctx context.Context, recs []*T) error
	Committed func(ctx context.Context, op Op, rec *T)
}

type Page[T any] struct {
	Results []*T
	Count   int
	Fields  []string
}

type Engine[T any] struct {
	entity Entity[T]
	store  Store[T]
}

func New[T any](entity Entity[T], store Store[T]) *Engine[T] {
	return &Engine[T]{entity: entity, store: store}
}

func (e *Engine[T]) Entity() Entity[T] {
	return e.entity
}

// Blank returns a fresh record with the entity defaults applied.
func (e *Engine[T]) Blank() *T {
	if e.entity.New != nil {
		return e.entity.New()
	}
	return new(T)
}

func (e *Engine[T]) notFound() error {
	return apperr.NotFound("No " + e.entity.Name + " found with that ID")
}

func (e *Engine[T]) check(ctx context.Context, rec, prev *T) error {
	if e.entity.Prepare != nil {
		if err := e.entity.Prepare(ctx, rec, prev); err != nil {
			return err
		}
	}
	if e.entity.Validate != nil {
		if err := e.entity.Validate(rec); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine[T]) committed(ctx context.Context, op Op, rec *T) {
	if e.entity.Committed != nil {
		e.entity.Committed(ctx, op, rec)
	}
}

func (e *Engine[T]) Create(ctx context.Context, rec *T) (*T, error) {
	if err := e.check(ctx, rec, nil); err != nil {
		return nil, err
	}
	created, err := e.store.Insert(ctx, rec)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", e.entity.Name, err)
	}
	e.committed(ctx, OpCreate, created)
	return created, nil
}

func (e *Engine[T]) GetOne(ctx context.Context, id int64, populate bool) (*T, error) {
	rec, err := e.store.FindByID(ctx, id, e.entity.Schema.Visible(), e.entity.Scope)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", e.entity.Name, err)
	}
	if rec == nil {
		return nil, e.notFound()
	}
	if populate && e.entity.Populate != nil {
		if err := e.entity.Populate(ctx, []*T{rec}); err != nil {
			return nil, fmt.Errorf("populate %s: %w", e.entity.Name, err)
		}
	}
	return rec, nil
}

// GetAll lists records matching raw (the request query string) within the
// entity scope and base.
func (e *Engine[T]) GetAll(ctx context.Context, raw url.Values, base query.Filter, populate bool) (Page[T], error) {
	q, err := query.Parse(raw, e.entity.Schema)
	if err != nil {
		return Page[T]{}, err
	}
	return e.Find(ctx, q, base, populate)
}

func (e *Engine[T]) Find(ctx context.Context, q query.Query, base query.Filter, populate bool) (Page[T], error) {
	scope := append(append(query.Filter{}, e.entity.Scope...), base...)
	recs, err := e.store.Find(ctx, q, scope)
	if err != nil {
		return Page[T]{}, fmt.Errorf("list %s: %w", e.entity.Name, err)
	}
	if populate && e.entity.Populate != nil && len(recs) > 0 {
		if err := e.entity.Populate(ctx, recs); err != nil {
			return Page[T]{}, fmt.Errorf("populate %s: %w", e.entity.Name, err)
		}
	}
	if recs == nil {
		recs = []*T{}
	}
	return Page[T]{Results: recs, Count: len(recs), Fields: q.Fields}, nil
}

// Load reads the full stored record, hidden columns included.
func (e *Engine[T]) Load(ctx context.Context, id int64) (*T, error) {
	rec, err := e.store.FindByID(ctx, id, nil, e.entity.Scope)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", e.entity.Name, err)
	}
	if rec == nil {
		return nil, e.notFound()
	}
	return rec, nil
}

// UpdateOne applies a mutation to a copy of the stored record, re-runs the
// entity checks and writes the result.
func (e *Engine[T]) UpdateOne(ctx context.Context, id int64, apply func(rec *T) error) (*T, error) {
	prev, err := e.Load(ctx, id)
	if err != nil {
		return nil, err
	}

	next := *prev
	if err := apply(&next); err != nil {
		return nil, err
	}
	if err := e.check(ctx, &next, prev); err != nil {
		return nil, err
	}

	updated, err := e.store.Update(ctx, id, &next)
	if err != nil {
		return nil, fmt.Errorf("update %s: %w", e.entity.Name, err)
	}
	if updated == nil {
		return nil, e.notFound()
	}
	e.committed(ctx, OpUpdate, updated)
	return updated, nil
}

func (e *Engine[T]) DeleteOne(ctx context.Context, id int64) error {
	prev, err := e.Load(ctx, id)
	if err != nil {
		return err
	}
	deleted, err := e.store.Delete(ctx, id)
	if err != nil {
		return fmt.Errorf("delete %s: %w", e.entity.Name, err)
	}
	if !deleted {
		return e.notFound()
	}
	e.committed(ctx, OpDelete, prev)
	return nil
}

// MergeJSON overlays a JSON document onto rec. Keys absent from body keep
// their stored values.
func MergeJSON[T any](body []byte) func(rec *T) error {
	return func(rec *T) error {
		if len(body) == 0 {
			return nil
		}
		if err := json.Unmarshal(body, rec); err != nil {
			return apperr.BadInput("Invalid JSON body: " + err.Error())
		}
		return nil
	}
}
