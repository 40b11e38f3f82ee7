package postgres

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/diagnosis/tourbook/internal/crud"
	"github.com/diagnosis/tourbook/internal/query"
)

const queryTimeout = 3 * time.Second

// DB is the part of *pgxpool.Pool the repositories use.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Column struct {
	Name  string
	Value any
}

// Table is a crud.Store over one table. Rows are scanned by matching column
// names to `db` struct tags, so every schema column needs a tagged field.
type Table[T any] struct {
	db     DB
	name   string
	schema query.Schema
	// values lists the columns a client write may set.
	values func(rec *T) []Column
}

func NewTable[T any](db DB, name string, schema query.Schema, values func(rec *T) []Column) *Table[T] {
	return &Table[T]{db: db, name: name, schema: schema, values: values}
}

func (t *Table[T]) returning() string {
	return strings.Join(query.Columns(t.schema, nil), ", ")
}

func (t *Table[T]) one(ctx context.Context, sql string, args ...any) (*T, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	rows, err := t.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, mapError(err)
	}
	rec, err := pgx.CollectExactlyOneRow(rows, pgx.RowToAddrOfStructByNameLax[T])
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, mapError(err)
	}
	return rec, nil
}

func (t *Table[T]) many(ctx context.Context, sql string, args ...any) ([]*T, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	rows, err := t.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, mapError(err)
	}
	recs, err := pgx.CollectRows(rows, pgx.RowToAddrOfStructByNameLax[T])
	if err != nil {
		return nil, mapError(err)
	}
	return recs, nil
}

func (t *Table[T]) Insert(ctx context.Context, rec *T) (*T, error) {
	cols := t.values(rec)
	names := make([]string, len(cols))
	marks := make([]string, len(cols))
	args := make([]any, len(cols))
	for i, c := range cols {
		names[i] = c.Name
		marks[i] = "$" + strconv.Itoa(i+1)
		args[i] = c.Value
	}

	sql := "INSERT INTO " + t.name + " (" + strings.Join(names, ", ") + ") VALUES (" +
		strings.Join(marks, ", ") + ") RETURNING " + t.returning()
	out, err := t.one(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	if out == nil {
		return nil, errors.New("insert into " + t.name + " returned no row")
	}
	return out, nil
}

func (t *Table[T]) FindByID(ctx context.Context, id int64, fields []string, scope query.Filter) (*T, error) {
	var args query.Args
	where := query.Where(t.schema, &args, query.Filter{query.Equals("id", id)}, scope)
	sql := "SELECT " + strings.Join(query.Columns(t.schema, fields), ", ") + " FROM " + t.name + " " + where
	return t.one(ctx, sql, args...)
}

func (t *Table[T]) Find(ctx context.Context, q query.Query, base query.Filter) ([]*T, error) {
	sql, args := query.Select(t.name, t.schema, q, base)
	return t.many(ctx, sql, args...)
}

func (t *Table[T]) Update(ctx context.Context, id int64, rec *T) (*T, error) {
	cols := t.values(rec)
	sets := make([]string, len(cols))
	args := make([]any, 0, len(cols)+1)
	for i, c := range cols {
		args = append(args, c.Value)
		sets[i] = c.Name + " = $" + strconv.Itoa(len(args))
	}
	args = append(args, id)

	sql := "UPDATE " + t.name + " SET " + strings.Join(sets, ", ") +
		" WHERE id = $" + strconv.Itoa(len(args)) + " RETURNING " + t.returning()
	return t.one(ctx, sql, args...)
}

func (t *Table[T]) Delete(ctx context.Context, id int64) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	tag, err := t.db.Exec(ctx, "DELETE FROM "+t.name+" WHERE id = $1", id)
	if err != nil {
		return false, mapError(err)
	}
	return tag.RowsAffected() > 0, nil
}

var _ crud.Store[struct{}] = (*Table[struct{}])(nil)
