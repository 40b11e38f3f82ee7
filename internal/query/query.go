// Package query turns list-endpoint query strings into a typed description
// (filters, ordering, projection, paging) and renders that description as
// parameterised SQL. Column names only ever come from a Schema.
package query

import (
	"math"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/diagnosis/tourbook/internal/apperr"
)

const (
	DefaultPage  = 1
	DefaultLimit = 100
)

// Control keys never become filter conditions.
var controlKeys = map[string]bool{"page": true, "sort": true, "limit": true, "fields": true}

type Kind int

const (
	String Kind = iota
	Int
	Float
	Bool
	Time
	// List and Document columns (arrays, jsonb) can be projected but not
	// filtered or sorted on.
	List
	Document
)

type Field struct {
	Column string
	Kind   Kind
	// Multi lets a repeated eq key collect every value into IN.
	Multi bool
	// Hidden fields are internal markers: they are never projected by
	// default and clients cannot filter or sort on them.
	Hidden bool
}

func (f Field) comparable() bool {
	return !f.Hidden && f.Kind != List && f.Kind != Document
}

// Schema maps API field names to columns.
type Schema map[string]Field

// Names returns the field names in a stable order with id first.
func (s Schema) Names() []string {
	names := make([]string, 0, len(s))
	for name := range s {
		if name != "id" {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	if _, ok := s["id"]; ok {
		names = append([]string{"id"}, names...)
	}
	return names
}

// Visible lists every non-hidden field.
func (s Schema) Visible() []string {
	var out []string
	for _, name := range s.Names() {
		if !s[name].Hidden {
			out = append(out, name)
		}
	}
	return out
}

type Op string

const (
	Eq  Op = "eq"
	Gt  Op = "gt"
	Gte Op = "gte"
	Lt  Op = "lt"
	Lte Op = "lte"
	In  Op = "in"
)

var comparisons = map[string]Op{"gt": Gt, "gte": Gte, "lt": Lt, "lte": Lte}

type Condition struct {
	Field string
	Op    Op
	Value any
}

type Filter []Condition

func Equals(field string, value any) Condition {
	return Condition{Field: field, Op: Eq, Value: value}
}

type Order struct {
	Field string
	Desc  bool
}

// Query is the built description. Fields nil means every column.
type Query struct {
	Filter Filter
	Sort   []Order
	Fields []string
	Page   int
	Limit  int
	Offset int
}

// Builder is chained New(raw, schema).Filter().Sort().LimitFields().Paginate().
// The first error wins and is reported by Build.
type Builder struct {
	raw    url.Values
	schema Schema
	q      Query
	err    error
}

func New(raw url.Values, schema Schema) *Builder {
	if raw == nil {
		raw = url.Values{}
	}
	return &Builder{raw: raw, schema: schema}
}

// last resolves a repeated control key to its final value.
func (b *Builder) last(key string) string {
	vs := b.raw[key]
	if len(vs) == 0 {
		return ""
	}
	return vs[len(vs)-1]
}

func (b *Builder) Filter() *Builder {
	if b.err != nil {
		return b
	}

	keys := make([]string, 0, len(b.raw))
	for key := range b.raw {
		if !controlKeys[key] {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)

	for _, key := range keys {
		values := b.raw[key]
		if len(values) == 0 {
			continue
		}
		name, op, err := splitKey(key)
		if err != nil {
			b.err = err
			return b
		}
		field, ok := b.schema[name]
		if !ok || !field.comparable() {
			b.err = apperr.Validation("Invalid filter field: "+name+".", apperr.Field(name, "unknown field"))
			return b
		}

		if op == Eq && field.Multi && len(values) > 1 {
			list, err := convertAll(name, field.Kind, values)
			if err != nil {
				b.err = err
				return b
			}
			b.q.Filter = append(b.q.Filter, Condition{Field: name, Op: In, Value: list})
			continue
		}

		v, err := convert(name, field.Kind, values[len(values)-1])
		if err != nil {
			b.err = err
			return b
		}
		b.q.Filter = append(b.q.Filter, Condition{Field: name, Op: op, Value: v})
	}
	return b
}

func splitKey(key string) (string, Op, error) {
	open := strings.IndexByte(key, '[')
	if open < 0 {
		return key, Eq, nil
	}
	if !strings.HasSuffix(key, "]") || open == 0 {
		return "", "", apperr.Validation("Invalid filter: "+key+".", apperr.Field(key, "malformed filter key"))
	}
	name, raw := key[:open], key[open+1:len(key)-1]
	op, ok := comparisons[raw]
	if !ok {
		return "", "", apperr.Validation("Invalid filter operator: "+raw+".", apperr.Field(name, "unknown operator "+raw))
	}
	return name, op, nil
}

func convert(name string, kind Kind, raw string) (any, error) {
	var (
		v   any
		err error
	)
	switch kind {
	case Int:
		v, err = strconv.ParseInt(raw, 10, 64)
	case Float:
		v, err = strconv.ParseFloat(raw, 64)
	case Bool:
		v, err = strconv.ParseBool(raw)
	case Time:
		v, err = parseTime(raw)
	default:
		v = raw
	}
	if err != nil {
		return nil, apperr.Validation("Invalid "+name+": "+raw+".", apperr.Field(name, "cannot convert "+raw))
	}
	return v, nil
}

// convertAll returns a typed slice so the driver can encode it as an array.
func convertAll(name string, kind Kind, raws []string) (any, error) {
	switch kind {
	case Int:
		return collect[int64](name, kind, raws)
	case Float:
		return collect[float64](name, kind, raws)
	case Bool:
		return collect[bool](name, kind, raws)
	case Time:
		return collect[time.Time](name, kind, raws)
	default:
		return collect[string](name, kind, raws)
	}
}

func collect[V any](name string, kind Kind, raws []string) ([]V, error) {
	out := make([]V, 0, len(raws))
	for _, raw := range raws {
		v, err := convert(name, kind, raw)
		if err != nil {
			return nil, err
		}
		out = append(out, v.(V))
	}
	return out, nil
}

func parseTime(raw string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", raw)
}

func (b *Builder) Sort() *Builder {
	if b.err != nil {
		return b
	}

	list := b.last("sort")
	if strings.TrimSpace(list) == "" {
		if _, ok := b.schema["createdAt"]; ok {
			list = "-createdAt"
		}
	}

	seenID := false
	for _, part := range strings.Split(list, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		order := Order{Field: strings.TrimPrefix(part, "-"), Desc: strings.HasPrefix(part, "-")}
		field, ok := b.schema[order.Field]
		if !ok || !field.comparable() {
			b.err = apperr.Validation("Invalid sort field: "+order.Field+".", apperr.Field(order.Field, "unknown field"))
			return b
		}
		if order.Field == "id" {
			seenID = true
		}
		b.q.Sort = append(b.q.Sort, order)
	}
	// id breaks ties so pages never overlap.
	if _, ok := b.schema["id"]; ok && !seenID {
		b.q.Sort = append(b.q.Sort, Order{Field: "id"})
	}
	return b
}

func (b *Builder) LimitFields() *Builder {
	if b.err != nil {
		return b
	}

	list := b.last("fields")

	var include, exclude []string
	for _, part := range strings.Split(list, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name := strings.TrimPrefix(part, "-")
		field, ok := b.schema[name]
		if !ok || field.Hidden {
			b.err = apperr.Validation("Invalid field: "+name+".", apperr.Field(name, "unknown field"))
			return b
		}
		if strings.HasPrefix(part, "-") {
			exclude = append(exclude, name)
		} else {
			include = append(include, name)
		}
	}

	switch {
	case len(include) > 0 && len(exclude) > 0:
		b.err = apperr.Validation("Cannot mix field inclusion and exclusion.", apperr.Field("fields", "mixed projection"))
	case len(include) > 0:
		b.q.Fields = dedupe(append([]string{"id"}, include...))
	case len(exclude) > 0:
		drop := make(map[string]bool, len(exclude))
		for _, name := range exclude {
			if name != "id" {
				drop[name] = true
			}
		}
		for _, name := range b.schema.Visible() {
			if !drop[name] {
				b.q.Fields = append(b.q.Fields, name)
			}
		}
	default:
		b.q.Fields = b.schema.Visible()
	}
	return b
}

func dedupe(names []string) []string {
	seen := make(map[string]bool, len(names))
	out := names[:0]
	for _, n := range names {
		if !seen[n] {
			seen[n] = true
			out = append(out, n)
		}
	}
	return out
}

// Paginate never fails: junk input falls back to the defaults.
func (b *Builder) Paginate() *Builder {
	if b.err != nil {
		return b
	}
	b.q.Page = positive(b.last("page"), DefaultPage)
	b.q.Limit = positive(b.last("limit"), DefaultLimit)
	if b.q.Page-1 > math.MaxInt/b.q.Limit {
		b.q.Page = DefaultPage
	}
	b.q.Offset = (b.q.Page - 1) * b.q.Limit
	return b
}

func positive(raw string, fallback int) int {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n < 1 {
		return fallback
	}
	return n
}

func (b *Builder) Build() (Query, error) {
	if b.err != nil {
		return Query{}, b.err
	}
	return b.q, nil
}

// Parse runs the full chain.
func Parse(raw url.Values, schema Schema) (Query, error) {
	return New(raw, schema).Filter().Sort().LimitFields().Paginate().Build()
}
