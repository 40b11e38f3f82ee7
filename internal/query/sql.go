package query

import (
	"strconv"
	"strings"
)

// Args collects positional parameters.
type Args []any

// Add appends v and returns its placeholder.
func (a *Args) Add(v any) string {
	*a = append(*a, v)
	return "$" + strconv.Itoa(len(*a))
}

var sqlOps = map[Op]string{Eq: "=", Gt: ">", Gte: ">=", Lt: "<", Lte: "<="}

// Where renders the conjunction of filters, or "" when there is nothing to
// render. A condition on a field outside the schema renders FALSE so a
// mistyped scope can only hide rows.
func Where(schema Schema, args *Args, filters ...Filter) string {
	var parts []string
	for _, f := range filters {
		for _, c := range f {
			field, ok := schema[c.Field]
			if !ok {
				parts = append(parts, "FALSE")
				continue
			}
			if c.Op == In {
				parts = append(parts, field.Column+" = ANY("+args.Add(c.Value)+")")
				continue
			}
			op, ok := sqlOps[c.Op]
			if !ok {
				parts = append(parts, "FALSE")
				continue
			}
			parts = append(parts, field.Column+" "+op+" "+args.Add(c.Value))
		}
	}
	if len(parts) == 0 {
		return ""
	}
	return "WHERE " + strings.Join(parts, " AND ")
}

func OrderBy(schema Schema, orders []Order) string {
	var parts []string
	for _, o := range orders {
		field, ok := schema[o.Field]
		if !ok {
			continue
		}
		if o.Desc {
			parts = append(parts, field.Column+" DESC")
		} else {
			parts = append(parts, field.Column)
		}
	}
	if len(parts) == 0 {
		return ""
	}
	return "ORDER BY " + strings.Join(parts, ", ")
}

// Columns maps field names to columns. nil selects every column, hidden
// ones included.
func Columns(schema Schema, fields []string) []string {
	if fields == nil {
		fields = schema.Names()
	}
	cols := make([]string, 0, len(fields))
	for _, name := range fields {
		if field, ok := schema[name]; ok {
			cols = append(cols, field.Column)
		}
	}
	return cols
}

// Select renders a full list query over table for q narrowed by base.
func Select(table string, schema Schema, q Query, base Filter) (string, []any) {
	var args Args

	var sb strings.Builder
	sb.WriteString("SELECT ")
	sb.WriteString(strings.Join(Columns(schema, q.Fields), ", "))
	sb.WriteString(" FROM ")
	sb.WriteString(table)

	if where := Where(schema, &args, base, q.Filter); where != "" {
		sb.WriteString(" ")
		sb.WriteString(where)
	}
	if order := OrderBy(schema, q.Sort); order != "" {
		sb.WriteString(" ")
		sb.WriteString(order)
	}
	if q.Limit > 0 {
		sb.WriteString(" LIMIT ")
		sb.WriteString(args.Add(q.Limit))
		sb.WriteString(" OFFSET ")
		sb.WriteString(args.Add(q.Offset))
	}
	return sb.String(), args
}
