package crud

import (
	"encoding/json"

	"github.com/diagnosis/tourbook/internal/query"
)

// Project trims each record's JSON to the selected fields. Keys outside the
// schema (populated relations, derived values) are kept. When every visible
// field is selected the records are returned untouched.
func Project[T any](recs []*T, schema query.Schema, fields []string) (any, error) {
	if fields == nil || len(fields) == len(schema.Visible()) {
		return recs, nil
	}

	keep := make(map[string]bool, len(fields))
	for _, f := range fields {
		keep[f] = true
	}

	out := make([]map[string]any, 0, len(recs))
	for _, rec := range recs {
		raw, err := json.Marshal(rec)
		if err != nil {
			return nil, err
		}
		var doc map[string]any
		if err := json.Unmarshal(raw, &doc); err != nil {
			return nil, err
		}
		for key := range doc {
			if _, inSchema := schema[key]; inSchema && !keep[key] {
				delete(doc, key)
			}
		}
		out = append(out, doc)
	}
	return out, nil
}
