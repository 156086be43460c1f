package timeseries

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"time"

	_ "github.com/lib/pq"
)

// SQLQuery describes how to pull a measurement series out of a station
// database (TimescaleDB in the field deployment). The query must return a
// timestamp as its first column; the remaining columns are mapped
// positionally onto Fields. NULLs become missing values. The same unit
// discipline applies as for file sources: Scale/Offset are applied here,
// once, and never downstream.
type SQLQuery struct {
	Name   string
	Query  string
	Args   []interface{}
	Fields []FieldSpec // positional, one per non-time column; Var is the canonical field name
}

// LoadSQL executes the query and builds a Series from the result rows. Rows
// must come back in ascending time order (enforced, since the series
// invariant requires it).
func LoadSQL(ctx context.Context, db *sql.DB, q SQLQuery) (*Series, error) {
	rows, err := db.QueryContext(ctx, q.Query, q.Args...)
	if err != nil {
		return nil, fmt.Errorf("series query %q: %w", q.Name, err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	if len(cols) != len(q.Fields)+1 {
		return nil, &FormatError{Source: q.Name,
			Reason: fmt.Sprintf("query returns %d columns, schema declares %d fields", len(cols), len(q.Fields))}
	}

	var times []time.Time
	colVals := make([][]float64, len(q.Fields))

	for rows.Next() {
		var ts time.Time
		nulls := make([]sql.NullFloat64, len(q.Fields))
		dest := make([]interface{}, 0, len(cols))
		dest = append(dest, &ts)
		for i := range nulls {
			dest = append(dest, &nulls[i])
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("series query %q: %w", q.Name, err)
		}
		times = append(times, ts)
		for i, nv := range nulls {
			v := math.NaN()
			if nv.Valid {
				scale := q.Fields[i].Scale
				if scale == 0 {
					scale = 1
				}
				v = nv.Float64*scale + q.Fields[i].Offset
			}
			colVals[i] = append(colVals[i], v)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	fields := make(map[string][]float64, len(q.Fields))
	for i, spec := range q.Fields {
		fields[spec.Var] = colVals[i]
	}
	return New(q.Name, times, fields)
}
