package uow

import (
	"sync"

	"github.com/jackc/pgx/v5"

	"github.com/hackportal/hackportal-backend/internal/shared"
)

// Record is one result row keyed by column name.
type Record map[string]any

// Rows is a forward-only cursor over a statement result. It owns the
// connection (or the transaction's statement slot) until Close.
type Rows struct {
	rows    pgx.Rows
	columns []string
	once    sync.Once
	release func()
}

func newRows(rows pgx.Rows, release func()) *Rows {
	fields := rows.FieldDescriptions()
	columns := make([]string, len(fields))
	for i, f := range fields {
		columns[i] = f.Name
	}
	return &Rows{rows: rows, columns: columns, release: release}
}

// Columns returns the result column names.
func (r *Rows) Columns() []string {
	return r.columns
}

// Next advances to the next row. The cursor closes itself once exhausted.
func (r *Rows) Next() bool {
	if r.rows.Next() {
		return true
	}
	r.Close()
	return false
}

// Record returns the current row.
func (r *Rows) Record() (Record, error) {
	values, err := r.rows.Values()
	if err != nil {
		return nil, shared.Translate(err)
	}
	rec := make(Record, len(r.columns))
	for i, col := range r.columns {
		if i < len(values) {
			rec[col] = values[i]
		}
	}
	return rec, nil
}

// Err returns the error, if any, encountered during iteration.
func (r *Rows) Err() error {
	return shared.Translate(r.rows.Err())
}

// Close releases the underlying rows and connection. It is safe to call more
// than once.
func (r *Rows) Close() {
	r.once.Do(func() {
		r.rows.Close()
		if r.release != nil {
			r.release()
		}
	})
}
