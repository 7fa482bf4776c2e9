package audit

import (
	"database/sql/driver"
	"errors"
	"io"

	"github.com/plantops/invaudit/internal/canon"
)

// rowSet holds the fully drained result of a RETURNING query so the row
// images can be snapshotted and the rows replayed to the caller.
type rowSet struct {
	cols []string
	rows [][]driver.Value
}

// drainRows consumes and closes rows. Byte slices are copied because the
// driver may reuse their backing memory between Next calls.
func drainRows(rows driver.Rows) (*rowSet, error) {
	defer func() {
		_ = rows.Close()
	}()

	cols := rows.Columns()
	set := &rowSet{cols: cols}
	for {
		dest := make([]driver.Value, len(cols))
		err := rows.Next(dest)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		row := make([]driver.Value, len(cols))
		for i, v := range dest {
			if b, ok := v.([]byte); ok {
				row[i] = append([]byte(nil), b...)
			} else {
				row[i] = v
			}
		}
		set.rows = append(set.rows, row)
	}
	return set, nil
}

func (s *rowSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.rows)
}

// Snapshot renders row i as a column→canonical-value map.
func (s *rowSet) Snapshot(i int) map[string]any {
	snap := make(map[string]any, len(s.cols))
	for j, col := range s.cols {
		snap[col] = canon.Value(s.rows[i][j])
	}
	return snap
}

// Rows replays the drained rows as a driver.Rows for Query callers.
func (s *rowSet) Rows() driver.Rows {
	return &cachedRows{set: s}
}

type cachedRows struct {
	set *rowSet
	idx int
}

func (r *cachedRows) Columns() []string {
	return r.set.cols
}

func (r *cachedRows) Close() error {
	return nil
}

func (r *cachedRows) Next(dest []driver.Value) error {
	if r.idx >= len(r.set.rows) {
		return io.EOF
	}
	copy(dest, r.set.rows[r.idx])
	r.idx++
	return nil
}

// execResult reports the affected row count observed through the
// RETURNING rewrite. LastInsertId mirrors lib/pq, which does not support
// it either, so the caller-visible surface of the mutation is unchanged.
type execResult struct {
	affected int64
}

func (r execResult) LastInsertId() (int64, error) {
	return 0, errors.New("LastInsertId is not supported by this driver")
}

func (r execResult) RowsAffected() (int64, error) {
	return r.affected, nil
}

var (
	_ driver.Rows   = (*cachedRows)(nil)
	_ driver.Result = execResult{}
)
