package access

// Cell is one value of a Table column. Known is false when the value is unknown.
type Cell[T any] struct {
	Row   string
	Value T
	Known bool
}

// Table is a source × category table whose shape is fixed at construction.
type Table[T any] struct {
	rows   []string
	cols   []string
	rowIdx map[string]int
	colIdx map[string]int
	values []T
	known  []bool
}

func newTable[T any](rows, cols []string) *Table[T] {
	t := &Table[T]{
		rows:   rows,
		cols:   cols,
		rowIdx: make(map[string]int, len(rows)),
		colIdx: make(map[string]int, len(cols)),
		values: make([]T, len(rows)*len(cols)),
		known:  make([]bool, len(rows)*len(cols)),
	}
	for i, r := range rows {
		t.rowIdx[r] = i
	}
	for i, c := range cols {
		t.colIdx[c] = i
	}
	return t
}

func (t *Table[T]) set(r, c int, v T, known bool) {
	i := r*len(t.cols) + c
	t.values[i] = v
	t.known[i] = known
}

// Value returns the cell at (row, col). ok is false when the cell is unknown
// or the row or column does not exist.
func (t *Table[T]) Value(row, col string) (v T, ok bool) {
	r, rok := t.rowIdx[row]
	c, cok := t.colIdx[col]
	if !rok || !cok {
		return v, false
	}
	i := r*len(t.cols) + c
	return t.values[i], t.known[i]
}

// Column returns every cell of col in row order, or nil for an unknown column.
func (t *Table[T]) Column(col string) []Cell[T] {
	c, ok := t.colIdx[col]
	if !ok {
		return nil
	}
	out := make([]Cell[T], len(t.rows))
	for r, id := range t.rows {
		i := r*len(t.cols) + c
		out[r] = Cell[T]{Row: id, Value: t.values[i], Known: t.known[i]}
	}
	return out
}

// Row returns every cell of row in column order, or nil for an unknown row.
// Cell.Row holds the column name.
func (t *Table[T]) Row(row string) []Cell[T] {
	r, ok := t.rowIdx[row]
	if !ok {
		return nil
	}
	out := make([]Cell[T], len(t.cols))
	for c, col := range t.cols {
		i := r*len(t.cols) + c
		out[c] = Cell[T]{Row: col, Value: t.values[i], Known: t.known[i]}
	}
	return out
}

// Rows returns the row ids in order.
func (t *Table[T]) Rows() []string {
	return append([]string(nil), t.rows...)
}

// Columns returns the column names in order.
func (t *Table[T]) Columns() []string {
	return append([]string(nil), t.cols...)
}
