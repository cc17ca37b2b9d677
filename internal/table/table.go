// Package table holds the in-memory tabular form datasets take between the
// readers and the schema layer.
package table

// Table is a header row plus string cells. Rows are padded or truncated to
// the header width by the readers that build them.
type Table struct {
	Name    string
	Columns []string
	Rows    [][]string
}

// New creates an empty table with the given columns.
func New(name string, columns ...string) *Table {
	return &Table{Name: name, Columns: append([]string(nil), columns...)}
}

// Index returns the position of column, or -1.
func (t *Table) Index(column string) int {
	for i, c := range t.Columns {
		if c == column {
			return i
		}
	}
	return -1
}

// Has reports whether column exists.
func (t *Table) Has(column string) bool {
	return t.Index(column) >= 0
}

// Len returns the number of data rows.
func (t *Table) Len() int {
	return len(t.Rows)
}

// Value returns the cell at row for column, or "" when the column is missing.
func (t *Table) Value(row int, column string) string {
	i := t.Index(column)
	if i < 0 || row < 0 || row >= len(t.Rows) || i >= len(t.Rows[row]) {
		return ""
	}
	return t.Rows[row][i]
}

// Column returns an accessor for one column. Missing columns yield "" for
// every row, which lets decoders treat absent optional columns as blank.
func (t *Table) Column(column string) func(row int) string {
	i := t.Index(column)
	return func(row int) string {
		if i < 0 || row < 0 || row >= len(t.Rows) || i >= len(t.Rows[row]) {
			return ""
		}
		return t.Rows[row][i]
	}
}

// Append adds a row, padding or truncating it to the header width.
func (t *Table) Append(cells ...string) {
	row := make([]string, len(t.Columns))
	copy(row, cells)
	t.Rows = append(t.Rows, row)
}

// Clone returns a copy whose header can be changed without touching t.
// Row slices are shared.
func (t *Table) Clone() *Table {
	return &Table{
		Name:    t.Name,
		Columns: append([]string(nil), t.Columns...),
		Rows:    t.Rows,
	}
}
