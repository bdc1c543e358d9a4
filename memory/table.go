package memory

import (
	"sort"

	"gopkg.in/src-d/go-errors.v1"
	"gopkg.in/src-d/go-selectc.v0/sql"
)

// ErrDuplicateKey is returned when a row has the primary key of a row
// already in the table.
var ErrDuplicateKey = errors.NewKind("duplicate primary key in table %s: %v")

// Table holds the rows of a table, sorted by primary key.
type Table struct {
	def  *sql.Table
	rows []sql.Row
}

// NewTable creates an empty table with the given descriptor.
func NewTable(def *sql.Table) *Table {
	def.RowEstimate = 0
	return &Table{def: def}
}

// Def returns the descriptor of the table.
func (t *Table) Def() *sql.Table { return t.def }

// Name returns the table name.
func (t *Table) Name() string { return t.def.Name }

// Len returns the number of rows.
func (t *Table) Len() int { return len(t.rows) }

// Rows returns a copy of the rows in primary key order.
func (t *Table) Rows() []sql.Row {
	rows := make([]sql.Row, len(t.rows))
	for i, r := range t.rows {
		rows[i] = r.Copy()
	}
	return rows
}

// Insert adds rows to the table. Values are converted to the affinity of
// their column.
func (t *Table) Insert(rows ...sql.Row) error {
	for _, r := range rows {
		if len(r) != len(t.def.Columns) {
			return sql.ErrUnexpectedRowLength.New(len(t.def.Columns), len(r))
		}

		row := make(sql.Row, len(r))
		for i, c := range t.def.Columns {
			v := sql.ApplyAffinity(sql.Normalize(r[i]), c.Affinity)
			if v == nil && c.NotNull {
				return sql.ErrNotNullViolation.New(c.Name, t.def.Name)
			}
			row[i] = v
		}

		if err := t.insert(row); err != nil {
			return err
		}
	}
	t.def.RowEstimate = int64(len(t.rows))
	return nil
}

func (t *Table) insert(row sql.Row) error {
	if len(t.def.PrimaryKey) == 0 {
		t.rows = append(t.rows, row)
		return nil
	}

	i := sort.Search(len(t.rows), func(i int) bool {
		return t.comparePK(t.rows[i], row) >= 0
	})
	if i < len(t.rows) && t.comparePK(t.rows[i], row) == 0 {
		return ErrDuplicateKey.New(t.def.Name, t.key(row))
	}
	t.rows = append(t.rows, nil)
	copy(t.rows[i+1:], t.rows[i:])
	t.rows[i] = row
	return nil
}

func (t *Table) comparePK(a, b sql.Row) int {
	for _, c := range t.def.PrimaryKey {
		if r := sql.Compare(a[c], b[c], t.def.Columns[c].Collation); r != 0 {
			return r
		}
	}
	return 0
}

func (t *Table) key(row sql.Row) []interface{} {
	key := make([]interface{}, len(t.def.PrimaryKey))
	for i, c := range t.def.PrimaryKey {
		key[i] = row[c]
	}
	return key
}

// Truncate deletes every row.
func (t *Table) Truncate() {
	t.rows = nil
	t.def.RowEstimate = 0
}
