package sql

import (
	"strings"
)

// Affinity is the preferred storage class of a column. Values are coerced
// towards the affinity of the column or register they are stored into.
type Affinity byte

const (
	// AffinityBlob stores values as they are.
	AffinityBlob Affinity = 'A'
	// AffinityText converts numbers to text.
	AffinityText Affinity = 'B'
	// AffinityNumeric converts numeric-looking text to numbers.
	AffinityNumeric Affinity = 'C'
	// AffinityInteger behaves like AffinityNumeric.
	AffinityInteger Affinity = 'D'
	// AffinityReal behaves like AffinityNumeric but stores floats.
	AffinityReal Affinity = 'E'
)

// IsNumeric returns whether the affinity converts text to numbers.
func (a Affinity) IsNumeric() bool {
	return a >= AffinityNumeric
}

// AffinityOf returns the affinity of a declared column type.
func AffinityOf(declared string) Affinity {
	t := strings.ToUpper(declared)
	switch {
	case strings.Contains(t, "INT"):
		return AffinityInteger
	case strings.Contains(t, "CHAR"),
		strings.Contains(t, "CLOB"),
		strings.Contains(t, "TEXT"):
		return AffinityText
	case t == "", strings.Contains(t, "BLOB"):
		return AffinityBlob
	case strings.Contains(t, "REAL"),
		strings.Contains(t, "FLOA"),
		strings.Contains(t, "DOUB"):
		return AffinityReal
	default:
		return AffinityNumeric
	}
}

// Column is a single field of a table.
type Column struct {
	// Name of the column.
	Name string
	// Type is the declared type.
	Type string
	// Collation used to compare text values of this column.
	Collation Collation
	// Affinity of the column, derived from Type when not set.
	Affinity Affinity
	// NotNull rejects NULL values.
	NotNull bool
}

// Query is a parsed query tree stored in the catalog as a view definition.
type Query interface {
	String() string
}

// Table is the descriptor of a row source known by name: a stored table, a
// view or a transient table describing the result of a subquery.
type Table struct {
	// Name of the table.
	Name string
	// Columns in declaration order.
	Columns []*Column
	// PrimaryKey lists the positions of the primary key columns. Rows of
	// stored tables are scanned in primary key order.
	PrimaryKey []int
	// Indexes defined on the table.
	Indexes []*Index
	// View is the definition of the view, nil for tables.
	View Query
	// RowEstimate is the expected number of rows.
	RowEstimate int64
	// Ephemeral marks descriptors created during compilation for subqueries,
	// views and common table expressions.
	Ephemeral bool

	refs int
}

// NewTable creates a table descriptor with the given columns. Missing
// affinities and collations are filled from the declared types.
func NewTable(name string, columns ...*Column) *Table {
	for _, c := range columns {
		if c.Affinity == 0 {
			c.Affinity = AffinityOf(c.Type)
		}
		if c.Collation == "" {
			c.Collation = Binary
		}
	}
	return &Table{Name: name, Columns: columns, RowEstimate: 1000000}
}

// Ref adds a reference to the table and returns it.
func (t *Table) Ref() *Table {
	t.refs++
	return t
}

// Unref drops a reference to the table.
func (t *Table) Unref() error {
	if t.refs <= 0 {
		return ErrReleasedTable.New(t.Name)
	}
	t.refs--
	return nil
}

// Refs returns the number of live references to the table.
func (t *Table) Refs() int { return t.refs }

// IsView returns whether the table is a view.
func (t *Table) IsView() bool { return t.View != nil }

// ColumnIndex returns the position of the column with the given name, or
// -1. Names are compared case-insensitively.
func (t *Table) ColumnIndex(name string) int {
	for i, c := range t.Columns {
		if strings.EqualFold(c.Name, name) {
			return i
		}
	}
	return -1
}

// HasColumn returns whether the table has a column with the given name.
func (t *Table) HasColumn(name string) bool {
	return t.ColumnIndex(name) >= 0
}

// Index is a secondary index descriptor.
type Index struct {
	Name    string
	Table   string
	Columns []int
	Unique  bool
}

// Catalog gives the compiler access to the schema.
type Catalog interface {
	// Table returns the descriptor of the table or view with the given name,
	// or ErrTableNotFound.
	Table(name string) (*Table, error)
	// Index returns the descriptor of the named index on the given table, or
	// ErrIndexNotFound.
	Index(table, name string) (*Index, error)
}
