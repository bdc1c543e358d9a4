package memory // import "gopkg.in/src-d/go-selectc.v0/memory"

import (
	"strings"
	"sync"

	"gopkg.in/src-d/go-selectc.v0/sql"
	"gopkg.in/src-d/go-selectc.v0/sql/tree"
	"gopkg.in/src-d/go-selectc.v0/sql/vdbe"
)

// Catalog is an in-memory schema holding the rows of its tables. It is
// both the catalog queries are compiled against and the storage programs
// read from.
type Catalog struct {
	mu     sync.RWMutex
	tables map[string]*Table
	views  map[string]*sql.Table
}

var _ sql.Catalog = (*Catalog)(nil)
var _ vdbe.Storage = (*Catalog)(nil)

// NewCatalog creates an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{
		tables: make(map[string]*Table),
		views:  make(map[string]*sql.Table),
	}
}

func key(name string) string { return strings.ToLower(name) }

// CreateTable creates a table with the given columns. primaryKey names
// the primary key columns, in order.
func (c *Catalog) CreateTable(name string, primaryKey []string, columns ...*sql.Column) (*Table, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.exists(name) {
		return nil, sql.ErrTableAlreadyExists.New(name)
	}

	def := sql.NewTable(name, columns...)
	for _, col := range primaryKey {
		i := def.ColumnIndex(col)
		if i < 0 {
			return nil, ErrNoSuchColumn.New(name, col)
		}
		def.Columns[i].NotNull = true
		def.PrimaryKey = append(def.PrimaryKey, i)
	}

	t := NewTable(def)
	c.tables[key(name)] = t
	return t, nil
}

// CreateView adds a view defined by the given query.
func (c *Catalog) CreateView(name string, def *tree.Select) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.exists(name) {
		return sql.ErrTableAlreadyExists.New(name)
	}
	c.views[key(name)] = &sql.Table{Name: name, View: def, RowEstimate: 1000000}
	return nil
}

// DropView removes a view. It reports whether the view existed.
func (c *Catalog) DropView(name string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, ok := c.views[key(name)]
	delete(c.views, key(name))
	return ok
}

// CreateIndex adds a secondary index on the given columns of a table.
func (c *Catalog) CreateIndex(table, name string, unique bool, columns ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	t, ok := c.tables[key(table)]
	if !ok {
		return sql.ErrTableNotFound.New(table)
	}
	idx := &sql.Index{Name: name, Table: t.def.Name, Unique: unique}
	for _, col := range columns {
		i := t.def.ColumnIndex(col)
		if i < 0 {
			return ErrNoSuchColumn.New(table, col)
		}
		idx.Columns = append(idx.Columns, i)
	}
	t.def.Indexes = append(t.def.Indexes, idx)
	return nil
}

func (c *Catalog) exists(name string) bool {
	_, isTable := c.tables[key(name)]
	_, isView := c.views[key(name)]
	return isTable || isView
}

// Insert adds rows to the named table.
func (c *Catalog) Insert(table string, rows ...sql.Row) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	t, ok := c.tables[key(table)]
	if !ok {
		return sql.ErrTableNotFound.New(table)
	}
	return t.Insert(rows...)
}

// Table implements the sql.Catalog interface.
func (c *Catalog) Table(name string) (*sql.Table, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if t, ok := c.tables[key(name)]; ok {
		return t.def, nil
	}
	if v, ok := c.views[key(name)]; ok {
		return v, nil
	}
	return nil, sql.ErrTableNotFound.New(name)
}

// Index implements the sql.Catalog interface.
func (c *Catalog) Index(table, name string) (*sql.Index, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if t, ok := c.tables[key(table)]; ok {
		for _, idx := range t.def.Indexes {
			if strings.EqualFold(idx.Name, name) {
				return idx, nil
			}
		}
	}
	return nil, sql.ErrIndexNotFound.New(name, table)
}

// TableNames returns the names of the tables and views.
func (c *Catalog) TableNames() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	names := make([]string, 0, len(c.tables)+len(c.views))
	for _, t := range c.tables {
		names = append(names, t.def.Name)
	}
	for _, v := range c.views {
		names = append(names, v.Name)
	}
	return names
}

// Rows implements the vdbe.Storage interface.
func (c *Catalog) Rows(ctx *sql.Context, table *sql.Table) ([]sql.Row, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	t, ok := c.tables[key(table.Name)]
	if !ok || t.def != table {
		return nil, sql.ErrTableNotFound.New(table.Name)
	}
	return t.Rows(), nil
}
