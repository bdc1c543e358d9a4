package memory

import (
	"io"
	"io/ioutil"

	"github.com/spf13/cast"
	"gopkg.in/src-d/go-errors.v1"
	"gopkg.in/src-d/go-selectc.v0/sql"
	"gopkg.in/src-d/go-selectc.v0/sql/tree"
	"gopkg.in/yaml.v2"
)

var (
	// ErrNoSuchColumn is returned when a key or index names a column the
	// table does not have.
	ErrNoSuchColumn = errors.NewKind("table %s has no column named %s")

	// ErrInvalidFixture is returned when a fixture file cannot be read.
	ErrInvalidFixture = errors.NewKind("invalid fixture: %s")
)

// Fixtures describe the content of a catalog:
//
//	tables:
//	  - name: t
//	    primary_key: [a]
//	    columns:
//	      - {name: a, type: INTEGER}
//	      - {name: b, type: TEXT, collate: NOCASE}
//	    rows:
//	      - [1, "x"]
//	views:
//	  - name: v
//	    query: SELECT a FROM t
type Fixtures struct {
	Tables []TableFixture `yaml:"tables"`
	Views  []ViewFixture  `yaml:"views"`
}

// TableFixture is a table and its rows.
type TableFixture struct {
	Name       string          `yaml:"name"`
	PrimaryKey []string        `yaml:"primary_key"`
	Columns    []ColumnFixture `yaml:"columns"`
	Rows       [][]interface{} `yaml:"rows"`
}

// ColumnFixture is a column of a TableFixture.
type ColumnFixture struct {
	Name    string `yaml:"name"`
	Type    string `yaml:"type"`
	Collate string `yaml:"collate"`
	NotNull bool   `yaml:"not_null"`
}

// ViewFixture is a view defined by a query text.
type ViewFixture struct {
	Name  string `yaml:"name"`
	Query string `yaml:"query"`
}

// ReadFixtures decodes fixtures from YAML.
func ReadFixtures(r io.Reader) (*Fixtures, error) {
	data, err := ioutil.ReadAll(r)
	if err != nil {
		return nil, err
	}

	var f Fixtures
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, ErrInvalidFixture.Wrap(err, err.Error())
	}
	return &f, nil
}

// Load creates the tables and views of the fixtures. View queries are
// turned into trees with parse.
func (c *Catalog) Load(f *Fixtures, parse func(query string) (*tree.Select, error)) error {
	for _, tf := range f.Tables {
		cols := make([]*sql.Column, len(tf.Columns))
		for i, cf := range tf.Columns {
			col := &sql.Column{Name: cf.Name, Type: cf.Type, NotNull: cf.NotNull}
			if cf.Collate != "" {
				coll, err := sql.ParseCollation(cf.Collate)
				if err != nil {
					return err
				}
				col.Collation = coll
			}
			cols[i] = col
		}

		t, err := c.CreateTable(tf.Name, tf.PrimaryKey, cols...)
		if err != nil {
			return err
		}

		for _, values := range tf.Rows {
			row, err := fixtureRow(t.Def(), values)
			if err != nil {
				return err
			}
			if err := c.Insert(tf.Name, row); err != nil {
				return err
			}
		}
	}

	for _, vf := range f.Views {
		def, err := parse(vf.Query)
		if err != nil {
			return ErrInvalidFixture.Wrap(err, "view "+vf.Name)
		}
		if err := c.CreateView(vf.Name, def); err != nil {
			return err
		}
	}
	return nil
}

// fixtureRow converts the values decoded from YAML to the classes of
// their columns.
func fixtureRow(def *sql.Table, values []interface{}) (sql.Row, error) {
	if len(values) != len(def.Columns) {
		return nil, sql.ErrUnexpectedRowLength.New(len(def.Columns), len(values))
	}

	row := make(sql.Row, len(values))
	for i, v := range values {
		if v == nil {
			continue
		}

		var err error
		switch def.Columns[i].Affinity {
		case sql.AffinityInteger:
			row[i], err = cast.ToInt64E(v)
		case sql.AffinityReal:
			row[i], err = cast.ToFloat64E(v)
		case sql.AffinityText:
			row[i], err = cast.ToStringE(v)
		default:
			row[i] = sql.Normalize(v)
		}
		if err != nil {
			return nil, ErrInvalidFixture.Wrap(err, def.Name+"."+def.Columns[i].Name)
		}
	}
	return row, nil
}
