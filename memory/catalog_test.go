package memory

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"gopkg.in/src-d/go-selectc.v0/sql"
	"gopkg.in/src-d/go-selectc.v0/sql/tree"
)

func TestCatalogTables(t *testing.T) {
	require := require.New(t)

	c := NewCatalog()
	_, err := c.CreateTable("t", []string{"a"},
		&sql.Column{Name: "a", Type: "INTEGER"},
		&sql.Column{Name: "b", Type: "TEXT", Collation: sql.NoCase},
	)
	require.NoError(err)

	_, err = c.CreateTable("T", nil, &sql.Column{Name: "x"})
	require.True(sql.ErrTableAlreadyExists.Is(err))

	def, err := c.Table("T")
	require.NoError(err)
	require.Equal("t", def.Name)
	require.Equal([]int{0}, def.PrimaryKey)
	require.True(def.Columns[0].NotNull)
	require.Equal(sql.AffinityInteger, def.Columns[0].Affinity)
	require.Equal(sql.NoCase, def.Columns[1].Collation)

	_, err = c.Table("missing")
	require.True(sql.ErrTableNotFound.Is(err))

	require.NoError(c.CreateIndex("t", "tb", false, "b"))
	idx, err := c.Index("t", "TB")
	require.NoError(err)
	require.Equal([]int{1}, idx.Columns)

	_, err = c.Index("t", "nope")
	require.True(sql.ErrIndexNotFound.Is(err))

	require.True(ErrNoSuchColumn.Is(c.CreateIndex("t", "tc", false, "c")))
}

func TestCatalogRowsInKeyOrder(t *testing.T) {
	require := require.New(t)

	c := NewCatalog()
	_, err := c.CreateTable("t", []string{"a"},
		&sql.Column{Name: "a", Type: "INTEGER"},
		&sql.Column{Name: "b", Type: "TEXT"},
	)
	require.NoError(err)

	require.NoError(c.Insert("t",
		sql.NewRow(3, "c"),
		sql.NewRow("1", "a"),
		sql.NewRow(2, "b"),
	))

	err = c.Insert("t", sql.NewRow(2, "again"))
	require.True(ErrDuplicateKey.Is(err))

	err = c.Insert("t", sql.NewRow(nil, "x"))
	require.True(sql.ErrNotNullViolation.Is(err))

	err = c.Insert("t", sql.NewRow(4))
	require.True(sql.ErrUnexpectedRowLength.Is(err))

	def, err := c.Table("t")
	require.NoError(err)
	require.Equal(int64(3), def.RowEstimate)

	rows, err := c.Rows(sql.NewEmptyContext(), def)
	require.NoError(err)
	require.Equal([]sql.Row{
		{int64(1), "a"},
		{int64(2), "b"},
		{int64(3), "c"},
	}, rows)

	rows[0][1] = "changed"
	again, err := c.Rows(sql.NewEmptyContext(), def)
	require.NoError(err)
	require.Equal("a", again[0][1])
}

func TestCatalogViews(t *testing.T) {
	require := require.New(t)

	c := NewCatalog()
	def := &tree.Select{Columns: tree.NewExprList(tree.NewInteger(1))}
	require.NoError(c.CreateView("v", def))
	require.True(sql.ErrTableAlreadyExists.Is(c.CreateView("V", def)))

	v, err := c.Table("v")
	require.NoError(err)
	require.True(v.IsView())
	require.Equal(def, v.View)

	_, err = c.Rows(sql.NewEmptyContext(), v)
	require.True(sql.ErrTableNotFound.Is(err))
}

const fixtures = `
tables:
  - name: t
    primary_key: [a]
    columns:
      - {name: a, type: INTEGER}
      - {name: b, type: TEXT, collate: nocase}
      - {name: c, type: REAL}
    rows:
      - [2, "y", 1]
      - [1, 10, 2.5]
      - [3, ~, ~]
views:
  - name: v
    query: SELECT a FROM t
`

func TestLoadFixtures(t *testing.T) {
	require := require.New(t)

	f, err := ReadFixtures(strings.NewReader(fixtures))
	require.NoError(err)
	require.Len(f.Tables, 1)
	require.Len(f.Views, 1)

	var parsed []string
	c := NewCatalog()
	err = c.Load(f, func(q string) (*tree.Select, error) {
		parsed = append(parsed, q)
		return &tree.Select{}, nil
	})
	require.NoError(err)
	require.Equal([]string{"SELECT a FROM t"}, parsed)

	def, err := c.Table("t")
	require.NoError(err)
	require.Equal(sql.NoCase, def.Columns[1].Collation)

	rows, err := c.Rows(sql.NewEmptyContext(), def)
	require.NoError(err)
	require.Equal([]sql.Row{
		{int64(1), "10", 2.5},
		{int64(2), "y", float64(1)},
		{int64(3), nil, nil},
	}, rows)

	_, err = ReadFixtures(strings.NewReader("tables: ["))
	require.True(ErrInvalidFixture.Is(err))
}

func TestLoadFixturesBadValue(t *testing.T) {
	require := require.New(t)

	f := &Fixtures{Tables: []TableFixture{{
		Name:    "t",
		Columns: []ColumnFixture{{Name: "a", Type: "INTEGER"}},
		Rows:    [][]interface{}{{"not a number"}},
	}}}
	err := NewCatalog().Load(f, nil)
	require.True(ErrInvalidFixture.Is(err))
}
