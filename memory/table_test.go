package memory

import (
	"testing"

	"github.com/stretchr/testify/require"
	"gopkg.in/src-d/go-selectc.v0/sql"
)

func newTestTable(pk ...int) *Table {
	def := sql.NewTable("mytable",
		&sql.Column{Name: "i", Type: "INTEGER"},
		&sql.Column{Name: "s", Type: "TEXT", Collation: sql.NoCase},
	)
	def.PrimaryKey = pk
	return NewTable(def)
}

func TestTableName(t *testing.T) {
	require := require.New(t)
	table := newTestTable()
	require.Equal("mytable", table.Name())
	require.Equal("mytable", table.Def().Name)
	require.Equal(0, table.Len())
}

func TestTableInsert(t *testing.T) {
	testCases := []struct {
		name     string
		pk       []int
		rows     []sql.Row
		expected []sql.Row
	}{
		{
			"no primary key keeps insertion order",
			nil,
			[]sql.Row{sql.NewRow(3, "c"), sql.NewRow(1, "a"), sql.NewRow(3, "c")},
			[]sql.Row{{int64(3), "c"}, {int64(1), "a"}, {int64(3), "c"}},
		},
		{
			"integer key",
			[]int{0},
			[]sql.Row{sql.NewRow(3, "c"), sql.NewRow("1", "a"), sql.NewRow(2.0, "b")},
			[]sql.Row{{int64(1), "a"}, {int64(2), "b"}, {int64(3), "c"}},
		},
		{
			"text key with collation",
			[]int{1},
			[]sql.Row{sql.NewRow(1, "b"), sql.NewRow(2, "C"), sql.NewRow(3, "a")},
			[]sql.Row{{int64(3), "a"}, {int64(1), "b"}, {int64(2), "C"}},
		},
	}

	for _, tt := range testCases {
		t.Run(tt.name, func(t *testing.T) {
			require := require.New(t)

			table := newTestTable(tt.pk...)
			require.NoError(table.Insert(tt.rows...))
			require.Equal(tt.expected, table.Rows())
			require.Equal(int64(len(tt.rows)), table.Def().RowEstimate)
		})
	}
}

func TestTableInsertErrors(t *testing.T) {
	require := require.New(t)

	table := newTestTable(1)
	require.NoError(table.Insert(sql.NewRow(1, "a")))

	err := table.Insert(sql.NewRow(2, "A"))
	require.True(ErrDuplicateKey.Is(err))

	err = table.Insert(sql.NewRow(1))
	require.True(sql.ErrUnexpectedRowLength.Is(err))

	table.Def().Columns[1].NotNull = true
	err = table.Insert(sql.NewRow(3, nil))
	require.True(sql.ErrNotNullViolation.Is(err))

	require.Equal(1, table.Len())
}

func TestTableRowsAreCopies(t *testing.T) {
	require := require.New(t)

	table := newTestTable(0)
	require.NoError(table.Insert(sql.NewRow(1, "a")))

	rows := table.Rows()
	rows[0][1] = "changed"
	require.Equal("a", table.Rows()[0][1])

	table.Truncate()
	require.Equal(0, table.Len())
	require.Equal(int64(0), table.Def().RowEstimate)
}
