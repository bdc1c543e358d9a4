package sqle_test

import (
	"bytes"
	"context"
	"io/ioutil"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	sqle "gopkg.in/src-d/go-selectc.v0"
	"gopkg.in/src-d/go-selectc.v0/memory"
	"gopkg.in/src-d/go-selectc.v0/sql"
)

var queries = []struct {
	query    string
	expected []sql.Row
}{
	{
		"SELECT i FROM mytable;",
		[]sql.Row{{int64(1)}, {int64(2)}, {int64(3)}},
	},
	{
		"SELECT i FROM mytable WHERE i = 2;",
		[]sql.Row{{int64(2)}},
	},
	{
		"SELECT i FROM mytable ORDER BY i DESC;",
		[]sql.Row{{int64(3)}, {int64(2)}, {int64(1)}},
	},
	{
		"SELECT i FROM mytable WHERE s = 'first row' ORDER BY i DESC LIMIT 1;",
		[]sql.Row{{int64(1)}},
	},
	{
		"SELECT COUNT(*) FROM mytable;",
		[]sql.Row{{int64(3)}},
	},
	{
		"SELECT COUNT(*) AS c FROM mytable LIMIT 1;",
		[]sql.Row{{int64(3)}},
	},
	{
		"SELECT substr(s, 2, 3) FROM mytable",
		[]sql.Row{{"irs"}, {"eco"}, {"hir"}},
	},
	{
		"SELECT i FROM mytable WHERE i BETWEEN 1 AND 2",
		[]sql.Row{{int64(1)}, {int64(2)}},
	},
	{
		"SELECT i FROM mytable WHERE i NOT BETWEEN 1 AND 2",
		[]sql.Row{{int64(3)}},
	},
	{
		"SELECT i FROM mytable LIMIT 1 OFFSET 1",
		[]sql.Row{{int64(2)}},
	},
	{
		"SELECT i, i2, s2 FROM mytable INNER JOIN othertable ON i = i2",
		[]sql.Row{
			{int64(1), int64(1), "third"},
			{int64(2), int64(2), "second"},
			{int64(3), int64(3), "first"},
		},
	},
	{
		"SELECT i, s2 FROM mytable LEFT JOIN othertable ON i = i2 + 1",
		[]sql.Row{
			{int64(1), nil},
			{int64(2), "third"},
			{int64(3), "second"},
		},
	},
	{
		"SELECT count(*) FROM mytable, othertable",
		[]sql.Row{{int64(9)}},
	},
	{
		`SELECT COUNT(*) AS cnt, fi FROM (
			SELECT tbl.s AS fi
			FROM mytable tbl
		) t
		GROUP BY fi`,
		[]sql.Row{
			{int64(1), "first row"},
			{int64(1), "second row"},
			{int64(1), "third row"},
		},
	},
	{
		"SELECT s FROM mytable WHERE i IN (SELECT i2 FROM othertable WHERE s2 = 'first')",
		[]sql.Row{{"third row"}},
	},
	{
		"SELECT i FROM mytable WHERE EXISTS (SELECT 1 FROM othertable WHERE i2 = i + 1)",
		[]sql.Row{{int64(1)}, {int64(2)}},
	},
	{
		"SELECT (SELECT max(i2) FROM othertable), i FROM mytable WHERE i = 1",
		[]sql.Row{{int64(3), int64(1)}},
	},
	{
		"SELECT sum(i), avg(i), min(s), max(s) FROM mytable",
		[]sql.Row{{int64(6), float64(2), "first row", "third row"}},
	},
	{
		"SELECT group_concat(s2) FROM othertable",
		[]sql.Row{{"third,second,first"}},
	},
	{
		"SELECT CASE WHEN i > 1 THEN 'big' ELSE 'small' END FROM mytable",
		[]sql.Row{{"small"}, {"big"}, {"big"}},
	},
	{
		"SELECT DISTINCT s2 FROM othertable ORDER BY s2",
		[]sql.Row{{"first"}, {"second"}, {"third"}},
	},
	{
		"SELECT i FROM mytable UNION SELECT i2 FROM othertable ORDER BY 1",
		[]sql.Row{{int64(1)}, {int64(2)}, {int64(3)}},
	},
	{
		"SELECT i FROM mytable UNION ALL SELECT i2 FROM othertable ORDER BY 1 DESC LIMIT 2",
		[]sql.Row{{int64(3)}, {int64(3)}},
	},
	{
		"SELECT i FROM mytable EXCEPT SELECT i2 FROM othertable WHERE i2 > 1",
		[]sql.Row{{int64(1)}},
	},
	{
		"SELECT i FROM mytable INTERSECT SELECT i2 FROM othertable WHERE i2 > 1 ORDER BY 1",
		[]sql.Row{{int64(2)}, {int64(3)}},
	},
	{
		"WITH RECURSIVE c(x) AS (SELECT 1 UNION ALL SELECT x + 1 FROM c WHERE x < 5) SELECT x FROM c",
		[]sql.Row{{int64(1)}, {int64(2)}, {int64(3)}, {int64(4)}, {int64(5)}},
	},
	{
		"VALUES (1, 'a'), (2, 'b')",
		[]sql.Row{{int64(1), "a"}, {int64(2), "b"}},
	},
	{
		"SELECT 1 + 1",
		[]sql.Row{{int64(2)}},
	},
}

func TestQueries(t *testing.T) {
	e := newEngine(t)

	for _, tt := range queries {
		t.Run(tt.query, func(t *testing.T) {
			testQuery(t, e, tt.query, tt.expected)
		})
	}
}

func TestQueryColumns(t *testing.T) {
	require := require.New(t)
	e := newEngine(t)

	ctx := e.NewContext(context.TODO())
	schema, iter, err := e.Query(ctx, "SELECT i, s AS name, i + 1 FROM mytable")
	require.NoError(err)
	require.Equal(sql.Schema{"i", "name", "i + 1"}, schema)

	rows, err := sql.RowIterToRows(iter)
	require.NoError(err)
	require.Len(rows, 3)
}

func TestViews(t *testing.T) {
	require := require.New(t)
	e := newEngine(t)
	ctx := e.NewContext(context.TODO())

	_, err := e.Exec(ctx, "CREATE VIEW myview (n) AS SELECT i FROM mytable WHERE i > 1")
	require.NoError(err)

	testQuery(t, e, "SELECT n FROM myview", []sql.Row{{int64(2)}, {int64(3)}})

	_, err = e.Exec(ctx, "CREATE VIEW myview AS SELECT 1")
	require.True(sql.ErrTableAlreadyExists.Is(err))

	_, err = e.Exec(ctx, "CREATE OR REPLACE VIEW myview AS SELECT 1 AS n")
	require.NoError(err)
	testQuery(t, e, "SELECT n FROM myview", []sql.Row{{int64(1)}})
}

func TestStats(t *testing.T) {
	require := require.New(t)
	e := newEngine(t)

	res, err := e.Exec(e.NewContext(context.TODO()), "SELECT i FROM mytable ORDER BY s DESC LIMIT 1")
	require.NoError(err)
	require.Equal([]sql.Row{{int64(3)}}, res.Rows)
	require.Equal(1, res.Stats.TableScans)
	require.True(res.Stats.MaxEphemeralRows <= 1)
}

func TestExplain(t *testing.T) {
	require := require.New(t)
	e := newEngine(t)

	prog, err := e.Explain(e.NewContext(context.TODO()), "SELECT i FROM mytable")
	require.NoError(err)
	require.Equal([]string{"i"}, prog.Columns)
	require.Contains(prog.String(), "OpenRead")
}

func TestQueryErrors(t *testing.T) {
	require := require.New(t)
	e := newEngine(t)
	ctx := e.NewContext(context.TODO())

	_, err := e.Exec(ctx, "SELECT * FROM nope")
	require.Error(err)

	_, err = e.Exec(ctx, "SELECT nope FROM mytable")
	require.Error(err)

	_, err = e.Exec(ctx, "")
	require.Error(err)
}

func TestLogger(t *testing.T) {
	require := require.New(t)

	var buf bytes.Buffer
	l, err := sqle.NewLogger(&buf, "debug", sqle.JSONLogFormat)
	require.NoError(err)
	require.Equal(logrus.DebugLevel, l.Level)

	e := newEngine(t)
	ctx := e.NewContext(context.TODO(), sql.WithLogger(logrus.NewEntry(l)))
	_, err = e.Exec(ctx, "SELECT 1")
	require.NoError(err)
	require.Contains(buf.String(), `"msg":"query finished"`)

	_, err = sqle.NewLogger(ioutil.Discard, "loud", sqle.TextLogFormat)
	require.Error(err)
}

func testQuery(t *testing.T, e *sqle.Engine, q string, expected []sql.Row) {
	t.Helper()
	require := require.New(t)

	res, err := e.Exec(e.NewContext(context.TODO()), q)
	require.NoError(err)
	require.Equal(expected, res.Rows)
}

func newEngine(t *testing.T) *sqle.Engine {
	t.Helper()
	require := require.New(t)

	c := memory.NewCatalog()
	_, err := c.CreateTable("mytable", []string{"i"},
		&sql.Column{Name: "i", Type: "INTEGER"},
		&sql.Column{Name: "s", Type: "TEXT"},
	)
	require.NoError(err)
	require.NoError(c.Insert("mytable",
		sql.NewRow(1, "first row"),
		sql.NewRow(2, "second row"),
		sql.NewRow(3, "third row"),
	))

	_, err = c.CreateTable("othertable", []string{"i2"},
		&sql.Column{Name: "s2", Type: "TEXT"},
		&sql.Column{Name: "i2", Type: "INTEGER"},
	)
	require.NoError(err)
	require.NoError(c.Insert("othertable",
		sql.NewRow("first", 3),
		sql.NewRow("second", 2),
		sql.NewRow("third", 1),
	))

	return sqle.New(c, nil)
}
