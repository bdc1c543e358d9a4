package compiler_test

import (
	"bytes"
	"context"
	"fmt"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"gopkg.in/src-d/go-selectc.v0/memory"
	"gopkg.in/src-d/go-selectc.v0/sql"
	"gopkg.in/src-d/go-selectc.v0/sql/compiler"
	"gopkg.in/src-d/go-selectc.v0/sql/parse"
	"gopkg.in/src-d/go-selectc.v0/sql/tree"
	"gopkg.in/src-d/go-selectc.v0/sql/vdbe"
	"gopkg.in/src-d/go-selectc.v0/sql/where"
)

type result struct {
	rows  []sql.Row
	stats vdbe.Stats
	prog  *vdbe.Program
	log   string
}

func newCatalog(t *testing.T) *memory.Catalog {
	t.Helper()
	require := require.New(t)

	c := memory.NewCatalog()
	create := func(name string, pk []string, cols ...*sql.Column) {
		_, err := c.CreateTable(name, pk, cols...)
		require.NoError(err)
	}

	create("a", []string{"x"},
		&sql.Column{Name: "x", Type: "INTEGER"},
		&sql.Column{Name: "y", Type: "TEXT"},
	)
	require.NoError(c.Insert("a", sql.NewRow(1, "a"), sql.NewRow(2, "b")))

	create("b", []string{"x"},
		&sql.Column{Name: "x", Type: "INTEGER"},
		&sql.Column{Name: "y", Type: "TEXT"},
	)
	require.NoError(c.Insert("b", sql.NewRow(2, "b"), sql.NewRow(3, "c")))

	create("c", []string{"x"},
		&sql.Column{Name: "x", Type: "INTEGER"},
		&sql.Column{Name: "z", Type: "TEXT"},
	)
	require.NoError(c.Insert("c", sql.NewRow(2, "two"), sql.NewRow(3, "three")))

	create("p", []string{"k1", "k2"},
		&sql.Column{Name: "k1", Type: "INTEGER"},
		&sql.Column{Name: "k2", Type: "INTEGER"},
		&sql.Column{Name: "v", Type: "TEXT"},
	)
	require.NoError(c.Insert("p",
		sql.NewRow(1, 1, "x"),
		sql.NewRow(1, 2, "x"),
		sql.NewRow(2, 1, "y"),
		sql.NewRow(2, 2, "y"),
	))

	create("n", []string{"i"},
		&sql.Column{Name: "i", Type: "INTEGER"},
		&sql.Column{Name: "v", Type: "INTEGER"},
	)
	for i := 1; i <= 10; i++ {
		require.NoError(c.Insert("n", sql.NewRow(i, 100-i)))
	}

	create("dup", nil, &sql.Column{Name: "a", Type: "INTEGER"})
	require.NoError(c.Insert("dup", sql.NewRow(1), sql.NewRow(1), sql.NewRow(2)))

	create("e", nil,
		&sql.Column{Name: "a", Type: "INTEGER"},
		&sql.Column{Name: "b", Type: "INTEGER"},
	)

	return c
}

func compile(c *memory.Catalog, cfg *sql.Config, query string) (*result, error) {
	var buf bytes.Buffer
	l := logrus.New()
	l.Out = &buf
	l.Level = logrus.DebugLevel
	l.Formatter = &logrus.JSONFormatter{}

	ctx := sql.NewContext(context.Background(),
		sql.WithConfig(cfg),
		sql.WithQuery(query),
		sql.WithLogger(logrus.NewEntry(l)),
	)

	sel, err := parse.Parse(ctx, query)
	if err != nil {
		return nil, err
	}

	prog, err := compiler.Compile(ctx, c, where.NewPlanner(), sel)
	if err != nil {
		return nil, err
	}

	rows, stats, err := vdbe.Exec(ctx, prog, c)
	if err != nil {
		return nil, err
	}
	return &result{rows: rows, stats: stats, prog: prog, log: buf.String()}, nil
}

func run(t *testing.T, c *memory.Catalog, cfg *sql.Config, query string) *result {
	t.Helper()
	if cfg == nil {
		cfg = sql.DefaultConfig()
	}
	res, err := compile(c, cfg, query)
	require.NoError(t, err, query)
	return res
}

func TestFlattenAndPushDownSoundness(t *testing.T) {
	c := newCatalog(t)

	queries := []string{
		"SELECT x, y FROM (SELECT x, y FROM a WHERE x > 1) WHERE y <> 'c' ORDER BY x",
		"SELECT s.x FROM (SELECT x FROM a) s, b WHERE s.x = b.x ORDER BY 1",
		"SELECT * FROM (SELECT x FROM a UNION ALL SELECT x FROM b) WHERE x >= 2 ORDER BY x",
		"SELECT * FROM (SELECT x, y FROM a UNION SELECT x, y FROM b) WHERE x < 3 ORDER BY 1",
		"SELECT x, n FROM (SELECT x, count(*) AS n FROM b GROUP BY x) WHERE n > 0 ORDER BY x",
		"SELECT y FROM (SELECT y FROM a ORDER BY x DESC LIMIT 1) ORDER BY y",
		"SELECT a.x, s.y FROM a LEFT JOIN (SELECT x, y FROM b) s ON a.x = s.x ORDER BY a.x",
		"SELECT DISTINCT y FROM (SELECT y FROM a UNION ALL SELECT y FROM b) ORDER BY y",
		"SELECT count(*) FROM (SELECT v FROM p WHERE k1 = 2)",
		"SELECT t.k FROM (SELECT k1 + k2 AS k FROM p) t WHERE t.k > 2 ORDER BY t.k",
		"SELECT x FROM (SELECT x FROM (SELECT x FROM n_view) WHERE x > 5) ORDER BY x DESC LIMIT 2",
	}

	require.NoError(t, c.CreateView("n_view", mustParse(t, "SELECT i AS x FROM n")))

	for _, q := range queries {
		t.Run(q, func(t *testing.T) {
			require := require.New(t)

			plain := sql.DefaultConfig()
			plain.DisableFlattening = true
			plain.DisablePushDown = true
			plain.DisableCoroutines = true
			expected := run(t, c, plain, q).rows

			for i := 0; i < 8; i++ {
				cfg := sql.DefaultConfig()
				cfg.DisableFlattening = i&1 != 0
				cfg.DisablePushDown = i&2 != 0
				cfg.DisableCoroutines = i&4 != 0
				require.Equal(expected, run(t, c, cfg, q).rows,
					fmt.Sprintf("flattening=%v pushdown=%v coroutines=%v",
						!cfg.DisableFlattening, !cfg.DisablePushDown, !cfg.DisableCoroutines))
			}
		})
	}
}

func TestFlattenLogged(t *testing.T) {
	require := require.New(t)
	c := newCatalog(t)

	q := "SELECT x FROM (SELECT x FROM a WHERE x > 1)"
	res := run(t, c, nil, q)
	require.Equal([]sql.Row{{int64(2)}}, res.rows)
	require.Contains(res.log, "flattened subquery")

	cfg := sql.DefaultConfig()
	cfg.DisableFlattening = true
	res = run(t, c, cfg, q)
	require.Equal([]sql.Row{{int64(2)}}, res.rows)
	require.NotContains(res.log, "flattened subquery")
}

func TestPushDownLogged(t *testing.T) {
	require := require.New(t)
	c := newCatalog(t)

	q := "SELECT x FROM (SELECT x FROM a UNION ALL SELECT x FROM b) WHERE x = 2"
	cfg := sql.DefaultConfig()
	cfg.DisableFlattening = true

	res := run(t, c, cfg, q)
	require.Equal([]sql.Row{{int64(2)}, {int64(2)}}, res.rows)
	require.Contains(res.log, "WHERE terms pushed down")

	cfg.DisablePushDown = true
	res = run(t, c, cfg, q)
	require.Equal([]sql.Row{{int64(2)}, {int64(2)}}, res.rows)
	require.NotContains(res.log, "WHERE terms pushed down")
}

func TestPushDownCompoundArms(t *testing.T) {
	c := newCatalog(t)

	testCases := []struct {
		query    string
		expected []sql.Row
	}{
		{
			"SELECT x FROM (SELECT x FROM a INTERSECT SELECT x FROM b) WHERE x > 1",
			[]sql.Row{{int64(2)}},
		},
		{
			"SELECT s.x FROM (SELECT x FROM a INTERSECT SELECT x FROM b) AS s WHERE s.x = 2",
			[]sql.Row{{int64(2)}},
		},
		{
			"SELECT x FROM (SELECT x FROM a EXCEPT SELECT x FROM b) WHERE x < 2",
			[]sql.Row{{int64(1)}},
		},
		{
			"SELECT x FROM (SELECT x FROM b EXCEPT SELECT x FROM a) WHERE x > 2",
			[]sql.Row{{int64(3)}},
		},
	}

	for _, tt := range testCases {
		t.Run(tt.query, func(t *testing.T) {
			require := require.New(t)

			cfg := sql.DefaultConfig()
			cfg.DisableFlattening = true
			res := run(t, c, cfg, tt.query)
			require.Equal(tt.expected, res.rows)
			require.Contains(res.log, "WHERE terms pushed down")

			cfg.DisablePushDown = true
			res = run(t, c, cfg, tt.query)
			require.Equal(tt.expected, res.rows)
			require.NotContains(res.log, "WHERE terms pushed down")
		})
	}
}

func TestCompoundSelect(t *testing.T) {
	c := newCatalog(t)

	testCases := []struct {
		query    string
		expected []sql.Row
	}{
		{
			"SELECT x, y FROM a UNION SELECT x, y FROM b ORDER BY 1",
			[]sql.Row{{int64(1), "a"}, {int64(2), "b"}, {int64(3), "c"}},
		},
		{
			"SELECT x, y FROM a UNION ALL SELECT x, y FROM b ORDER BY 1",
			[]sql.Row{{int64(1), "a"}, {int64(2), "b"}, {int64(2), "b"}, {int64(3), "c"}},
		},
		{
			"SELECT x, y FROM a INTERSECT SELECT x, y FROM b",
			[]sql.Row{{int64(2), "b"}},
		},
		{
			"SELECT x, y FROM a INTERSECT SELECT x, y FROM b ORDER BY 2",
			[]sql.Row{{int64(2), "b"}},
		},
		{
			"SELECT x, y FROM a EXCEPT SELECT x, y FROM b",
			[]sql.Row{{int64(1), "a"}},
		},
		{
			"SELECT x, y FROM a EXCEPT SELECT x, y FROM b ORDER BY x DESC",
			[]sql.Row{{int64(1), "a"}},
		},
		{
			"SELECT x FROM a UNION SELECT x FROM b ORDER BY 1 DESC LIMIT 2",
			[]sql.Row{{int64(3)}, {int64(2)}},
		},
		{
			"SELECT x FROM a UNION SELECT x FROM b UNION SELECT x FROM c ORDER BY 1 LIMIT 2 OFFSET 1",
			[]sql.Row{{int64(2)}, {int64(3)}},
		},
		{
			"SELECT x FROM a UNION ALL SELECT x FROM b EXCEPT SELECT x FROM c ORDER BY 1",
			[]sql.Row{{int64(1)}},
		},
		{
			"SELECT y FROM a UNION SELECT z FROM c ORDER BY y",
			[]sql.Row{{"a"}, {"b"}, {"three"}, {"two"}},
		},
	}

	for _, tt := range testCases {
		t.Run(tt.query, func(t *testing.T) {
			require.Equal(t, tt.expected, run(t, c, nil, tt.query).rows)
		})
	}
}

func TestOrderByPrefix(t *testing.T) {
	c := newCatalog(t)

	testCases := []struct {
		query    string
		expected []sql.Row
	}{
		{
			"SELECT x, y FROM a ORDER BY x, y",
			[]sql.Row{{int64(1), "a"}, {int64(2), "b"}},
		},
		{
			"SELECT a.x, b.y FROM a, b ORDER BY a.x, b.y DESC",
			[]sql.Row{{int64(1), "c"}, {int64(1), "b"}, {int64(2), "c"}, {int64(2), "b"}},
		},
		{
			"SELECT a.x, b.y FROM a, b ORDER BY a.x, b.y DESC LIMIT 3",
			[]sql.Row{{int64(1), "c"}, {int64(1), "b"}, {int64(2), "c"}},
		},
		{
			"SELECT a.x, b.y FROM a, b ORDER BY a.x, b.y DESC LIMIT 2 OFFSET 1",
			[]sql.Row{{int64(1), "b"}, {int64(2), "c"}},
		},
		{
			"SELECT b.y, a.x FROM a, b ORDER BY a.x DESC, 1",
			[]sql.Row{{"b", int64(2)}, {"c", int64(2)}, {"b", int64(1)}, {"c", int64(1)}},
		},
	}

	for _, tt := range testCases {
		t.Run(tt.query, func(t *testing.T) {
			require.Equal(t, tt.expected, run(t, c, nil, tt.query).rows)
		})
	}
}

func TestCompoundMergeLogged(t *testing.T) {
	require := require.New(t)
	c := newCatalog(t)

	res := run(t, c, nil, "SELECT x, y FROM a UNION SELECT x, y FROM b ORDER BY 1")
	require.Contains(res.log, "compound select merged")

	res = run(t, c, nil, "SELECT x, y FROM a UNION SELECT x, y FROM b")
	require.NotContains(res.log, "compound select merged")
	require.Len(res.rows, 3)
}

func TestValues(t *testing.T) {
	require := require.New(t)
	c := newCatalog(t)

	res := run(t, c, nil, "VALUES (1, 'a'), (2, 'b'), (3, 'c')")
	require.Equal([]sql.Row{{int64(1), "a"}, {int64(2), "b"}, {int64(3), "c"}}, res.rows)
	require.Equal([]string{"column1", "column2"}, res.prog.Columns)

	res = run(t, c, nil, "SELECT * FROM (VALUES (3), (1), (2)) ORDER BY 1")
	require.Equal([]sql.Row{{int64(1)}, {int64(2)}, {int64(3)}}, res.rows)

	res = run(t, c, nil, "SELECT column2 FROM (VALUES (1, 'x'), (2, 'y')) WHERE column1 = 2")
	require.Equal([]sql.Row{{"y"}}, res.rows)
	require.Equal([]string{"column2"}, res.prog.Columns)

	res = run(t, c, nil, "VALUES (1) UNION SELECT x FROM b")
	require.Equal([]string{"column1"}, res.prog.Columns)
	require.Len(res.rows, 3)
}

func TestRecursiveCTE(t *testing.T) {
	c := newCatalog(t)

	testCases := []struct {
		query    string
		expected []sql.Row
	}{
		{
			"WITH RECURSIVE cnt(i) AS (SELECT 1 UNION ALL SELECT i + 1 FROM cnt WHERE i < 4) SELECT i FROM cnt",
			[]sql.Row{{int64(1)}, {int64(2)}, {int64(3)}, {int64(4)}},
		},
		{
			"WITH RECURSIVE cnt(i) AS (SELECT 1 UNION ALL SELECT i + 1 FROM cnt LIMIT 3) SELECT i FROM cnt",
			[]sql.Row{{int64(1)}, {int64(2)}, {int64(3)}},
		},
		{
			"WITH RECURSIVE cnt(i) AS (SELECT 1 UNION SELECT i % 3 + 1 FROM cnt) SELECT i FROM cnt",
			[]sql.Row{{int64(1)}, {int64(2)}, {int64(3)}},
		},
		{
			"WITH twice(x) AS (SELECT x * 2 FROM a) SELECT x FROM twice ORDER BY x DESC",
			[]sql.Row{{int64(4)}, {int64(2)}},
		},
	}

	for _, tt := range testCases {
		t.Run(tt.query, func(t *testing.T) {
			require.Equal(t, tt.expected, run(t, c, nil, tt.query).rows)
		})
	}
}

func TestDistinct(t *testing.T) {
	c := newCatalog(t)

	testCases := []struct {
		query    string
		kind     compiler.DistinctKind
		expected []sql.Row
	}{
		{
			"SELECT DISTINCT k1, k2 FROM p",
			compiler.DistinctUnique,
			[]sql.Row{{int64(1), int64(1)}, {int64(1), int64(2)}, {int64(2), int64(1)}, {int64(2), int64(2)}},
		},
		{
			"SELECT DISTINCT k1 FROM p",
			compiler.DistinctOrdered,
			[]sql.Row{{int64(1)}, {int64(2)}},
		},
		{
			"SELECT DISTINCT v FROM p",
			compiler.DistinctUnordered,
			[]sql.Row{{"x"}, {"y"}},
		},
	}

	for _, tt := range testCases {
		t.Run(tt.kind.String(), func(t *testing.T) {
			require := require.New(t)

			res := run(t, c, nil, tt.query)
			require.Equal(tt.expected, res.rows)
			require.Contains(res.log, fmt.Sprintf(`"distinct":"%s"`, tt.kind))

			again := run(t, c, nil, "SELECT DISTINCT * FROM ("+tt.query+")")
			require.Equal(tt.expected, again.rows)
		})
	}
}

func TestDistinctOrderBy(t *testing.T) {
	require := require.New(t)
	c := newCatalog(t)

	res := run(t, c, nil, "SELECT DISTINCT a FROM dup ORDER BY a")
	require.Equal([]sql.Row{{int64(1)}, {int64(2)}}, res.rows)
	require.Contains(res.log, "DISTINCT turned into GROUP BY")

	res = run(t, c, nil, "SELECT DISTINCT a FROM dup ORDER BY a DESC")
	require.Equal([]sql.Row{{int64(2)}, {int64(1)}}, res.rows)
}

func TestAggregates(t *testing.T) {
	c := newCatalog(t)

	testCases := []struct {
		query    string
		expected []sql.Row
	}{
		{"SELECT count(*), max(a) FROM e", []sql.Row{{int64(0), nil}}},
		{"SELECT count(a), sum(a), min(a) FROM e", []sql.Row{{int64(0), nil, nil}}},
		{"SELECT count(*) FROM e GROUP BY a", nil},
		{"SELECT count(*), max(x) FROM a WHERE x > 10", []sql.Row{{int64(0), nil}}},
		{"SELECT count(*) FROM a WHERE x > 10 GROUP BY y", nil},
		{"SELECT count(*) FROM n", []sql.Row{{int64(10)}}},
		{"SELECT min(i), max(i) FROM n", []sql.Row{{int64(1), int64(10)}}},
		{"SELECT max(i) FROM n", []sql.Row{{int64(10)}}},
		{"SELECT min(i) FROM n WHERE i > 3", []sql.Row{{int64(4)}}},
		{"SELECT count(DISTINCT a) FROM dup", []sql.Row{{int64(2)}}},
		{"SELECT a, count(*) FROM dup GROUP BY a ORDER BY 2 DESC", []sql.Row{{int64(1), int64(2)}, {int64(2), int64(1)}}},
		{"SELECT k1, sum(k2) FROM p GROUP BY k1 HAVING sum(k2) > 2", []sql.Row{{int64(1), int64(3)}, {int64(2), int64(3)}}},
		{"SELECT v, count(*) FROM p GROUP BY v HAVING v = 'y'", []sql.Row{{"y", int64(2)}}},
		{"SELECT k1 FROM p GROUP BY k1 ORDER BY k1 DESC LIMIT 1", []sql.Row{{int64(2)}}},
		{"SELECT group_concat(v, '-') FROM p WHERE k2 = 1", []sql.Row{{"x-y"}}},
		{"SELECT group_concat(v SEPARATOR '+') FROM p WHERE k2 = 2", []sql.Row{{"x+y"}}},
		{"SELECT group_concat(k1) FROM p WHERE k2 = 2", []sql.Row{{"1,2"}}},
	}

	for _, tt := range testCases {
		t.Run(tt.query, func(t *testing.T) {
			require := require.New(t)
			rows := run(t, c, nil, tt.query).rows
			if tt.expected == nil {
				require.Len(rows, 0)
				return
			}
			require.Equal(tt.expected, rows)
		})
	}
}

func TestAggregateFuncsShared(t *testing.T) {
	require := require.New(t)
	c := newCatalog(t)

	res := run(t, c, nil, "SELECT count(DISTINCT a), COUNT(DISTINCT a) + 1, count(a) FROM dup")
	require.Equal([]sql.Row{{int64(2), int64(3), int64(3)}}, res.rows)
	require.Equal(2, res.prog.Count(vdbe.OpAggStep), res.prog.String())

	var keys []*vdbe.KeyDef
	for _, in := range res.prog.Instructions {
		if in.Op == vdbe.OpOpenEphemeral {
			keys = append(keys, in.P4.(*vdbe.KeyDef))
		}
	}
	require.Len(keys, 1)
	require.Equal(sql.Binary, keys[0].Parts[0].Collation)
}

func TestLimitOffset(t *testing.T) {
	c := newCatalog(t)

	testCases := []struct {
		query    string
		expected int
	}{
		{"SELECT i FROM n LIMIT 0", 0},
		{"SELECT i FROM n LIMIT 0 OFFSET 2", 0},
		{"SELECT i FROM n LIMIT 3 OFFSET 10", 0},
		{"SELECT i FROM n LIMIT 3 OFFSET 20", 0},
		{"SELECT i FROM n LIMIT -1", 10},
		{"SELECT i FROM n LIMIT -1 OFFSET 8", 2},
		{"SELECT i FROM n LIMIT 4", 4},
		{"SELECT i FROM n ORDER BY v LIMIT 0", 0},
		{"SELECT i FROM n ORDER BY v LIMIT -1", 10},
		{"SELECT i FROM n ORDER BY v LIMIT 3 OFFSET 9", 1},
	}

	for _, tt := range testCases {
		t.Run(tt.query, func(t *testing.T) {
			require.Len(t, run(t, c, nil, tt.query).rows, tt.expected)
		})
	}
}

func TestSorterBoundedByLimit(t *testing.T) {
	require := require.New(t)
	c := newCatalog(t)

	res := run(t, c, nil, "SELECT i FROM n ORDER BY v LIMIT 3 OFFSET 2")
	require.Equal([]sql.Row{{int64(8)}, {int64(7)}, {int64(6)}}, res.rows)
	require.True(res.stats.MaxEphemeralRows <= 5, "sorter held %d rows", res.stats.MaxEphemeralRows)

	res = run(t, c, nil, "SELECT i FROM n ORDER BY v")
	require.Len(res.rows, 10)
	require.Equal(10, res.stats.MaxEphemeralRows)

	res = run(t, c, nil, "SELECT i FROM n ORDER BY i DESC LIMIT 2")
	require.Equal([]sql.Row{{int64(10)}, {int64(9)}}, res.rows)
	require.Equal(0, res.stats.MaxEphemeralRows)
}

func TestNaturalJoin(t *testing.T) {
	c := newCatalog(t)

	testCases := []struct {
		natural  string
		explicit string
		columns  []string
	}{
		{
			"SELECT * FROM a NATURAL JOIN b",
			"SELECT a.x, a.y FROM a JOIN b ON a.x = b.x AND a.y = b.y",
			[]string{"x", "y"},
		},
		{
			"SELECT * FROM a NATURAL JOIN c",
			"SELECT a.x, a.y, c.z FROM a JOIN c ON a.x = c.x",
			[]string{"x", "y", "z"},
		},
		{
			"SELECT * FROM a JOIN c USING (x)",
			"SELECT a.x, a.y, c.z FROM a, c WHERE a.x = c.x",
			[]string{"x", "y", "z"},
		},
		{
			"SELECT * FROM a NATURAL LEFT JOIN c",
			"SELECT a.x, a.y, c.z FROM a LEFT JOIN c ON a.x = c.x",
			[]string{"x", "y", "z"},
		},
	}

	for _, tt := range testCases {
		t.Run(tt.natural, func(t *testing.T) {
			require := require.New(t)

			natural := run(t, c, nil, tt.natural)
			explicit := run(t, c, nil, tt.explicit)
			require.Equal(explicit.rows, natural.rows)
			require.NotEmpty(natural.rows)
			require.Equal(tt.columns, natural.prog.Columns)
		})
	}
}

func TestLeftJoin(t *testing.T) {
	require := require.New(t)
	c := newCatalog(t)

	res := run(t, c, nil, "SELECT a.x, c.z FROM a LEFT JOIN c ON a.x = c.x AND c.z <> 'two'")
	require.Equal([]sql.Row{{int64(1), nil}, {int64(2), nil}}, res.rows)

	res = run(t, c, nil, "SELECT a.x, c.z FROM a LEFT JOIN c ON a.x = c.x WHERE c.z IS NULL")
	require.Equal([]sql.Row{{int64(1), nil}}, res.rows)
}

func TestSubqueries(t *testing.T) {
	c := newCatalog(t)

	testCases := []struct {
		query    string
		expected []sql.Row
	}{
		{"SELECT x FROM a WHERE x IN (SELECT x FROM b)", []sql.Row{{int64(2)}}},
		{"SELECT x FROM a WHERE x NOT IN (SELECT x FROM b)", []sql.Row{{int64(1)}}},
		{"SELECT x FROM a WHERE EXISTS (SELECT 1 FROM c WHERE c.x = a.x)", []sql.Row{{int64(2)}}},
		{"SELECT x FROM a WHERE NOT EXISTS (SELECT 1 FROM c WHERE c.x = a.x)", []sql.Row{{int64(1)}}},
		{"SELECT (SELECT z FROM c WHERE c.x = a.x) FROM a", []sql.Row{{nil}, {"two"}}},
		{"SELECT x FROM a WHERE x = (SELECT min(x) FROM b)", []sql.Row{{int64(2)}}},
		{"SELECT x FROM a WHERE x IN (2, 3)", []sql.Row{{int64(2)}}},
	}

	for _, tt := range testCases {
		t.Run(tt.query, func(t *testing.T) {
			require.Equal(t, tt.expected, run(t, c, nil, tt.query).rows)
		})
	}
}

func TestColumnNames(t *testing.T) {
	require := require.New(t)
	c := newCatalog(t)

	res := run(t, c, nil, "SELECT x, y AS name, x + 1, a.* FROM a")
	require.Equal([]string{"x", "name", "x + 1", "x", "y"}, res.prog.Columns)

	cfg := sql.DefaultConfig()
	cfg.FullColumnNames = true
	res = run(t, c, cfg, "SELECT x, y AS name FROM a")
	require.Equal([]string{"a.x", "name"}, res.prog.Columns)
}

func TestCompileErrors(t *testing.T) {
	c := newCatalog(t)

	testCases := []struct {
		query string
		check func(error) bool
	}{
		{"SELECT * FROM nope", compiler.ErrNoSuchTable.Is},
		{"SELECT nope FROM a", compiler.ErrNoSuchColumn.Is},
		{"SELECT x FROM a, b", compiler.ErrAmbiguousColumn.Is},
		{"SELECT *", compiler.ErrNoTablesSpecified.Is},
		{"SELECT x FROM a HAVING x > 1", compiler.ErrHavingWithoutGroupBy.Is},
		{"SELECT x FROM a ORDER BY 3", compiler.ErrTermOutOfRange.Is},
		{"SELECT x FROM a WHERE count(*) > 1", compiler.ErrAggregateMisuse.Is},
		{"SELECT x FROM a UNION SELECT x, y FROM b", compiler.ErrCompoundArity.Is},
		{"VALUES (1), (2, 3)", compiler.ErrValuesArity.Is},
		{"SELECT x FROM a WHERE x = (SELECT x, y FROM b)", compiler.ErrSubqueryColumns.Is},
		{"SELECT x FROM a WHERE y < (SELECT x, y FROM b)", compiler.ErrSubqueryColumns.Is},
		{"SELECT x FROM a WHERE (x, y) = 1", compiler.ErrRowValueMisused.Is},
		{"SELECT * FROM a JOIN b USING (z)", compiler.ErrUsingColumnMissing.Is},
		{"SELECT x FROM a UNION SELECT x FROM b ORDER BY y", compiler.ErrOrderByNoMatch.Is},
		{"SELECT x FROM a UNION SELECT x FROM b ORDER BY 1 UNION SELECT x FROM c", compiler.ErrOrderByNotLast.Is},
		{"SELECT x FROM a ORDER BY x INTERSECT SELECT x FROM b", compiler.ErrOrderByNotLast.Is},
		{"SELECT x FROM a LIMIT 1 EXCEPT SELECT x FROM b", compiler.ErrLimitNotLast.Is},
	}

	for _, tt := range testCases {
		t.Run(tt.query, func(t *testing.T) {
			require := require.New(t)
			_, err := compile(c, sql.DefaultConfig(), tt.query)
			require.Error(err)
			require.True(tt.check(err), "unexpected error: %s", err)
		})
	}
}

func TestTooManyColumns(t *testing.T) {
	require := require.New(t)
	c := newCatalog(t)

	cfg := sql.DefaultConfig()
	cfg.MaxColumns = 3
	_, err := compile(c, cfg, "SELECT * FROM a, b")
	require.True(compiler.ErrTooManyColumns.Is(err))

	_, err = compile(c, cfg, "SELECT * FROM a")
	require.NoError(err)
}

func TestClassifyJoin(t *testing.T) {
	testCases := []struct {
		words []string
		err   bool
	}{
		{nil, false},
		{[]string{"inner"}, false},
		{[]string{"left"}, false},
		{[]string{"left", "outer"}, false},
		{[]string{"natural", "left"}, false},
		{[]string{"cross"}, false},
		{[]string{"right"}, true},
		{[]string{"full", "outer"}, true},
		{[]string{"outer"}, true},
		{[]string{"sideways"}, true},
	}

	for _, tt := range testCases {
		t.Run(fmt.Sprint(tt.words), func(t *testing.T) {
			_, err := compiler.ClassifyJoin(tt.words...)
			if tt.err {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func mustParse(t *testing.T, query string) *tree.Select {
	t.Helper()
	sel, err := parse.Parse(sql.NewEmptyContext(), query)
	require.NoError(t, err)
	return sel
}
