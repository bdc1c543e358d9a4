package parse

import (
	"testing"

	"github.com/stretchr/testify/require"
	"gopkg.in/src-d/go-selectc.v0/sql"
	"gopkg.in/src-d/go-selectc.v0/sql/compiler"
	"gopkg.in/src-d/go-selectc.v0/sql/tree"
)

func id(name string) *tree.Expr { return tree.NewID("", name) }

var fixtures = map[string]*tree.Select{
	`SELECT foo, bar FROM foo;`: {
		Columns: tree.ExprList{
			{Expr: id("foo"), Span: "foo"},
			{Expr: id("bar"), Span: "bar"},
		},
		From: tree.SrcList{{Name: "foo"}},
	},
	`SELECT 1`: {
		Columns: tree.ExprList{{Expr: tree.NewInteger(1), Span: "1"}},
	},
	`SELECT foo AS bar FROM t WHERE a = 1 AND b > 'x'`: {
		Columns: tree.ExprList{{Expr: id("foo"), Name: "bar", Span: "foo"}},
		From:    tree.SrcList{{Name: "t"}},
		Where: tree.And(
			tree.NewBinary(tree.OpEq, id("a"), tree.NewInteger(1)),
			tree.NewBinary(tree.OpGt, id("b"), tree.NewString("x")),
		),
	},
	`SELECT DISTINCT a FROM t AS x ORDER BY a DESC, b LIMIT 2, 5`: {
		Columns: tree.ExprList{{Expr: id("a"), Span: "a"}},
		From:    tree.SrcList{{Name: "t", Alias: "x"}},
		Flags:   tree.SFDistinct,
		OrderBy: tree.ExprList{{Expr: id("a"), Desc: true}, {Expr: id("b")}},
		Limit:   tree.NewInteger(5),
		Offset:  tree.NewInteger(2),
	},
	`SELECT * FROM t GROUP BY a, b HAVING count(*) > 1`: {
		Columns: tree.NewExprList(tree.NewStar("")),
		From:    tree.SrcList{{Name: "t"}},
		GroupBy: tree.NewExprList(id("a"), id("b")),
		Having: tree.NewBinary(tree.OpGt,
			&tree.Expr{Op: tree.OpFunction, Name: "count", Flags: tree.FlagStar},
			tree.NewInteger(1),
		),
	},
	`-- comment
	SELECT t.* FROM t /* another */`: {
		Columns: tree.NewExprList(tree.NewStar("t")),
		From:    tree.SrcList{{Name: "t"}},
	},
}

func TestParse(t *testing.T) {
	for query, expected := range fixtures {
		t.Run(query, func(t *testing.T) {
			require := require.New(t)
			sel, err := Parse(sql.NewEmptyContext(), query)
			require.NoError(err)
			require.Equal(expected, sel)
		})
	}
}

func TestParseExpressions(t *testing.T) {
	testCases := []struct {
		expr     string
		expected *tree.Expr
	}{
		{"-1", tree.NewInteger(-1)},
		{"-a", tree.NewUnary(tree.OpNegate, id("a"))},
		{"1.5", tree.NewFloat(1.5)},
		{"NULL", tree.NewNull()},
		{"true", tree.NewInteger(1)},
		{"a IS NULL", tree.NewUnary(tree.OpIsNull, id("a"))},
		{"a IS NOT NULL", tree.NewUnary(tree.OpNotNull, id("a"))},
		{"a <=> b", tree.NewBinary(tree.OpIs, id("a"), id("b"))},
		{"a <> b", tree.NewBinary(tree.OpNe, id("a"), id("b"))},
		{"NOT a", tree.NewUnary(tree.OpNot, id("a"))},
		{"a % 2", tree.NewBinary(tree.OpRemainder, id("a"), tree.NewInteger(2))},
		{"a LIKE 'x%'", tree.NewFunction("like", tree.NewString("x%"), id("a"))},
		{"concat(a, b, 'c')", tree.NewBinary(tree.OpConcat,
			tree.NewBinary(tree.OpConcat, id("a"), id("b")),
			tree.NewString("c"),
		)},
		{"a BETWEEN 1 AND 3", &tree.Expr{
			Op:   tree.OpBetween,
			Left: id("a"),
			List: tree.NewExprList(tree.NewInteger(1), tree.NewInteger(3)),
		}},
		{"a IN (1, 2)", &tree.Expr{
			Op:   tree.OpIn,
			Left: id("a"),
			List: tree.NewExprList(tree.NewInteger(1), tree.NewInteger(2)),
		}},
		{"CASE a WHEN 1 THEN 'x' ELSE 'y' END", &tree.Expr{
			Op:   tree.OpCase,
			Left: id("a"),
			List: tree.NewExprList(tree.NewInteger(1), tree.NewString("x"), tree.NewString("y")),
		}},
		{"b COLLATE nocase", &tree.Expr{Op: tree.OpCollate, Left: id("b"), Name: "nocase"}},
		{"count(DISTINCT a)", &tree.Expr{
			Op:    tree.OpFunction,
			Name:  "count",
			List:  tree.NewExprList(id("a")),
			Flags: tree.FlagDistinct,
		}},
		{"MAX(t.a)", tree.NewFunction("max", tree.NewID("t", "a"))},
		{"group_concat(a, '-')", tree.NewFunction("group_concat", id("a"), tree.NewString("-"))},
		{"group_concat(a SEPARATOR '|')", tree.NewFunction("group_concat", id("a"), tree.NewString("|"))},
	}

	for _, tt := range testCases {
		t.Run(tt.expr, func(t *testing.T) {
			require := require.New(t)
			sel, err := Parse(sql.NewEmptyContext(), "SELECT "+tt.expr)
			require.NoError(err)
			require.Len(sel.Columns, 1)
			require.Equal(tt.expected, sel.Columns[0].Expr)
		})
	}
}

func TestParseSubqueries(t *testing.T) {
	require := require.New(t)

	sel, err := Parse(sql.NewEmptyContext(),
		`SELECT a FROM (SELECT a FROM t) AS s WHERE a NOT IN (SELECT b FROM u) AND EXISTS (SELECT 1)`)
	require.NoError(err)

	require.Len(sel.From, 1)
	require.Equal("s", sel.From[0].Alias)
	require.NotNil(sel.From[0].Select)
	require.Equal(tree.SrcList{{Name: "t"}}, sel.From[0].Select.From)

	terms := tree.SplitAnd(sel.Where)
	require.Len(terms, 2)
	require.Equal(tree.OpNot, terms[0].Op)
	require.Equal(tree.OpIn, terms[0].Left.Op)
	require.NotNil(terms[0].Left.Select)
	require.Equal(tree.OpExists, terms[1].Op)
}

func TestParseDerivedTables(t *testing.T) {
	require := require.New(t)

	sel, err := Parse(sql.NewEmptyContext(), `SELECT x FROM (SELECT x FROM a WHERE x > 1)`)
	require.NoError(err)
	require.Len(sel.From, 1)
	require.Equal("", sel.From[0].Alias)
	require.Equal("", sel.From[0].Name)
	require.Equal(tree.SrcList{{Name: "a"}}, sel.From[0].Select.From)

	sel, err = Parse(sql.NewEmptyContext(),
		`SELECT * FROM (SELECT x FROM a INTERSECT SELECT x FROM b) s JOIN (VALUES (1), (2)) ON 1, (SELECT 'FROM (' AS y)`)
	require.NoError(err)
	require.Len(sel.From, 3)
	require.Equal("s", sel.From[0].Alias)
	require.Equal(tree.Intersect, sel.From[0].Select.Op)
	require.True(sel.From[1].Select.HasFlag(tree.SFValues))
	require.Equal(tree.NewString("FROM ("), sel.From[2].Select.Columns[0].Expr)

	sel, err = Parse(sql.NewEmptyContext(),
		`SELECT (SELECT count(*) FROM (SELECT x FROM b EXCEPT SELECT x FROM a)) FROM t WHERE x IN (SELECT 1)`)
	require.NoError(err)
	sub := sel.Columns[0].Expr.Select
	require.NotNil(sub)
	require.Equal(tree.Except, sub.From[0].Select.Op)
	require.Equal(tree.SrcList{{Name: "t"}}, sel.From)

	sel, err = Parse(sql.NewEmptyContext(), `SELECT * FROM a LEFT JOIN ((SELECT x FROM b) AS s JOIN c ON s.x = c.x) ON a.x = s.x`)
	require.NoError(err)
	nested := sel.From[1].Select
	require.True(nested.HasFlag(tree.SFNestedFrom))
	require.Equal("s", nested.From[0].Alias)
	require.NotNil(nested.From[0].Select)
}

func TestParseJoins(t *testing.T) {
	require := require.New(t)

	sel, err := Parse(sql.NewEmptyContext(),
		`SELECT * FROM a, b LEFT JOIN c ON b.x = c.x NATURAL JOIN d JOIN e USING (y) CROSS JOIN f`)
	require.NoError(err)
	require.Len(sel.From, 6)

	left, err := compiler.ClassifyJoin("left")
	require.NoError(err)
	natural, err := compiler.ClassifyJoin("natural")
	require.NoError(err)
	inner, err := compiler.ClassifyJoin()
	require.NoError(err)

	require.Equal(tree.JoinType(0), sel.From[1].JoinType)
	require.Equal(left, sel.From[2].JoinType)
	require.Equal(
		tree.NewBinary(tree.OpEq, tree.NewID("b", "x"), tree.NewID("c", "x")),
		sel.From[2].On,
	)
	require.Equal(natural, sel.From[3].JoinType)
	require.Equal(inner, sel.From[4].JoinType)
	require.Equal([]string{"y"}, sel.From[4].Using)
	require.Equal("f", sel.From[5].Name)

	_, err = Parse(sql.NewEmptyContext(), `SELECT * FROM a RIGHT JOIN b ON a.x = b.x`)
	require.Error(err)
}

func TestParseNestedFrom(t *testing.T) {
	require := require.New(t)

	sel, err := Parse(sql.NewEmptyContext(), `SELECT * FROM a LEFT JOIN (b JOIN c ON b.x = c.x) ON a.x = b.x`)
	require.NoError(err)
	require.Len(sel.From, 2)

	nested := sel.From[1]
	require.NotNil(nested.Select)
	require.True(nested.Select.HasFlag(tree.SFNestedFrom))
	require.Len(nested.Select.From, 2)
	require.NotNil(nested.On)
}

func TestParseCompound(t *testing.T) {
	require := require.New(t)

	sel, err := Parse(sql.NewEmptyContext(),
		`SELECT a FROM t UNION SELECT b FROM u UNION ALL SELECT c FROM v ORDER BY 1 LIMIT 3`)
	require.NoError(err)

	require.Equal(tree.UnionAll, sel.Op)
	require.Len(sel.OrderBy, 1)
	require.Equal(tree.NewInteger(3), sel.Limit)
	require.NotNil(sel.Prior)
	require.Equal(tree.Union, sel.Prior.Op)
	require.Equal(sel, sel.Prior.Next)
	require.Nil(sel.Prior.OrderBy)
	require.Equal(tree.CompoundNone, sel.Leftmost().Op)
	require.Equal(tree.SrcList{{Name: "t"}}, sel.Leftmost().From)
}

func TestParseIntersectExcept(t *testing.T) {
	require := require.New(t)

	sel, err := Parse(sql.NewEmptyContext(),
		`SELECT a FROM t UNION SELECT a FROM u EXCEPT SELECT a FROM v WHERE a > 1 ORDER BY 1`)
	require.NoError(err)

	require.Equal(tree.Except, sel.Op)
	require.Len(sel.OrderBy, 1)
	require.Equal(tree.SrcList{{Name: "v"}}, sel.From)

	require.Equal(tree.Union, sel.Prior.Op)
	require.Equal(sel, sel.Prior.Next)
	require.Nil(sel.Prior.Prior.Prior)
	require.NotNil(sel.Where)

	sel, err = Parse(sql.NewEmptyContext(), `SELECT 1 INTERSECT SELECT 2 EXCEPT SELECT 3`)
	require.NoError(err)
	require.Equal(tree.Except, sel.Op)
	require.Equal(tree.Intersect, sel.Prior.Op)
	require.Equal(tree.NewInteger(1), sel.Leftmost().Columns[0].Expr)
}

func TestParseValues(t *testing.T) {
	require := require.New(t)

	sel, err := Parse(sql.NewEmptyContext(), `VALUES (1, 'a'), (2, 'b'), (3, 'c')`)
	require.NoError(err)

	var rows int
	for s := sel; s != nil; s = s.Prior {
		rows++
		require.True(s.HasFlag(tree.SFValues | tree.SFMultiValue))
		require.Len(s.Columns, 2)
	}
	require.Equal(3, rows)
	require.Equal(tree.NewInteger(3), sel.Columns[0].Expr)
	require.Equal(tree.UnionAll, sel.Op)

	sel, err = Parse(sql.NewEmptyContext(), `VALUES (1)`)
	require.NoError(err)
	require.True(sel.HasFlag(tree.SFValues))
	require.False(sel.HasFlag(tree.SFMultiValue))
	require.Nil(sel.Prior)

	sel, err = Parse(sql.NewEmptyContext(), `SELECT 1 UNION VALUES (2), (3)`)
	require.NoError(err)
	require.Equal(tree.Union, sel.Op)
	require.NotNil(sel.From[0].Select)
}

func TestParseWith(t *testing.T) {
	require := require.New(t)

	sel, err := Parse(sql.NewEmptyContext(), `
		WITH RECURSIVE cnt(x) AS (SELECT 1 UNION ALL SELECT x + 1 FROM cnt WHERE x < 5),
		     other AS (SELECT ')' AS p)
		SELECT x FROM cnt`)
	require.NoError(err)

	require.NotNil(sel.With)
	require.True(sel.With.Recursive)
	require.Len(sel.With.CTEs, 2)

	cnt := sel.With.CTEs[0]
	require.Equal("cnt", cnt.Name)
	require.Equal([]string{"x"}, cnt.Columns)
	require.Equal(tree.UnionAll, cnt.Select.Op)
	require.NotNil(cnt.Select.Prior)

	other := sel.With.CTEs[1]
	require.Equal("other", other.Name)
	require.Equal(tree.NewString(")"), other.Select.Columns[0].Expr)

	require.Equal(tree.SrcList{{Name: "cnt"}}, sel.From)
}

func TestParseErrors(t *testing.T) {
	testCases := []struct {
		query string
		kind  interface{ Is(error) bool }
	}{
		{"", ErrEmptyQuery},
		{"  ; ", ErrEmptyQuery},
		{"SELECT * FROM t FOR UPDATE", ErrUnsupportedFeature},
		{"SELECT * FROM db.t", ErrUnsupportedFeature},
		{"SELECT ?", ErrUnsupportedFeature},
		{"INSERT INTO t VALUES (1)", ErrUnsupportedSyntax},
		{"SELECT x FROM a UNION SELECT x FROM b ORDER BY 1 UNION SELECT x FROM c", compiler.ErrOrderByNotLast},
		{"SELECT x FROM a UNION SELECT x FROM b LIMIT 1 UNION ALL SELECT x FROM c", compiler.ErrLimitNotLast},
		{"(SELECT x FROM a ORDER BY x) UNION SELECT x FROM b", compiler.ErrOrderByNotLast},
	}

	for _, tt := range testCases {
		t.Run(tt.query, func(t *testing.T) {
			require := require.New(t)
			_, err := Parse(sql.NewEmptyContext(), tt.query)
			require.Error(err)
			require.True(tt.kind.Is(err), "unexpected error: %s", err)
		})
	}
}

func TestParseCreateView(t *testing.T) {
	require := require.New(t)

	require.True(IsCreateView("create  view v as select 1"))
	require.False(IsCreateView("SELECT 1"))

	v, err := ParseCreateView(sql.NewEmptyContext(), `CREATE OR REPLACE VIEW myview (x, y) AS SELECT a, b + 1 FROM t;`)
	require.NoError(err)
	require.Equal("myview", v.Name)
	require.True(v.Replace)
	require.Equal("x", v.Select.Columns[0].Name)
	require.Equal("y", v.Select.Columns[1].Name)

	v, err = ParseCreateView(sql.NewEmptyContext(), `CREATE VIEW v AS SELECT 1`)
	require.NoError(err)
	require.False(v.Replace)
	require.Equal("v", v.Name)

	_, err = ParseCreateView(sql.NewEmptyContext(), `CREATE VIEW v (x, y) AS SELECT 1`)
	require.True(ErrMalformedCreateView.Is(err))
}
