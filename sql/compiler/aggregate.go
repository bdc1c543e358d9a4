package compiler

import (
	"gopkg.in/src-d/go-selectc.v0/sql"
	"gopkg.in/src-d/go-selectc.v0/sql/function"
	"gopkg.in/src-d/go-selectc.v0/sql/tree"
	"gopkg.in/src-d/go-selectc.v0/sql/vdbe"
)

// aggColumn is a column of the FROM clause read by an aggregate query.
type aggColumn struct {
	table  *sql.Table
	cursor int
	column int
	expr   *tree.Expr
	// reg holds the value of the column for the current group.
	reg int
	// sorterColumn is the field of the GROUP BY sorter holding the column.
	sorterColumn int
}

// aggFunc is one aggregate function call of an aggregate query.
type aggFunc struct {
	expr *tree.Expr
	fn   *function.Func
	// reg holds the accumulator, then the result once finalized.
	reg int
	// distinct is the cursor of the ephemeral index removing duplicate
	// arguments, or -1.
	distinct int
}

// aggInfo holds what the code generator needs to compute the aggregates
// of a query.
type aggInfo struct {
	// directMode makes aggregate columns read the row being scanned rather
	// than the registers of the current group.
	directMode bool
	// useSortingIdx makes aggregate columns read from the GROUP BY sorter.
	useSortingIdx  bool
	sortingIdx     int
	sortingIdxPTab int
	nSortingColumn int
	groupBy        tree.ExprList

	columns []*aggColumn
	funcs   []*aggFunc
	// funcSet holds the expression of every entry of funcs, at the same
	// position.
	funcSet *tree.ExprSet
	// nAccumulator is the number of columns referenced outside of the
	// aggregate functions. Only those are copied into registers.
	nAccumulator int

	mnReg int
	mxReg int
}

// analyzeAggregates turns the column references of the select into
// aggregate columns and records every aggregate function.
func (p *Parse) analyzeAggregates(sel *tree.Select, orderBy tree.ExprList) *aggInfo {
	info := &aggInfo{
		groupBy: sel.GroupBy,
		funcSet: tree.NewExprSet(),
		mnReg:   p.b.NumRegs() + 1,
	}
	info.nSortingColumn = len(sel.GroupBy)

	a := &aggAnalyzer{p: p, info: info, src: sel.From}
	a.list(sel.Columns)
	a.list(orderBy)
	a.expr(sel.Having)
	info.nAccumulator = len(info.columns)
	for i := 0; i < len(info.funcs); i++ {
		a.list(info.funcs[i].expr.List)
	}
	info.mxReg = p.b.NumRegs()
	return info
}

type aggAnalyzer struct {
	p    *Parse
	info *aggInfo
	src  tree.SrcList
}

func (a *aggAnalyzer) list(l tree.ExprList) {
	for _, it := range l {
		a.expr(it.Expr)
	}
}

func (a *aggAnalyzer) expr(e *tree.Expr) {
	tree.Inspect(e, func(x *tree.Expr) bool { return a.visit(x, false) })
}

// visit converts x when it belongs to the query. Inside subqueries only
// the columns of the query are converted.
func (a *aggAnalyzer) visit(x *tree.Expr, nested bool) bool {
	switch x.Op {
	case tree.OpColumn:
		if a.src.ByCursor(x.Cursor) == nil {
			return true
		}
		x.AggIndex = a.addColumn(x)
		x.Op = tree.OpAggColumn
		a.p.aggs[x] = a.info
		return false
	case tree.OpAggColumn:
		return false
	case tree.OpAggFunction:
		if nested {
			return true
		}
		if _, ok := a.p.aggs[x]; ok {
			return false
		}
		x.AggIndex = a.addFunc(x)
		a.p.aggs[x] = a.info
		return false
	}
	if x.Select != nil && !nested {
		tree.WalkSelect(x.Select, func(_ *tree.Select, y *tree.Expr) bool {
			return a.visit(y, true)
		})
	}
	return true
}

func (a *aggAnalyzer) addColumn(x *tree.Expr) int {
	info := a.info
	for i, c := range info.columns {
		if c.cursor == x.Cursor && c.column == x.Column {
			return i
		}
	}

	c := &aggColumn{
		table:        x.TableDef,
		cursor:       x.Cursor,
		column:       x.Column,
		expr:         x,
		reg:          a.p.b.AllocReg(),
		sorterColumn: -1,
	}
	for j, it := range info.groupBy {
		g := it.Expr
		if g.Op == tree.OpColumn && g.Cursor == x.Cursor && g.Column == x.Column {
			c.sorterColumn = j
			break
		}
	}
	if c.sorterColumn < 0 {
		c.sorterColumn = info.nSortingColumn
		info.nSortingColumn++
	}
	info.columns = append(info.columns, c)
	return len(info.columns) - 1
}

func (a *aggAnalyzer) addFunc(x *tree.Expr) int {
	info := a.info
	if i, added := info.funcSet.Add(x); !added {
		return i
	}

	fn, err := a.p.funcs.Function(x.Name, len(x.List))
	if err != nil {
		a.p.Error(err)
	}
	f := &aggFunc{expr: x, fn: fn, reg: a.p.b.AllocReg(), distinct: -1}
	if x.HasFlag(tree.FlagDistinct) {
		f.distinct = a.p.b.AllocCursor()
	}
	info.funcs = append(info.funcs, f)
	return len(info.funcs) - 1
}

// resetAccumulator clears the registers of the aggregate and opens the
// indexes of DISTINCT aggregates.
func (p *Parse) resetAccumulator(info *aggInfo) {
	b := p.b
	if len(info.columns)+len(info.funcs) == 0 {
		return
	}
	b.Op3(vdbe.OpNull, 0, info.mnReg, info.mxReg)
	for _, f := range info.funcs {
		if f.distinct < 0 {
			continue
		}
		if len(f.expr.List) != 1 {
			p.Error(ErrDistinctAggregateArgs.New())
			f.distinct = -1
			continue
		}
		coll, _ := f.expr.List[0].Expr.Collation()
		b.Op4(vdbe.OpOpenEphemeral, f.distinct, 1, 0, &vdbe.KeyDef{
			Parts: []vdbe.KeyPart{{Field: 0, Collation: normalCollation(coll)}},
		})
	}
}

// finalizeAggregates replaces every accumulator with its result.
func (p *Parse) finalizeAggregates(info *aggInfo) {
	for _, f := range info.funcs {
		if f.fn == nil {
			continue
		}
		p.b.Op4(vdbe.OpAggFinal, f.reg, len(f.expr.List), 0, f.fn)
	}
}

// updateAccumulator feeds the current row to every aggregate and copies
// the columns referenced outside of them.
func (p *Parse) updateAccumulator(info *aggInfo) {
	b := p.b
	info.directMode = true
	for _, f := range info.funcs {
		if f.fn == nil {
			continue
		}
		n := len(f.expr.List)
		base := 0
		if n > 0 {
			base = b.TempRange(n)
			p.codeExprList(f.expr.List, base, 0)
		}
		next := 0
		if f.distinct >= 0 {
			next = b.MakeLabel()
			p.codeDistinct(f.distinct, next, 1, base)
		}
		if f.fn.NeedCollation {
			b.Op4(vdbe.OpCollSeq, 0, 0, 0, listCollation(f.expr.List))
		}
		b.Op4(vdbe.OpAggStep, base, n, f.reg, f.fn)
		if n > 0 {
			b.ReleaseTempRange(base, n)
		}
		if next != 0 {
			b.ResolveLabel(next)
		}
	}

	for _, c := range info.columns[:info.nAccumulator] {
		p.codeExpr(c.expr, c.reg)
	}
	info.directMode = false
}

// isSimpleCount returns the table of a "SELECT count(*) FROM t" query, or
// nil.
func isSimpleCount(sel *tree.Select, info *aggInfo) *sql.Table {
	if sel.Where != nil || len(sel.Columns) != 1 || len(sel.From) != 1 {
		return nil
	}
	item := sel.From[0]
	if item.Select != nil || item.Table == nil || item.Table.IsView() || item.Table.Ephemeral {
		return nil
	}
	e := sel.Columns[0].Expr
	if e.Op != tree.OpAggFunction || len(info.funcs) != 1 {
		return nil
	}
	f := info.funcs[0]
	if f.fn == nil || f.fn.Name != "count" || len(e.List) != 0 || e.HasFlag(tree.FlagDistinct) {
		return nil
	}
	return item.Table
}

// minMaxQuery reports whether the query has a single min() or max()
// aggregate over a column. It returns the ordering that makes the first
// row of the scan the answer.
func (p *Parse) minMaxQuery(info *aggInfo) (WhereFlags, tree.ExprList) {
	if len(info.funcs) != 1 {
		return 0, nil
	}
	f := info.funcs[0]
	args := f.expr.List
	if f.fn == nil || len(args) != 1 || args[0].Expr.Op != tree.OpAggColumn {
		return 0, nil
	}

	var flag WhereFlags
	switch f.fn.MinMax {
	case function.Min:
		flag = WhereOrderByMin
	case function.Max:
		flag = WhereOrderByMax
	default:
		return 0, nil
	}

	list := args.Dup()
	list[0].Expr.Op = tree.OpColumn
	list[0].Desc = flag == WhereOrderByMax
	return flag, list
}
