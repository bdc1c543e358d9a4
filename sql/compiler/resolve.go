package compiler

import (
	"fmt"
	"strings"

	"gopkg.in/src-d/go-selectc.v0/sql"
	"gopkg.in/src-d/go-selectc.v0/sql/function"
	"gopkg.in/src-d/go-selectc.v0/sql/tree"
)

// nameContext is the scope names are resolved in: the FROM clause of a
// select, its result columns for aliases, and the enclosing scopes for
// correlated subqueries.
type nameContext struct {
	src    tree.SrcList
	result tree.ExprList
	outer  *nameContext

	allowAgg bool
	hasAgg   bool
	minMax   bool
	// refs counts the column references resolved in this scope or in a
	// scope outside it by lookups starting in this scope or an inner one.
	refs int
}

// compoundArms returns the arms of a compound chain, left-most first, and
// links each arm to the one on its right.
func compoundArms(sel *tree.Select) []*tree.Select {
	var arms []*tree.Select
	for s := sel; s != nil; s = s.Prior {
		if s.Prior != nil {
			s.Prior.Next = s
		}
		arms = append(arms, s)
	}
	for i, j := 0, len(arms)-1; i < j; i, j = i+1, j-1 {
		arms[i], arms[j] = arms[j], arms[i]
	}
	return arms
}

// resolveSelect binds every name of the select and of the selects nested
// in it to a FROM entry.
func (p *Parse) resolveSelect(sel *tree.Select, outer *nameContext) {
	if sel == nil || sel.HasFlag(tree.SFResolved) {
		return
	}

	arms := compoundArms(sel)
	if len(arms) > p.Config().MaxCompoundSelect {
		p.Error(ErrTooManyCompoundTerms.New())
		return
	}

	compound := len(arms) > 1
	for i, s := range arms {
		if i < len(arms)-1 {
			next := arms[i+1]
			if len(s.OrderBy) > 0 {
				p.Error(ErrOrderByNotLast.New(next.Op.String()))
				return
			}
			if s.Limit != nil {
				p.Error(ErrLimitNotLast.New(next.Op.String()))
				return
			}
		}
		if i > 0 && len(s.Columns) != len(arms[i-1].Columns) {
			if s.HasFlag(tree.SFValues) && arms[i-1].HasFlag(tree.SFValues) {
				p.Error(ErrValuesArity.New())
			} else {
				p.Error(ErrCompoundArity.New(s.Op.String()))
			}
			return
		}
		if compound {
			s.Flags |= tree.SFCompound
		}
		p.resolveOne(s, outer, compound)
		if p.Failed() {
			return
		}
	}

	if compound && len(sel.OrderBy) > 0 {
		p.resolveCompoundOrderBy(sel, arms, outer)
	}
}

func (p *Parse) resolveOne(s *tree.Select, outer *nameContext, compound bool) {
	if s.HasFlag(tree.SFResolved) {
		return
	}
	s.Flags |= tree.SFResolved

	// LIMIT and OFFSET cannot see the columns of the query.
	p.resolveExpr(&nameContext{outer: outer}, s.Limit)
	p.resolveExpr(&nameContext{outer: outer}, s.Offset)

	for _, item := range s.From {
		if item.Select == nil || item.Select.HasFlag(tree.SFResolved) {
			continue
		}
		refs := 0
		if outer != nil {
			refs = outer.refs
		}
		p.resolveSelect(item.Select, outer)
		if outer != nil && outer.refs != refs {
			item.IsCorrelated = true
		}
	}

	nc := &nameContext{src: s.From, outer: outer, allowAgg: true}
	for _, it := range s.Columns {
		p.resolveExpr(nc, it.Expr)
	}
	if len(s.GroupBy) > 0 || nc.hasAgg {
		s.Flags |= tree.SFAggregate
	} else if s.Having != nil {
		p.Error(ErrHavingWithoutGroupBy.New())
		return
	}

	nc.result = s.Columns
	nc.allowAgg = false
	p.resolveExpr(nc, s.Where)
	nc.allowAgg = true
	p.resolveExpr(nc, s.Having)

	nc.allowAgg = false
	p.resolveOrderGroupBy(nc, s, s.GroupBy, "GROUP")
	for _, it := range s.GroupBy {
		if hasAggregate(it.Expr) {
			p.Error(ErrAggregateMisuse.New(aggregateName(it.Expr)))
			return
		}
	}

	if !compound {
		nc.allowAgg = true
		p.resolveOrderGroupBy(nc, s, s.OrderBy, "ORDER")
	}
	if nc.hasAgg {
		s.Flags |= tree.SFAggregate
	}
	if nc.minMax {
		s.Flags |= tree.SFMinMaxAgg
	}
}

// resolveOrderGroupBy resolves the terms of ORDER BY or GROUP BY. A term
// naming a result column, by alias, by number or by being the same
// expression, is replaced with a copy of that column.
func (p *Parse) resolveOrderGroupBy(nc *nameContext, s *tree.Select, list tree.ExprList, kind string) {
	for i, it := range list {
		e := skipCollate(it.Expr)
		if kind == "ORDER" {
			if col := matchAlias(s.Columns, e); col > 0 {
				it.OrderByCol = col
				continue
			}
		}
		if v, ok := e.IsInteger(); ok {
			if v < 1 || int(v) > len(s.Columns) {
				p.Error(ErrTermOutOfRange.New(ordinal(i+1)+" "+kind, len(s.Columns)))
				return
			}
			it.OrderByCol = int(v)
			continue
		}

		p.resolveExpr(nc, it.Expr)
		e = skipCollate(it.Expr)
		for j, col := range s.Columns {
			if tree.Equal(e, col.Expr) {
				it.OrderByCol = j + 1
			}
		}
	}

	for _, it := range list {
		if it.OrderByCol > 0 && it.OrderByCol <= len(s.Columns) {
			p.replaceWithColumn(it, s.Columns[it.OrderByCol-1].Expr)
		}
	}
}

// replaceWithColumn makes the term a copy of the result column, keeping a
// COLLATE the term was written with.
func (p *Parse) replaceWithColumn(it *tree.ExprItem, col *tree.Expr) {
	dup := p.dupExpr(col)
	if it.Expr.Op == tree.OpCollate {
		it.Expr.Left = dup
		return
	}
	it.Expr = dup
}

// resolveCompoundOrderBy matches every ORDER BY term of a compound select
// with a result column, trying the arms from left to right. Matched terms
// become the column number.
func (p *Parse) resolveCompoundOrderBy(sel *tree.Select, arms []*tree.Select, outer *nameContext) {
	n := len(sel.Columns)
	for i, it := range sel.OrderBy {
		it.Done = false
		if v, ok := skipCollate(it.Expr).IsInteger(); ok {
			if v < 1 || int(v) > n {
				p.Error(ErrTermOutOfRange.New(ordinal(i+1)+" ORDER", n))
				return
			}
			setOrderByColumn(it, int(v))
		}
	}

	for _, arm := range arms {
		for _, it := range sel.OrderBy {
			if it.Done {
				continue
			}
			e := skipCollate(it.Expr)
			col := matchAlias(arm.Columns, e)
			if col == 0 {
				col = p.matchArmColumn(arm, e, outer)
			}
			if col > 0 {
				setOrderByColumn(it, col)
			}
		}
	}

	for i, it := range sel.OrderBy {
		if !it.Done {
			p.Error(ErrOrderByNoMatch.New(ordinal(i + 1)))
			return
		}
	}
}

// matchArmColumn resolves a copy of e in the scope of the arm and returns
// the result column it equals. Failing to resolve is not an error.
func (p *Parse) matchArmColumn(arm *tree.Select, e *tree.Expr, outer *nameContext) int {
	dup := e.Dup()
	n := p.ErrorCount()
	p.resolveExpr(&nameContext{src: arm.From, result: arm.Columns, outer: outer, allowAgg: true}, dup)
	failed := p.ErrorCount() > n
	p.discardErrorsSince(n)
	if failed {
		return 0
	}
	for j, col := range arm.Columns {
		if tree.Equal(dup, col.Expr) {
			return j + 1
		}
	}
	return 0
}

func setOrderByColumn(it *tree.ExprItem, col int) {
	lit := tree.NewInteger(int64(col))
	if it.Expr.Op == tree.OpCollate {
		it.Expr.Left = lit
	} else {
		it.Expr = lit
	}
	it.OrderByCol = col
	it.Done = true
}

// matchAlias returns the 1-based result column whose alias is the
// unqualified name e, or 0.
func matchAlias(cols tree.ExprList, e *tree.Expr) int {
	if e == nil || e.Op != tree.OpID || e.Table != "" {
		return 0
	}
	for j, col := range cols {
		if col.Name != "" && strings.EqualFold(col.Name, e.Name) {
			return j + 1
		}
	}
	return 0
}

func skipCollate(e *tree.Expr) *tree.Expr {
	for e != nil && e.Op == tree.OpCollate {
		e = e.Left
	}
	return e
}

func ordinal(i int) string {
	suffix := "th"
	switch {
	case i%100 >= 11 && i%100 <= 13:
	case i%10 == 1:
		suffix = "st"
	case i%10 == 2:
		suffix = "nd"
	case i%10 == 3:
		suffix = "rd"
	}
	return fmt.Sprintf("%d%s", i, suffix)
}

// resolveExpr binds the names of e, which is modified in place.
func (p *Parse) resolveExpr(nc *nameContext, e *tree.Expr) {
	tree.Inspect(e, func(x *tree.Expr) bool {
		switch x.Op {
		case tree.OpID:
			p.lookupName(nc, x)
			return false
		case tree.OpColumn, tree.OpAggColumn, tree.OpAggFunction:
			return false
		case tree.OpFunction:
			p.resolveFunction(nc, x)
			return false
		case tree.OpCollate:
			if _, err := sql.ParseCollation(x.Name); err != nil {
				p.Error(err)
			}
		}
		if x.Select != nil {
			refs := nc.refs
			p.resolveSelect(x.Select, nc)
			if nc.refs != refs {
				x.Flags |= tree.FlagCorrelated
			}
		}
		return true
	})
}

func (p *Parse) resolveFunction(nc *nameContext, x *tree.Expr) {
	n := len(x.List)
	if x.HasFlag(tree.FlagStar) {
		n = 0
	}
	f, err := p.funcs.Function(x.Name, n)
	if err != nil {
		p.Error(err)
		return
	}

	allow := nc.allowAgg
	if f.IsAggregate() {
		if !nc.allowAgg {
			p.Error(ErrAggregateMisuse.New(x.Name))
			return
		}
		x.Op = tree.OpAggFunction
		nc.hasAgg = true
		if f.MinMax != function.NotMinMax {
			nc.minMax = true
		}
		nc.allowAgg = false
	}
	for _, it := range x.List {
		p.resolveExpr(nc, it.Expr)
	}
	nc.allowAgg = allow
}

// lookupName resolves a column name, searching the scopes from the
// innermost outwards.
func (p *Parse) lookupName(start *nameContext, x *tree.Expr) {
	for nc := start; nc != nil; nc = nc.outer {
		var match *tree.SrcItem
		col, cnt := -1, 0
		for i, item := range nc.src {
			if item.Table == nil {
				continue
			}
			if x.Table != "" && !strings.EqualFold(x.Table, item.DisplayName()) {
				continue
			}
			j := item.Table.ColumnIndex(x.Name)
			if j < 0 {
				continue
			}
			// The right side of NATURAL and USING joins repeats the column.
			if cnt == 1 && i > 0 && (item.JoinType&tree.JTNatural != 0 || inUsing(item, x.Name)) {
				continue
			}
			cnt++
			match, col = item, j
		}

		if cnt == 0 && x.Table == "" && nc.result != nil {
			if j := matchAlias(nc.result, x); j > 0 {
				src := nc.result[j-1].Expr
				if hasAggregate(src) && !nc.allowAgg {
					p.Error(ErrAggregateMisuse.New(aggregateName(src)))
					return
				}
				dup := p.dupExpr(src)
				dup.Flags |= tree.FlagAlias
				*x = *dup
				countRef(start, nc)
				return
			}
		}

		switch {
		case cnt == 1:
			x.Op = tree.OpColumn
			x.Cursor = match.Cursor
			x.Column = col
			x.TableDef = match.Table
			x.Flags |= tree.FlagResolved
			countRef(start, nc)
			return
		case cnt > 1:
			p.Error(ErrAmbiguousColumn.New(x.String()))
			return
		}
	}
	p.Error(ErrNoSuchColumn.New(x.String()))
}

func countRef(start, matched *nameContext) {
	for nc := start; nc != nil; nc = nc.outer {
		nc.refs++
		if nc == matched {
			return
		}
	}
}

func inUsing(item *tree.SrcItem, name string) bool {
	for _, u := range item.Using {
		if strings.EqualFold(u, name) {
			return true
		}
	}
	return false
}

func hasAggregate(e *tree.Expr) bool {
	return aggregateName(e) != ""
}

// aggregateName returns the name of the first aggregate function of e
// outside of subqueries.
func aggregateName(e *tree.Expr) string {
	var name string
	tree.Inspect(e, func(x *tree.Expr) bool {
		if name != "" {
			return false
		}
		if x.Op == tree.OpAggFunction {
			name = x.Name
			return false
		}
		return true
	})
	return name
}
