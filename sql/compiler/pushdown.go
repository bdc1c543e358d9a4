package compiler

import "gopkg.in/src-d/go-selectc.v0/sql/tree"

// pushDownWhereTerms copies the terms of where that only reference the
// result columns of the FROM subquery read by cursor into the WHERE clause
// of every arm of sub. The terms are left in place in the outer query. It
// returns the number of terms pushed.
func (p *Parse) pushDownWhereTerms(sub *tree.Select, where *tree.Expr, cursor int) int {
	if where == nil || p.Config().DisablePushDown {
		return 0
	}
	for s := sub; s != nil; s = s.Prior {
		if s.Flags&(tree.SFAggregate|tree.SFRecursive) != 0 {
			return 0
		}
	}
	if sub.Limit != nil {
		return 0
	}

	n := 0
	for where.Op == tree.OpAnd {
		n += p.pushDownWhereTerms(sub, where.Right, cursor)
		where = where.Left
	}
	if where.HasFlag(tree.FlagFromJoin) || !isTableConstant(where, cursor) {
		return n
	}

	for s := sub; s != nil; s = s.Prior {
		term := p.substExpr(where.Dup(), cursor, s.Columns)
		s.Where = tree.And(s.Where, term)
	}
	return n + 1
}

// isTableConstant reports whether e only depends on the columns of the
// given cursor and on constants.
func isTableConstant(e *tree.Expr, cursor int) bool {
	ok := true
	tree.Inspect(e, func(x *tree.Expr) bool {
		switch x.Op {
		case tree.OpColumn, tree.OpAggColumn:
			if x.Cursor != cursor {
				ok = false
			}
		case tree.OpID, tree.OpAggFunction, tree.OpRegister, tree.OpAsterisk:
			ok = false
		}
		if x.Select != nil {
			ok = false
		}
		return ok
	})
	return ok
}
