package compiler

import "gopkg.in/src-d/go-selectc.v0/sql/tree"

// substExpr returns e with every reference to a column of cursor replaced
// by a copy of the matching expression of repl. A reference to the row id
// slot becomes NULL. Nodes of e are modified in place.
func (p *Parse) substExpr(e *tree.Expr, cursor int, repl tree.ExprList) *tree.Expr {
	if e == nil || p.Failed() {
		return e
	}

	if e.Op == tree.OpColumn && e.Cursor == cursor {
		if e.Column < 0 || e.Column >= len(repl) {
			return tree.NewNull()
		}
		src := repl[e.Column].Expr
		if src.Op == tree.OpVector {
			p.Error(ErrVectorSubstitution.New(src.String()))
			return e
		}
		n := src.Dup()
		if e.HasFlag(tree.FlagFromJoin) {
			tree.SetJoinTable(n, e.JoinTable)
		}
		return n
	}

	e.Left = p.substExpr(e.Left, cursor, repl)
	e.Right = p.substExpr(e.Right, cursor, repl)
	p.substExprList(e.List, cursor, repl)
	if e.Select != nil {
		p.substSelect(e.Select, cursor, repl, true)
	}
	return e
}

func (p *Parse) substExprList(list tree.ExprList, cursor int, repl tree.ExprList) {
	for _, it := range list {
		it.Expr = p.substExpr(it.Expr, cursor, repl)
	}
}

// substSelect substitutes in every clause of s, its FROM subqueries and,
// with priors set, the arms to its left.
func (p *Parse) substSelect(s *tree.Select, cursor int, repl tree.ExprList, priors bool) {
	for ; s != nil; s = s.Prior {
		p.substExprList(s.Columns, cursor, repl)
		p.substExprList(s.GroupBy, cursor, repl)
		p.substExprList(s.OrderBy, cursor, repl)
		s.Having = p.substExpr(s.Having, cursor, repl)
		s.Where = p.substExpr(s.Where, cursor, repl)
		for _, item := range s.From {
			if item.Select != nil {
				p.substSelect(item.Select, cursor, repl, true)
			}
		}
		if !priors {
			return
		}
	}
}
