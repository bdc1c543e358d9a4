package compiler

import "gopkg.in/src-d/go-selectc.v0/sql/tree"

// flattenSubquery merges the subquery of the i-th FROM entry of parent
// into parent. It reports whether it did; when it did not, nothing was
// changed.
//
// A compound subquery made of UNION ALL arms turns parent into a UNION
// ALL chain with one copy of parent per arm.
func (p *Parse) flattenSubquery(parent *tree.Select, i int, isAgg, subIsAgg bool) bool {
	if p.Config().DisableFlattening || p.Failed() {
		return false
	}
	item := parent.From[i]
	sub := item.Select
	if sub == nil || !canFlatten(parent, item, isAgg, subIsAgg) {
		return false
	}

	span, _ := p.ctx.Span("compile.flatten")
	defer span.Finish()

	iParent := item.Cursor

	// One copy of parent, without FROM, ORDER BY and LIMIT, for every arm
	// but the right-most.
	for arm := sub.Prior; arm != nil; arm = arm.Prior {
		orderBy, from, prior := parent.OrderBy, parent.From, parent.Prior
		limit, offset := parent.Limit, parent.Offset
		parent.OrderBy, parent.From, parent.Prior = nil, nil, nil
		parent.Limit, parent.Offset = nil, nil
		clone := parent.Dup()
		parent.OrderBy, parent.From = orderBy, from
		parent.Limit, parent.Offset = limit, offset
		parent.Op = tree.UnionAll

		clone.Name = arm.Name
		clone.Prior = prior
		if prior != nil {
			prior.Next = clone
		}
		clone.Next = parent
		parent.Prior = clone
	}

	jointype := item.JoinType
	item.Select = nil
	item.SetTable(nil)

	arm := sub
	for target := parent; target != nil && arm != nil; target, arm = target.Prior, arm.Prior {
		from := make(tree.SrcList, 0, len(target.From)+len(arm.From))
		if target == parent {
			from = append(from, target.From[:i]...)
			from = append(from, arm.From...)
			from = append(from, target.From[i+1:]...)
			arm.From[0].JoinType = jointype
		} else {
			from = append(from, arm.From...)
		}
		target.From = from
		arm.From = nil

		for _, it := range target.Columns {
			if it.Name == "" {
				it.Name = it.Span
			}
		}

		if len(arm.OrderBy) > 0 {
			for _, it := range arm.OrderBy {
				it.OrderByCol = 0
			}
			target.OrderBy = arm.OrderBy
			arm.OrderBy = nil
		}

		where := p.dupExpr(arm.Where)
		if subIsAgg {
			target.Having = tree.And(p.dupExpr(arm.Having), target.Where)
			target.Where = where
			target.GroupBy = arm.GroupBy.Dup()
			target.Flags |= tree.SFAggregate
		} else {
			target.Where = tree.And(where, target.Where)
		}

		p.substSelect(target, iParent, arm.Columns, false)

		target.Flags |= arm.Flags & tree.SFDistinct
		if arm.Limit != nil {
			target.Limit = arm.Limit
			arm.Limit = nil
		}
	}

	p.log().WithField("cursor", iParent).Debug("flattened subquery")
	return !p.Failed()
}

// canFlatten checks every condition under which merging the subquery of
// item into parent keeps the meaning of the query.
func canFlatten(parent *tree.Select, item *tree.SrcItem, isAgg, subIsAgg bool) bool {
	sub := item.Select
	switch {
	// Both aggregates.
	case isAgg && subIsAgg:
		return false
	// An aggregate subquery must be the only source and the only subquery.
	case subIsAgg && (len(parent.From) > 1 || hasExprSubqueries(parent)):
		return false
	// LIMIT on both sides, OFFSET in the subquery.
	case parent.Limit != nil && sub.Limit != nil, sub.Offset != nil:
		return false
	// A LIMIT in the subquery of an arm of a compound select.
	case parent.HasFlag(tree.SFCompound) && sub.Limit != nil:
		return false
	case len(sub.From) == 0, sub.HasFlag(tree.SFDistinct):
		return false
	// A LIMIT in the subquery cannot be applied to a join, an aggregate, a
	// filtered or a DISTINCT outer query.
	case sub.Limit != nil && (len(parent.From) > 1 || isAgg || parent.Where != nil || parent.HasFlag(tree.SFDistinct)):
		return false
	case parent.HasFlag(tree.SFDistinct) && subIsAgg:
		return false
	// ORDER BY on both sides, or an aggregate over an ordered subquery.
	case len(parent.OrderBy) > 0 && len(sub.OrderBy) > 0, isAgg && len(sub.OrderBy) > 0:
		return false
	case sub.HasFlag(tree.SFRecursive), sub.HasFlag(tree.SFMinMaxAgg):
		return false
	case parent.HasFlag(tree.SFRecursive) && sub.Prior != nil:
		return false
	// The subquery cannot be NULL-extended.
	case item.JoinType.IsOuter():
		return false
	case item.IsRecursive:
		return false
	}

	if sub.Prior == nil {
		return true
	}

	// Compound subqueries: plain UNION ALL arms under a plain outer query.
	if len(sub.OrderBy) > 0 || sub.Limit != nil || isAgg || parent.HasFlag(tree.SFDistinct) || len(parent.From) != 1 {
		return false
	}
	for arm := sub; arm != nil; arm = arm.Prior {
		if arm.Flags&(tree.SFDistinct|tree.SFAggregate) != 0 {
			return false
		}
		if arm.Prior != nil && arm.Op != tree.UnionAll {
			return false
		}
		if len(arm.From) == 0 || arm.HasFlag(tree.SFValues) {
			return false
		}
	}
	for _, it := range parent.OrderBy {
		if it.OrderByCol == 0 {
			return false
		}
	}
	return true
}

// hasExprSubqueries reports whether the result columns, WHERE or ORDER BY
// of s contain a subquery.
func hasExprSubqueries(s *tree.Select) bool {
	found := false
	visit := func(e *tree.Expr) bool {
		if e.Select != nil {
			found = true
		}
		return !found
	}
	tree.InspectList(s.Columns, visit)
	tree.Inspect(s.Where, visit)
	tree.InspectList(s.OrderBy, visit)
	return found
}
