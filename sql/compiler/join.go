package compiler

import (
	"strings"

	"gopkg.in/src-d/go-selectc.v0/sql/tree"
)

var joinKeywords = map[string]tree.JoinType{
	"natural": tree.JTNatural,
	"left":    tree.JTLeft | tree.JTOuter,
	"outer":   tree.JTOuter,
	"right":   tree.JTRight | tree.JTOuter,
	"full":    tree.JTLeft | tree.JTRight | tree.JTOuter,
	"inner":   tree.JTInner,
	"cross":   tree.JTInner | tree.JTCross,
}

// ClassifyJoin returns the join type for the keywords written between two
// FROM entries, such as "NATURAL", "LEFT", "OUTER". Only LEFT outer joins
// are supported.
func ClassifyJoin(words ...string) (tree.JoinType, error) {
	var jt tree.JoinType
	for i, w := range words {
		if i >= 3 {
			jt |= tree.JTError
			break
		}
		code, ok := joinKeywords[strings.ToLower(w)]
		if !ok {
			jt |= tree.JTError
			break
		}
		jt |= code
	}

	switch {
	case jt&(tree.JTInner|tree.JTOuter) == tree.JTInner|tree.JTOuter, jt&tree.JTError != 0:
		return tree.JTInner, ErrUnknownJoinType.New(strings.Join(words, " "))
	case jt&tree.JTOuter != 0 && jt&(tree.JTLeft|tree.JTRight) != tree.JTLeft:
		return tree.JTInner, ErrUnsupportedJoin.New()
	case jt == 0:
		return tree.JTInner, nil
	}
	return jt, nil
}

// normalizeJoins moves the join conditions of the FROM clause into the
// WHERE clause. NATURAL joins and USING clauses become equalities between
// the columns they name. Terms of a LEFT join are tagged with the cursor
// of its right table.
func (p *Parse) normalizeJoins(sel *tree.Select) {
	src := sel.From
	for i := 0; i+1 < len(src); i++ {
		right := src[i+1]
		if src[i].Table == nil || right.Table == nil {
			continue
		}
		outer := right.JoinType.IsOuter()

		if right.JoinType&tree.JTNatural != 0 {
			if right.On != nil || len(right.Using) > 0 {
				p.Error(ErrNaturalWithCondition.New())
				return
			}
			for j, col := range right.Table.Columns {
				if l, lcol := leftColumn(src[:i+1], col.Name); l != nil {
					sel.Where = tree.And(sel.Where, joinTerm(l, lcol, right, j, outer))
				}
			}
		}

		if right.On != nil && len(right.Using) > 0 {
			p.Error(ErrBothOnAndUsing.New())
			return
		}

		if right.On != nil {
			if outer {
				tree.SetJoinTable(right.On, right.Cursor)
			}
			sel.Where = tree.And(sel.Where, right.On)
			right.On = nil
		}

		for _, name := range right.Using {
			rcol := right.Table.ColumnIndex(name)
			l, lcol := leftColumn(src[:i+1], name)
			if rcol < 0 || l == nil {
				p.Error(ErrUsingColumnMissing.New(name))
				return
			}
			sel.Where = tree.And(sel.Where, joinTerm(l, lcol, right, rcol, outer))
		}
	}
}

// leftColumn returns the first entry of src having the column, and the
// position of the column.
func leftColumn(src tree.SrcList, name string) (*tree.SrcItem, int) {
	for _, item := range src {
		if item.Table == nil {
			continue
		}
		if j := item.Table.ColumnIndex(name); j >= 0 {
			return item, j
		}
	}
	return nil, -1
}

func joinTerm(left *tree.SrcItem, lcol int, right *tree.SrcItem, rcol int, outer bool) *tree.Expr {
	eq := tree.NewBinary(tree.OpEq,
		tree.NewColumn(left.Cursor, lcol, left.Table),
		tree.NewColumn(right.Cursor, rcol, right.Table),
	)
	eq.Left.Flags |= tree.FlagResolved
	eq.Right.Flags |= tree.FlagResolved
	if outer {
		tree.SetJoinTable(eq, right.Cursor)
	}
	return eq
}
