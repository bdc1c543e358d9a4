package where

import (
	"gopkg.in/src-d/go-selectc.v0/sql/compiler"
	"gopkg.in/src-d/go-selectc.v0/sql/tree"
)

// orderedPrefix returns how many leading terms of orderBy are satisfied by
// reading the outer table in primary key order, and whether the scan has
// to go backwards to do so. Every key term must have the same direction.
func orderedPrefix(levels []*level, orderBy tree.ExprList) (int, bool) {
	if len(levels) == 0 || len(orderBy) == 0 {
		return 0, false
	}
	lv := levels[0]
	if lv.kind != storedLoop {
		return 0, false
	}
	pk := lv.item.Table.PrimaryKey
	desc := orderBy[0].Desc

	n := 0
	for n < len(orderBy) && n < len(pk) {
		it := orderBy[n]
		if it.Desc != desc || sourceColumn(it.Expr, lv.cursor) != pk[n] {
			break
		}
		n++
	}
	// Rows of a single table never share a primary key, so the terms
	// after a satisfied key cannot reorder them.
	if n > 0 && n == len(pk) && len(levels) == 1 {
		n = len(orderBy)
	}
	return n, desc
}

// distinctKind returns how the result columns can be made distinct: rows
// of a single table are already distinct when the result holds its whole
// primary key, and duplicates are adjacent when the result is a prefix of
// it.
func (s *Scan) distinctKind(result tree.ExprList) compiler.DistinctKind {
	if len(s.levels) != 1 || s.levels[0].kind != storedLoop {
		return compiler.DistinctUnordered
	}
	lv := s.levels[0]
	pk := lv.item.Table.PrimaryKey
	if len(pk) == 0 {
		return compiler.DistinctUnordered
	}

	cols := make(map[int]bool, len(result))
	onlyColumns := true
	for _, it := range result {
		c := sourceColumn(it.Expr, lv.cursor)
		if c < 0 {
			onlyColumns = false
			continue
		}
		cols[c] = true
	}

	covered := 0
	for _, c := range pk {
		if !cols[c] {
			break
		}
		covered++
	}
	switch {
	case covered == len(pk):
		return compiler.DistinctUnique
	case onlyColumns && covered > 0 && covered == len(cols):
		return compiler.DistinctOrdered
	default:
		return compiler.DistinctUnordered
	}
}
