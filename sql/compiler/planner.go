package compiler

import "gopkg.in/src-d/go-selectc.v0/sql/tree"

// WhereFlags tell the planner what the select needs from the scan.
type WhereFlags uint16

const (
	// WhereWantDistinct asks the planner to report how the result columns
	// can be made distinct.
	WhereWantDistinct WhereFlags = 1 << iota
	// WhereGroupBy marks the ordering terms as GROUP BY terms.
	WhereGroupBy
	// WhereSortByGroup asks for the GROUP BY order to also satisfy
	// ORDER BY.
	WhereSortByGroup
	// WhereOrderByMin marks a single min() aggregate: the first row in
	// order is the answer.
	WhereOrderByMin
	// WhereOrderByMax marks a single max() aggregate.
	WhereOrderByMax
	// WhereUseLimit marks a scan whose output is bounded by LIMIT.
	WhereUseLimit
)

// DistinctKind is how the planner can make rows distinct.
type DistinctKind uint8

const (
	// DistinctNoop means no DISTINCT processing was asked for.
	DistinctNoop DistinctKind = iota
	// DistinctUnique means every row is already distinct.
	DistinctUnique
	// DistinctOrdered means duplicates come out next to each other.
	DistinctOrdered
	// DistinctUnordered means duplicates can come out anywhere.
	DistinctUnordered
)

func (k DistinctKind) String() string {
	switch k {
	case DistinctUnique:
		return "unique"
	case DistinctOrdered:
		return "ordered"
	case DistinctUnordered:
		return "unordered"
	default:
		return "noop"
	}
}

// Planner emits the loops that scan the FROM clause of a select. The code
// emitted between Begin and Scan.End runs once per row passing the WHERE
// clause.
type Planner interface {
	// Begin opens the loops over src, testing where at the innermost level
	// that has every table it reads. orderBy and result are the ordering
	// and the distinct columns the select would like the scan to honour.
	Begin(
		p *Parse,
		src tree.SrcList,
		where *tree.Expr,
		orderBy tree.ExprList,
		result tree.ExprList,
		flags WhereFlags,
		rowEst int64,
	) (Scan, error)
}

// Scan is the loop nest opened by a Planner.
type Scan interface {
	// ContinueLabel is the label that moves to the next row.
	ContinueLabel() int
	// BreakLabel is the label that leaves the loops.
	BreakLabel() int
	// NumOrdered returns how many leading ordering terms the rows already
	// satisfy.
	NumOrdered() int
	// IsOrdered reports whether every ordering term is satisfied.
	IsOrdered() bool
	// Distinct returns how the result columns can be made distinct.
	Distinct() DistinctKind
	// OutputRowCount is the estimated number of rows.
	OutputRowCount() int64
	// End closes the loops.
	End()
}
