package tree

import (
	"fmt"
	"strings"

	"gopkg.in/src-d/go-selectc.v0/sql"
)

// CompoundOp is the set operator joining a select to its Prior.
type CompoundOp uint8

// Set operators.
const (
	CompoundNone CompoundOp = iota
	Union
	UnionAll
	Intersect
	Except
)

func (o CompoundOp) String() string {
	switch o {
	case Union:
		return "UNION"
	case UnionAll:
		return "UNION ALL"
	case Intersect:
		return "INTERSECT"
	case Except:
		return "EXCEPT"
	default:
		return "SELECT"
	}
}

// SelectFlags are properties of a select node.
type SelectFlags uint32

const (
	// SFDistinct is SELECT DISTINCT.
	SFDistinct SelectFlags = 1 << iota
	// SFAll is SELECT ALL, or a subquery that must not become a coroutine.
	SFAll
	// SFResolved is set once names have been resolved.
	SFResolved
	// SFAggregate marks a query with aggregate functions or GROUP BY.
	SFAggregate
	// SFUsesEphemeral marks a compound arm that opened ephemeral tables.
	SFUsesEphemeral
	// SFExpanded is set once FROM entries and wildcards are expanded.
	SFExpanded
	// SFHasTypeInfo is set once subquery table descriptors have column
	// affinities and collations.
	SFHasTypeInfo
	// SFNestedFrom marks a parenthesized FROM clause.
	SFNestedFrom
	// SFMinMaxAgg marks a query with a single min() or max() aggregate.
	SFMinMaxAgg
	// SFRecursive marks the recursive arm of a recursive CTE.
	SFRecursive
	// SFFixedLimit marks a LIMIT set by the compiler.
	SFFixedLimit
	// SFCompound marks a select that is part of a compound chain.
	SFCompound
	// SFValues marks a VALUES clause.
	SFValues
	// SFMultiValue marks a chain of VALUES rows.
	SFMultiValue
	// SFConverted marks a select rewritten from a compound with ORDER BY.
	SFConverted
	// SFSingleRow marks a scalar subquery that must yield at most one row.
	SFSingleRow
	// SFNestedFromResolved marks a nested FROM whose names are resolved.
	SFNestedFromResolved
)

// Select is a query node: a SELECT statement or one arm of a compound
// chain. Prior points to the arm on the left, Next to the arm on the
// right. Only the right-most arm carries ORDER BY, LIMIT and OFFSET.
type Select struct {
	Op      CompoundOp
	Columns ExprList
	From    SrcList
	Where   *Expr
	GroupBy ExprList
	Having  *Expr
	OrderBy ExprList
	Limit   *Expr
	Offset  *Expr
	Flags   SelectFlags
	Prior   *Select
	Next    *Select
	With    *With
	// Name labels the select in logs and program comments.
	Name string

	// LimitReg and OffsetReg hold the LIMIT and OFFSET counters once the
	// limit registers are computed. The offset counter is followed by a
	// register holding LIMIT+OFFSET.
	LimitReg  int
	OffsetReg int
	// AddrOpenEphemeral records OpenEphemeral instructions whose key
	// definition is finalized after the compound chain is compiled.
	AddrOpenEphemeral [2]int
	// RowEstimate is the expected number of output rows.
	RowEstimate int64
}

// HasFlag returns whether all the given flags are set.
func (s *Select) HasFlag(f SelectFlags) bool {
	return s != nil && s.Flags&f == f
}

// Leftmost returns the first arm of the compound chain.
func (s *Select) Leftmost() *Select {
	for s.Prior != nil {
		s = s.Prior
	}
	return s
}

// Release drops the references held by the select and its priors on
// table descriptors. It must be called once a select is discarded.
func (s *Select) Release() {
	for ; s != nil; s = s.Prior {
		s.From.Release()
		s.InspectExprs(func(e *Expr) bool {
			if e.Select != nil {
				e.Select.Release()
			}
			return true
		})
	}
}

func (s *Select) String() string {
	if s == nil {
		return ""
	}
	var b strings.Builder
	if s.Prior != nil {
		b.WriteString(s.Prior.String())
		b.WriteString(" " + s.Op.String() + " ")
	}
	if s.HasFlag(SFValues) {
		b.WriteString("VALUES(" + s.Columns.String() + ")")
	} else {
		b.WriteString("SELECT ")
		if s.HasFlag(SFDistinct) {
			b.WriteString("DISTINCT ")
		}
		cols := make([]string, len(s.Columns))
		for i, it := range s.Columns {
			cols[i] = it.Expr.String()
			if it.Name != "" {
				cols[i] += " AS " + it.Name
			}
		}
		b.WriteString(strings.Join(cols, ", "))
		if len(s.From) > 0 {
			b.WriteString(" FROM " + s.From.String())
		}
		if s.Where != nil {
			b.WriteString(" WHERE " + s.Where.String())
		}
		if len(s.GroupBy) > 0 {
			b.WriteString(" GROUP BY " + s.GroupBy.String())
		}
		if s.Having != nil {
			b.WriteString(" HAVING " + s.Having.String())
		}
	}
	if len(s.OrderBy) > 0 {
		b.WriteString(" ORDER BY " + s.OrderBy.String())
	}
	if s.Limit != nil {
		b.WriteString(" LIMIT " + s.Limit.String())
		if s.Offset != nil {
			b.WriteString(" OFFSET " + s.Offset.String())
		}
	}
	return b.String()
}

// JoinType is the set of join keywords between a FROM entry and the
// entries to its left.
type JoinType uint8

// Join type bits.
const (
	JTInner JoinType = 1 << iota
	JTCross
	JTNatural
	JTLeft
	JTRight
	JTOuter
	JTError
)

// IsOuter returns whether the right side of the join is NULL-extended.
func (j JoinType) IsOuter() bool { return j&JTOuter != 0 }

func (j JoinType) String() string {
	var words []string
	for _, w := range []struct {
		bit  JoinType
		word string
	}{
		{JTNatural, "NATURAL"},
		{JTLeft, "LEFT"},
		{JTRight, "RIGHT"},
		{JTOuter, "OUTER"},
		{JTInner, "INNER"},
		{JTCross, "CROSS"},
	} {
		if j&w.bit != 0 {
			words = append(words, w.word)
		}
	}
	if len(words) == 0 {
		return "JOIN"
	}
	return strings.Join(words, " ") + " JOIN"
}

// SrcItem is one entry of a FROM clause: a named table or view, a CTE
// reference or a subquery.
type SrcItem struct {
	// Name of the table, view or CTE.
	Name string
	// Alias given with AS.
	Alias string
	// Table is the descriptor of the row source once expanded. It holds a
	// reference on the descriptor.
	Table *sql.Table
	// Select is the subquery of the entry.
	Select *Select
	// Cursor reading the entry, assigned by the expander.
	Cursor int
	// JoinType joining the entry to the entries on its left.
	JoinType JoinType
	On       *Expr
	Using    []string
	// IndexedBy names the index requested with INDEXED BY.
	IndexedBy string

	// IsRecursive marks the self reference of a recursive CTE.
	IsRecursive bool
	// IsCorrelated marks a subquery referencing columns of an outer query.
	IsCorrelated bool
	// ViaCoroutine marks a subquery implemented as a coroutine.
	ViaCoroutine bool
	// AddrFillSub is the entry point of the subroutine or coroutine
	// computing the subquery.
	AddrFillSub int
	// RegReturn holds the return address of the fill subroutine or the
	// resume address of the coroutine.
	RegReturn int
	// RegResult is the first register of the coroutine's output row.
	RegResult int
	// CTE is the common table expression the entry refers to.
	CTE *CTE
}

// DisplayName is the alias of the entry, or its name.
func (s *SrcItem) DisplayName() string {
	if s.Alias != "" {
		return s.Alias
	}
	if s.Name != "" {
		return s.Name
	}
	if s.Table != nil {
		return s.Table.Name
	}
	return ""
}

// SetTable sets the descriptor of the entry, taking a reference on it and
// dropping the reference on the previous one.
func (s *SrcItem) SetTable(t *sql.Table) {
	if s.Table != nil {
		_ = s.Table.Unref()
	}
	if t != nil {
		t.Ref()
	}
	s.Table = t
}

// SrcList is a FROM clause.
type SrcList []*SrcItem

// Release drops the references the entries hold on table descriptors,
// including those of nested subqueries.
func (l SrcList) Release() {
	for _, it := range l {
		it.SetTable(nil)
		if it.Select != nil {
			it.Select.Release()
		}
	}
}

// ByCursor returns the entry with the given cursor.
func (l SrcList) ByCursor(cursor int) *SrcItem {
	for _, it := range l {
		if it.Cursor == cursor {
			return it
		}
	}
	return nil
}

func (l SrcList) String() string {
	var b strings.Builder
	for i, it := range l {
		if i > 0 {
			if it.JoinType == JTInner || it.JoinType == 0 {
				b.WriteString(", ")
			} else {
				b.WriteString(" " + it.JoinType.String() + " ")
			}
		}
		if it.Select != nil && it.Name == "" {
			b.WriteString("(" + it.Select.String() + ")")
		} else {
			b.WriteString(it.Name)
		}
		if it.Alias != "" {
			b.WriteString(" AS " + it.Alias)
		}
		if it.On != nil {
			b.WriteString(" ON " + it.On.String())
		}
		if len(it.Using) > 0 {
			b.WriteString(fmt.Sprintf(" USING (%s)", strings.Join(it.Using, ", ")))
		}
	}
	return b.String()
}

// With is a WITH clause. Outer links to the WITH clause of the enclosing
// statement while the compiler resolves names.
type With struct {
	Recursive bool
	CTEs      []*CTE
	Outer     *With
}

// Find returns the CTE with the given name, searching the enclosing WITH
// clauses too, together with the clause defining it.
func (w *With) Find(name string) (*CTE, *With) {
	for ; w != nil; w = w.Outer {
		for _, c := range w.CTEs {
			if strings.EqualFold(c.Name, name) {
				return c, w
			}
		}
	}
	return nil, nil
}

// CTE is a common table expression.
type CTE struct {
	Name    string
	Columns []string
	Select  *Select
}
