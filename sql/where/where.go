package where // import "gopkg.in/src-d/go-selectc.v0/sql/where"

import (
	"github.com/sirupsen/logrus"
	"gopkg.in/src-d/go-errors.v1"
	"gopkg.in/src-d/go-selectc.v0/sql"
	"gopkg.in/src-d/go-selectc.v0/sql/compiler"
	"gopkg.in/src-d/go-selectc.v0/sql/tree"
	"gopkg.in/src-d/go-selectc.v0/sql/vdbe"
)

// MaxTables is the largest number of entries a FROM clause can join.
const MaxTables = 64

// ErrTooManyTables is returned when a join has more than MaxTables
// entries.
var ErrTooManyTables = errors.NewKind("at most %d tables in a join")

// Planner scans the entries of a FROM clause with nested loops, in the
// order they are written.
type Planner struct{}

var _ compiler.Planner = (*Planner)(nil)

// NewPlanner returns a new nested loop planner.
func NewPlanner() *Planner { return &Planner{} }

type loopKind byte

const (
	// storedLoop reads a table of the catalog in primary key order.
	storedLoop loopKind = iota
	// ephemeralLoop reads a materialized subquery, or the current row of
	// a recursive query. The cursor is already open.
	ephemeralLoop
	// coroutineLoop resumes the coroutine computing a subquery.
	coroutineLoop
)

// level is one loop of the nest.
type level struct {
	item   *tree.SrcItem
	cursor int
	kind   loopKind
	// reverse scans from the last row to the first.
	reverse bool

	// top is the first address of the loop body.
	top int
	// cont is the label that moves to the next row of this level.
	cont int
	// brk is the label reached when this level has no more rows. For the
	// first level it is the end of the scan, otherwise it is the cont of
	// the level outside.
	brk int
	// exit is where the loop goes when it runs out of rows.
	exit int

	// regMatch is set once a row of the right side of a LEFT JOIN
	// matched the ON clause.
	regMatch int
	// addrFirst is the instruction setting regMatch. The NULL row pass
	// jumps there, skipping the ON clause.
	addrFirst int

	onTerms    []*tree.Expr
	whereTerms []*tree.Expr
}

// Scan is the loop nest emitted by Planner.
type Scan struct {
	p      *compiler.Parse
	b      *vdbe.Builder
	levels []*level

	brk int
	// cont is the label continuing with the next row of the innermost
	// loop.
	cont int

	nOrderBy int
	nOBSat   int
	distinct compiler.DistinctKind
	rowEst   int64
}

var _ compiler.Scan = (*Scan)(nil)

// Begin implements the compiler.Planner interface.
func (pl *Planner) Begin(
	p *compiler.Parse,
	src tree.SrcList,
	where *tree.Expr,
	orderBy tree.ExprList,
	result tree.ExprList,
	flags compiler.WhereFlags,
	rowEst int64,
) (compiler.Scan, error) {
	if len(src) > MaxTables {
		return nil, ErrTooManyTables.New(MaxTables)
	}

	b := p.Builder()
	s := &Scan{
		p:        p,
		b:        b,
		brk:      b.MakeLabel(),
		nOrderBy: len(orderBy),
		distinct: compiler.DistinctNoop,
		rowEst:   1,
	}

	byCursor := make(map[int]int, len(src))
	for i, item := range src {
		lv := &level{item: item, cursor: item.Cursor, cont: b.MakeLabel()}
		switch {
		case item.ViaCoroutine:
			lv.kind = coroutineLoop
		case item.IsRecursive || item.Select != nil || item.Table == nil || item.Table.Ephemeral:
			lv.kind = ephemeralLoop
		default:
			lv.kind = storedLoop
		}
		if item.Table != nil && item.Table.RowEstimate > 0 {
			s.rowEst = mulEstimate(s.rowEst, item.Table.RowEstimate)
		}
		byCursor[item.Cursor] = i
		s.levels = append(s.levels, lv)
	}

	s.nOBSat = s.planOrder(orderBy)
	if flags&compiler.WhereWantDistinct != 0 {
		s.distinct = s.distinctKind(result)
	}
	if flags&compiler.WhereUseLimit != 0 && rowEst > 0 && rowEst < s.rowEst {
		s.rowEst = rowEst
	}

	constant := s.placeTerms(where, byCursor)

	for _, lv := range s.levels {
		if lv.kind == storedLoop {
			b.Op4(vdbe.OpOpenRead, lv.cursor, len(lv.item.Table.Columns), 0, lv.item.Table)
			b.Comment("%s", lv.item.DisplayName())
		}
	}
	for _, t := range constant {
		p.IfFalse(t, s.brk, true)
	}

	for i, lv := range s.levels {
		s.openLevel(i, lv, orderBy, flags)
	}
	if len(s.levels) > 0 {
		s.cont = s.levels[len(s.levels)-1].cont
	} else {
		s.cont = b.MakeLabel()
	}

	p.Context().Logger().WithFields(logrus.Fields{
		"tables":   len(s.levels),
		"ordered":  s.nOBSat,
		"distinct": s.distinct.String(),
	}).Debug("scan planned")
	return s, nil
}

// planOrder returns the number of ordering terms the scan satisfies and
// sets the direction of the outer loop.
func (s *Scan) planOrder(orderBy tree.ExprList) int {
	n, desc := orderedPrefix(s.levels, orderBy)
	if n > 0 && desc {
		s.levels[0].reverse = true
	}
	return n
}

// placeTerms assigns every conjunct of the WHERE clause to the innermost
// level it reads. Terms tagged with an outer join go to the level of the
// join's right table. It returns the terms that read no level at all.
func (s *Scan) placeTerms(where *tree.Expr, byCursor map[int]int) []*tree.Expr {
	var constant []*tree.Expr
	for _, t := range tree.SplitAnd(where) {
		lvl := termLevel(t, byCursor)
		if t.HasFlag(tree.FlagFromJoin) {
			if j, ok := byCursor[t.JoinTable]; ok {
				if j > lvl {
					lvl = j
				}
				s.levels[lvl].onTerms = append(s.levels[lvl].onTerms, t)
				continue
			}
		}
		if lvl < 0 {
			constant = append(constant, t)
			continue
		}
		s.levels[lvl].whereTerms = append(s.levels[lvl].whereTerms, t)
	}
	return constant
}

// termLevel returns the innermost level read by the term, including reads
// from subqueries nested in it, or -1.
func termLevel(t *tree.Expr, byCursor map[int]int) int {
	lvl := -1
	visit := func(e *tree.Expr) bool {
		if e.Op == tree.OpColumn || e.Op == tree.OpAggColumn {
			if i, ok := byCursor[e.Cursor]; ok && i > lvl {
				lvl = i
			}
		}
		return true
	}
	tree.Inspect(t, func(e *tree.Expr) bool {
		visit(e)
		if e.Select != nil {
			tree.WalkSelect(e.Select, func(_ *tree.Select, e *tree.Expr) bool {
				return visit(e)
			})
		}
		return true
	})
	return lvl
}

// openLevel emits the start of the loop of level i and the terms tested
// for each of its rows.
func (s *Scan) openLevel(i int, lv *level, orderBy tree.ExprList, flags compiler.WhereFlags) {
	b, p := s.b, s.p
	if i == 0 {
		lv.brk = s.brk
	} else {
		lv.brk = s.levels[i-1].cont
	}
	lv.exit = lv.brk
	outer := i > 0 && lv.item.JoinType.IsOuter()
	if outer {
		lv.regMatch = b.AllocReg()
		lv.exit = b.MakeLabel()
		b.Op2(vdbe.OpInteger, 0, lv.regMatch)
		b.Comment("init LEFT JOIN match flag")
	}

	switch lv.kind {
	case coroutineLoop:
		co := vdbe.Coroutine{Reg: lv.item.RegReturn, Entry: lv.item.AddrFillSub}
		lv.top = co.Resume(b, lv.exit)
		b.Comment("next row of %s", lv.item.DisplayName())
	default:
		op := vdbe.OpRewind
		if lv.reverse {
			op = vdbe.OpLast
		}
		b.Op2(op, lv.cursor, lv.exit)
		lv.top = b.Addr()
	}

	if i == 0 && s.nOBSat > 0 && flags&(compiler.WhereOrderByMin|compiler.WhereOrderByMax) != 0 {
		// The first row in order is the answer, unless it is NULL.
		r := b.TempReg()
		p.CodeExpr(orderBy[0].Expr, r)
		b.Op2(vdbe.OpIsNull, r, lv.cont)
		b.ReleaseTempReg(r)
	}

	for _, t := range lv.onTerms {
		p.IfFalse(t, lv.cont, true)
	}
	if outer {
		lv.addrFirst = b.Op2(vdbe.OpInteger, 1, lv.regMatch)
		b.Comment("LEFT JOIN row matched")
	}
	for _, t := range lv.whereTerms {
		p.IfFalse(t, lv.cont, true)
	}
}

// ContinueLabel implements the compiler.Scan interface.
func (s *Scan) ContinueLabel() int { return s.cont }

// BreakLabel implements the compiler.Scan interface.
func (s *Scan) BreakLabel() int { return s.brk }

// NumOrdered implements the compiler.Scan interface.
func (s *Scan) NumOrdered() int { return s.nOBSat }

// IsOrdered implements the compiler.Scan interface.
func (s *Scan) IsOrdered() bool { return s.nOBSat == s.nOrderBy }

// Distinct implements the compiler.Scan interface.
func (s *Scan) Distinct() compiler.DistinctKind { return s.distinct }

// OutputRowCount implements the compiler.Scan interface.
func (s *Scan) OutputRowCount() int64 { return s.rowEst }

// End implements the compiler.Scan interface.
func (s *Scan) End() {
	b := s.b
	if len(s.levels) == 0 {
		b.ResolveLabel(s.cont)
	}
	for i := len(s.levels) - 1; i >= 0; i-- {
		lv := s.levels[i]
		b.ResolveLabel(lv.cont)
		switch {
		case lv.kind == coroutineLoop:
			b.Op2(vdbe.OpGoto, 0, lv.top)
		case lv.reverse:
			b.Op2(vdbe.OpPrev, lv.cursor, lv.top)
		default:
			b.Op2(vdbe.OpNext, lv.cursor, lv.top)
		}

		if lv.regMatch > 0 {
			// No row matched: run the rest of the loops once with the
			// columns of this level read as NULL.
			b.ResolveLabel(lv.exit)
			b.Op3(vdbe.OpIfPos, lv.regMatch, lv.brk, 0)
			b.Op1(vdbe.OpNullRow, lv.cursor)
			b.Op2(vdbe.OpGoto, 0, lv.addrFirst)
		}
	}
	b.ResolveLabel(s.brk)
}

func mulEstimate(a, b int64) int64 {
	const max = int64(1) << 40
	if a > max/b {
		return max
	}
	return a * b
}

// sourceColumn returns the column of the table read by cursor that e
// reads, or -1. A COLLATE other than the one of the column hides it.
func sourceColumn(e *tree.Expr, cursor int) int {
	coll, explicit := e.Collation()
	for e.Op == tree.OpCollate {
		e = e.Left
	}
	if e.Op != tree.OpColumn || e.Cursor != cursor || e.Column < 0 || e.TableDef == nil {
		return -1
	}
	if explicit && e.Column < len(e.TableDef.Columns) {
		own := e.TableDef.Columns[e.Column].Collation
		if own == "" {
			own = sql.Binary
		}
		if coll != own {
			return -1
		}
	}
	return e.Column
}
